package extract

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/aegion/docbot/pkg/profile"
	"github.com/aegion/docbot/pkg/session"
)

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z]*)[ \t]*\r?\n?(.*?)```")

var (
	errNoBlock      = errors.New("no fenced json block in response")
	errInvalidJSON  = errors.New("fenced block is not valid json")
	errNotAnObject  = errors.New("fenced block is not a json object")
	errMissingField = errors.New("required field missing")
)

// findBlock returns the first fenced JSON object in text. Fences tagged json
// are tried before bare ones; fences tagged with another language are
// skipped. When no fence holds an object, the error describes the first
// candidate.
func findBlock(text string) (gjson.Result, error) {
	var tagged, bare []string
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		switch strings.ToLower(m[1]) {
		case "json":
			tagged = append(tagged, m[2])
		case "":
			bare = append(bare, m[2])
		}
	}

	candidates := append(tagged, bare...)
	if len(candidates) == 0 {
		return gjson.Result{}, errNoBlock
	}

	var firstErr error
	for _, c := range candidates {
		block, err := parseBlock(c)
		if err == nil {
			return block, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return gjson.Result{}, firstErr
}

func parseBlock(raw string) (gjson.Result, error) {
	raw = strings.TrimSpace(raw)
	if !gjson.Valid(raw) {
		return gjson.Result{}, errInvalidJSON
	}
	block := gjson.Parse(raw)
	if !block.IsObject() {
		return gjson.Result{}, errNotAnObject
	}
	return block, nil
}

// lookup returns the first present key among names.
func lookup(block gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if r := block.Get(name); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// text renders a scalar or list value as one line.
func text(r gjson.Result) string {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return ""
	case r.IsArray(), r.IsObject():
		return strings.Join(list(r), "; ")
	default:
		return strings.TrimSpace(r.String())
	}
}

// list flattens arrays, objects and scalars into display lines.
func list(r gjson.Result) []string {
	var out []string
	switch {
	case !r.Exists(), r.Type == gjson.Null:
	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			if s := text(v); s != "" {
				out = append(out, s)
			}
			return true
		})
	case r.IsObject():
		r.ForEach(func(k, v gjson.Result) bool {
			if s := text(v); s != "" {
				out = append(out, k.String()+": "+s)
			} else {
				out = append(out, k.String())
			}
			return true
		})
	default:
		if s := strings.TrimSpace(r.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// flag reads a yes/no style value. present is false when the key is absent,
// null or an empty string.
func flag(r gjson.Result) (value, present bool) {
	switch r.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(r.Str)) {
		case "":
			return false, false
		case "yes", "y", "true", "complete", "completed":
			return true, true
		default:
			return false, true
		}
	default:
		return false, false
	}
}

// decodeProfile reads known profile keys from block. Unknown keys are ignored.
func decodeProfile(block gjson.Result) profile.Profile {
	delta := profile.Profile{}
	block.ForEach(func(k, v gjson.Result) bool {
		if f, ok := profile.ParseField(k.String()); ok {
			delta[f] = text(v)
		}
		return true
	})
	return delta
}

// profileJSON renders p as a JSON object in field order.
func profileJSON(p profile.Profile) string {
	out := "{}"
	for _, f := range profile.Fields {
		if v, ok := p[f]; ok {
			if next, err := sjson.Set(out, string(f), v); err == nil {
				out = next
			}
		}
	}
	return out
}

// historyContext renders history as "speaker: text" lines.
func historyContext(history []session.Entry) string {
	var sb strings.Builder
	for i, e := range history {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.SpeakerID)
		sb.WriteString(": ")
		sb.WriteString(e.Text)
	}
	return sb.String()
}
