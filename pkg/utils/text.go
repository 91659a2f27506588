package utils

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`<@!?\d+>`)

// Truncate shortens s to at most maxLen runes, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// StripMentions removes <@id> and <@!id> markup and trims the result.
func StripMentions(s string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(s, ""))
}

// ParseUserRef accepts a raw user id or a mention and returns the bare id.
func ParseUserRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "<@") && strings.HasSuffix(ref, ">") {
		ref = strings.TrimPrefix(ref[2:len(ref)-1], "!")
	}
	return ref
}

// MentionsUser reports whether text carries mention markup for userID.
func MentionsUser(text, userID string) bool {
	if userID == "" {
		return false
	}
	return strings.Contains(text, "<@"+userID+">") || strings.Contains(text, "<@!"+userID+">")
}

// SplitMessage breaks s into chunks of at most limit runes, preferring to cut
// at the last newline, then the last space, inside each window.
func SplitMessage(s string, limit int) []string {
	if limit <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		if i := lastIndex(runes[:limit], '\n'); i > 0 {
			cut = i
		} else if i := lastIndex(runes[:limit], ' '); i > 0 {
			cut = i
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " \n"))
	}
	if len(runes) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
