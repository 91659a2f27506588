package utils_test

import (
	"strings"
	"testing"

	"github.com/aegion/docbot/pkg/utils"
)

func TestStripMentions(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<@123> hello", "hello"},
		{"<@!123>   !exit  ", "!exit"},
		{"hi <@1> and <@2>", "hi  and"},
		{"no mentions", "no mentions"},
		{"<@abc> stays", "<@abc> stays"},
	}

	for _, tt := range tests {
		if got := utils.StripMentions(tt.in); got != tt.want {
			t.Errorf("StripMentions(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseUserRef(t *testing.T) {
	tests := map[string]string{
		"<@42>":  "42",
		"<@!42>": "42",
		" 42 ":   "42",
		"alice":  "alice",
	}
	for in, want := range tests {
		if got := utils.ParseUserRef(in); got != want {
			t.Errorf("ParseUserRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMentionsUser(t *testing.T) {
	if !utils.MentionsUser("hey <@99> there", "99") {
		t.Error("expected mention to be detected")
	}
	if !utils.MentionsUser("<@!99>", "99") {
		t.Error("expected nickname mention to be detected")
	}
	if utils.MentionsUser("<@999>", "99") {
		t.Error("did not expect a partial id to match")
	}
	if utils.MentionsUser("<@99>", "") {
		t.Error("empty user id never matches")
	}
}

func TestTruncate(t *testing.T) {
	if got := utils.Truncate("hello world", 8); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := utils.Truncate("short", 50); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := utils.SplitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("short message should stay whole, got %q", got)
	}

	got := utils.SplitMessage("line one\nline two", 12)
	if len(got) != 2 || got[0] != "line one" || got[1] != "line two" {
		t.Errorf("expected newline split, got %q", got)
	}

	got = utils.SplitMessage("alpha beta gamma", 11)
	if len(got) != 2 || got[0] != "alpha beta" || got[1] != "gamma" {
		t.Errorf("expected space split, got %q", got)
	}

	long := strings.Repeat("x", 25)
	got = utils.SplitMessage(long, 10)
	if len(got) != 3 || strings.Join(got, "") != long {
		t.Errorf("expected hard split into 3, got %q", got)
	}
	for _, c := range got {
		if len([]rune(c)) > 10 {
			t.Errorf("chunk over limit: %q", c)
		}
	}
}
