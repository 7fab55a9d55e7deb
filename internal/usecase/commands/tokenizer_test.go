package commands

import (
	"slices"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		keyword string
		args    []string
	}{
		{name: "keyword only", text: "Help", keyword: "help", args: []string{}},
		{name: "plain args", text: "echo hello  world", keyword: "echo", args: []string{"hello", "world"}},
		{name: "quoted arg", text: `addalias "echo hi" greet`, keyword: "addalias", args: []string{"echo hi", "greet"}},
		{name: "quoted single word", text: `echo "hi" there`, keyword: "echo", args: []string{"hi", "there"}},
		{name: "unterminated quote", text: `echo "never closed here`, keyword: "echo", args: []string{"never closed here"}},
		{name: "lone quote", text: `echo " x`, keyword: "echo", args: []string{`"`, "x"}},
		{name: "stray closing quote", text: `echo a" b`, keyword: "echo", args: []string{"a", "b"}},
		{name: "empty", text: "   ", keyword: "", args: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyword, args := Tokenize(tt.text)
			if keyword != tt.keyword {
				t.Fatalf("Tokenize(%q) keyword = %q, want %q", tt.text, keyword, tt.keyword)
			}
			if !slices.Equal(args, tt.args) {
				t.Fatalf("Tokenize(%q) args = %q, want %q", tt.text, args, tt.args)
			}
		})
	}
}

func TestSplitArgsCountsTopLevelTokens(t *testing.T) {
	words := []string{`"a`, `b"`, "c", `"d"`, "e"}
	got := SplitArgs(words)
	want := []string{"a b", "c", "d", "e"}
	if !slices.Equal(got, want) {
		t.Fatalf("SplitArgs() = %q, want %q", got, want)
	}
}

func TestSplitArgsSkipsEmptyWords(t *testing.T) {
	got := SplitArgs([]string{"", "a", ""})
	if !slices.Equal(got, []string{"a"}) {
		t.Fatalf("SplitArgs() = %q, want [a]", got)
	}
}
