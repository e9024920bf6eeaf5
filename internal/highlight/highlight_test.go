package highlight

import (
	"strings"
	"testing"
)

func TestApply_CaseInsensitive(t *testing.T) {
	in := "Hello there\nsecond hello\n"
	res := Apply(in, "hello", func(s string) string { return "[[" + s + "]]" })

	if res.Count != 2 {
		t.Fatalf("expected 2 matches, got %d", res.Count)
	}
	if len(res.LineIndex) != 2 || res.LineIndex[0] != 0 || res.LineIndex[1] != 1 {
		t.Fatalf("unexpected line indexes: %#v", res.LineIndex)
	}
	if !strings.Contains(res.Text, "[[Hello]]") || !strings.Contains(res.Text, "[[hello]]") {
		t.Fatalf("highlight wrapper not applied: %q", res.Text)
	}
}

func TestApply_PreservesEscapeSequences(t *testing.T) {
	in := "a \x1b[31mhello\x1b[0m b"
	res := Apply(in, "hello", func(s string) string { return "<" + s + ">" })

	if res.Count != 1 {
		t.Fatalf("expected 1 match, got %d", res.Count)
	}
	if !strings.Contains(res.Text, "\x1b[31m<hello>\x1b[0m") {
		t.Fatalf("expected escaped segment to stay intact, got %q", res.Text)
	}
}

func TestApply_DoesNotMatchAcrossEscapeBoundaries(t *testing.T) {
	in := "he\x1b[31mll\x1b[0mo"
	res := Apply(in, "hello", func(s string) string { return "<" + s + ">" })
	if res.Count != 0 {
		t.Fatalf("expected 0 matches across ansi boundaries, got %d", res.Count)
	}
}

func TestApply_EmptyQueryReturnsInputUnchanged(t *testing.T) {
	in := "anything at all"
	res := Apply(in, "   ", nil)
	if res.Text != in || res.Count != 0 {
		t.Fatalf("expected passthrough, got %+v", res)
	}
}

func TestApply_MultipleMatchesOnOneLine(t *testing.T) {
	res := Apply("ab ab ab", "ab", func(s string) string { return "<" + s + ">" })
	if res.Count != 3 {
		t.Fatalf("expected 3 matches, got %d", res.Count)
	}
	if res.Text != "<ab> <ab> <ab>" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if len(res.LineIndex) != 1 || res.LineIndex[0] != 0 {
		t.Fatalf("unexpected line index: %#v", res.LineIndex)
	}
}
