package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codex-chat/internal/chat"
)

func TestBuildTranscriptMarkdown(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "clean the CSV"},
		{Role: chat.RoleAssistant, Content: "Done, 3 rows dropped."},
	}

	out := BuildTranscriptMarkdown(msgs)
	if !strings.Contains(out, "## You\n\nclean the CSV") {
		t.Fatalf("missing user turn:\n%s", out)
	}
	if !strings.Contains(out, "## Codex\n\nDone, 3 rows dropped.") {
		t.Fatalf("missing assistant turn:\n%s", out)
	}
}

func TestBuildTranscriptMarkdown_FlagsErrorTurns(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "model unavailable", IsError: true},
	}

	out := BuildTranscriptMarkdown(msgs)
	if !strings.Contains(out, "## Codex (error)") {
		t.Fatalf("expected error heading:\n%s", out)
	}
	if !strings.Contains(out, "```text\nmodel unavailable\n```") {
		t.Fatalf("expected error body in a text block:\n%s", out)
	}
}

func TestBuildTranscriptMarkdown_SkipsStreamingAndEmptyEntries(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "q"},
		{Role: chat.RoleAssistant, Content: "half an ans", Streaming: true},
		{Role: chat.RoleAssistant, Content: "   "},
	}

	out := BuildTranscriptMarkdown(msgs)
	if strings.Contains(out, "half an ans") {
		t.Fatalf("streaming entry should not be exported:\n%s", out)
	}
	if strings.Count(out, "## Codex") != 0 {
		t.Fatalf("expected no assistant headings:\n%s", out)
	}
}

func TestExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	conv := chat.Conversation{ID: "c1", Title: "Data cleanup", MessageCount: 2, UpdatedAt: time.Unix(1700000000, 0)}
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "clean the CSV"},
		{Role: chat.RoleAssistant, Content: "done"},
	}

	path, err := e.Export(conv, msgs)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected export under override dir, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "# Chat Data cleanup") {
		t.Fatalf("missing title heading:\n%s", content)
	}
	if !strings.Contains(content, "conversation: c1") {
		t.Fatalf("missing metadata block:\n%s", content)
	}
}

func TestSafeFileName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"abc", "abc"},
		{"a/b:c d", "a_b_c_d"},
		{"  ", "conversation"},
	}
	for _, tc := range cases {
		if got := safeFileName(tc.in); got != tc.want {
			t.Fatalf("safeFileName(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}
