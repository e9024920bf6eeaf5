package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codex-chat/internal/chat"
)

type Exporter struct {
	overrideDir string
	cwd         string
}

func New(overrideDir string) (*Exporter, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}
	return &Exporter{overrideDir: strings.TrimSpace(overrideDir), cwd: cwd}, nil
}

// Export writes the conversation transcript as markdown and returns the
// output path.
func (e *Exporter) Export(conv chat.Conversation, messages []chat.Message) (string, error) {
	path := e.outputPath(conv)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	body := BuildTranscriptMarkdown(messages)
	md := BuildConversationMarkdown(conv, body, time.Now().UTC())
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

// BuildTranscriptMarkdown renders finalized turns. Entries still streaming
// when the export happens are skipped; error turns get a flagged heading so
// they stand out from regular replies.
func BuildTranscriptMarkdown(messages []chat.Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" || m.Streaming {
			continue
		}

		switch m.Role {
		case chat.RoleUser:
			b.WriteString("## You\n\n")
			b.WriteString(content + "\n\n")
		case chat.RoleAssistant:
			if m.IsError {
				b.WriteString("## Codex (error)\n\n")
				b.WriteString("```text\n")
				b.WriteString(content + "\n")
				b.WriteString("```\n\n")
				continue
			}
			b.WriteString("## Codex\n\n")
			b.WriteString(content + "\n\n")
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func BuildConversationMarkdown(conv chat.Conversation, transcript string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Chat " + displayTitle(conv) + "\n\n")
	b.WriteString("Exported: " + now.Format(time.RFC3339) + "\n\n")
	b.WriteString("```text\n")
	b.WriteString("conversation: " + conv.ID + "\n")
	b.WriteString(fmt.Sprintf("message_count: %d\n", conv.MessageCount))
	b.WriteString("last_updated: " + safeTime(conv.UpdatedAt) + "\n")
	b.WriteString("```\n\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func displayTitle(conv chat.Conversation) string {
	if t := strings.TrimSpace(conv.Title); t != "" {
		return t
	}
	return conv.ID
}

func safeTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}

func (e *Exporter) outputPath(conv chat.Conversation) string {
	dir := e.overrideDir
	if dir == "" {
		dir = filepath.Join(e.cwd, "docs", "codex")
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(e.cwd, dir)
	}
	return filepath.Join(dir, safeFileName(conv.ID)+".md")
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "conversation"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}
