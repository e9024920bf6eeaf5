package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is one chat thread as reported by the backend session
// listing, plus the optimistic bumps applied locally on send/finalize.
type Conversation struct {
	ID           string
	Title        string
	Preview      string
	MessageCount int
	UpdatedAt    time.Time
}

// Message is a single timeline entry. Streaming marks an assistant entry
// that has not been finalized yet; IsError marks an entry finalized by an
// error event instead of a regular final.
type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
	Streaming bool
	IsError   bool
}

// ReasoningEntry is one finalized chunk of intermediate agent reasoning.
// Entries are immutable once appended; the in-progress fragment lives on
// State.LiveReasoning instead.
type ReasoningEntry struct {
	ID   string
	Text string
}
