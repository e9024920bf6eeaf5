package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlankMessage = errors.New("message is empty")
	ErrSendInFlight = errors.New("a send is already in flight")
)

// State is the single-writer container for the selected conversation's
// transcript. Every mutation happens through the transition methods below,
// on one goroutine (the bubbletea update loop), so there is no locking,
// only ordering discipline. The generation guard that keeps stale streams
// away from a State lives with the caller; see Stream.Gen.
type State struct {
	Timeline      []Message
	Reasoning     []ReasoningEntry
	LiveReasoning string
	ReasoningOpen bool
	Sending       bool

	pendingID string
	newID     func() string
	now       func() time.Time
}

func NewState() *State {
	return &State{
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Outcome describes what an applied event changed, so the caller can decide
// what to re-render and whether to touch conversation counters or the
// archive.
type Outcome struct {
	TimelineChanged  bool
	ReasoningChanged bool
	// Finalized is set when an assistant entry left the streaming state,
	// by a final or by an error event.
	Finalized *Message
	// Notice is a transient status the UI should surface, currently only
	// produced by error events.
	Notice string
}

// PendingID exposes the in-flight assistant entry id, empty when no turn is
// streaming.
func (s *State) PendingID() string { return s.pendingID }

// Apply runs one inbound event through the reconciliation rules. Events with
// a type the client does not know are ignored.
func (s *State) Apply(ev Event) Outcome {
	switch ev.Type {
	case EventReasoning:
		return s.applyReasoning(ev)
	case EventAssistantPartial:
		return s.applyAssistantPartial(ev)
	case EventAssistant:
		return s.applyAssistantFinal(ev)
	case EventError:
		return s.applyError(ev)
	default:
		return Outcome{}
	}
}

func (s *State) applyReasoning(ev Event) Outcome {
	if ev.Partial {
		s.LiveReasoning = ev.Content
		s.ReasoningOpen = true
		return Outcome{ReasoningChanged: true}
	}
	s.LiveReasoning = ""
	s.Reasoning = append(s.Reasoning, ReasoningEntry{ID: s.newID(), Text: ev.Content})
	return Outcome{ReasoningChanged: true}
}

func (s *State) applyAssistantPartial(ev Event) Outcome {
	idx := s.pendingIndex()
	if idx < 0 {
		s.appendPending(ev.Content)
		return Outcome{TimelineChanged: true}
	}
	s.Timeline[idx].Content = ev.Content
	return Outcome{TimelineChanged: true}
}

func (s *State) applyAssistantFinal(ev Event) Outcome {
	idx := s.pendingIndex()
	if idx < 0 {
		idx = s.appendPending(ev.Content)
	}
	s.Timeline[idx].Content = ev.Content
	s.Timeline[idx].Streaming = false
	s.Timeline[idx].IsError = false
	final := s.Timeline[idx]
	s.pendingID = ""
	s.Sending = false
	return Outcome{TimelineChanged: true, Finalized: &final}
}

func (s *State) applyError(ev Event) Outcome {
	idx := s.pendingIndex()
	if idx < 0 {
		idx = s.appendPending(ev.Content)
	}
	s.Timeline[idx].Content = ev.Content
	s.Timeline[idx].Streaming = false
	s.Timeline[idx].IsError = true
	final := s.Timeline[idx]
	s.pendingID = ""
	s.Sending = false
	s.LiveReasoning = "error: " + ev.Content
	s.ReasoningOpen = true
	return Outcome{
		TimelineChanged:  true,
		ReasoningChanged: true,
		Finalized:        &final,
		Notice:           ev.Content,
	}
}

// pendingIndex locates the entry the pending reference points at. A set
// reference whose entry has vanished is treated as unset; applyAssistant*
// then re-appends and repoints.
func (s *State) pendingIndex() int {
	if s.pendingID == "" {
		return -1
	}
	for i := range s.Timeline {
		if s.Timeline[i].ID == s.pendingID {
			return i
		}
	}
	return -1
}

func (s *State) appendPending(content string) int {
	entry := Message{
		ID:        s.newID(),
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: s.now(),
		Streaming: true,
	}
	s.Timeline = append(s.Timeline, entry)
	s.pendingID = entry.ID
	return len(s.Timeline) - 1
}

// BeginSend seeds the optimistic local state for one user turn: the user
// entry, the streaming assistant placeholder (which becomes the pending
// reference), a cleared reasoning context, and the sending flag. Callers
// check transport connectivity before calling and transmit the returned
// user content afterwards.
func (s *State) BeginSend(raw string) (Message, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return Message{}, ErrBlankMessage
	}
	if s.Sending {
		return Message{}, ErrSendInFlight
	}

	user := Message{
		ID:        s.newID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.Timeline = append(s.Timeline, user)
	s.appendPending("")
	s.Reasoning = nil
	s.LiveReasoning = ""
	s.ReasoningOpen = false
	s.Sending = true
	return user, nil
}

// ResetForHistory replaces the timeline with the persisted history of a
// (re)selected conversation. Any unfinalized in-flight entry is discarded;
// an interrupted stream's partial content is not recoverable client-side.
func (s *State) ResetForHistory(history []Message) {
	s.Timeline = append([]Message(nil), history...)
	s.Reasoning = nil
	s.LiveReasoning = ""
	s.ReasoningOpen = false
	s.Sending = false
	s.pendingID = ""
}

// ResetReasoning clears the reasoning trail and live fragment. A fresh
// transport connection implies a fresh reasoning context.
func (s *State) ResetReasoning() {
	s.Reasoning = nil
	s.LiveReasoning = ""
}

// CloseStream records that the transport went away. The sending flag and
// pending reference are cleared so no stuck state survives a dead
// connection; the entry itself keeps its content (finalize is the only
// transition that clears an entry's streaming mark, and a reselect reloads
// from history anyway).
func (s *State) CloseStream() {
	s.Sending = false
	s.pendingID = ""
}
