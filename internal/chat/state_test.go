package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState() *State {
	n := 0
	return &State{
		newID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
		now: func() time.Time {
			return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		},
	}
}

func TestApplyPartialsThenFinal(t *testing.T) {
	s := newTestState()

	events := []Event{
		{Type: EventReasoning, Content: "Thinking about X", Partial: true},
		{Type: EventAssistantPartial, Content: "Here is"},
		{Type: EventAssistantPartial, Content: "Here is the"},
		{Type: EventReasoning, Content: "Decided approach"},
		{Type: EventAssistant, Content: "Here is the answer."},
	}
	for _, ev := range events {
		s.Apply(ev)
	}

	require.Len(t, s.Timeline, 1)
	last := s.Timeline[0]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "Here is the answer.", last.Content)
	assert.False(t, last.Streaming)
	assert.False(t, last.IsError)

	require.Len(t, s.Reasoning, 1)
	assert.Equal(t, "Decided approach", s.Reasoning[0].Text)
	assert.Empty(t, s.LiveReasoning)
	assert.Empty(t, s.PendingID())
	assert.False(t, s.Sending)
}

func TestReasoningTrailGrowsOnlyOnFinalChunks(t *testing.T) {
	s := newTestState()

	s.Apply(Event{Type: EventReasoning, Content: "a", Partial: true})
	s.Apply(Event{Type: EventReasoning, Content: "ab", Partial: true})
	assert.Equal(t, "ab", s.LiveReasoning)
	assert.Empty(t, s.Reasoning)
	assert.True(t, s.ReasoningOpen)

	s.Apply(Event{Type: EventReasoning, Content: "ab done"})
	assert.Empty(t, s.LiveReasoning)
	require.Len(t, s.Reasoning, 1)
	assert.Equal(t, "ab done", s.Reasoning[0].Text)
}

func TestAssistantPartialAllocatesOncePerTurn(t *testing.T) {
	s := newTestState()

	s.Apply(Event{Type: EventAssistantPartial, Content: "one"})
	first := s.PendingID()
	require.NotEmpty(t, first)

	s.Apply(Event{Type: EventAssistantPartial, Content: "one two"})
	assert.Equal(t, first, s.PendingID())
	require.Len(t, s.Timeline, 1)
	assert.Equal(t, "one two", s.Timeline[0].Content)
	assert.True(t, s.Timeline[0].Streaming)
}

func TestAssistantPartialRepointsWhenEntryVanished(t *testing.T) {
	s := newTestState()
	s.Apply(Event{Type: EventAssistantPartial, Content: "orphaned"})

	// Something removed the entry out from under the pending reference.
	s.Timeline = nil

	out := s.Apply(Event{Type: EventAssistantPartial, Content: "recovered"})
	assert.True(t, out.TimelineChanged)
	require.Len(t, s.Timeline, 1)
	assert.Equal(t, "recovered", s.Timeline[0].Content)
	assert.Equal(t, s.Timeline[0].ID, s.PendingID())
}

func TestFinalWithoutPendingCreatesEntry(t *testing.T) {
	s := newTestState()

	out := s.Apply(Event{Type: EventAssistant, Content: "late final"})
	require.NotNil(t, out.Finalized)
	require.Len(t, s.Timeline, 1)
	assert.Equal(t, "late final", s.Timeline[0].Content)
	assert.False(t, s.Timeline[0].Streaming)
	assert.Empty(t, s.PendingID())
}

func TestErrorFinalizesPendingEntry(t *testing.T) {
	s := newTestState()
	_, err := s.BeginSend("hi")
	require.NoError(t, err)

	out := s.Apply(Event{Type: EventError, Content: "model unavailable"})

	require.NotNil(t, out.Finalized)
	assert.Equal(t, "model unavailable", out.Notice)

	last := s.Timeline[len(s.Timeline)-1]
	assert.True(t, last.IsError)
	assert.False(t, last.Streaming)
	assert.Equal(t, "model unavailable", last.Content)
	assert.Equal(t, "error: model unavailable", s.LiveReasoning)
	assert.Empty(t, s.PendingID())
	assert.False(t, s.Sending)
}

func TestUnknownEventIsIgnored(t *testing.T) {
	s := newTestState()
	out := s.Apply(Event{Type: "token_count", Content: "42"})
	assert.Equal(t, Outcome{}, out)
	assert.Empty(t, s.Timeline)
}

func TestBeginSendSeedsOptimisticState(t *testing.T) {
	s := newTestState()
	s.Reasoning = []ReasoningEntry{{ID: "r", Text: "stale"}}
	s.LiveReasoning = "stale live"
	s.ReasoningOpen = true

	user, err := s.BeginSend("  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", user.Content)
	assert.Equal(t, RoleUser, user.Role)

	require.Len(t, s.Timeline, 2)
	placeholder := s.Timeline[1]
	assert.Equal(t, RoleAssistant, placeholder.Role)
	assert.True(t, placeholder.Streaming)
	assert.Empty(t, placeholder.Content)
	assert.Equal(t, placeholder.ID, s.PendingID())

	assert.Empty(t, s.Reasoning)
	assert.Empty(t, s.LiveReasoning)
	assert.False(t, s.ReasoningOpen)
	assert.True(t, s.Sending)
}

func TestBeginSendRejectsBlankContent(t *testing.T) {
	s := newTestState()
	_, err := s.BeginSend("   \n\t ")
	require.ErrorIs(t, err, ErrBlankMessage)
	assert.Empty(t, s.Timeline)
	assert.False(t, s.Sending)
}

func TestBeginSendRejectsSecondInFlightTurn(t *testing.T) {
	s := newTestState()
	_, err := s.BeginSend("first")
	require.NoError(t, err)

	_, err = s.BeginSend("second")
	require.ErrorIs(t, err, ErrSendInFlight)
	assert.Len(t, s.Timeline, 2)
}

func TestResetForHistoryDropsInFlightEntry(t *testing.T) {
	s := newTestState()
	_, err := s.BeginSend("interrupted")
	require.NoError(t, err)
	s.Apply(Event{Type: EventAssistantPartial, Content: "partial answer"})

	history := []Message{
		{ID: "h1", Role: RoleUser, Content: "persisted question"},
		{ID: "h2", Role: RoleAssistant, Content: "persisted answer"},
	}
	s.ResetForHistory(history)

	require.Len(t, s.Timeline, 2)
	assert.Equal(t, "persisted answer", s.Timeline[1].Content)
	assert.Empty(t, s.PendingID())
	assert.False(t, s.Sending)
	assert.Empty(t, s.Reasoning)
	assert.Empty(t, s.LiveReasoning)
}

func TestCloseStreamClearsSendingState(t *testing.T) {
	s := newTestState()
	_, err := s.BeginSend("in flight")
	require.NoError(t, err)

	s.CloseStream()

	assert.False(t, s.Sending)
	assert.Empty(t, s.PendingID())
}

func TestNewPartialAfterFinalStartsFreshEntry(t *testing.T) {
	s := newTestState()
	s.Apply(Event{Type: EventAssistantPartial, Content: "a"})
	s.Apply(Event{Type: EventAssistant, Content: "a done"})
	s.Apply(Event{Type: EventAssistantPartial, Content: "b"})

	require.Len(t, s.Timeline, 2)
	assert.False(t, s.Timeline[0].Streaming)
	assert.True(t, s.Timeline[1].Streaming)
	assert.Equal(t, s.Timeline[1].ID, s.PendingID())

	streaming := 0
	for _, m := range s.Timeline {
		if m.Streaming {
			streaming++
		}
	}
	assert.Equal(t, 1, streaming)
}
