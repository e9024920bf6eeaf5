package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"codex-chat/internal/chat"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "eric", r.URL.Query().Get("user_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sessions":[
			{"id":"c2","title":"Data cleanup","first_message_preview":"clean the CSV",
			 "message_count":7,"updated_at":"2026-03-01T12:00:00Z"},
			{"id":"c1","title":"","first_message_preview":"",
			 "message_count":0,"updated_at":"2026-02-27T09:30:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	sessions, err := c.ListSessions(context.Background(), "eric")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "c2", sessions[0].ID)
	assert.Equal(t, "Data cleanup", sessions[0].Title)
	assert.Equal(t, 7, sessions[0].MessageCount)
	assert.Equal(t, "clean the CSV", sessions[0].Preview)
}

func TestMessagesSkipsNonConversationalRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/c2/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"id":1,"role":"user","content":"hi","created_at":"2026-03-01T12:00:00Z"},
			{"id":2,"role":"system","content":"internal","created_at":"2026-03-01T12:00:01Z"},
			{"id":3,"role":"assistant","content":"hello","created_at":"2026-03-01T12:00:02Z"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	msgs, err := c.Messages(context.Background(), "c2", "eric")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.False(t, msgs[1].Streaming)
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/sessions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chat_session_id":"c9","model":"internal-gateway",
			"created_at":"2026-03-01T12:00:00Z","title":"fresh"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	conv, err := c.CreateSession(context.Background(), "eric", "llm-1", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "c9", conv.ID)
	assert.Equal(t, "fresh", conv.Title)
}

func TestServerErrorsAreSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Session not found."}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	_, err := c.Messages(context.Background(), "missing", "eric")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
