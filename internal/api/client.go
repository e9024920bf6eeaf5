// Package api talks to the chat backend's REST surface: session listing,
// session creation, and persisted message history. The streaming websocket
// lives in internal/chat; this client only covers the request/response
// collaborators.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codex-chat/internal/chat"

	"github.com/rs/zerolog"
)

type Client struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

func New(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type sessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"first_message_preview"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type sessionsResponse struct {
	Sessions []sessionSummary `json:"sessions"`
}

type messageRead struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type messagesResponse struct {
	Messages []messageRead `json:"messages"`
}

type createSessionRequest struct {
	UserID       string `json:"user_id"`
	LLMSessionID string `json:"llm_session_id"`
	Title        string `json:"title,omitempty"`
}

type createSessionResponse struct {
	ChatSessionID string    `json:"chat_session_id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListSessions returns the user's conversations, most recently updated
// first (server ordering is preserved).
func (c *Client) ListSessions(ctx context.Context, userID string) ([]chat.Conversation, error) {
	endpoint := c.baseURL + "/sessions?user_id=" + url.QueryEscape(userID)
	var resp sessionsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]chat.Conversation, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		out = append(out, chat.Conversation{
			ID:           s.ID,
			Title:        s.Title,
			Preview:      s.Preview,
			MessageCount: s.MessageCount,
			UpdatedAt:    s.UpdatedAt,
		})
	}
	return out, nil
}

// CreateSession allocates a new conversation bound to the given correlation
// id and returns it as a Conversation ready for selection.
func (c *Client) CreateSession(ctx context.Context, userID, llmSessionID, title string) (chat.Conversation, error) {
	body, err := json.Marshal(createSessionRequest{
		UserID:       userID,
		LLMSessionID: llmSessionID,
		Title:        title,
	})
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("encode create session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp createSessionResponse
	if err := c.do(req, &resp); err != nil {
		return chat.Conversation{}, fmt.Errorf("create session: %w", err)
	}
	return chat.Conversation{
		ID:        resp.ChatSessionID,
		Title:     resp.Title,
		UpdatedAt: resp.CreatedAt,
	}, nil
}

// Messages fetches the persisted history used to seed the timeline on
// (re)selection. Entries arrive finalized; nothing here is streaming.
func (c *Client) Messages(ctx context.Context, conversationID, userID string) ([]chat.Message, error) {
	endpoint := c.baseURL + "/sessions/" + url.PathEscape(conversationID) + "/messages?user_id=" + url.QueryEscape(userID)
	var resp messagesResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", conversationID, err)
	}

	out := make([]chat.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		role := chat.Role(m.Role)
		if role != chat.RoleUser && role != chat.RoleAssistant {
			continue
		}
		out = append(out, chat.Message{
			ID:        strconv.FormatInt(m.ID, 10),
			Role:      role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, into)
}

func (c *Client) do(req *http.Request, into any) error {
	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
