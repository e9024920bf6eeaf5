package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

var ErrNotConnected = errors.New("transport is not connected")

// DialConfig carries everything needed to bind one websocket to one
// conversation. LLMSessionID is the ephemeral correlation id allocated per
// client run.
type DialConfig struct {
	Endpoint       string // ws:// or wss:// URL of the chat endpoint
	UserID         string
	ConversationID string
	LLMSessionID   string
	Handshake      time.Duration
	Logger         zerolog.Logger
}

// Stream owns exactly one live connection bound to one conversation. It is
// created by Dial, delivers decoded events on Events() until the connection
// ends, and is discarded (never reused) after Close. Gen tags every event
// the owner receives so stale deliveries from a superseded stream can be
// dropped unconditionally.
type Stream struct {
	Gen int

	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger

	mu    sync.Mutex
	state ConnState
	err   error
}

// Dial opens the websocket for cfg.ConversationID and starts the read loop.
// Handshake failure is returned, never retried; reconnection is the caller
// re-selecting the conversation.
func Dial(ctx context.Context, cfg DialConfig, gen int) (*Stream, error) {
	endpoint, err := chatURL(cfg)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Handshake}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial chat endpoint: %w", err)
	}

	s := &Stream{
		Gen:    gen,
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		log: cfg.Logger.With().
			Int("gen", gen).
			Str("conversation_id", cfg.ConversationID).
			Logger(),
		state: StateConnected,
	}
	go s.readLoop()
	s.log.Debug().Msg("stream connected")
	return s, nil
}

func chatURL(cfg DialConfig) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse chat endpoint: %w", err)
	}
	q := u.Query()
	q.Set("user_id", cfg.UserID)
	q.Set("chat_session_id", cfg.ConversationID)
	q.Set("llm_session_id", cfg.LLMSessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Events yields decoded frames in delivery order. The channel is closed
// when the connection ends for any reason; check Err afterwards to tell a
// graceful close from a transport failure.
func (s *Stream) Events() <-chan Event { return s.events }

func (s *Stream) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send transmits one outbound command. The update loop is the only caller,
// which satisfies gorilla's single-writer requirement.
func (s *Stream) Send(out Outbound) error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}
	if err := s.conn.WriteJSON(out); err != nil {
		return fmt.Errorf("write outbound command: %w", err)
	}
	return nil
}

// Close tears the stream down. Idempotent. The read loop may still drain
// frames the transport had buffered; owners discard those by generation
// check, not by assuming they never arrive.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
		s.setState(StateDisconnected, nil)
		s.log.Debug().Msg("stream closed")
	})
}

func (s *Stream) setState(state ConnState, err error) {
	s.mu.Lock()
	s.state = state
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Stream) closedByOwner() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Stream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closedByOwner() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.setState(StateDisconnected, nil)
				return
			}
			s.setState(StateError, err)
			s.log.Warn().Err(err).Msg("stream read failed")
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			// Protocol errors are logged and dropped; the stream continues.
			s.log.Warn().Err(err).Int("frame_len", len(data)).Msg("dropping malformed frame")
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
