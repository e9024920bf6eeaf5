package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"codex-chat/internal/api"
	"codex-chat/internal/archive"
	"codex-chat/internal/chat"
	"codex-chat/internal/clipboard"
	"codex-chat/internal/config"
	"codex-chat/internal/export"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type focusZone int

const (
	focusList focusZone = iota
	focusTranscript
	focusComposer
)

type Model struct {
	cfg      config.Config
	api      *api.Client
	store    *archive.Store
	exporter *export.Exporter
	log      zerolog.Logger

	// llmSessionID correlates every websocket and created session of this
	// client run; allocated once at startup.
	llmSessionID string

	list     list.Model
	viewport viewport.Model
	composer textarea.Model
	search   textinput.Model
	help     help.Model
	spinner  spinner.Model
	keys     keyMap

	width  int
	height int

	focus       focusZone
	searchMode  bool
	searchQuery string

	// gen is the transport generation. It is bumped on every selection
	// change; any stream message tagged with an older gen is dropped before
	// it can touch state.
	gen       int
	stream    *chat.Stream
	connState chat.ConnState

	state          *chat.State
	selectedID     string
	loadingHistory bool

	conversations map[string]chat.Conversation

	rendering   bool
	renderNonce int
	rendered    string
	jumpLatest  bool
	matchLines  []int
	matchCount  int
	matchIndex  int

	status string
	err    error
}

type sessionsMsg struct {
	sessions []chat.Conversation
	err      error
}
type historyMsg struct {
	conversationID string
	gen            int
	msgs           []chat.Message
	err            error
}
type connectedMsg struct {
	gen    int
	stream *chat.Stream
	err    error
}
type streamEventMsg struct {
	gen int
	ev  chat.Event
}
type streamClosedMsg struct {
	gen   int
	state chat.ConnState
	err   error
}
type sentMsg struct {
	gen int
	err error
}
type createdMsg struct {
	conv chat.Conversation
	err  error
}
type renderMsg struct {
	nonce    int
	rendered string
	err      error
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct {
	what string
	err  error
}
type archivedMsg struct {
	err error
}

func NewModel(cfg config.Config, client *api.Client, store *archive.Store, exp *export.Exporter, llmSessionID string, log zerolog.Logger) Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 40, 20)
	l.Title = "Conversations"
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	vp := viewport.New(60, 20)
	vp.SetContent("Loading conversations...")

	ta := textarea.New()
	ta.Placeholder = "Send a message (enter to send)"
	ta.SetHeight(3)
	ta.CharLimit = 8192
	ta.ShowLineNumbers = false

	ti := textinput.New()
	ti.Placeholder = "Search transcript..."
	ti.Prompt = "/ "
	ti.CharLimit = 256

	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Points

	return Model{
		cfg:          cfg,
		api:          client,
		store:        store,
		exporter:     exp,
		log:          log,
		llmSessionID: llmSessionID,

		list:     l,
		viewport: vp,
		composer: ta,
		search:   ti,
		help:     h,
		spinner:  sp,
		keys:     defaultKeys(),

		focus:         focusList,
		connState:     chat.StateDisconnected,
		state:         chat.NewState(),
		conversations: make(map[string]chat.Conversation),
		matchIndex:    -1,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.sessionsCmd())
}

func (m Model) sessionsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		sessions, err := m.api.ListSessions(ctx, m.cfg.UserID)
		return sessionsMsg{sessions: sessions, err: err}
	}
}

func (m Model) historyCmd(conversationID string, gen int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		msgs, err := m.api.Messages(ctx, conversationID, m.cfg.UserID)
		return historyMsg{conversationID: conversationID, gen: gen, msgs: msgs, err: err}
	}
}

func (m Model) dialCmd(conversationID string, gen int) tea.Cmd {
	endpoint, err := m.cfg.ChatEndpoint()
	if err != nil {
		return func() tea.Msg { return connectedMsg{gen: gen, err: err} }
	}
	cfg := chat.DialConfig{
		Endpoint:       endpoint,
		UserID:         m.cfg.UserID,
		ConversationID: conversationID,
		LLMSessionID:   m.llmSessionID,
		Logger:         m.log,
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s, err := chat.Dial(ctx, cfg, gen)
		return connectedMsg{gen: gen, stream: s, err: err}
	}
}

// waitEventCmd blocks on the stream's event channel and is re-armed from
// Update after each delivery. Channel close is reported exactly once as a
// streamClosedMsg carrying the stream's terminal state.
func waitEventCmd(s *chat.Stream) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.Events()
		if !ok {
			return streamClosedMsg{gen: s.Gen, state: s.State(), err: s.Err()}
		}
		return streamEventMsg{gen: s.Gen, ev: ev}
	}
}

func closeStreamCmd(s *chat.Stream) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		s.Close()
		return nil
	}
}

func sendCmd(s *chat.Stream, content string) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{gen: s.Gen, err: s.Send(chat.NewUserMessage(content))}
	}
}

func (m Model) createCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		conv, err := m.api.CreateSession(ctx, m.cfg.UserID, m.llmSessionID, "")
		return createdMsg{conv: conv, err: err}
	}
}

func (m Model) exportCmd() tea.Cmd {
	if m.exporter == nil || m.selectedID == "" {
		return nil
	}
	conv := m.conversations[m.selectedID]
	msgs := append([]chat.Message(nil), m.state.Timeline...)
	return func() tea.Msg {
		path, err := m.exporter.Export(conv, msgs)
		return exportMsg{path: path, err: err}
	}
}

// copyReplyCmd puts the newest finalized assistant reply on the clipboard.
func (m Model) copyReplyCmd() tea.Cmd {
	var content string
	for i := len(m.state.Timeline) - 1; i >= 0; i-- {
		e := m.state.Timeline[i]
		if e.Role == chat.RoleAssistant && !e.Streaming && !e.IsError {
			content = e.Content
			break
		}
	}
	if content == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{what: "reply", err: clipboard.Copy(ctx, content)}
	}
}

func (m Model) copySnippetCmd() tea.Cmd {
	if m.exporter == nil || m.selectedID == "" {
		return nil
	}
	conv := m.conversations[m.selectedID]
	msgs := append([]chat.Message(nil), m.state.Timeline...)
	return func() tea.Msg {
		path, err := m.exporter.Export(conv, msgs)
		if err != nil {
			return copyMsg{what: "snippet", err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{what: "snippet", err: clipboard.Copy(ctx, buildPRSnippet(conv, msgs, path))}
	}
}

func (m Model) archiveTurnCmd(conversationID string, msg chat.Message) tea.Cmd {
	if m.store == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return archivedMsg{err: m.store.RecordTurn(ctx, conversationID, msg)}
	}
}

func (m Model) archiveConversationCmd(conv chat.Conversation) tea.Cmd {
	if m.store == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return archivedMsg{err: m.store.UpsertConversation(ctx, conv)}
	}
}

// mirrorSessionsCmd refreshes the local archive copy of every listed
// conversation summary.
func (m Model) mirrorSessionsCmd(sessions []chat.Conversation) tea.Cmd {
	if m.store == nil || len(sessions) == 0 {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, c := range sessions {
			g.Go(func() error {
				return m.store.UpsertConversation(gctx, c)
			})
		}
		return archivedMsg{err: g.Wait()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		cmds = append(cmds, m.renderTranscript(false))

	case sessionsMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Could not load conversations: " + msg.err.Error()
			break
		}
		m.err = nil
		prev := m.selectedID
		m.applySessions(msg.sessions)
		cmds = append(cmds, m.mirrorSessionsCmd(msg.sessions))
		if m.selectedID != "" && m.selectedID != prev {
			cmds = append(cmds, m.selectConversation(m.selectedID))
		}

	case historyMsg:
		if msg.gen != m.gen || msg.conversationID != m.selectedID {
			break
		}
		m.loadingHistory = false
		if msg.err != nil {
			m.err = msg.err
			m.status = "History load failed: " + msg.err.Error()
			break
		}
		if m.state.Sending {
			// A turn is already in flight; seeding now would destroy the
			// optimistic user entry and the pending placeholder. The
			// in-flight state wins; the next selection reloads history.
			break
		}
		m.state.ResetForHistory(msg.msgs)
		cmds = append(cmds, m.renderTranscript(true))

	case connectedMsg:
		if msg.gen != m.gen {
			// A stale dial resolved after the selection moved on.
			cmds = append(cmds, closeStreamCmd(msg.stream))
			break
		}
		if msg.err != nil {
			m.connState = chat.StateError
			m.err = msg.err
			m.status = "Connection failed: " + msg.err.Error()
			break
		}
		m.stream = msg.stream
		m.connState = chat.StateConnected
		m.state.ResetReasoning()
		m.status = "Connected"
		cmds = append(cmds, waitEventCmd(m.stream))

	case streamEventMsg:
		if msg.gen != m.gen {
			break
		}
		outcome := m.state.Apply(msg.ev)
		if outcome.Notice != "" {
			m.status = "Agent error: " + outcome.Notice
		}
		if outcome.Finalized != nil {
			cmds = append(cmds, m.finalizeTurn(*outcome.Finalized)...)
		}
		if outcome.TimelineChanged || outcome.ReasoningChanged {
			cmds = append(cmds, m.renderTranscript(false))
		}
		if m.stream != nil {
			cmds = append(cmds, waitEventCmd(m.stream))
		}

	case streamClosedMsg:
		if msg.gen != m.gen {
			break
		}
		m.state.CloseStream()
		m.stream = nil
		m.connState = msg.state
		if msg.err != nil {
			m.err = msg.err
			m.status = "Connection lost: " + msg.err.Error()
		} else {
			m.status = "Disconnected"
		}
		cmds = append(cmds, m.renderTranscript(false))

	case sentMsg:
		if msg.gen != m.gen {
			break
		}
		if msg.err != nil {
			m.err = msg.err
			m.status = "Send failed: " + msg.err.Error()
			// The message never reached the server, so no reply is coming.
			m.state.CloseStream()
			cmds = append(cmds, m.renderTranscript(false))
		}

	case createdMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Could not create conversation: " + msg.err.Error()
			break
		}
		m.conversations[msg.conv.ID] = msg.conv
		m.list.InsertItem(0, conversationItem{c: msg.conv})
		m.list.Select(0)
		m.selectedID = msg.conv.ID
		m.status = "Created conversation"
		m.focus = focusComposer
		cmds = append(cmds, m.composer.Focus(), m.selectConversation(msg.conv.ID), m.archiveConversationCmd(msg.conv))

	case renderMsg:
		if msg.nonce != m.renderNonce {
			break
		}
		m.rendering = false
		if msg.err != nil {
			m.err = msg.err
			m.status = "Render failed: " + msg.err.Error()
			break
		}
		m.setViewportContent(msg.rendered)

	case exportMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		switch {
		case errors.Is(msg.err, clipboard.ErrToolNotFound):
			m.status = "Could not copy: clipboard tool not found"
		case msg.err != nil:
			m.err = msg.err
			m.status = "Could not copy: " + msg.err.Error()
		case msg.what == "reply":
			m.status = "Copied reply to clipboard"
		default:
			m.status = "Copied PR snippet to clipboard"
		}

	case archivedMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("archive write failed")
		}

	case spinner.TickMsg:
		if m.busy() {
			var spin tea.Cmd
			m.spinner, spin = m.spinner.Update(msg)
			cmds = append(cmds, spin)
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, tea.Batch(cmds...)
}

// finalizeTurn is the post-finalize bookkeeping: counter bump, recency
// touch, archive write.
func (m *Model) finalizeTurn(final chat.Message) []tea.Cmd {
	var cmds []tea.Cmd
	if conv, ok := m.conversations[m.selectedID]; ok && !final.IsError {
		// Error finalizations are not persisted server-side, so they do not
		// count toward the conversation's message total.
		conv.MessageCount++
		conv.UpdatedAt = time.Now()
		m.updateConversation(conv)
		cmds = append(cmds, m.archiveConversationCmd(conv))
	}
	cmds = append(cmds, m.archiveTurnCmd(m.selectedID, final))
	return cmds
}

// selectConversation supersedes any live stream and starts the history
// fetch and dial for the newly selected conversation. The generation bump
// happens here and nowhere else.
func (m *Model) selectConversation(id string) tea.Cmd {
	m.gen++
	old := m.stream
	m.stream = nil
	m.connState = chat.StateConnecting
	m.loadingHistory = true
	m.state.ResetForHistory(nil)
	m.viewport.SetContent("Loading transcript...")
	m.clearMatches()
	return tea.Batch(
		closeStreamCmd(old),
		m.historyCmd(id, m.gen),
		m.dialCmd(id, m.gen),
		m.spinner.Tick,
	)
}

func (m *Model) applySessions(in []chat.Conversation) {
	items := make([]list.Item, 0, len(in))
	m.conversations = make(map[string]chat.Conversation, len(in))
	for _, c := range in {
		m.conversations[c.ID] = c
		items = append(items, conversationItem{c: c})
	}
	m.list.SetItems(items)

	if len(in) == 0 {
		m.selectedID = ""
		m.viewport.SetContent("No conversations yet.\n\nPress ctrl+n to start one.")
		return
	}

	selectIdx := 0
	if m.selectedID != "" {
		for idx, c := range in {
			if c.ID == m.selectedID {
				selectIdx = idx
				break
			}
		}
	}
	m.list.Select(selectIdx)
	m.selectedID = in[selectIdx].ID
}

func (m *Model) updateConversation(conv chat.Conversation) {
	m.conversations[conv.ID] = conv
	for idx, item := range m.list.Items() {
		if ci, ok := item.(conversationItem); ok && ci.c.ID == conv.ID {
			m.list.SetItem(idx, conversationItem{c: conv})
			return
		}
	}
}

func (m *Model) currentSelectedID() string {
	item, ok := m.list.SelectedItem().(conversationItem)
	if !ok {
		return ""
	}
	return item.c.ID
}

// beginSend runs the send preconditions, seeds the optimistic local state,
// and returns the transmit command. Precondition violations surface as a
// status notice and leave everything untouched.
func (m *Model) beginSend() tea.Cmd {
	if m.selectedID == "" {
		m.status = "No conversation selected"
		return nil
	}
	if m.loadingHistory {
		m.status = "Still loading history; try again in a moment"
		return nil
	}
	if m.stream == nil || m.connState != chat.StateConnected {
		m.status = "Not connected; re-select the conversation to reconnect"
		return nil
	}

	user, err := m.state.BeginSend(m.composer.Value())
	switch {
	case errors.Is(err, chat.ErrBlankMessage):
		return nil
	case errors.Is(err, chat.ErrSendInFlight):
		m.status = "Waiting for the current reply to finish"
		return nil
	case err != nil:
		m.status = err.Error()
		return nil
	}

	m.composer.Reset()
	if conv, ok := m.conversations[m.selectedID]; ok {
		conv.MessageCount++
		conv.UpdatedAt = time.Now()
		if conv.Preview == "" {
			conv.Preview = user.Content
		}
		m.updateConversation(conv)
	}

	return tea.Batch(
		sendCmd(m.stream, user.Content),
		m.archiveTurnCmd(m.selectedID, user),
		m.renderTranscript(false),
		m.spinner.Tick,
	)
}

func (m *Model) reload() tea.Cmd {
	m.status = "Reloading"
	cmds := []tea.Cmd{m.sessionsCmd()}
	if m.selectedID != "" {
		cmds = append(cmds, m.selectConversation(m.selectedID))
	}
	return tea.Batch(cmds...)
}

func (m Model) busy() bool {
	return m.loadingHistory || m.rendering || m.state.Sending || m.connState == chat.StateConnecting
}

func buildPRSnippet(conv chat.Conversation, msgs []chat.Message, exportPath string) string {
	note := conv.Preview
	for _, msg := range msgs {
		if msg.Role == chat.RoleUser && msg.Content != "" {
			note = msg.Content
			break
		}
	}
	note = strings.Join(strings.Fields(note), " ")

	var b strings.Builder
	b.WriteString("### Codex chat transcript\n\n")
	b.WriteString("- Conversation: `" + conv.ID + "`\n")
	b.WriteString("- Export: `" + exportPath + "`\n")
	b.WriteString("- Notes: " + shorten(note, 120) + "\n")
	return b.String()
}
