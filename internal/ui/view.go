package ui

import (
	"fmt"
	"strings"
	"time"

	"codex-chat/internal/chat"
	"codex-chat/internal/config"
	"codex-chat/internal/highlight"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	composerHeight  = 5
	reasoningHeight = 8
)

type conversationItem struct {
	c chat.Conversation
}

func (i conversationItem) Title() string {
	if t := strings.TrimSpace(i.c.Title); t != "" {
		return shorten(t, 36)
	}
	return shorten(i.c.ID, 28)
}

func (i conversationItem) Description() string {
	meta := fmt.Sprintf("%d msgs | %s", i.c.MessageCount, formatWhen(i.c.UpdatedAt))
	if i.c.Preview == "" {
		return meta
	}
	return meta + " | " + shorten(i.c.Preview, 60)
}

func (i conversationItem) FilterValue() string {
	return strings.ToLower(i.c.ID + " " + i.c.Title + " " + i.c.Preview)
}

var _ list.Item = conversationItem{}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.searchMode {
		switch msg.String() {
		case "esc":
			m.searchMode = false
			m.searchQuery = ""
			m.search.SetValue("")
			m.search.Blur()
			m.setViewportContent(m.rendered)
			return m, nil
		case "enter":
			m.searchMode = false
			m.search.Blur()
			m.searchQuery = strings.TrimSpace(m.search.Value())
			m.setViewportContent(m.rendered)
			if len(m.matchLines) > 0 {
				m.matchIndex = 0
				m.viewport.SetYOffset(m.clampViewportOffset(m.matchLines[0]))
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.NewChat):
		return m, m.createCmd()
	}

	if m.focus == focusComposer {
		switch msg.String() {
		case "esc":
			m.focus = focusTranscript
			m.composer.Blur()
			return m, nil
		case "enter":
			return m, m.beginSend()
		}
		var cmd tea.Cmd
		m.composer, cmd = m.composer.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Compose):
		m.focus = focusComposer
		return m, m.composer.Focus()
	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.search.SetValue(m.searchQuery)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Tab):
		if m.focus == focusList {
			m.focus = focusTranscript
		} else {
			m.focus = focusList
		}
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		return m, m.reload()
	case key.Matches(msg, m.keys.Reasoning):
		m.state.ReasoningOpen = !m.state.ReasoningOpen
		m.resize()
		return m, nil
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.CopyReply):
		return m, m.copyReplyCmd()
	case key.Matches(msg, m.keys.CopySnippet):
		return m, m.copySnippetCmd()
	case key.Matches(msg, m.keys.NextMatch):
		if m.focus == focusTranscript {
			m.jumpToMatch(1)
		}
		return m, nil
	case key.Matches(msg, m.keys.PrevMatch):
		if m.focus == focusTranscript {
			m.jumpToMatch(-1)
		}
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		if m.focus == focusTranscript {
			m.viewport.HalfViewUp()
		}
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		if m.focus == focusTranscript {
			m.viewport.HalfViewDown()
		}
		return m, nil
	}

	if m.focus == focusList {
		prev := m.selectedID
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
		m.selectedID = m.currentSelectedID()
		if m.selectedID != prev && m.selectedID != "" {
			cmds = append(cmds, m.selectConversation(m.selectedID))
		}
	} else {
		switch msg.String() {
		case "up", "k":
			m.viewport.LineUp(1)
		case "down", "j":
			m.viewport.LineDown(1)
		}
	}

	return m, tea.Batch(cmds...)
}

// renderTranscript kicks off an async glamour pass over the current
// timeline. The nonce makes superseded renders no-ops when they resolve.
func (m *Model) renderTranscript(jumpLatest bool) tea.Cmd {
	if m.selectedID == "" {
		return nil
	}
	if jumpLatest {
		m.jumpLatest = true
	}
	md := buildTimelineMarkdown(m.state.Timeline)
	m.rendering = true
	m.renderNonce++
	nonce := m.renderNonce
	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}
	return func() tea.Msg {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(config.DefaultGlamourStyle),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return renderMsg{nonce: nonce, rendered: md}
		}
		rendered, renderErr := r.Render(md)
		if renderErr != nil {
			rendered = md
		}
		return renderMsg{nonce: nonce, rendered: rendered}
	}
}

// buildTimelineMarkdown renders the live transcript, streaming entry
// included. The export package renders only finalized turns; this one shows
// the in-flight reply with a cursor mark.
func buildTimelineMarkdown(timeline []chat.Message) string {
	if len(timeline) == 0 {
		return "_No messages yet. Press `i` to compose._"
	}
	var b strings.Builder
	for _, e := range timeline {
		content := strings.TrimSpace(e.Content)
		switch {
		case e.Role == chat.RoleUser:
			b.WriteString("## You\n\n" + content + "\n\n")
		case e.Streaming && content == "":
			b.WriteString("## Codex\n\n_..._\n\n")
		case e.Streaming:
			b.WriteString("## Codex\n\n" + content + " ▌\n\n")
		case e.IsError:
			b.WriteString("## Codex (error)\n\n```text\n" + content + "\n```\n\n")
		default:
			b.WriteString("## Codex\n\n" + content + "\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func (m *Model) setViewportContent(rendered string) {
	m.rendered = rendered
	content := rendered
	if query := strings.TrimSpace(m.searchQuery); query != "" {
		res := highlight.Apply(rendered, query, func(s string) string {
			return searchMatchStyle.Render(s)
		})
		content = res.Text
		m.setMatchMeta(res)
	} else {
		m.clearMatches()
	}

	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(content)
	if m.jumpLatest || wasAtBottom {
		m.viewport.GotoBottom()
	}
	m.jumpLatest = false
}

func (m *Model) setMatchMeta(res highlight.Result) {
	if res.Count == 0 || len(res.LineIndex) == 0 {
		m.clearMatches()
		return
	}
	m.matchCount = res.Count
	m.matchLines = append(m.matchLines[:0], res.LineIndex...)
	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	}
}

func (m *Model) clearMatches() {
	m.matchLines = nil
	m.matchCount = 0
	m.matchIndex = -1
}

func (m *Model) jumpToMatch(delta int) {
	if len(m.matchLines) == 0 {
		m.status = "No search matches in transcript"
		return
	}

	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		m.matchIndex = 0
	} else if delta > 0 {
		m.matchIndex = (m.matchIndex + 1) % len(m.matchLines)
	} else if delta < 0 {
		m.matchIndex = (m.matchIndex - 1 + len(m.matchLines)) % len(m.matchLines)
	}

	m.viewport.SetYOffset(m.clampViewportOffset(m.matchLines[m.matchIndex]))
	m.status = fmt.Sprintf("Match %d/%d", m.matchIndex+1, m.matchCount)
}

func (m *Model) clampViewportOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	left, right := m.paneWidths()

	bodyHeight := m.height - 2
	if bodyHeight < 12 {
		bodyHeight = 12
	}

	transcriptHeight := bodyHeight - composerHeight
	if m.state.ReasoningOpen {
		transcriptHeight -= reasoningHeight
	}
	if transcriptHeight < 4 {
		transcriptHeight = 4
	}

	m.list.SetSize(left-2, bodyHeight-2)
	m.viewport.Width = right - 2
	m.viewport.Height = transcriptHeight - 2
	m.composer.SetWidth(right - 2)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	left, right := m.paneWidths()
	bodyHeight := m.height - 2

	leftPane := panelStyle(m.focus == focusList).
		Width(left).Height(bodyHeight).Render(m.list.View())

	transcriptPane := panelStyle(m.focus == focusTranscript).
		Width(right).Render(m.viewport.View())

	columns := []string{transcriptPane}
	if m.state.ReasoningOpen {
		columns = append(columns, reasoningStyle.
			Width(right).Height(reasoningHeight-2).
			Render(m.reasoningView(right-4)))
	}
	columns = append(columns, panelStyle(m.focus == focusComposer).
		Width(right).Render(m.composer.View()))
	rightPane := lipgloss.JoinVertical(lipgloss.Left, columns...)

	body := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	helpView := m.help.View(m.keys)
	if m.searchMode {
		helpView = m.search.View() + "  " + helpView
	} else if m.searchQuery != "" {
		helpView = "search: " + m.searchQuery + "  " + helpView
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusLine(),
		body,
		helpView,
	)
}

// reasoningView shows the trail plus the live fragment, newest lines kept
// when the panel overflows.
func (m Model) reasoningView(width int) string {
	var b strings.Builder
	for idx, entry := range m.state.Reasoning {
		b.WriteString(fmt.Sprintf("%d. %s\n", idx+1, strings.TrimSpace(entry.Text)))
	}
	if m.state.LiveReasoning != "" {
		b.WriteString(liveReasoningStyle.Render(m.state.LiveReasoning))
		b.WriteString("\n")
	}
	text := strings.TrimRight(b.String(), "\n")
	if text == "" {
		text = "(no reasoning yet)"
	}
	if width > 0 {
		text = lipgloss.NewStyle().Width(width).Render(text)
	}

	lines := strings.Split(text, "\n")
	keep := reasoningHeight - 3
	if keep < 1 {
		keep = 1
	}
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return "Reasoning\n" + strings.Join(lines, "\n")
}

func (m Model) statusLine() string {
	var parts []string
	if m.selectedID != "" {
		conv := m.conversations[m.selectedID]
		parts = append(parts, fmt.Sprintf("conversation=%s  messages=%d", shorten(m.selectedID, 18), conv.MessageCount))
	}
	parts = append(parts, "conn="+m.connState.String())
	if m.state.Sending {
		parts = append(parts, m.spinner.View()+" waiting for reply")
	} else if m.loadingHistory {
		parts = append(parts, m.spinner.View()+" loading")
	}
	if strings.TrimSpace(m.searchQuery) != "" {
		if m.matchCount > 0 {
			cur := m.matchIndex + 1
			if cur < 1 {
				cur = 1
			}
			parts = append(parts, fmt.Sprintf("[match %d/%d]", cur, m.matchCount))
		} else {
			parts = append(parts, "[match 0]")
		}
	}
	if strings.TrimSpace(m.status) != "" {
		parts = append(parts, shorten(strings.TrimSpace(m.status), 80))
	}
	if m.err != nil {
		parts = append(parts, "err="+shorten(m.err.Error(), 60))
	}
	return statusStyle.Render(strings.Join(parts, "  "))
}

func (m *Model) paneWidths() (int, int) {
	left := m.width / 3
	if left < 32 {
		left = 32
	}
	if left > m.width-32 {
		left = m.width - 32
	}
	if left < 20 {
		left = 20
	}
	right := m.width - left - 1
	if right < 20 {
		right = 20
	}
	return left, right
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 2")
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	searchMatchStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("16")).
				Background(lipgloss.Color("220"))
	reasoningStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true).
			BorderForeground(lipgloss.Color("99")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
	liveReasoningStyle = lipgloss.NewStyle().
				Italic(true).
				Foreground(lipgloss.Color("213"))
)

func panelStyle(active bool) lipgloss.Style {
	border := lipgloss.NormalBorder()
	if active {
		return lipgloss.NewStyle().
			Border(border, true).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
	}
	return lipgloss.NewStyle().
		Border(border, true).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
}

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Tab         key.Binding
	Compose     key.Binding
	Search      key.Binding
	NextMatch   key.Binding
	PrevMatch   key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
	Reload      key.Binding
	Reasoning   key.Binding
	Export      key.Binding
	CopyReply   key.Binding
	CopySnippet key.Binding
	NewChat     key.Binding
	Quit        key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "toggle focus"),
		),
		Compose: key.NewBinding(
			key.WithKeys("i", "enter"),
			key.WithHelp("i", "compose"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		NextMatch: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next match"),
		),
		PrevMatch: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "prev match"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "b"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "f"),
			key.WithHelp("pgdn", "page down"),
		),
		Reload: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload"),
		),
		Reasoning: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "reasoning panel"),
		),
		Export: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "export markdown"),
		),
		CopyReply: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy reply"),
		),
		CopySnippet: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy PR snippet"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new conversation"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Tab, k.Compose, k.Search, k.NewChat, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Tab, k.Compose},
		{k.Search, k.NextMatch, k.PrevMatch, k.PageUp, k.PageDown},
		{k.Reload, k.Reasoning, k.Export, k.CopyReply, k.CopySnippet, k.NewChat, k.Quit},
	}
}
