// Package inboxtui is the interactive terminal inbox: a conversation list, the
// selected thread and a compose line, kept current by the inbox poller.
package inboxtui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/models"
)

type pane int

const (
	paneList pane = iota
	paneThread
	paneCompose
)

// Config wires the model to a started inbox.
type Config struct {
	Inbox *inbox.Inbox
	// Events delivers inbox events; the model redraws on each one.
	Events <-chan *models.Event
	// Visibility is updated from terminal focus reports.
	Visibility *Visibility
	Theme      string
	// Preselect opens a conversation on start.
	Preselect *inbox.Preselection
	Now       func() time.Time
}

// Model is the bubbletea model for the inbox.
type Model struct {
	ctx       context.Context
	ib        *inbox.Inbox
	events    <-chan *models.Event
	vis       *Visibility
	theme     Theme
	st        styles
	now       func() time.Time
	preselect *inbox.Preselection

	width  int
	height int
	focus  pane

	conversations []models.Conversation
	cursor        int
	selected      models.Conversation
	hasSelected   bool
	offset        int

	notice  inbox.Notice
	status  string
	compose []rune
	sending bool
	taskIdx int
}

type eventMsg struct {
	event *models.Event
}

type eventsClosedMsg struct{}

type selectedMsg struct {
	report inbox.ReadReceiptReport
	err    error
}

type sentMsg struct {
	err error
}

type loadedMsg struct {
	err error
}

// NewModel creates a model for cfg.Inbox.
func NewModel(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.Inbox == nil {
		return nil, errors.New("inbox is required")
	}
	if cfg.Visibility == nil {
		cfg.Visibility = NewVisibility()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	theme := ThemeByName(cfg.Theme)
	m := &Model{
		ctx:       ctx,
		ib:        cfg.Inbox,
		events:    cfg.Events,
		vis:       cfg.Visibility,
		theme:     theme,
		st:        newStyles(theme),
		now:       cfg.Now,
		preselect: cfg.Preselect,
		taskIdx:   -1,
	}
	m.sync()
	return m, nil
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return err
	}
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}

	// bubbletea only puts a terminal it reads from directly into raw mode, so
	// the filtered input needs raw mode set here.
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("enable raw mode: %w", err)
		}
		defer func() { _ = term.Restore(fd, state) }()
		fmt.Fprint(os.Stdout, focusReportingOn)
		defer fmt.Fprint(os.Stdout, focusReportingOff)
		opts = append(opts, tea.WithInput(newFocusReader(os.Stdin, model.vis)))
	}

	program := tea.NewProgram(model, opts...)
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEvent()}
	if m.preselect != nil {
		pre := *m.preselect
		m.preselect = nil
		m.focus = paneThread
		cmds = append(cmds, m.preselectCmd(pre))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		if m.ib.AtBottom() {
			m.scrollToBottom()
		} else {
			m.scrollBy(0)
		}
		return m, nil
	case eventMsg:
		m.handleEvent(typed.event)
		return m, m.waitForEvent()
	case eventsClosedMsg:
		return m, nil
	case selectedMsg:
		if typed.err != nil {
			m.status = typed.err.Error()
		} else {
			m.status = ""
		}
		m.sync()
		m.scrollToBottom()
		return m, nil
	case sentMsg:
		m.sending = false
		switch {
		case typed.err == nil:
			m.compose = nil
			m.status = ""
			m.sync()
			m.scrollToBottom()
			return m, nil
		case errors.Is(typed.err, inbox.ErrEmptyMessage), errors.Is(typed.err, inbox.ErrNoSelection):
			m.status = typed.err.Error()
		default:
			// The inbox notice carries the server's reason.
			m.status = ""
		}
		m.sync()
		return m, nil
	case loadedMsg:
		m.status = ""
		m.sync()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleEvent(event *models.Event) {
	m.sync()
	if event == nil {
		return
	}
	switch event.Type {
	case models.EventTypeInboxLoaded, models.EventTypeInboxUpdated:
		var payload models.InboxUpdatedPayload
		if err := json.Unmarshal(event.Payload, &payload); err == nil && payload.ScrollToBottom {
			m.scrollToBottom()
			return
		}
		m.scrollBy(0)
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.focus == paneCompose {
		return m.handleComposeKey(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		if m.focus == paneList && m.hasSelected {
			m.focus = paneThread
		} else {
			m.focus = paneList
		}
		return m, nil
	case "esc":
		m.focus = paneList
		return m, nil
	case "r":
		m.status = "Refreshing..."
		return m, m.loadCmd()
	case "f":
		m.cycleTaskFilter()
		return m, nil
	case "c", "i":
		if m.hasSelected {
			m.focus = paneCompose
		}
		return m, nil
	}

	if m.focus == paneList {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.conversations)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.conversations) {
				m.focus = paneThread
				m.status = "Opening..."
				return m, m.selectCmd(m.conversations[m.cursor].PartnerID)
			}
		}
		return m, nil
	}

	page := m.layout().viewport
	switch msg.String() {
	case "up", "k":
		m.scrollBy(-1)
	case "down", "j":
		m.scrollBy(1)
	case "pgup":
		m.scrollBy(-page)
	case "pgdown":
		m.scrollBy(page)
	case "g", "home":
		m.scrollBy(-m.offset)
	case "G", "end":
		m.scrollToBottom()
	}
	return m, nil
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.focus = paneThread
	case tea.KeyEnter:
		if m.sending {
			return m, nil
		}
		content := string(m.compose)
		if strings.TrimSpace(content) == "" {
			m.status = inbox.ErrEmptyMessage.Error()
			return m, nil
		}
		m.sending = true
		m.status = "Sending..."
		return m, m.sendCmd(content)
	case tea.KeyBackspace:
		if len(m.compose) > 0 {
			m.compose = m.compose[:len(m.compose)-1]
		}
	case tea.KeySpace:
		m.compose = append(m.compose, ' ')
	case tea.KeyRunes:
		m.compose = append(m.compose, msg.Runes...)
	}
	return m, nil
}

func (m *Model) cycleTaskFilter() {
	tasks := m.ib.Tasks()
	if len(tasks) == 0 {
		m.taskIdx = -1
		m.ib.SetTaskFilter(nil)
		m.status = "No tasks to filter by"
		return
	}
	m.taskIdx++
	if m.taskIdx >= len(tasks) {
		m.taskIdx = -1
	}
	if m.taskIdx < 0 {
		m.ib.SetTaskFilter(nil)
	} else {
		m.ib.SetTaskFilter(models.Int64Ptr(tasks[m.taskIdx].ID))
	}
	m.status = ""
	m.cursor = 0
	m.sync()
}

// sync copies inbox state into the model.
func (m *Model) sync() {
	m.conversations = m.ib.Conversations()
	if m.cursor >= len(m.conversations) {
		m.cursor = len(m.conversations) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.selected, m.hasSelected = m.ib.Selected()
	m.notice = m.ib.Notice()
	if !m.hasSelected && m.focus != paneList {
		m.focus = paneList
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	ch := m.events
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: event}
	}
}

func (m *Model) selectCmd(partnerID int64) tea.Cmd {
	ctx, ib := m.ctx, m.ib
	return func() tea.Msg {
		report, err := ib.Select(ctx, partnerID)
		return selectedMsg{report: report, err: err}
	}
}

func (m *Model) preselectCmd(pre inbox.Preselection) tea.Cmd {
	ctx, ib := m.ctx, m.ib
	return func() tea.Msg {
		report, err := ib.Preselect(ctx, pre)
		return selectedMsg{report: report, err: err}
	}
}

func (m *Model) sendCmd(content string) tea.Cmd {
	ctx, ib := m.ctx, m.ib
	return func() tea.Msg {
		_, err := ib.Send(ctx, content)
		return sentMsg{err: err}
	}
}

func (m *Model) loadCmd() tea.Cmd {
	ctx, ib := m.ctx, m.ib
	return func() tea.Msg {
		return loadedMsg{err: ib.Load(ctx)}
	}
}

type layout struct {
	list     int
	thread   int
	body     int
	viewport int
}

func (m *Model) layout() layout {
	body := m.height - 2
	if body < 5 {
		body = 5
	}
	l := layout{body: body, list: listWidth(m.width, m.hasSelected)}
	l.thread = m.width - l.list
	if l.list > 0 && l.thread > 0 {
		l.thread--
	}
	// Borders, title, divider and compose line.
	l.viewport = body - 5
	if l.viewport < 1 {
		l.viewport = 1
	}
	return l
}

func (m *Model) threadWidth() int {
	w := m.layout().thread - 2
	if w < 0 {
		return 0
	}
	return w
}

func (m *Model) scrollBy(delta int) {
	rows := len(m.threadRows(m.threadWidth()))
	viewport := m.layout().viewport
	maxOffset := rows - viewport
	if maxOffset < 0 {
		maxOffset = 0
	}
	m.offset = clampInt(m.offset+delta, 0, maxOffset)
	m.ib.ObserveScroll(m.offset, rows, viewport)
}

func (m *Model) scrollToBottom() {
	rows := len(m.threadRows(m.threadWidth()))
	viewport := m.layout().viewport
	m.offset = rows - viewport
	if m.offset < 0 {
		m.offset = 0
	}
	m.ib.ObserveScroll(m.offset, rows, viewport)
}

// threadRows renders the selected conversation as display rows.
func (m *Model) threadRows(width int) []string {
	if !m.hasSelected {
		return nil
	}
	conv := m.selected
	if len(conv.Messages) == 0 {
		return []string{m.st.muted.Render("No messages yet. Press c to write the first one.")}
	}

	me := m.ib.Me().ID
	now := m.now()
	rows := make([]string, 0, len(conv.Messages)*2)
	for _, msg := range conv.Messages {
		author := m.st.other.Render(conv.PartnerName)
		if msg.SenderID == me {
			author = m.st.own.Render("You")
		}
		meta := inbox.FormatTimestamp(now, msg.CreatedAt)
		if msg.TaskID != nil {
			meta += fmt.Sprintf(" · task %d", *msg.TaskID)
		}
		rows = append(rows, author+" "+m.st.muted.Render(meta))
		rows = append(rows, wrap(msg.Content, width)...)
	}
	return rows
}

func wrap(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		wrapped := runewidth.Wrap(line, width)
		rows = append(rows, strings.Split(wrapped, "\n")...)
	}
	return rows
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading inbox..."
	}
	l := m.layout()

	var cols []string
	if l.list > 0 {
		cols = append(cols, m.renderList(l.list, l.body))
	}
	if l.thread > 0 {
		if len(cols) > 0 {
			cols = append(cols, " ")
		}
		cols = append(cols, m.renderThread(l.thread, l.body, l.viewport))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		lipgloss.JoinHorizontal(lipgloss.Top, cols...),
		m.renderFooter(),
	)
}

func (m *Model) renderHeader() string {
	me := m.ib.Me()
	name := me.Name
	if name == "" {
		name = inbox.DefaultPartnerName(me.ID)
	}
	parts := []string{"Tasker inbox", name}
	if unread := inbox.TotalUnread(m.conversations); unread > 0 {
		parts = append(parts, m.st.unread.Render(fmt.Sprintf("%d unread", unread)))
	}
	if filter := m.ib.TaskFilter(); filter != nil {
		parts = append(parts, m.taskLabel(*filter))
	}
	if state := m.ib.PollerState(); state != inbox.PollerPolling {
		parts = append(parts, m.st.muted.Render("poller "+state.String()))
	}
	return m.st.header.Render(fitLine(strings.Join(parts, " · "), m.width))
}

func (m *Model) taskLabel(id int64) string {
	for _, task := range m.ib.Tasks() {
		if task.ID == id {
			return "task: " + inbox.Truncate(task.Title, 24)
		}
	}
	return fmt.Sprintf("task: %d", id)
}

func (m *Model) renderFooter() string {
	switch {
	case !m.notice.IsZero() && m.notice.Persistent:
		return m.st.errText.Render(fitLine(m.notice.Text, m.width))
	case !m.notice.IsZero():
		return m.st.warning.Render(fitLine(m.notice.Text, m.width))
	case m.status != "":
		return m.st.footer.Render(fitLine(m.status, m.width))
	}
	help := "enter open · tab switch · c compose · f task filter · r refresh · q quit"
	if m.focus == paneCompose {
		help = "enter send · esc cancel"
	}
	return m.st.muted.Render(fitLine(help, m.width))
}

func (m *Model) renderList(width, height int) string {
	inner := width - 2
	rows := make([]string, 0, height)
	if len(m.conversations) == 0 {
		empty := "No conversations yet"
		if !m.ib.Loaded() {
			empty = "Loading conversations..."
		}
		rows = append(rows, m.st.muted.Render(fitLine(empty, inner)))
	}

	perItem := 2
	visible := (height - 2) / perItem
	start := 0
	if visible > 0 && m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	now := m.now()
	for idx := start; idx < len(m.conversations) && len(rows) < height-2; idx++ {
		conv := m.conversations[idx]
		title := conv.PartnerName
		if conv.UnreadCount > 0 {
			title = fmt.Sprintf("%s (%d)", title, conv.UnreadCount)
		}
		marker := "  "
		if m.hasSelected && conv.PartnerID == m.selected.PartnerID {
			marker = "▸ "
		}
		line := fitLine(marker+title, inner)
		switch {
		case idx == m.cursor && m.focus == paneList:
			line = m.st.selected.Render(line)
		case conv.UnreadCount > 0:
			line = m.st.unread.Render(line)
		}
		rows = append(rows, line)

		preview := ""
		if conv.LastMessage != nil {
			preview = inbox.FormatTimestamp(now, conv.LastMessage.CreatedAt) + " " + inbox.Truncate(conv.LastMessage.Content, inbox.PreviewLength)
		}
		rows = append(rows, m.st.muted.Render(fitLine("  "+preview, inner)))
	}

	return panelStyle(m.theme, m.focus == paneList).
		Width(inner).
		Height(height - 2).
		Render(strings.Join(rows, "\n"))
}

func (m *Model) renderThread(width, height, viewport int) string {
	inner := width - 2
	var lines []string
	if !m.hasSelected {
		lines = append(lines, m.st.muted.Render("Select a conversation"))
	} else {
		title := fmt.Sprintf("%s (#%d)", m.selected.PartnerName, m.selected.PartnerID)
		if m.selected.PartnerRole != "" {
			title += " · " + string(m.selected.PartnerRole)
		}
		if m.selected.Placeholder {
			title += " · new conversation"
		}
		lines = append(lines, m.st.accent.Render(fitLine(title, inner)))

		rows := m.threadRows(inner)
		end := m.offset + viewport
		if end > len(rows) {
			end = len(rows)
		}
		start := m.offset
		if start > end {
			start = end
		}
		lines = append(lines, rows[start:end]...)
		for n := end - start; n < viewport; n++ {
			lines = append(lines, "")
		}

		lines = append(lines, m.st.divider.Render(strings.Repeat("─", inner)))
		lines = append(lines, m.renderCompose(inner))
	}

	return panelStyle(m.theme, m.focus != paneList).
		Width(inner).
		Height(height - 2).
		Render(strings.Join(lines, "\n"))
}

func (m *Model) renderCompose(width int) string {
	if m.focus != paneCompose {
		if len(m.compose) > 0 {
			return m.st.muted.Render(fitLine("> "+string(m.compose), width))
		}
		return m.st.muted.Render(fitLine("press c to reply", width))
	}
	draft := m.compose
	// Keep the end of a long draft visible.
	for width > 0 && len(draft) > 0 && runewidth.StringWidth("> …"+string(draft)+"█") > width {
		draft = draft[1:]
	}
	if len(draft) < len(m.compose) {
		return "> …" + string(draft) + "█"
	}
	return "> " + string(draft) + "█"
}

func fitLine(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	return runewidth.Truncate(value, width, "…")
}
