package inboxtui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/models"
)

var (
	me    = models.User{ID: 1, Name: "Alice", Role: models.RoleCustomer}
	names = map[int64]string{1: "Alice", 2: "Bob", 3: "Carol"}
	roles = map[int64]models.Role{1: models.RoleCustomer, 2: models.RoleTasker, 3: models.RoleTasker}
	start = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

type stubService struct {
	mu       sync.Mutex
	messages []models.Message
	tasks    []models.Task
	marked   []int64
	sent     []models.SendRequest
	listErr  error
}

func (s *stubService) add(from, to int64, minute int, content string, read bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, models.Message{
		ID:           int64(len(s.messages) + 1),
		SenderID:     from,
		ReceiverID:   to,
		SenderName:   names[from],
		ReceiverName: names[to],
		SenderRole:   roles[from],
		ReceiverRole: roles[to],
		Content:      content,
		CreatedAt:    start.Add(time.Duration(minute) * time.Minute),
		Read:         read,
	})
}

func (s *stubService) ListMessages(context.Context) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Message, len(s.messages))
	for i := range s.messages {
		out[len(out)-1-i] = s.messages[i].Clone()
	}
	return out, nil
}

func (s *stubService) SendMessage(_ context.Context, req models.SendRequest) (*models.Message, error) {
	s.mu.Lock()
	s.sent = append(s.sent, req)
	minute := len(s.messages) + 100
	s.mu.Unlock()
	s.add(me.ID, req.ReceiverID, minute, req.Content, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	created := s.messages[len(s.messages)-1].Clone()
	return &created, nil
}

func (s *stubService) MarkRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, id)
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Read = true
		}
	}
	return nil
}

func (s *stubService) ListUserTasks(context.Context) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Task(nil), s.tasks...), nil
}

func newTestModel(t *testing.T, svc *stubService, cfg Config) *Model {
	t.Helper()
	ibCfg := inbox.DefaultConfig(me)
	ibCfg.ScrollThreshold = 2
	ib, err := inbox.New(svc, ibCfg)
	require.NoError(t, err)
	t.Cleanup(ib.Stop)
	_ = ib.Load(context.Background())

	cfg.Inbox = ib
	cfg.Now = func() time.Time { return start.Add(time.Hour) }
	m, err := NewModel(context.Background(), cfg)
	require.NoError(t, err)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	return m
}

// runCmd executes cmd and feeds every resulting message back into the model.
func runCmd(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			runCmd(t, m, c)
		}
		return
	}
	_, next := m.Update(msg)
	runCmd(t, m, next)
}

func press(t *testing.T, m *Model, key tea.KeyMsg) {
	t.Helper()
	_, cmd := m.Update(key)
	runCmd(t, m, cmd)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func seedTwoPartners(svc *stubService) {
	svc.add(3, 1, 0, "quote attached", true)
	svc.add(2, 1, 5, "hi Alice", false)
	svc.add(1, 2, 6, "hello Bob", false)
	svc.add(2, 1, 7, "can you do Tuesday?", false)
}

func TestModelListsConversations(t *testing.T) {
	svc := &stubService{}
	seedTwoPartners(svc)
	m := newTestModel(t, svc, Config{})

	view := m.View()
	require.Contains(t, view, "Tasker inbox · Alice · 2 unread")
	require.Contains(t, view, "Bob (2)")
	require.Contains(t, view, "Carol")
	require.Contains(t, view, "Select a conversation")
}

func TestModelViewBeforeResize(t *testing.T) {
	svc := &stubService{}
	ib, err := inbox.New(svc, inbox.DefaultConfig(me))
	require.NoError(t, err)
	m, err := NewModel(context.Background(), Config{Inbox: ib})
	require.NoError(t, err)
	require.Equal(t, "Loading inbox...", m.View())

	_, err = NewModel(context.Background(), Config{})
	require.Error(t, err)
}

func TestModelSelectMarksReadAndShowsThread(t *testing.T) {
	svc := &stubService{}
	seedTwoPartners(svc)
	m := newTestModel(t, svc, Config{})

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.True(t, m.hasSelected)
	require.Equal(t, int64(2), m.selected.PartnerID)
	require.Equal(t, paneThread, m.focus)
	require.ElementsMatch(t, []int64{2, 4}, svc.marked)
	require.Equal(t, 0, m.selected.UnreadCount)

	view := m.View()
	require.Contains(t, view, "Bob (#2) · tasker")
	require.Contains(t, view, "can you do Tuesday?")
	require.Contains(t, view, "You")
	require.NotContains(t, view, "2 unread")
}

func TestModelListNavigation(t *testing.T) {
	svc := &stubService{}
	seedTwoPartners(svc)
	m := newTestModel(t, svc, Config{})

	press(t, m, runes("j"))
	require.Equal(t, 1, m.cursor)
	press(t, m, runes("j"))
	require.Equal(t, 1, m.cursor)
	press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	require.Equal(t, 0, m.cursor)

	press(t, m, runes("j"))
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, int64(3), m.selected.PartnerID)
	require.Empty(t, svc.marked)
}

func TestModelComposeAndSend(t *testing.T) {
	svc := &stubService{}
	seedTwoPartners(svc)
	m := newTestModel(t, svc, Config{})

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	press(t, m, runes("c"))
	require.Equal(t, paneCompose, m.focus)

	press(t, m, runes("see"))
	press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	press(t, m, runes("youu"))
	press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	require.Contains(t, m.View(), "> see you█")

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, svc.sent, 1)
	require.Equal(t, "see you", svc.sent[0].Content)
	require.Equal(t, int64(2), svc.sent[0].ReceiverID)
	require.Empty(t, m.compose)
	require.False(t, m.sending)
	require.True(t, m.ib.AtBottom())
	require.Contains(t, m.View(), "see you")

	press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, paneThread, m.focus)
}

func TestModelComposeRejectsBlank(t *testing.T) {
	svc := &stubService{}
	seedTwoPartners(svc)
	m := newTestModel(t, svc, Config{})

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	press(t, m, runes("c"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, svc.sent)
	require.Equal(t, inbox.ErrEmptyMessage.Error(), m.status)
}

func TestModelComposeNeedsSelection(t *testing.T) {
	svc := &stubService{}
	seedTwoPartners(svc)
	m := newTestModel(t, svc, Config{})

	press(t, m, runes("c"))
	require.Equal(t, paneList, m.focus)
}

func TestModelScrollFollowsOnlyAtBottom(t *testing.T) {
	svc := &stubService{}
	for n := 0; n < 30; n++ {
		svc.add(2, 1, n, fmt.Sprintf("message %d", n), true)
	}
	m := newTestModel(t, svc, Config{})

	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	rows := len(m.threadRows(m.threadWidth()))
	viewport := m.layout().viewport
	require.Equal(t, rows-viewport, m.offset)
	require.True(t, m.ib.AtBottom())

	press(t, m, runes("k"))
	require.True(t, m.ib.AtBottom(), "within the threshold")
	press(t, m, runes("k"))
	press(t, m, runes("k"))
	require.False(t, m.ib.AtBottom())
	scrolled := m.offset

	// A refresh that does not ask to follow leaves the reader in place.
	svc.add(2, 1, 40, "one more", false)
	_, err := m.ib.Refresh(context.Background())
	require.NoError(t, err)
	m.Update(eventMsg{event: &models.Event{Type: models.EventTypeInboxUpdated, Payload: []byte(`{"scroll_to_bottom":false}`)}})
	require.Equal(t, scrolled, m.offset)

	press(t, m, runes("G"))
	require.Equal(t, len(m.threadRows(m.threadWidth()))-viewport, m.offset)
	require.True(t, m.ib.AtBottom())

	press(t, m, runes("g"))
	require.Equal(t, 0, m.offset)
}

func TestModelRefreshFollowsWhenAtBottom(t *testing.T) {
	svc := &stubService{}
	for n := 0; n < 30; n++ {
		svc.add(2, 1, n, fmt.Sprintf("message %d", n), true)
	}
	m := newTestModel(t, svc, Config{})
	press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	before := m.offset

	svc.add(2, 1, 40, "one more", true)
	update, err := m.ib.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, update.ScrollToBottom)

	m.Update(eventMsg{event: &models.Event{Type: models.EventTypeInboxUpdated, Payload: []byte(`{"scroll_to_bottom":true}`)}})
	require.Equal(t, before+2, m.offset)
}

func TestModelPreselectPlaceholder(t *testing.T) {
	svc := &stubService{}
	seedTwoPartners(svc)
	pre := &inbox.Preselection{PartnerID: 4, PartnerName: "Dora"}
	m := newTestModel(t, svc, Config{Preselect: pre})

	runCmd(t, m, m.Init())

	require.True(t, m.hasSelected)
	require.True(t, m.selected.Placeholder)
	view := m.View()
	require.Contains(t, view, "Dora (#4) · tasker · new conversation")
	require.Contains(t, view, "No messages yet")
}

func TestModelTaskFilterCycles(t *testing.T) {
	svc := &stubService{tasks: []models.Task{{ID: 9, Title: "Assemble desk"}}}
	seedTwoPartners(svc)
	svc.mu.Lock()
	svc.messages[0].TaskID = models.Int64Ptr(9)
	svc.mu.Unlock()
	m := newTestModel(t, svc, Config{})
	m.ib.ReloadTasks(context.Background())
	require.NoError(t, m.ib.Load(context.Background()))

	press(t, m, runes("f"))
	require.Len(t, m.conversations, 1)
	require.Equal(t, int64(3), m.conversations[0].PartnerID)
	require.Contains(t, m.View(), "task: Assemble desk")

	press(t, m, runes("f"))
	require.Len(t, m.conversations, 2)
	require.Nil(t, m.ib.TaskFilter())
}

func TestModelNoticeInFooter(t *testing.T) {
	svc := &stubService{listErr: errors.New("connection refused")}
	m := newTestModel(t, svc, Config{})

	require.Contains(t, m.View(), inbox.NoticeLoadFailed)

	svc.mu.Lock()
	svc.listErr = nil
	svc.mu.Unlock()
	press(t, m, runes("r"))
	require.NotContains(t, m.View(), inbox.NoticeLoadFailed)
	require.Contains(t, m.View(), "No conversations yet")
}

func TestModelQuit(t *testing.T) {
	m := newTestModel(t, &stubService{}, Config{})

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	require.Equal(t, tea.QuitMsg{}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Equal(t, tea.QuitMsg{}, cmd())
}

func TestThemeByName(t *testing.T) {
	require.Equal(t, "high-contrast", ThemeByName(" High-Contrast ").Name)
	require.Equal(t, "default", ThemeByName("nope").Name)
}

func TestListWidth(t *testing.T) {
	require.Equal(t, 0, listWidth(0, false))
	require.Equal(t, 60, listWidth(60, false))
	require.Equal(t, 0, listWidth(60, true))
	require.Equal(t, 33, listWidth(100, true))
	require.Equal(t, maxListWidth, listWidth(200, true))
}
