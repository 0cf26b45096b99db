package inbox

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tOgg1/tasker/internal/models"
)

var (
	me      = models.User{ID: 1, Name: "Alice", Role: models.RoleCustomer}
	baseNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

// fakeService is a scripted MessageService that records every call.
type fakeService struct {
	mu        sync.Mutex
	messages  []models.Message
	tasks     []models.Task
	listErrs  []error
	listErr   error
	markErrs  map[int64]error
	sendErr   error
	tasksErr  error
	block     chan struct{}
	calls     []string
	sent      []models.SendRequest
	nextID    int64
	listCount int
}

func newFakeService(messages ...models.Message) *fakeService {
	f := &fakeService{markErrs: make(map[int64]error), nextID: 100}
	f.messages = append(f.messages, messages...)
	return f
}

func (f *fakeService) ListMessages(ctx context.Context) ([]models.Message, error) {
	f.mu.Lock()
	f.listCount++
	f.calls = append(f.calls, "list")
	block := f.block
	var err error
	if len(f.listErrs) > 0 {
		err = f.listErrs[0]
		f.listErrs = f.listErrs[1:]
	} else {
		err = f.listErr
	}
	out := make([]models.Message, len(f.messages))
	for i := range f.messages {
		out[i] = f.messages[i].Clone()
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return messageBefore(out[j], out[i]) })
	return out, nil
}

func (f *fakeService) SendMessage(_ context.Context, req models.SendRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "send")
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	msg := models.Message{
		ID:         f.nextID,
		SenderID:   me.ID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		TaskID:     req.TaskID,
		CreatedAt:  baseNow.Add(time.Duration(f.nextID) * time.Second),
	}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeService) MarkRead(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "mark:"+strconv.FormatInt(id, 10))
	if err := f.markErrs[id]; err != nil {
		return err
	}
	for i := range f.messages {
		if f.messages[i].ID == id {
			f.messages[i].Read = true
		}
	}
	return nil
}

func (f *fakeService) ListUserTasks(context.Context) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "tasks")
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	return append([]models.Task(nil), f.tasks...), nil
}

func (f *fakeService) add(messages ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages...)
}

func (f *fakeService) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeService) lists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCount
}

func (f *fakeService) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeService) sentRequests() []models.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SendRequest(nil), f.sent...)
}

// msg builds a message from one user to another, minute minutes after baseNow.
func msg(id, from, to int64, minute int, read bool) models.Message {
	return models.Message{
		ID:           id,
		SenderID:     from,
		ReceiverID:   to,
		SenderName:   "User" + strconv.FormatInt(from, 10),
		ReceiverName: "User" + strconv.FormatInt(to, 10),
		Content:      "message " + strconv.FormatInt(id, 10),
		CreatedAt:    baseNow.Add(time.Duration(minute) * time.Minute),
		Read:         read,
	}
}

type memorySnapshots struct {
	mu    sync.Mutex
	saved [][]models.Message
}

func (m *memorySnapshots) ReplaceSnapshot(_ context.Context, _ int64, messages []models.Message, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, messages)
	return nil
}
