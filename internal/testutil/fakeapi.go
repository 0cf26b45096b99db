// Package testutil provides an in-memory Tasker backend for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tOgg1/tasker/internal/models"
)

// Route keys used by Calls and Fail.
const (
	RouteListMessages = "GET /messages"
	RouteSendMessage  = "POST /messages"
	RouteMarkRead     = "PUT /messages/:id/read"
	RouteListTasks    = "GET /tasks/user/my-tasks"
)

// StatusDropConnection makes a failure close the connection without a response.
const StatusDropConnection = -1

type failure struct {
	status int
	detail string
}

// FakeAPI is a gin server implementing the message and task endpoints.
type FakeAPI struct {
	t      testing.TB
	server *httptest.Server

	mu        sync.Mutex
	users     map[int64]models.User
	tokens    map[string]int64
	messages  []models.Message
	tasks     map[int64][]models.Task
	nextID    int64
	now       func() time.Time
	calls     map[string]int
	markCalls []int64
	failures  map[string][]failure
	failRead  map[int64]int
}

// NewFakeAPI starts a fake backend and closes it when the test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()
	SkipIfNoNetwork(t)
	gin.SetMode(gin.TestMode)

	f := &FakeAPI{
		t:        t,
		users:    make(map[int64]models.User),
		tokens:   make(map[string]int64),
		tasks:    make(map[int64][]models.Task),
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
		calls:    make(map[string]int),
		failures: make(map[string][]failure),
		failRead: make(map[int64]int),
	}

	router := gin.New()
	router.Use(f.countCalls(), f.injectFailures(), f.authenticate())
	router.GET("/messages", f.listMessages)
	router.POST("/messages", f.sendMessage)
	router.PUT("/messages/:id/read", f.markRead)
	router.GET("/tasks/user/my-tasks", f.listTasks)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the server base URL.
func (f *FakeAPI) URL() string {
	return f.server.URL
}

// AddUser registers a user and returns the bearer token that authenticates as them.
func (f *FakeAPI) AddUser(user models.User) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	token := fmt.Sprintf("token-%d", user.ID)
	f.tokens[token] = user.ID
	return token
}

// SetTasks sets the task list returned to userID.
func (f *FakeAPI) SetTasks(userID int64, tasks ...models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[userID] = append([]models.Task(nil), tasks...)
}

// SetNow overrides the clock used for new messages.
func (f *FakeAPI) SetNow(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Seed stores messages as-is. Zero IDs are assigned; names and roles are
// filled from registered users when missing.
func (f *FakeAPI) Seed(messages ...models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range messages {
		if msg.ID == 0 {
			msg.ID = f.nextID
		}
		if msg.ID >= f.nextID {
			f.nextID = msg.ID + 1
		}
		f.decorate(&msg)
		f.messages = append(f.messages, msg)
	}
}

// Message returns the stored copy of a message.
func (f *FakeAPI) Message(id int64) (models.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.ID == id {
			return msg.Clone(), true
		}
	}
	return models.Message{}, false
}

// Fail makes the next n calls to route fail with status. Use
// StatusDropConnection to simulate a transport failure.
func (f *FakeAPI) Fail(route string, n int, status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.failures[route] = append(f.failures[route], failure{status: status, detail: detail})
	}
}

// FailMarkRead makes mark-read calls for messageID fail with status.
func (f *FakeAPI) FailMarkRead(messageID int64, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRead[messageID] = status
}

// Calls returns how many requests reached route.
func (f *FakeAPI) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// MarkReadIDs returns the message ids passed to mark-read, in arrival order.
func (f *FakeAPI) MarkReadIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.markCalls...)
}

func (f *FakeAPI) decorate(msg *models.Message) {
	if sender, ok := f.users[msg.SenderID]; ok {
		if msg.SenderName == "" {
			msg.SenderName = sender.Name
		}
		if msg.SenderRole == "" {
			msg.SenderRole = sender.Role
		}
	}
	if receiver, ok := f.users[msg.ReceiverID]; ok {
		if msg.ReceiverName == "" {
			msg.ReceiverName = receiver.Name
		}
		if msg.ReceiverRole == "" {
			msg.ReceiverRole = receiver.Role
		}
	}
}

func (f *FakeAPI) countCalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		f.mu.Lock()
		f.calls[c.Request.Method+" "+c.FullPath()]++
		if c.FullPath() == "/messages/:id/read" {
			if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
				f.markCalls = append(f.markCalls, id)
			}
		}
		f.mu.Unlock()
		c.Next()
	}
}

func (f *FakeAPI) injectFailures() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.Request.Method + " " + c.FullPath()

		f.mu.Lock()
		var fail *failure
		if queue := f.failures[route]; len(queue) > 0 {
			fail = &queue[0]
			f.failures[route] = queue[1:]
		} else if route == RouteMarkRead {
			if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
				if status, ok := f.failRead[id]; ok {
					fail = &failure{status: status}
				}
			}
		}
		f.mu.Unlock()

		if fail == nil {
			c.Next()
			return
		}
		if fail.status == StatusDropConnection {
			if conn, _, err := c.Writer.Hijack(); err == nil {
				_ = conn.Close()
			}
			c.Abort()
			return
		}
		detail := fail.detail
		if detail == "" {
			detail = http.StatusText(fail.status)
		}
		c.AbortWithStatusJSON(fail.status, gin.H{"detail": detail})
	}
}

func (f *FakeAPI) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		f.mu.Lock()
		userID, ok := f.tokens[token]
		f.mu.Unlock()

		if header == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func (f *FakeAPI) listMessages(c *gin.Context) {
	userID := c.GetInt64("user_id")

	f.mu.Lock()
	out := make([]models.Message, 0, len(f.messages))
	for _, msg := range f.messages {
		if msg.SenderID == userID || msg.ReceiverID == userID {
			out = append(out, msg.Clone())
		}
	}
	f.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	c.JSON(http.StatusOK, out)
}

func (f *FakeAPI) sendMessage(c *gin.Context) {
	var req models.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": err.Error()}}})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "content must not be empty"}}})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[req.ReceiverID]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Receiver not found"})
		return
	}
	msg := models.Message{
		ID:         f.nextID,
		SenderID:   c.GetInt64("user_id"),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		TaskID:     req.TaskID,
		CreatedAt:  f.now(),
	}
	f.nextID++
	f.decorate(&msg)
	f.messages = append(f.messages, msg)
	c.JSON(http.StatusOK, msg)
}

func (f *FakeAPI) markRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid message id"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID != id {
			continue
		}
		if f.messages[i].ReceiverID != c.GetInt64("user_id") {
			c.JSON(http.StatusForbidden, gin.H{"detail": "Not authorized to mark this message as read"})
			return
		}
		f.messages[i].Read = true
		c.JSON(http.StatusOK, gin.H{"message": "Message marked as read"})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "Message not found"})
}

func (f *FakeAPI) listTasks(c *gin.Context) {
	f.mu.Lock()
	tasks := append([]models.Task{}, f.tasks[c.GetInt64("user_id")]...)
	f.mu.Unlock()
	c.JSON(http.StatusOK, tasks)
}
