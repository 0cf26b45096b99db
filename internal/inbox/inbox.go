// Package inbox keeps the user's conversation list in sync with the backend:
// it groups messages into conversations, polls for updates with backoff,
// tracks the selected conversation and issues read receipts.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/tasker/internal/events"
	"github.com/tOgg1/tasker/internal/logging"
	"github.com/tOgg1/tasker/internal/models"
)

// DefaultReadReceiptConcurrency bounds concurrent mark-read calls.
const DefaultReadReceiptConcurrency = 4

// MessageService is the backend the inbox talks to.
type MessageService interface {
	ListMessages(ctx context.Context) ([]models.Message, error)
	SendMessage(ctx context.Context, req models.SendRequest) (*models.Message, error)
	MarkRead(ctx context.Context, messageID int64) error
	ListUserTasks(ctx context.Context) ([]models.Task, error)
}

// SnapshotStore keeps the last fetched message list for offline use.
type SnapshotStore interface {
	ReplaceSnapshot(ctx context.Context, ownerID int64, messages []models.Message, syncedAt time.Time) error
}

// Config controls inbox behavior.
type Config struct {
	Me                     models.User
	PollInterval           time.Duration
	SilentFailures         int
	MaxFailures            int
	ReadReceiptConcurrency int
	ScrollThreshold        int
}

// DefaultConfig returns defaults for me.
func DefaultConfig(me models.User) Config {
	return Config{
		Me:                     me,
		PollInterval:           DefaultPollInterval,
		SilentFailures:         DefaultSilentFailures,
		MaxFailures:            DefaultMaxFailures,
		ReadReceiptConcurrency: DefaultReadReceiptConcurrency,
		ScrollThreshold:        DefaultScrollThreshold,
	}
}

// Notice is the single user-visible status line.
type Notice struct {
	Text string `json:"text"`
	// Persistent notices survive successful loads.
	Persistent bool `json:"persistent,omitempty"`
}

// IsZero reports whether no notice is set.
func (n Notice) IsZero() bool {
	return n.Text == ""
}

// Update describes the result of a refresh.
type Update struct {
	// Changed is true when the conversations were regrouped with new data.
	Changed bool
	// ScrollToBottom is true when the thread view should follow new messages.
	ScrollToBottom bool
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithClock sets the clock for polling and timestamps.
func WithClock(clock Clock) Option {
	return func(i *Inbox) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// WithPublisher publishes inbox events.
func WithPublisher(pub events.Publisher) Option {
	return func(i *Inbox) {
		i.pub = pub
	}
}

// WithSnapshotStore stores every successful fetch.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(i *Inbox) {
		i.store = store
	}
}

// WithForeground sets the check the poller uses to skip ticks while the
// inbox is not on screen.
func WithForeground(visible func() bool) Option {
	return func(i *Inbox) {
		i.visible = visible
	}
}

// Inbox owns the conversation state for one user.
type Inbox struct {
	cfg     Config
	svc     MessageService
	clock   Clock
	pub     events.Publisher
	store   SnapshotStore
	visible func() bool
	logger  zerolog.Logger
	scroll  *ScrollTracker
	poller  *Poller

	mu            sync.Mutex
	messages      []models.Message
	conversations []models.Conversation
	lastSeenID    int64
	loaded        bool
	selected      int64
	placeholder   *models.Conversation
	preselect     *Preselection
	taskFilter    *int64
	tasks         []models.Task
	notice        Notice
	started       bool
	closed        bool
	generation    uint64
	cancel        context.CancelFunc
}

// New creates an Inbox for cfg.Me.
func New(svc MessageService, cfg Config, opts ...Option) (*Inbox, error) {
	if err := cfg.Me.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadReceiptConcurrency <= 0 {
		cfg.ReadReceiptConcurrency = DefaultReadReceiptConcurrency
	}

	i := &Inbox{
		cfg:    cfg,
		svc:    svc,
		clock:  SystemClock{},
		logger: logging.WithUser(logging.Component("inbox"), cfg.Me.ID),
		scroll: NewScrollTracker(cfg.ScrollThreshold),
	}
	for _, opt := range opts {
		opt(i)
	}

	i.poller = NewPoller(PollerConfig{
		Interval:       cfg.PollInterval,
		SilentFailures: cfg.SilentFailures,
		MaxFailures:    cfg.MaxFailures,
	}, func(ctx context.Context) error {
		_, err := i.Refresh(ctx)
		return err
	},
		WithPollerClock(i.clock),
		WithVisibility(i.visible),
		OnVerdict(i.handleVerdict),
	)
	return i, nil
}

// Me returns the inbox owner.
func (i *Inbox) Me() models.User {
	return i.cfg.Me
}

// Start loads tasks and messages, then starts polling.
func (i *Inbox) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	if i.started {
		i.mu.Unlock()
		return ErrPollerAlreadyRunning
	}
	i.started = true
	ctx, i.cancel = context.WithCancel(ctx)
	i.mu.Unlock()

	i.loadTasks(ctx)
	if err := i.Load(ctx); err != nil {
		i.logger.Warn().Err(err).Msg("initial load failed")
	}
	if err := i.poller.Start(ctx); err != nil {
		return err
	}
	i.publish(ctx, i.event(models.EventTypePollerStarted, models.EntityTypePoller, i.cfg.Me.ID, nil))
	return nil
}

// Stop halts polling and discards any response still in flight. It is safe
// to call more than once.
func (i *Inbox) Stop() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.generation++
	if i.cancel != nil {
		i.cancel()
	}
	i.mu.Unlock()

	i.poller.Stop()
	i.logger.Debug().Msg("inbox stopped")
}

// Load performs a full reload. Failures set the load-failed notice at once.
func (i *Inbox) Load(ctx context.Context) error {
	gen, err := i.generationFor()
	if err != nil {
		return err
	}

	messages, err := i.svc.ListMessages(ctx)
	if err != nil {
		i.logger.Warn().Err(err).Msg("failed to load messages")
		if i.isCurrent(gen) {
			i.setNotice(ctx, Notice{Text: NoticeLoadFailed})
		}
		return err
	}

	_, err = i.apply(ctx, gen, messages, true)
	return err
}

// Refresh fetches messages and regroups only when the newest message changed.
// Failures are returned for the poller to count; they never set a notice here.
func (i *Inbox) Refresh(ctx context.Context) (Update, error) {
	gen, err := i.generationFor()
	if err != nil {
		return Update{}, err
	}

	messages, err := i.svc.ListMessages(ctx)
	if err != nil {
		return Update{}, err
	}

	i.mu.Lock()
	unchanged := i.loaded && newestMessageID(messages) == i.lastSeenID
	i.mu.Unlock()
	if unchanged {
		return Update{}, nil
	}
	return i.apply(ctx, gen, messages, false)
}

func (i *Inbox) apply(ctx context.Context, gen uint64, messages []models.Message, manual bool) (Update, error) {
	conversations := GroupConversations(messages, i.cfg.Me.ID)
	topID := newestMessageID(messages)

	i.mu.Lock()
	if i.closed || gen != i.generation {
		i.mu.Unlock()
		i.logger.Debug().Msg("discarding response for stopped inbox")
		return Update{}, ErrClosed
	}

	changed := !i.loaded || topID != i.lastSeenID
	i.messages = messages
	i.conversations = conversations
	i.lastSeenID = topID
	i.loaded = true

	var superseded *models.Conversation
	if i.placeholder != nil {
		if conv := findConversation(conversations, i.placeholder.PartnerID); conv != nil {
			i.placeholder = nil
			if i.selected == conv.PartnerID {
				c := conv.Clone()
				superseded = &c
			}
		}
	}

	clearNotice := !i.notice.IsZero() && !i.notice.Persistent && manual
	if clearNotice {
		i.notice = Notice{}
	}
	update := Update{Changed: changed, ScrollToBottom: i.scroll.AfterRefresh(changed)}
	unread := TotalUnread(conversations)
	i.mu.Unlock()

	if clearNotice {
		i.publishNotice(ctx, Notice{})
	}
	if i.store != nil {
		if err := i.store.ReplaceSnapshot(ctx, i.cfg.Me.ID, messages, i.clock.Now()); err != nil {
			i.logger.Warn().Err(err).Msg("failed to store message snapshot")
		}
	}

	eventType := models.EventTypeInboxUpdated
	if manual {
		eventType = models.EventTypeInboxLoaded
	}
	i.publish(ctx, i.event(eventType, models.EntityTypeInbox, i.cfg.Me.ID, models.InboxUpdatedPayload{
		LastSeenMessageID: topID,
		Conversations:     len(conversations),
		Unread:            unread,
		ScrollToBottom:    update.ScrollToBottom,
	}))

	if superseded != nil {
		// The placeholder's partner now has messages; treat them as shown.
		i.logger.Debug().Int64("partner_id", superseded.PartnerID).Msg("placeholder replaced by conversation")
		attempted, _ := i.sendReadReceipts(ctx, superseded.PartnerID, superseded.UnreadFor(i.cfg.Me.ID))
		// The newest message id is unchanged, so only a full load picks up
		// the new read state.
		if len(attempted) > 0 {
			if err := i.Load(ctx); err != nil && !errors.Is(err, ErrClosed) {
				i.logger.Warn().Err(err).Msg("reload after read receipts failed")
			}
		}
	}
	return update, nil
}

func (i *Inbox) handleVerdict(verdict Verdict, failures int) {
	ctx := context.Background()
	switch verdict {
	case VerdictOK:
		i.mu.Lock()
		drop := i.notice.Text == NoticeTrouble
		if drop {
			i.notice = Notice{}
		}
		i.mu.Unlock()
		if drop {
			i.publishNotice(ctx, Notice{})
		}
	case VerdictTransient:
		i.setNotice(ctx, Notice{Text: NoticeTrouble})
	case VerdictStop:
		i.setNotice(ctx, Notice{Text: NoticeConnectionLost, Persistent: true})
		i.publish(ctx, i.event(models.EventTypePollerStopped, models.EntityTypePoller, i.cfg.Me.ID, models.PollerStoppedPayload{
			Failures: failures,
			Reason:   "too many consecutive failures",
		}))
	}
}

func (i *Inbox) loadTasks(ctx context.Context) {
	tasks, err := i.svc.ListUserTasks(ctx)
	if err != nil {
		i.logger.Warn().Err(err).Msg("failed to load tasks")
		return
	}
	i.mu.Lock()
	i.tasks = tasks
	i.mu.Unlock()
}

// ReloadTasks refreshes the task list used by the filter.
func (i *Inbox) ReloadTasks(ctx context.Context) {
	i.loadTasks(ctx)
}

// Tasks returns the user's tasks.
func (i *Inbox) Tasks() []models.Task {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]models.Task(nil), i.tasks...)
}

// SetTaskFilter limits Conversations to those with a message for taskID.
// Nil clears the filter.
func (i *Inbox) SetTaskFilter(taskID *int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if taskID == nil {
		i.taskFilter = nil
		return
	}
	id := *taskID
	i.taskFilter = &id
}

// TaskFilter returns the active task filter.
func (i *Inbox) TaskFilter() *int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.taskFilter == nil {
		return nil
	}
	id := *i.taskFilter
	return &id
}

// Conversations returns the conversation list, newest first, with the task
// filter applied. Placeholders are never included.
func (i *Inbox) Conversations() []models.Conversation {
	i.mu.Lock()
	defer i.mu.Unlock()
	filtered := FilterByTask(i.conversations, i.taskFilter)
	out := make([]models.Conversation, len(filtered))
	for n := range filtered {
		out[n] = filtered[n].Clone()
	}
	return out
}

// Notice returns the current notice.
func (i *Inbox) Notice() Notice {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.notice
}

// LastSeenMessageID returns the newest message id from the last regroup.
func (i *Inbox) LastSeenMessageID() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastSeenID
}

// Loaded reports whether at least one load has succeeded.
func (i *Inbox) Loaded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loaded
}

// PollerState returns the state of the background poller.
func (i *Inbox) PollerState() PollerState {
	return i.poller.State()
}

// Poller exposes the poller, mainly so callers can Tick it directly.
func (i *Inbox) Poller() *Poller {
	return i.poller
}

// PollingStopped is closed when the poller gives up after repeated failures.
func (i *Inbox) PollingStopped() <-chan struct{} {
	return i.poller.Done()
}

// ObserveScroll records the thread viewport position.
func (i *Inbox) ObserveScroll(offset, contentHeight, viewportHeight int) bool {
	return i.scroll.Observe(offset, contentHeight, viewportHeight)
}

// AtBottom reports whether the thread view is pinned to the newest message.
func (i *Inbox) AtBottom() bool {
	return i.scroll.AtBottom()
}

func (i *Inbox) generationFor() (uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return 0, ErrClosed
	}
	return i.generation, nil
}

func (i *Inbox) isCurrent(gen uint64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return !i.closed && gen == i.generation
}

// setNotice replaces the notice unless a persistent one is showing.
func (i *Inbox) setNotice(ctx context.Context, notice Notice) {
	i.mu.Lock()
	if i.notice.Persistent && !notice.Persistent {
		i.mu.Unlock()
		return
	}
	i.notice = notice
	i.mu.Unlock()
	i.publishNotice(ctx, notice)
}

func (i *Inbox) clearTransientNotice(ctx context.Context) {
	i.mu.Lock()
	drop := !i.notice.IsZero() && !i.notice.Persistent
	if drop {
		i.notice = Notice{}
	}
	i.mu.Unlock()
	if drop {
		i.publishNotice(ctx, Notice{})
	}
}

func (i *Inbox) publishNotice(ctx context.Context, notice Notice) {
	i.publish(ctx, i.event(models.EventTypeInboxNotice, models.EntityTypeInbox, i.cfg.Me.ID, models.NoticePayload{
		Text:       notice.Text,
		Persistent: notice.Persistent,
	}))
}

func (i *Inbox) event(eventType models.EventType, entityType models.EntityType, entityID int64, payload any) *models.Event {
	event := &models.Event{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   strconv.FormatInt(entityID, 10),
		Timestamp:  i.clock.Now().UTC(),
		Metadata:   map[string]string{"user_id": strconv.FormatInt(i.cfg.Me.ID, 10)},
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			i.logger.Warn().Err(err).Str("type", string(eventType)).Msg("failed to encode event payload")
		} else {
			event.Payload = data
		}
	}
	return event
}

func (i *Inbox) publish(ctx context.Context, event *models.Event) {
	if i.pub == nil || event == nil {
		return
	}
	i.pub.Publish(ctx, event)
}

func findConversation(conversations []models.Conversation, partnerID int64) *models.Conversation {
	for n := range conversations {
		if conversations[n].PartnerID == partnerID {
			return &conversations[n]
		}
	}
	return nil
}
