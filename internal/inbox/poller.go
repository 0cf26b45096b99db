package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/tasker/internal/logging"
)

// DefaultPollInterval is how often the poller refreshes.
const DefaultPollInterval = 5 * time.Second

// PollerState is the lifecycle state of a Poller.
type PollerState int

const (
	// PollerIdle is a poller that has not been started.
	PollerIdle PollerState = iota
	// PollerPolling is refreshing on every tick.
	PollerPolling
	// PollerStopped has given up after too many failures.
	PollerStopped
	// PollerTerminated has been shut down by Stop.
	PollerTerminated
)

func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerPolling:
		return "polling"
	case PollerStopped:
		return "stopped"
	case PollerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// PollerConfig contains configuration for the poller.
type PollerConfig struct {
	// Interval between refreshes. Default: 5s
	Interval time.Duration

	// SilentFailures is how many consecutive failures stay quiet. Default: 3
	SilentFailures int

	// MaxFailures is how many consecutive failures are tolerated before
	// polling stops. Default: 10
	MaxFailures int
}

// DefaultPollerConfig returns the defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:       DefaultPollInterval,
		SilentFailures: DefaultSilentFailures,
		MaxFailures:    DefaultMaxFailures,
	}
}

// RefreshFunc performs one incremental refresh.
type RefreshFunc func(ctx context.Context) error

// VerdictHandler is told the outcome of every refresh attempt.
type VerdictHandler func(verdict Verdict, failures int)

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerClock sets the clock used for the ticker.
func WithPollerClock(clock Clock) PollerOption {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithVisibility sets the foreground check. Ticks while it reports false are
// skipped without fetching.
func WithVisibility(visible func() bool) PollerOption {
	return func(p *Poller) {
		p.visible = visible
	}
}

// OnVerdict registers a handler for refresh outcomes.
func OnVerdict(fn VerdictHandler) PollerOption {
	return func(p *Poller) {
		p.onVerdict = fn
	}
}

// Poller refreshes on a fixed interval until stopped or until the retry
// controller gives up.
type Poller struct {
	config    PollerConfig
	refresh   RefreshFunc
	retry     *RetryController
	clock     Clock
	visible   func() bool
	onVerdict VerdictHandler
	logger    zerolog.Logger

	mu     sync.Mutex
	state  PollerState
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// tickMu serializes cycles so a manual Tick never overlaps the loop.
	tickMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
}

// NewPoller creates a Poller in the idle state.
func NewPoller(config PollerConfig, refresh RefreshFunc, opts ...PollerOption) *Poller {
	defaults := DefaultPollerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.SilentFailures <= 0 {
		config.SilentFailures = defaults.SilentFailures
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaults.MaxFailures
	}

	p := &Poller{
		config:  config,
		refresh: refresh,
		retry:   NewRetryController(config.SilentFailures, config.MaxFailures),
		clock:   SystemClock{},
		logger:  logging.Component("inbox-poller"),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case PollerPolling:
		return ErrPollerAlreadyRunning
	case PollerStopped, PollerTerminated:
		return ErrPollerStopped
	}

	ctx, p.cancel = context.WithCancel(ctx)
	ticker := p.clock.NewTicker(p.config.Interval)
	p.state = PollerPolling

	p.logger.Info().
		Dur("interval", p.config.Interval).
		Int("silent_failures", p.config.SilentFailures).
		Int("max_failures", p.config.MaxFailures).
		Msg("poller starting")

	p.wg.Add(1)
	go p.run(ctx, ticker)
	return nil
}

// Stop cancels the loop and waits for it to exit. It is safe to call in any
// state and more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == PollerTerminated {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.state = PollerTerminated
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug().Msg("poller terminated")
}

// State returns the current lifecycle state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once polling has stopped after repeated failures, after the
// verdict handler has run. It stays open when the poller is merely Stopped.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Failures returns the current consecutive failure count.
func (p *Poller) Failures() int {
	return p.retry.Failures()
}

func (p *Poller) run(ctx context.Context, ticker Ticker) {
	defer p.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if p.Tick(ctx) == VerdictStop {
				return
			}
		}
	}
}

// Tick runs one poll cycle synchronously. Stopped and terminated pollers do
// not fetch.
func (p *Poller) Tick(ctx context.Context) Verdict {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	switch p.State() {
	case PollerStopped:
		return VerdictStop
	case PollerTerminated:
		return VerdictSkipped
	}
	if p.visible != nil && !p.visible() {
		return VerdictSkipped
	}

	err := p.refresh(ctx)
	if err != nil && ctx.Err() != nil {
		// Canceled by Stop; not a backend failure.
		return VerdictSkipped
	}

	verdict := p.retry.Record(err)
	failures := p.retry.Failures()
	switch verdict {
	case VerdictSilent, VerdictTransient:
		p.logger.Debug().Err(err).Int("failures", failures).Str("verdict", verdict.String()).Msg("refresh failed")
	case VerdictStop:
		p.mu.Lock()
		if p.state != PollerTerminated {
			p.state = PollerStopped
		}
		p.mu.Unlock()
		p.logger.Warn().Err(err).Int("failures", failures).Msg("polling stopped after repeated failures")
	}

	if p.onVerdict != nil {
		p.onVerdict(verdict, failures)
	}
	if verdict == VerdictStop {
		p.doneOnce.Do(func() { close(p.done) })
	}
	return verdict
}
