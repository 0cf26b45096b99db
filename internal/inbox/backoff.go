package inbox

import "sync"

// Default failure thresholds for incremental refreshes.
const (
	DefaultSilentFailures = 3
	DefaultMaxFailures    = 10
)

// Notice texts shown to the user.
const (
	NoticeTrouble        = "Having trouble loading new messages. Will keep trying..."
	NoticeConnectionLost = "Connection lost. Restart to resume."
	NoticeLoadFailed     = "Failed to load messages"
	NoticeSendFailed     = "Failed to send message"
)

// Verdict is the outcome of one poll cycle.
type Verdict int

const (
	// VerdictSkipped means no fetch was made.
	VerdictSkipped Verdict = iota
	// VerdictOK means the fetch succeeded.
	VerdictOK
	// VerdictSilent means the fetch failed but the user is not told yet.
	VerdictSilent
	// VerdictTransient means the fetch failed and a retrying notice is shown.
	VerdictTransient
	// VerdictStop means polling has given up.
	VerdictStop
)

func (v Verdict) String() string {
	switch v {
	case VerdictSkipped:
		return "skipped"
	case VerdictOK:
		return "ok"
	case VerdictSilent:
		return "silent"
	case VerdictTransient:
		return "transient"
	case VerdictStop:
		return "stop"
	default:
		return "unknown"
	}
}

// RetryController counts consecutive failed incremental refreshes and
// decides when the user hears about them and when polling stops.
type RetryController struct {
	mu       sync.Mutex
	silent   int
	max      int
	failures int
	stopped  bool
}

// NewRetryController creates a controller. Failures up to silent are quiet,
// failures past max stop polling. Non-positive values use the defaults.
func NewRetryController(silent, max int) *RetryController {
	if silent <= 0 {
		silent = DefaultSilentFailures
	}
	if max <= 0 {
		max = DefaultMaxFailures
	}
	if max < silent {
		max = silent
	}
	return &RetryController{silent: silent, max: max}
}

// Record feeds the result of one refresh and returns the verdict.
func (r *RetryController) Record(err error) Verdict {
	if err == nil {
		return r.Success()
	}
	return r.Failure()
}

// Success resets the failure count.
func (r *RetryController) Success() Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return VerdictStop
	}
	r.failures = 0
	return VerdictOK
}

// Failure counts one more consecutive failure.
func (r *RetryController) Failure() Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return VerdictStop
	}
	r.failures++
	switch {
	case r.failures > r.max:
		r.stopped = true
		return VerdictStop
	case r.failures > r.silent:
		return VerdictTransient
	default:
		return VerdictSilent
	}
}

// Failures returns the current consecutive failure count.
func (r *RetryController) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// Stopped reports whether the controller has given up.
func (r *RetryController) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
