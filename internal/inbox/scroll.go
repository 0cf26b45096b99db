package inbox

import "sync"

// DefaultScrollThreshold is how close to the bottom still counts as at-bottom.
const DefaultScrollThreshold = 50

// ScrollTracker remembers whether the thread view is pinned to its newest
// message, so refreshes only auto-scroll a reader who was already there.
type ScrollTracker struct {
	mu        sync.Mutex
	threshold int
	atBottom  bool
}

// NewScrollTracker creates a tracker. A negative threshold uses the default.
func NewScrollTracker(threshold int) *ScrollTracker {
	if threshold < 0 {
		threshold = DefaultScrollThreshold
	}
	return &ScrollTracker{threshold: threshold, atBottom: true}
}

// Observe records a viewport position and returns whether it is at the bottom.
func (s *ScrollTracker) Observe(offset, contentHeight, viewportHeight int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atBottom = contentHeight-offset <= viewportHeight+s.threshold
	return s.atBottom
}

// AtBottom returns the last observation.
func (s *ScrollTracker) AtBottom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atBottom
}

// AfterRefresh reports whether the view should scroll to the bottom after a
// refresh.
func (s *ScrollTracker) AfterRefresh(changed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return changed && s.atBottom
}

// ForceBottom pins the view to the bottom, as on selecting a conversation.
func (s *ScrollTracker) ForceBottom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atBottom = true
}
