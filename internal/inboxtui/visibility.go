package inboxtui

import "sync/atomic"

// Visibility tracks whether the terminal window has focus. The inbox poller
// consults it and skips ticks while the window is in the background.
type Visibility struct {
	hidden atomic.Bool
}

// NewVisibility starts out visible; terminals that never report focus keep
// polling.
func NewVisibility() *Visibility {
	return &Visibility{}
}

// Visible reports whether the window is in the foreground.
func (v *Visibility) Visible() bool {
	return !v.hidden.Load()
}

// Set records a focus change.
func (v *Visibility) Set(visible bool) {
	v.hidden.Store(!visible)
}
