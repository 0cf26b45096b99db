package inbox

import "errors"

var (
	// ErrNoSelection is returned by Send when no conversation is selected.
	ErrNoSelection = errors.New("no conversation selected")
	// ErrEmptyMessage is returned by Send for blank content.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrClosed is returned by operations on a stopped inbox.
	ErrClosed = errors.New("inbox closed")
	// ErrUnknownConversation is returned by Select for a partner with no conversation.
	ErrUnknownConversation = errors.New("conversation not found")

	ErrPollerAlreadyRunning = errors.New("poller already running")
	// ErrPollerStopped is returned when starting a poller that has already run.
	ErrPollerStopped = errors.New("poller stopped")
)
