package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Inbox events
	EventTypeInboxLoaded  EventType = "inbox.loaded"
	EventTypeInboxUpdated EventType = "inbox.updated"
	EventTypeInboxNotice  EventType = "inbox.notice"

	// Conversation events
	EventTypeConversationSelected EventType = "conversation.selected"

	// Message events
	EventTypeMessageSent       EventType = "message.sent"
	EventTypeMessageSendFailed EventType = "message.send_failed"
	EventTypeMessageRead       EventType = "message.read"
	EventTypeMessageReadFailed EventType = "message.read_failed"

	// Poller events
	EventTypePollerStarted EventType = "poller.started"
	EventTypePollerStopped EventType = "poller.stopped"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeInbox        EntityType = "inbox"
	EntityTypeConversation EntityType = "conversation"
	EntityTypeMessage      EntityType = "message"
	EntityTypePoller       EntityType = "poller"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// InboxUpdatedPayload is the payload for inbox.updated events.
type InboxUpdatedPayload struct {
	LastSeenMessageID int64 `json:"last_seen_message_id"`
	Conversations     int   `json:"conversations"`
	Unread            int   `json:"unread"`
	ScrollToBottom    bool  `json:"scroll_to_bottom"`
}

// NoticePayload is the payload for inbox.notice events. An empty Text clears
// the current notice.
type NoticePayload struct {
	Text       string `json:"text"`
	Persistent bool   `json:"persistent,omitempty"`
}

// ReadFailedPayload is the payload for message.read_failed events.
type ReadFailedPayload struct {
	PartnerID int64  `json:"partner_id"`
	Error     string `json:"error"`
}

// PollerStoppedPayload is the payload for poller.stopped events.
type PollerStoppedPayload struct {
	Failures int    `json:"failures"`
	Reason   string `json:"reason"`
}
