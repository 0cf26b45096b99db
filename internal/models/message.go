// Package models defines the core data types for the Tasker inbox.
package models

import (
	"time"
)

// Role identifies which side of the marketplace a user is on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleTasker   Role = "tasker"
)

// Counterpart returns the role on the other side of a conversation.
func (r Role) Counterpart() Role {
	switch r {
	case RoleCustomer:
		return RoleTasker
	case RoleTasker:
		return RoleCustomer
	default:
		return ""
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleTasker
}

// User is the authenticated caller.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// Message is a single direct message between two users.
// Everything except Read is immutable once created.
type Message struct {
	ID           int64     `json:"id"`
	SenderID     int64     `json:"sender_id"`
	ReceiverID   int64     `json:"receiver_id"`
	SenderName   string    `json:"sender_name,omitempty"`
	ReceiverName string    `json:"receiver_name,omitempty"`
	SenderRole   Role      `json:"sender_role,omitempty"`
	ReceiverRole Role      `json:"receiver_role,omitempty"`
	Content      string    `json:"content"`
	TaskID       *int64    `json:"task_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Read         bool      `json:"read"`
}

// PartnerID returns the participant on the message that is not userID.
func (m Message) PartnerID(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// PartnerName returns the display name of the participant that is not userID.
func (m Message) PartnerName(userID int64) string {
	if m.SenderID == userID {
		return m.ReceiverName
	}
	return m.SenderName
}

// PartnerRole returns the role of the participant that is not userID.
func (m Message) PartnerRole(userID int64) Role {
	if m.SenderID == userID {
		return m.ReceiverRole
	}
	return m.SenderRole
}

// IsUnreadFor reports whether userID received the message and has not read it.
func (m Message) IsUnreadFor(userID int64) bool {
	return m.ReceiverID == userID && !m.Read
}

// HasTask reports whether the message is attached to taskID.
func (m Message) HasTask(taskID int64) bool {
	return m.TaskID != nil && *m.TaskID == taskID
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.TaskID != nil {
		id := *m.TaskID
		out.TaskID = &id
	}
	return out
}

// SendRequest is the payload for creating a message.
type SendRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	TaskID     *int64 `json:"task_id,omitempty"`
}

// Task is the subset of a task record the inbox needs for filtering.
type Task struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
