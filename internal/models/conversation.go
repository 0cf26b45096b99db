package models

// Conversation is the derived thread of messages exchanged with one partner.
// It is recomputed from the message set on every load and never stored.
type Conversation struct {
	PartnerID   int64     `json:"partner_id"`
	PartnerName string    `json:"partner_name"`
	PartnerRole Role      `json:"partner_role,omitempty"`
	Messages    []Message `json:"messages"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`

	// Placeholder marks a conversation created for a partner with no messages yet.
	Placeholder bool `json:"placeholder,omitempty"`
}

// HasTask reports whether any message in the conversation belongs to taskID.
func (c Conversation) HasTask(taskID int64) bool {
	for i := range c.Messages {
		if c.Messages[i].HasTask(taskID) {
			return true
		}
	}
	return false
}

// UnreadFor returns the messages userID still has to read, in thread order.
func (c Conversation) UnreadFor(userID int64) []Message {
	var out []Message
	for i := range c.Messages {
		if c.Messages[i].IsUnreadFor(userID) {
			out = append(out, c.Messages[i])
		}
	}
	return out
}

// LastTaskID returns the task id of the newest message, if any.
func (c Conversation) LastTaskID() *int64 {
	if c.LastMessage == nil || c.LastMessage.TaskID == nil {
		return nil
	}
	id := *c.LastMessage.TaskID
	return &id
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i := range c.Messages {
			out.Messages[i] = c.Messages[i].Clone()
		}
	}
	if c.LastMessage != nil {
		last := c.LastMessage.Clone()
		out.LastMessage = &last
	}
	return out
}
