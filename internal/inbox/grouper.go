package inbox

import (
	"fmt"
	"sort"

	"github.com/tOgg1/tasker/internal/models"
)

// GroupConversations partitions messages into one conversation per partner.
//
// The result depends only on the set of messages: messages inside a
// conversation are ordered oldest first by (created_at, id), partner name and
// role come from the newest message, and conversations are ordered newest
// first with ties broken by ascending partner id. Messages that do not involve
// userID are ignored. The input slice is not modified.
func GroupConversations(messages []models.Message, userID int64) []models.Conversation {
	ordered := make([]models.Message, 0, len(messages))
	for i := range messages {
		if messages[i].SenderID != userID && messages[i].ReceiverID != userID {
			continue
		}
		ordered = append(ordered, messages[i].Clone())
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return messageBefore(ordered[i], ordered[j])
	})

	byPartner := make(map[int64]*models.Conversation)
	var partners []int64
	for _, msg := range ordered {
		partnerID := msg.PartnerID(userID)
		conv, ok := byPartner[partnerID]
		if !ok {
			conv = &models.Conversation{PartnerID: partnerID}
			byPartner[partnerID] = conv
			partners = append(partners, partnerID)
		}
		conv.Messages = append(conv.Messages, msg)
		if msg.IsUnreadFor(userID) {
			conv.UnreadCount++
		}
	}

	out := make([]models.Conversation, 0, len(partners))
	for _, partnerID := range partners {
		conv := byPartner[partnerID]
		last := conv.Messages[len(conv.Messages)-1].Clone()
		conv.LastMessage = &last
		conv.PartnerName = last.PartnerName(userID)
		conv.PartnerRole = last.PartnerRole(userID)
		if conv.PartnerName == "" {
			conv.PartnerName = DefaultPartnerName(partnerID)
		}
		out = append(out, *conv)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessage.CreatedAt, out[j].LastMessage.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].PartnerID < out[j].PartnerID
	})
	return out
}

// DefaultPartnerName is shown for partners whose name is unknown.
func DefaultPartnerName(partnerID int64) string {
	return fmt.Sprintf("User %d", partnerID)
}

// FilterByTask returns the conversations with at least one message for taskID.
// A nil taskID returns conversations unchanged.
func FilterByTask(conversations []models.Conversation, taskID *int64) []models.Conversation {
	if taskID == nil {
		return conversations
	}
	out := make([]models.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		if conv.HasTask(*taskID) {
			out = append(out, conv)
		}
	}
	return out
}

// TotalUnread sums the unread counts of conversations.
func TotalUnread(conversations []models.Conversation) int {
	total := 0
	for _, conv := range conversations {
		total += conv.UnreadCount
	}
	return total
}

// newestMessageID returns the id of the newest message, or 0 for none.
func newestMessageID(messages []models.Message) int64 {
	var newest *models.Message
	for i := range messages {
		if newest == nil || messageBefore(*newest, messages[i]) {
			newest = &messages[i]
		}
	}
	if newest == nil {
		return 0
	}
	return newest.ID
}

func messageBefore(a, b models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
