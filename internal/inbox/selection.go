package inbox

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/tasker/internal/api"
	"github.com/tOgg1/tasker/internal/logging"
	"github.com/tOgg1/tasker/internal/models"
)

// Preselection opens a conversation from outside the inbox, for example from
// a task page. PartnerName and TaskID are optional.
type Preselection struct {
	PartnerID   int64
	PartnerName string
	TaskID      *int64
}

// ReadReceiptReport summarizes the mark-read calls made by a selection.
type ReadReceiptReport struct {
	PartnerID int64
	// Attempted lists the message ids marked read, oldest first.
	Attempted []int64
	// Failed maps message ids to the error their call returned.
	Failed map[int64]error
	// ReloadErr is the result of the reload that follows the calls.
	ReloadErr error
}

// Select makes partnerID's conversation active, marks its unread messages
// read and then reloads once. Mark-read failures are reported, logged and
// published but never shown as a notice.
func (i *Inbox) Select(ctx context.Context, partnerID int64) (ReadReceiptReport, error) {
	report := ReadReceiptReport{PartnerID: partnerID}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return report, ErrClosed
	}
	conv := findConversation(i.conversations, partnerID)
	if conv == nil && (i.placeholder == nil || i.placeholder.PartnerID != partnerID) {
		i.mu.Unlock()
		return report, ErrUnknownConversation
	}
	i.selected = partnerID
	if i.preselect != nil && i.preselect.PartnerID != partnerID {
		i.preselect = nil
	}
	var unread []models.Message
	if conv != nil {
		unread = conv.UnreadFor(i.cfg.Me.ID)
	}
	i.mu.Unlock()

	i.scroll.ForceBottom()
	i.publish(ctx, i.event(models.EventTypeConversationSelected, models.EntityTypeConversation, partnerID, nil))
	if conv == nil {
		return report, nil
	}

	report.Attempted, report.Failed = i.sendReadReceipts(ctx, partnerID, unread)
	report.ReloadErr = i.Load(ctx)
	return report, nil
}

// Preselect selects partnerID's conversation, or shows an empty placeholder
// for it when none exists yet. The placeholder is replaced by the real
// conversation as soon as a load returns messages for that partner.
func (i *Inbox) Preselect(ctx context.Context, p Preselection) (ReadReceiptReport, error) {
	if p.PartnerID <= 0 {
		return ReadReceiptReport{}, models.ErrInvalidReceiver
	}
	if p.PartnerID == i.cfg.Me.ID {
		return ReadReceiptReport{}, models.ErrSelfMessage
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ReadReceiptReport{PartnerID: p.PartnerID}, ErrClosed
	}
	pre := p
	if p.TaskID != nil {
		pre.TaskID = models.Int64Ptr(*p.TaskID)
	}
	i.preselect = &pre

	if findConversation(i.conversations, p.PartnerID) != nil {
		i.placeholder = nil
		i.mu.Unlock()
		return i.Select(ctx, p.PartnerID)
	}

	name := strings.TrimSpace(p.PartnerName)
	if name == "" {
		name = DefaultPartnerName(p.PartnerID)
	}
	i.placeholder = &models.Conversation{
		PartnerID:   p.PartnerID,
		PartnerName: name,
		PartnerRole: i.cfg.Me.Role.Counterpart(),
		Messages:    []models.Message{},
		Placeholder: true,
	}
	i.selected = p.PartnerID
	i.mu.Unlock()

	i.scroll.ForceBottom()
	i.publish(ctx, i.event(models.EventTypeConversationSelected, models.EntityTypeConversation, p.PartnerID, nil))
	return ReadReceiptReport{PartnerID: p.PartnerID}, nil
}

// Selected returns the active conversation, which may be a placeholder.
func (i *Inbox) Selected() (models.Conversation, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.selected == 0 {
		return models.Conversation{}, false
	}
	if conv := findConversation(i.conversations, i.selected); conv != nil {
		return conv.Clone(), true
	}
	if i.placeholder != nil && i.placeholder.PartnerID == i.selected {
		return i.placeholder.Clone(), true
	}
	return models.Conversation{}, false
}

// Send posts content to the selected partner. The task id comes from the
// preselection, else from the newest message of the conversation. A
// successful send reloads the inbox.
func (i *Inbox) Send(ctx context.Context, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil, ErrClosed
	}
	if i.selected == 0 {
		i.mu.Unlock()
		return nil, ErrNoSelection
	}
	gen := i.generation
	req := models.SendRequest{ReceiverID: i.selected, Content: content}
	switch {
	case i.preselect != nil && i.preselect.PartnerID == i.selected && i.preselect.TaskID != nil:
		req.TaskID = models.Int64Ptr(*i.preselect.TaskID)
	default:
		if conv := findConversation(i.conversations, i.selected); conv != nil {
			req.TaskID = conv.LastTaskID()
		}
	}
	i.mu.Unlock()

	if err := models.ValidateSend(i.cfg.Me, req); err != nil {
		return nil, err
	}

	i.clearTransientNotice(ctx)
	logger := logging.WithPartner(i.logger, req.ReceiverID)

	created, err := i.svc.SendMessage(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to send message")
		text := api.DetailOf(err)
		if text == "" {
			text = NoticeSendFailed
		}
		if i.isCurrent(gen) {
			i.setNotice(ctx, Notice{Text: text})
		}
		i.publish(ctx, i.event(models.EventTypeMessageSendFailed, models.EntityTypeConversation, req.ReceiverID, models.NoticePayload{Text: text}))
		return nil, err
	}

	logger.Debug().Int64("message_id", created.ID).Msg("message sent")
	i.publish(ctx, i.event(models.EventTypeMessageSent, models.EntityTypeMessage, created.ID, nil))
	if err := i.Load(ctx); err != nil && !errors.Is(err, ErrClosed) {
		logger.Warn().Err(err).Msg("reload after send failed")
	}
	return created, nil
}

// sendReadReceipts marks messages read with bounded concurrency. Every call
// runs regardless of the others' outcome.
func (i *Inbox) sendReadReceipts(ctx context.Context, partnerID int64, unread []models.Message) ([]int64, map[int64]error) {
	attempted := make([]int64, 0, len(unread))
	failed := make(map[int64]error)
	if len(unread) == 0 {
		return attempted, failed
	}

	logger := logging.WithPartner(i.logger, partnerID)
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(i.cfg.ReadReceiptConcurrency)

	for _, msg := range unread {
		id := msg.ID
		attempted = append(attempted, id)
		g.Go(func() error {
			if err := i.svc.MarkRead(ctx, id); err != nil {
				mu.Lock()
				failed[id] = err
				mu.Unlock()
				logger.Warn().Err(err).Int64("message_id", id).Msg("failed to mark message read")
				i.publish(ctx, i.event(models.EventTypeMessageReadFailed, models.EntityTypeMessage, id, models.ReadFailedPayload{
					PartnerID: partnerID,
					Error:     err.Error(),
				}))
				return nil
			}
			i.publish(ctx, i.event(models.EventTypeMessageRead, models.EntityTypeMessage, id, nil))
			return nil
		})
	}
	_ = g.Wait()

	logger.Debug().Int("attempted", len(attempted)).Int("failed", len(failed)).Msg("read receipts sent")
	return attempted, failed
}
