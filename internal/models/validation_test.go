package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidationErrorsIs(t *testing.T) {
	validation := &ValidationErrors{}
	validation.Add("content", ErrEmptyContent)

	err := validation.Err()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrEmptyContent))
}

func TestValidationErrorsNestedFields(t *testing.T) {
	nested := &ValidationErrors{}
	nested.AddMessage("content", "message text is required")

	validation := &ValidationErrors{}
	validation.Add("payload", nested)

	var list *ValidationErrors
	require.ErrorAs(t, validation.Err(), &list)
	require.Len(t, list.Errors, 1)
	require.Equal(t, "payload.content", list.Errors[0].Field)
}

func TestValidateSend(t *testing.T) {
	sender := User{ID: 1, Role: RoleCustomer}

	tests := []struct {
		name    string
		req     SendRequest
		wantErr error
	}{
		{name: "ok", req: SendRequest{ReceiverID: 2, Content: "hello"}},
		{name: "ok with task", req: SendRequest{ReceiverID: 2, Content: "hello", TaskID: Int64Ptr(7)}},
		{name: "missing receiver", req: SendRequest{Content: "hello"}, wantErr: ErrInvalidReceiver},
		{name: "self", req: SendRequest{ReceiverID: 1, Content: "hello"}, wantErr: ErrSelfMessage},
		{name: "blank content", req: SendRequest{ReceiverID: 2, Content: "   "}, wantErr: ErrEmptyContent},
		{name: "too long", req: SendRequest{ReceiverID: 2, Content: strings.Repeat("x", MaxContentLength+1)}, wantErr: ErrContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSend(sender, tt.req)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserValidate(t *testing.T) {
	require.NoError(t, User{ID: 3, Role: RoleTasker}.Validate())
	require.NoError(t, User{ID: 3}.Validate())
	require.ErrorIs(t, User{ID: 0, Role: RoleTasker}.Validate(), ErrInvalidUserID)
	require.ErrorIs(t, User{ID: 3, Role: "admin"}.Validate(), ErrInvalidRole)
}

func TestRoleCounterpart(t *testing.T) {
	require.Equal(t, RoleTasker, RoleCustomer.Counterpart())
	require.Equal(t, RoleCustomer, RoleTasker.Counterpart())
	require.Equal(t, Role(""), Role("").Counterpart())
}

func TestMessagePartnerHelpers(t *testing.T) {
	msg := Message{
		ID:           1,
		SenderID:     10,
		ReceiverID:   20,
		SenderName:   "Ana",
		ReceiverName: "Bo",
		SenderRole:   RoleCustomer,
		ReceiverRole: RoleTasker,
	}

	require.Equal(t, int64(20), msg.PartnerID(10))
	require.Equal(t, "Bo", msg.PartnerName(10))
	require.Equal(t, RoleTasker, msg.PartnerRole(10))
	require.Equal(t, int64(10), msg.PartnerID(20))
	require.Equal(t, "Ana", msg.PartnerName(20))
	require.True(t, msg.IsUnreadFor(20))
	require.False(t, msg.IsUnreadFor(10))
}

func TestConversationCloneIsDeep(t *testing.T) {
	msg := Message{ID: 1, TaskID: Int64Ptr(5)}
	conv := Conversation{PartnerID: 2, Messages: []Message{msg}, LastMessage: &msg}

	clone := conv.Clone()
	*clone.Messages[0].TaskID = 9
	clone.LastMessage.Content = "changed"

	require.Equal(t, int64(5), *conv.Messages[0].TaskID)
	require.Empty(t, conv.LastMessage.Content)
	require.True(t, conv.HasTask(5))
	require.Equal(t, int64(5), *conv.LastTaskID())
}
