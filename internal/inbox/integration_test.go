package inbox

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/tasker/internal/api"
	"github.com/tOgg1/tasker/internal/models"
	"github.com/tOgg1/tasker/internal/testutil"
)

func TestInboxAgainstFakeAPI(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	bob := models.User{ID: 2, Name: "Bob", Role: models.RoleTasker}
	token := fake.AddUser(me)
	fake.AddUser(bob)
	fake.SetTasks(me.ID, models.Task{ID: 9, Title: "Assemble desk", Status: "assigned"})
	fake.Seed(
		models.Message{SenderID: bob.ID, ReceiverID: me.ID, Content: "hello", CreatedAt: baseNow},
		models.Message{SenderID: bob.ID, ReceiverID: me.ID, Content: "are you there?", CreatedAt: baseNow.Add(time.Minute)},
		models.Message{SenderID: me.ID, ReceiverID: bob.ID, Content: "yes", CreatedAt: baseNow.Add(2 * time.Minute)},
		models.Message{SenderID: bob.ID, ReceiverID: me.ID, Content: "great", TaskID: models.Int64Ptr(9), CreatedAt: baseNow.Add(3 * time.Minute)},
	)
	fake.SetNow(func() time.Time { return baseNow.Add(time.Hour) })

	client, err := api.NewClient(api.Config{BaseURL: fake.URL(), Token: token, Timeout: 2 * time.Second})
	require.NoError(t, err)
	ib := newTestInbox(t, client)
	require.NoError(t, ib.Start(context.Background()))

	convs := ib.Conversations()
	require.Len(t, convs, 1)
	require.Equal(t, "Bob", convs[0].PartnerName)
	require.Equal(t, 3, convs[0].UnreadCount)
	require.Len(t, ib.Tasks(), 1)

	lists := fake.Calls(testutil.RouteListMessages)
	report, err := ib.Select(context.Background(), bob.ID)
	require.NoError(t, err)
	require.Len(t, report.Attempted, 3)
	require.Empty(t, report.Failed)
	require.ElementsMatch(t, []int64{1, 2, 4}, fake.MarkReadIDs())
	require.Equal(t, lists+1, fake.Calls(testutil.RouteListMessages))

	selected, ok := ib.Selected()
	require.True(t, ok)
	require.Equal(t, 0, selected.UnreadCount)

	created, err := ib.Send(context.Background(), "see you at 5")
	require.NoError(t, err)
	require.Equal(t, int64(9), *created.TaskID)
	require.Equal(t, created.ID, ib.LastSeenMessageID())
}

func TestInboxReadReceiptFailuresAgainstFakeAPI(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	token := fake.AddUser(me)
	fake.AddUser(models.User{ID: 2, Name: "Bob", Role: models.RoleTasker})
	fake.Seed(
		models.Message{SenderID: 2, ReceiverID: me.ID, Content: "one", CreatedAt: baseNow},
		models.Message{SenderID: 2, ReceiverID: me.ID, Content: "two", CreatedAt: baseNow.Add(time.Minute)},
		models.Message{SenderID: 2, ReceiverID: me.ID, Content: "three", CreatedAt: baseNow.Add(2 * time.Minute)},
	)
	fake.FailMarkRead(2, http.StatusInternalServerError)

	client, err := api.NewClient(api.Config{BaseURL: fake.URL(), Token: token})
	require.NoError(t, err)
	ib := newTestInbox(t, client)
	require.NoError(t, ib.Load(context.Background()))

	lists := fake.Calls(testutil.RouteListMessages)
	report, err := ib.Select(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, report.Attempted, 3)
	require.Len(t, report.Failed, 1)
	require.Equal(t, api.KindServer, api.KindOf(report.Failed[2]))
	require.Len(t, fake.MarkReadIDs(), 3)
	require.Equal(t, lists+1, fake.Calls(testutil.RouteListMessages))
	require.True(t, ib.Notice().IsZero())

	selected, _ := ib.Selected()
	require.Equal(t, 1, selected.UnreadCount)
}
