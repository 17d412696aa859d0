package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *custodyFixture) requestNotification(t *testing.T) models.Notification {
	t.Helper()
	notifications, err := f.svc.Notifications.List(f.ctx, f.cashier.ID, true)
	require.NoError(t, err)
	for _, n := range notifications {
		if n.Type == models.NotificationCustodyRequest {
			return n
		}
	}
	t.Fatal("no custody request notification")
	return models.Notification{}
}

func TestTakeActionApprove(t *testing.T) {
	f := newCustodyFixture(t)
	c := f.give(t, "40")
	n := f.requestNotification(t)

	updated, err := f.svc.Notifications.TakeAction(f.ctx, f.cashier.ID, n.ID, models.NotificationActionRequest{Action: models.ActionApprove})
	require.NoError(t, err)
	assert.True(t, updated.ActionTaken)
	assert.True(t, updated.IsRead)

	custody, err := f.repo.GetCustody(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CustodyApproved, custody.Status)

	events := f.publisher.For(f.cashier.ID)
	last := events[len(events)-1]
	assert.Equal(t, realtime.EventNotificationUpdated, last.Event)
	assert.Equal(t, n.ID, last.ID)

	_, err = f.svc.Notifications.TakeAction(f.ctx, f.cashier.ID, n.ID, models.NotificationActionRequest{Action: models.ActionApprove})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestDirectApprovalResolvesRequestNotification(t *testing.T) {
	f := newCustodyFixture(t)
	c := f.give(t, "40")
	n := f.requestNotification(t)

	_, err := f.svc.Custody.Approve(f.ctx, f.cashier.ID, c.ID)
	require.NoError(t, err)

	resolved, err := f.repo.GetNotification(f.ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, resolved.ActionTaken)
	assert.True(t, resolved.IsRead)

	events := f.publisher.For(f.cashier.ID)
	last := events[len(events)-1]
	assert.Equal(t, realtime.EventNotificationUpdated, last.Event)
	assert.Equal(t, n.ID, last.ID)

	_, err = f.svc.Notifications.TakeAction(f.ctx, f.cashier.ID, n.ID, models.NotificationActionRequest{Action: models.ActionReject})
	assert.ErrorIs(t, err, models.ErrConflict)

	custody, err := f.repo.GetCustody(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CustodyApproved, custody.Status)
}

func TestDirectRejectionResolvesRequestNotification(t *testing.T) {
	f := newCustodyFixture(t)
	c := f.give(t, "40")
	n := f.requestNotification(t)

	_, err := f.svc.Custody.Reject(f.ctx, f.cashier.ID, c.ID, "wrong amount")
	require.NoError(t, err)

	count, err := f.svc.Notifications.UnreadCount(f.ctx, f.cashier.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	resolved, err := f.repo.GetNotification(f.ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, resolved.ActionTaken)
}

func TestTakeActionRejectReadsReason(t *testing.T) {
	f := newCustodyFixture(t)
	c := f.give(t, "40")
	n := f.requestNotification(t)

	_, err := f.svc.Notifications.TakeAction(f.ctx, f.cashier.ID, n.ID, models.NotificationActionRequest{
		Action: models.ActionReject,
		Data:   json.RawMessage(`{"reason":"torn notes"}`),
	})
	require.NoError(t, err)

	custody, err := f.repo.GetCustody(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CustodyRejected, custody.Status)
	assert.Contains(t, custody.Notes, "Rejection: torn notes")
	assert.True(t, f.balance(t, f.wallet.ID, "USD").Equal(dec("100")))
}

func TestTakeActionUnknownAction(t *testing.T) {
	f := newCustodyFixture(t)
	f.give(t, "40")
	n := f.requestNotification(t)

	_, err := f.svc.Notifications.TakeAction(f.ctx, f.cashier.ID, n.ID, models.NotificationActionRequest{Action: "escalate"})
	assert.ErrorIs(t, err, models.ErrUnknownAction)

	still, err := f.repo.GetNotification(f.ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, still.ActionTaken)
}

func TestTakeActionOtherUsersNotification(t *testing.T) {
	f := newCustodyFixture(t)
	f.give(t, "40")
	n := f.requestNotification(t)

	_, err := f.svc.Notifications.TakeAction(f.ctx, f.treasurer.ID, n.ID, models.NotificationActionRequest{Action: models.ActionApprove})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTakeActionOnInformationalNotification(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "u", models.RoleCashier)
	n := &models.Notification{UserID: u.ID, Type: models.NotificationCustodyApproval, Title: "fyi"}
	require.NoError(t, f.svc.Notifications.Create(f.ctx, n))

	_, err := f.svc.Notifications.TakeAction(f.ctx, u.ID, n.ID, models.NotificationActionRequest{Action: models.ActionApprove})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRegisterCustomAction(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "u", models.RoleCashier)
	ref := "ref-1"
	n := &models.Notification{UserID: u.ID, Type: "debt_reminder", RequiresAction: true, ReferenceID: &ref}
	require.NoError(t, f.svc.Notifications.Create(f.ctx, n))

	var called string
	f.svc.Notifications.Register("debt_reminder", "snooze", func(ctx context.Context, n *models.Notification, data json.RawMessage) error {
		called = *n.ReferenceID
		return nil
	})

	_, err := f.svc.Notifications.TakeAction(f.ctx, u.ID, n.ID, models.NotificationActionRequest{Action: "snooze"})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", called)
}

func TestReadTracking(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "u", models.RoleCashier)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Notifications.Create(f.ctx, &models.Notification{UserID: u.ID, Type: models.NotificationCustodyReturn}))
	}

	list, err := f.svc.Notifications.List(f.ctx, u.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.NoError(t, f.svc.Notifications.MarkRead(f.ctx, u.ID, list[0].ID))
	count, err := f.svc.Notifications.UnreadCount(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.ErrorIs(t, f.svc.Notifications.MarkRead(f.ctx, "someone-else", list[1].ID), models.ErrNotFound)

	changed, err := f.svc.Notifications.MarkAllRead(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	unread, err := f.svc.Notifications.List(f.ctx, u.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
