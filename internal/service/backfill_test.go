package service

import (
	"context"
	"database/sql"
	"testing"

	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fakeLedger) ListUnnotifiedCompleted(_ context.Context, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.Status == models.OrderStatusCompleted && !o.NotificationSent {
			out = append(out, *o)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLedger) ReplaceAttendeeCredential(_ context.Context, attendeeID int64, image []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attendees {
		if a.ID == attendeeID {
			a.CredentialImage = image
			return nil
		}
	}
	return models.ErrAttendeeNotFound
}

func TestBackfillSendsMissedNotifications(t *testing.T) {
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	backfill := NewNotificationBackfill(ledger, &fakeIssuer{}, notifier)

	attendee := &models.Attendee{Email: "asha@example.com", Name: "Asha Rao", Validated: true}
	require.NoError(t, ledger.UpsertAttendee(context.Background(), attendee))

	missed := pendingOrder(ledger, "order_missed")
	missed.Status = models.OrderStatusCompleted
	missed.AttendeeID = sql.NullInt64{Int64: attendee.ID, Valid: true}

	done := pendingOrder(ledger, "order_done")
	done.Status = models.OrderStatusCompleted
	done.NotificationSent = true

	stillPending := pendingOrder(ledger, "order_pending")
	_ = stillPending

	sent, err := backfill.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "order_missed", notifier.sent[0].OrderID)
	assert.NotEmpty(t, notifier.sent[0].Credential)

	reloaded, err := ledger.GetOrderByOrderID(context.Background(), "order_missed")
	require.NoError(t, err)
	assert.True(t, reloaded.NotificationSent)

	// A second run finds nothing left to send.
	sent, err = backfill.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestBackfillSkipsUnresolvableOrders(t *testing.T) {
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	backfill := NewNotificationBackfill(ledger, &fakeIssuer{}, notifier)

	orphan := pendingOrder(ledger, "order_orphan")
	orphan.Status = models.OrderStatusCompleted
	orphan.BuyerEmail = "ghost@example.com"

	sent, err := backfill.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, notifier.sent)
}

func TestBackfillResolvesByEmailFallback(t *testing.T) {
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	backfill := NewNotificationBackfill(ledger, &fakeIssuer{}, notifier)

	attendee := &models.Attendee{Email: "asha@example.com", Name: "Asha Rao"}
	require.NoError(t, ledger.UpsertAttendee(context.Background(), attendee))

	// Completed but never linked to the attendee row.
	o := pendingOrder(ledger, "order_unlinked")
	o.Status = models.OrderStatusCompleted

	sent, err := backfill.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}
