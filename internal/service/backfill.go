package service

import (
	"context"
	"fmt"

	"registration-service/internal/mailer"
	"registration-service/internal/models"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

// BackfillStore is what the operator notification backfill reads and writes.
type BackfillStore interface {
	ListUnnotifiedCompleted(ctx context.Context, limit int) ([]models.Order, error)
	GetAttendeeByID(ctx context.Context, id int64) (*models.Attendee, error)
	GetAttendeeByEmail(ctx context.Context, email string) (*models.Attendee, error)
	GetEntitlements(ctx context.Context, attendeeID int64) ([]string, error)
	ReplaceAttendeeCredential(ctx context.Context, attendeeID int64, image []byte) error
	MarkOrderNotified(ctx context.Context, orderID string) error
	MarkAttendeeNotified(ctx context.Context, attendeeID int64) error
}

// NotificationBackfill re-runs only the credential+notify tail for completed
// orders whose confirmation never went out. It never touches order status or
// entitlements; an order that cannot be matched to an attendee is skipped
// for operator follow-up.
type NotificationBackfill struct {
	store    BackfillStore
	issuer   CredentialIssuer
	notifier Notifier
	logger   *zap.Logger
}

func NewNotificationBackfill(store BackfillStore, issuer CredentialIssuer, notifier Notifier) *NotificationBackfill {
	return &NotificationBackfill{
		store:    store,
		issuer:   issuer,
		notifier: notifier,
		logger:   util.GetLogger(),
	}
}

// Run processes up to limit orders and returns how many notifications were
// delivered. Per-order failures are logged and skipped; the batch continues.
func (b *NotificationBackfill) Run(ctx context.Context, limit int) (int, error) {
	orders, err := b.store.ListUnnotifiedCompleted(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unnotified orders: %w", err)
	}

	b.logger.Info("Backfill scan", zap.Int("orders", len(orders)))

	sent := 0
	for i := range orders {
		order := &orders[i]
		if b.processOrder(ctx, order) {
			sent++
		}
	}
	return sent, nil
}

func (b *NotificationBackfill) processOrder(ctx context.Context, order *models.Order) bool {
	attendee := b.resolveAttendee(ctx, order)
	if attendee == nil {
		b.logger.Warn("No attendee found for order, skipping",
			zap.String("order_id", order.OrderID))
		return false
	}

	if ents, err := b.store.GetEntitlements(ctx, attendee.ID); err == nil {
		attendee.Entitlements = ents
	}

	// Regenerate so the encoded order reference matches this order even if
	// the stored image predates it.
	img, err := b.issuer.Issue(attendee.Email, order.OrderID)
	if err != nil {
		b.logger.Error("Credential regeneration failed",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
		return false
	}
	if err := b.store.ReplaceAttendeeCredential(ctx, attendee.ID, img); err != nil {
		b.logger.Error("Failed to store regenerated credential",
			zap.Int64("attendee_id", attendee.ID),
			zap.Error(err))
		return false
	}

	res := b.notifier.SendRegistrationConfirmation(attendee.Email, mailer.ConfirmationData{
		Name:         attendee.Name,
		OrderID:      order.OrderID,
		Entitlements: attendee.Entitlements,
		Credential:   img,
		TicketURL:    b.issuer.VerificationURL(order.OrderID),
	})
	if !res.OK {
		util.NotificationsFailedTotal.Inc()
		b.logger.Error("Backfill dispatch failed",
			zap.String("order_id", order.OrderID),
			zap.Error(res.Err))
		return false
	}

	util.NotificationsSentTotal.Inc()
	if err := b.store.MarkOrderNotified(ctx, order.OrderID); err != nil {
		b.logger.Error("Failed to stamp order notification", zap.Error(err))
	}
	if err := b.store.MarkAttendeeNotified(ctx, attendee.ID); err != nil {
		b.logger.Error("Failed to stamp attendee notification", zap.Error(err))
	}

	b.logger.Info("Backfill notification sent",
		zap.String("order_id", order.OrderID),
		zap.String("email", attendee.Email))
	return true
}

// resolveAttendee looks up by durable reference first, then by buyer email.
func (b *NotificationBackfill) resolveAttendee(ctx context.Context, order *models.Order) *models.Attendee {
	if order.AttendeeID.Valid {
		if attendee, err := b.store.GetAttendeeByID(ctx, order.AttendeeID.Int64); err == nil {
			return attendee
		}
	}
	if order.BuyerEmail != "" {
		if attendee, err := b.store.GetAttendeeByEmail(ctx, order.BuyerEmail); err == nil && attendee != nil {
			return attendee
		}
	}
	return nil
}
