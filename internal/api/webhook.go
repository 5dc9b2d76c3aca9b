package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	webhookTypeSuccess     = "PAYMENT_SUCCESS_WEBHOOK"
	webhookTypeFailed      = "PAYMENT_FAILED_WEBHOOK"
	webhookTypeUserDropped = "PAYMENT_USER_DROPPED_WEBHOOK"
)

// webhookPayload is the shape the gateway pushes for payment events.
type webhookPayload struct {
	Type string `json:"type"`
	Data *struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			Status        string      `json:"payment_status"`
			TransactionID json.Number `json:"cf_payment_id"`
			Method        string      `json:"payment_method"`
		} `json:"payment"`
		ErrorDetails struct {
			Description string `json:"error_description"`
		} `json:"error_details"`
	} `json:"data"`
}

// WebhookLedger records gateway payment details on the order.
type WebhookLedger interface {
	StampGatewayPayment(ctx context.Context, orderID, transactionID, method string) error
}

// WebhookPublisher hands payment outcomes to the reconcile worker.
type WebhookPublisher interface {
	PublishPaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// WebhookDeduper remembers recently seen webhook deliveries. The completion
// workflow is idempotent either way; dedup just keeps gateway retries from
// re-entering the event topic.
type WebhookDeduper interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// WebhookHandler ingests gateway payment notifications. It validates the
// payload shape, publishes the outcome for asynchronous reconciliation and
// acknowledges with 200 so the gateway stops retrying. Losing an event here
// is safe: the redirect poll covers the same ground.
type WebhookHandler struct {
	ledger    WebhookLedger
	publisher WebhookPublisher
	deduper   WebhookDeduper
	logger    *zap.Logger
}

func NewWebhookHandler(ledger WebhookLedger, publisher WebhookPublisher, deduper WebhookDeduper) *WebhookHandler {
	return &WebhookHandler{
		ledger:    ledger,
		publisher: publisher,
		deduper:   deduper,
		logger:    util.GetLogger(),
	}
}

const dedupTTL = 24 * time.Hour

// seenBefore reports whether this delivery was already accepted. Redis
// trouble fails open; a duplicate publish is harmless downstream.
func (w *WebhookHandler) seenBefore(ctx context.Context, key string) bool {
	if w.deduper == nil {
		return false
	}
	seen, err := w.deduper.CheckIdempotencyKey(ctx, key)
	if err != nil {
		w.logger.Warn("Webhook dedup check failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return seen
}

// markSeen records a delivery as handled. Only called once the event made it
// onto the topic, so a failed publish stays eligible for the gateway's retry.
func (w *WebhookHandler) markSeen(ctx context.Context, key string) {
	if w.deduper == nil {
		return
	}
	if err := w.deduper.SetIdempotencyKey(ctx, key, 1, dedupTTL); err != nil {
		w.logger.Warn("Webhook dedup store failed", zap.String("key", key), zap.Error(err))
	}
}

// Handle processes a gateway webhook push
func (w *WebhookHandler) Handle(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Data == nil {
		util.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid webhook payload"})
		return
	}

	ctx := c.Request.Context()
	orderID := payload.Data.Order.OrderID

	switch payload.Type {
	case webhookTypeSuccess:
		util.WebhookEventsTotal.WithLabelValues("success").Inc()
		if payload.Data.Payment.Status != "SUCCESS" {
			w.logger.Warn("Success webhook with non-success payment status",
				zap.String("order_id", orderID),
				zap.String("payment_status", payload.Data.Payment.Status))
			break
		}
		key := "webhook:success:" + orderID
		if w.seenBefore(ctx, key) {
			w.logger.Info("Duplicate success webhook", zap.String("order_id", orderID))
			break
		}

		txID := payload.Data.Payment.TransactionID.String()
		method := payload.Data.Payment.Method
		if err := w.ledger.StampGatewayPayment(ctx, orderID, txID, method); err != nil {
			w.logger.Error("Failed to stamp gateway payment",
				zap.String("order_id", orderID),
				zap.Error(err))
		}
		event := &models.PaymentSuccessEvent{
			BaseEvent:     newBaseEvent(models.EventTypePaymentSuccess),
			OrderID:       orderID,
			TransactionID: txID,
			PaymentMethod: method,
		}
		if err := w.publisher.PublishPaymentSuccess(ctx, event); err != nil {
			w.logger.Error("Failed to publish payment success",
				zap.String("order_id", orderID),
				zap.Error(err))
			break
		}
		w.markSeen(ctx, key)

	case webhookTypeFailed, webhookTypeUserDropped:
		util.WebhookEventsTotal.WithLabelValues("failed").Inc()
		key := "webhook:failed:" + orderID
		if w.seenBefore(ctx, key) {
			w.logger.Info("Duplicate failure webhook", zap.String("order_id", orderID))
			break
		}
		reason := payload.Data.ErrorDetails.Description
		if reason == "" {
			reason = "Payment failed"
		}
		event := &models.PaymentFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentFailed),
			OrderID:   orderID,
			Reason:    reason,
		}
		if err := w.publisher.PublishPaymentFailed(ctx, event); err != nil {
			w.logger.Error("Failed to publish payment failure",
				zap.String("order_id", orderID),
				zap.Error(err))
			break
		}
		w.markSeen(ctx, key)

	default:
		util.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		w.logger.Info("Ignoring webhook event", zap.String("type", payload.Type))
	}

	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
