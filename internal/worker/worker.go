package worker

import (
	"context"

	"registration-service/internal/broker"
	"registration-service/internal/models"
	"registration-service/internal/service"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

// FailureLedger marks orders failed in response to gateway failure events.
type FailureLedger interface {
	MarkOrderFailed(ctx context.Context, orderID, reason string) (bool, error)
}

// ReconcileWorker consumes payment outcome events and drives registration
// completion. It is the asynchronous half of the completion pipeline; the
// redirect poll in the API is the synchronous one. Both funnel into the same
// guarded transition, so replays and races collapse to a single completion.
type ReconcileWorker struct {
	consumer     *broker.Consumer
	registration *service.RegistrationService
	ledger       FailureLedger
	logger       *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(consumer *broker.Consumer, registration *service.RegistrationService, ledger FailureLedger) *ReconcileWorker {
	return &ReconcileWorker{
		consumer:     consumer,
		registration: registration,
		ledger:       ledger,
		logger:       util.GetLogger(),
	}
}

// Stop closes the underlying consumer.
func (w *ReconcileWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		w.logger.Error("Error closing consumer", zap.Error(err))
	}
}

// Start begins consuming payment events until the context is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()
	handler.OnPaymentSuccess(w.handlePaymentSuccess)
	handler.OnPaymentFailed(w.handlePaymentFailed)

	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

func (w *ReconcileWorker) handlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	result, err := w.registration.Complete(ctx, event.OrderID)
	if err != nil {
		w.logger.Error("Failed to complete order from payment event",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return err
	}

	if result.AlreadyProcessed {
		w.logger.Info("Payment event for already completed order",
			zap.String("order_id", event.OrderID))
		return nil
	}

	w.logger.Info("Order completed from payment event",
		zap.String("order_id", event.OrderID),
		zap.String("transaction_id", event.TransactionID))
	return nil
}

func (w *ReconcileWorker) handlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	marked, err := w.ledger.MarkOrderFailed(ctx, event.OrderID, event.Reason)
	if err != nil {
		w.logger.Error("Failed to mark order failed",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return err
	}

	if !marked {
		// Already completed or already failed; a success signal beat us or
		// the failure was delivered twice.
		w.logger.Info("Failure event did not transition order",
			zap.String("order_id", event.OrderID))
		return nil
	}

	util.OrdersFailedTotal.WithLabelValues("gateway_failure").Inc()
	w.logger.Info("Order marked failed",
		zap.String("order_id", event.OrderID),
		zap.String("reason", event.Reason))
	return nil
}
