package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"registration-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLedger struct {
	stamped []string
}

func (r *recordingLedger) StampGatewayPayment(_ context.Context, orderID, transactionID, method string) error {
	r.stamped = append(r.stamped, orderID+"/"+transactionID+"/"+method)
	return nil
}

type recordingPublisher struct {
	successes []*models.PaymentSuccessEvent
	failures  []*models.PaymentFailedEvent
}

func (r *recordingPublisher) PublishPaymentSuccess(_ context.Context, event *models.PaymentSuccessEvent) error {
	r.successes = append(r.successes, event)
	return nil
}

func (r *recordingPublisher) PublishPaymentFailed(_ context.Context, event *models.PaymentFailedEvent) error {
	r.failures = append(r.failures, event)
	return nil
}

func postWebhook(t *testing.T, ledger WebhookLedger, publisher WebhookPublisher, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", NewWebhookHandler(ledger, publisher, nil).Handle)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookSuccessPublishesEvent(t *testing.T) {
	ledger := &recordingLedger{}
	publisher := &recordingPublisher{}

	body := `{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {
			"order": {"order_id": "order_abc123"},
			"payment": {"payment_status": "SUCCESS", "cf_payment_id": 987654321, "payment_method": "upi"}
		}
	}`
	w := postWebhook(t, ledger, publisher, body)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, publisher.successes, 1)
	assert.Equal(t, "order_abc123", publisher.successes[0].OrderID)
	assert.Equal(t, "987654321", publisher.successes[0].TransactionID)
	assert.Equal(t, "upi", publisher.successes[0].PaymentMethod)
	require.Len(t, ledger.stamped, 1)
	assert.Equal(t, "order_abc123/987654321/upi", ledger.stamped[0])
}

func TestWebhookFailurePublishesReason(t *testing.T) {
	publisher := &recordingPublisher{}

	body := `{
		"type": "PAYMENT_FAILED_WEBHOOK",
		"data": {
			"order": {"order_id": "order_abc123"},
			"error_details": {"error_description": "insufficient funds"}
		}
	}`
	w := postWebhook(t, &recordingLedger{}, publisher, body)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, publisher.failures, 1)
	assert.Equal(t, "insufficient funds", publisher.failures[0].Reason)
	assert.Empty(t, publisher.successes)
}

func TestWebhookUnknownTypeStillAcknowledged(t *testing.T) {
	publisher := &recordingPublisher{}

	body := `{"type": "SOMETHING_ELSE", "data": {"order": {"order_id": "order_x"}}}`
	w := postWebhook(t, &recordingLedger{}, publisher, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, publisher.successes)
	assert.Empty(t, publisher.failures)
}

func TestWebhookMissingDataRejected(t *testing.T) {
	w := postWebhook(t, &recordingLedger{}, &recordingPublisher{}, `{"type": "PAYMENT_SUCCESS_WEBHOOK"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type memoryDeduper struct {
	keys map[string]bool
}

func (m *memoryDeduper) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	return m.keys[key], nil
}

func (m *memoryDeduper) SetIdempotencyKey(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	m.keys[key] = true
	return nil
}

func TestWebhookDuplicateDeliveryPublishedOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := &recordingPublisher{}
	deduper := &memoryDeduper{keys: make(map[string]bool)}

	router := gin.New()
	router.POST("/webhook", NewWebhookHandler(&recordingLedger{}, publisher, deduper).Handle)

	body := `{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {
			"order": {"order_id": "order_dup"},
			"payment": {"payment_status": "SUCCESS", "cf_payment_id": 1, "payment_method": "card"}
		}
	}`
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Len(t, publisher.successes, 1)
}

type flakyPublisher struct {
	recordingPublisher
	failFirst bool
	attempts  int
}

func (f *flakyPublisher) PublishPaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	f.attempts++
	if f.failFirst && f.attempts == 1 {
		return errors.New("broker unavailable")
	}
	return f.recordingPublisher.PublishPaymentSuccess(ctx, event)
}

func TestWebhookRedeliveryAfterPublishFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := &flakyPublisher{failFirst: true}
	deduper := &memoryDeduper{keys: make(map[string]bool)}

	router := gin.New()
	router.POST("/webhook", NewWebhookHandler(&recordingLedger{}, publisher, deduper).Handle)

	body := `{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {
			"order": {"order_id": "order_retry"},
			"payment": {"payment_status": "SUCCESS", "cf_payment_id": 7, "payment_method": "netbanking"}
		}
	}`
	deliver := func() {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// First delivery never reaches the topic; the gateway retry must not be
	// suppressed by the dedup key.
	deliver()
	assert.Empty(t, publisher.successes)
	assert.False(t, deduper.keys["webhook:success:order_retry"])

	deliver()
	require.Len(t, publisher.successes, 1)
	assert.Equal(t, "order_retry", publisher.successes[0].OrderID)

	deliver()
	assert.Len(t, publisher.successes, 1)
	assert.Equal(t, 2, publisher.attempts)
}

func TestWebhookSuccessTypeWithNonSuccessStatusNotPublished(t *testing.T) {
	publisher := &recordingPublisher{}

	body := `{
		"type": "PAYMENT_SUCCESS_WEBHOOK",
		"data": {
			"order": {"order_id": "order_abc123"},
			"payment": {"payment_status": "PENDING"}
		}
	}`
	w := postWebhook(t, &recordingLedger{}, publisher, body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, publisher.successes)
}
