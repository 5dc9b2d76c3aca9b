package models

import "time"

// Event types
const (
	EventTypeOrderCreated          = "ORDER_CREATED"
	EventTypePaymentSuccess        = "PAYMENT_SUCCESS"
	EventTypePaymentFailed         = "PAYMENT_FAILED"
	EventTypeRegistrationCompleted = "REGISTRATION_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a pending order is persisted and a
// gateway session opened.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	BuyerEmail  string          `json:"buyer_email"`
	TotalAmount int64           `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// PaymentSuccessEvent published by the webhook handler once a success
// payload passes structural validation. Consumed by the reconcile worker.
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	PaymentMethod string `json:"payment_method"`
}

// PaymentFailedEvent published by the webhook handler for failure payloads.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// RegistrationCompletedEvent published after a paid order has been
// materialized into attendee, entitlements and credential.
type RegistrationCompletedEvent struct {
	BaseEvent
	OrderID          string   `json:"order_id"`
	AttendeeID       int64    `json:"attendee_id"`
	Email            string   `json:"email"`
	Entitlements     []string `json:"entitlements"`
	NotificationSent bool     `json:"notification_sent"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	CatalogID int64  `json:"catalog_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}
