package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"registration-service/internal/gateway"
	"registration-service/internal/models"
	"registration-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutStore is the slice of the ledger the checkout flow writes.
type CheckoutStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	AttachGatewaySession(ctx context.Context, orderID, sessionID string) error
	MarkOrderFailed(ctx context.Context, orderID, reason string) (bool, error)
}

// GatewaySessions opens payment sessions against the gateway.
type GatewaySessions interface {
	CreateOrder(ctx context.Context, req *gateway.CreateOrderRequest) (*gateway.Session, error)
}

// OrderEventPublisher publishes the OrderCreated integration event.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// CheckoutService turns a cart into a pending order plus a gateway session.
type CheckoutService struct {
	store       CheckoutStore
	resolver    *PricingResolver
	gateway     GatewaySessions
	events      OrderEventPublisher
	environment string
	baseURL     string
	logger      *zap.Logger
}

func NewCheckoutService(
	store CheckoutStore,
	resolver *PricingResolver,
	gw GatewaySessions,
	events OrderEventPublisher,
	environment string,
	ticketBaseURL string,
) *CheckoutService {
	return &CheckoutService{
		store:       store,
		resolver:    resolver,
		gateway:     gw,
		events:      events,
		environment: environment,
		baseURL:     ticketBaseURL,
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest is the checkout payload. All demographic fields are
// optional; the cart and buyer email are not.
type CreateOrderRequest struct {
	CustomerName     string            `json:"customer_name"`
	CustomerEmail    string            `json:"customer_email" binding:"required,email"`
	CustomerPhone    string            `json:"customer_phone,omitempty"`
	CustomerGender   string            `json:"customer_gender,omitempty"`
	CustomerAge      int               `json:"customer_age,omitempty"`
	UniversityName   string            `json:"university_name,omitempty"`
	Address          string            `json:"address,omitempty"`
	UniversityIDCard string            `json:"university_id_card,omitempty"`
	Items            []CartItem        `json:"items" binding:"required,min=1"`
	TeamMembers      models.TeamRoster `json:"team_members,omitempty"`
}

// CreateOrderResponse mirrors what the checkout front end needs to open the
// gateway's payment page.
type CreateOrderResponse struct {
	OrderID          string `json:"order_id"`
	PaymentSessionID string `json:"payment_session_id"`
	OrderStatus      string `json:"order_status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Environment      string `json:"environment"`
}

// CreateOrder prices the cart server-side, persists the pending order before
// any gateway call, then opens the payment session. A gateway failure flips
// the order to failed so nothing is left pending indefinitely; a persistence
// failure aborts before the gateway sees the order at all.
func (s *CheckoutService) CreateOrder(ctx context.Context, req *CreateOrderRequest, rawForm json.RawMessage) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateOrder")
	defer span.End()

	items, total, err := s.resolver.ResolveCart(ctx, req.Items)
	if err != nil {
		util.CartRejectionsTotal.Inc()
		return nil, err
	}
	if len(items) == 0 {
		return nil, models.ErrEmptyCart
	}

	orderID := newOrderID()
	order := &models.Order{
		OrderID:          orderID,
		Status:           models.OrderStatusPending,
		TotalAmount:      total,
		Currency:         "INR",
		BuyerName:        req.CustomerName,
		BuyerEmail:       req.CustomerEmail,
		BuyerPhone:       req.CustomerPhone,
		BuyerGender:      req.CustomerGender,
		BuyerAge:         req.CustomerAge,
		UniversityName:   req.UniversityName,
		Address:          req.Address,
		UniversityIDCard: req.UniversityIDCard,
		TeamRoster:       req.TeamMembers,
		FormData:         rawForm,
		Environment:      s.environment,
		Items:            items,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", orderID),
		zap.Int64("total_amount", total))

	start := time.Now()
	session, err := s.gateway.CreateOrder(ctx, &gateway.CreateOrderRequest{
		OrderID:       orderID,
		Amount:        total,
		Currency:      order.Currency,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: sanitizePhone(req.CustomerPhone),
		ReturnURL:     fmt.Sprintf("%s/payment/success?order_id=%s", s.baseURL, orderID),
	})
	util.GatewayCallLatency.WithLabelValues("create_order").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("Gateway session creation failed",
			zap.String("order_id", orderID),
			zap.Error(err))

		if _, failErr := s.store.MarkOrderFailed(ctx, orderID, err.Error()); failErr != nil {
			s.logger.Error("Failed to mark order failed after gateway error",
				zap.String("order_id", orderID),
				zap.Error(failErr))
		}
		util.OrdersFailedTotal.WithLabelValues("gateway_error").Inc()
		return nil, &models.UpstreamError{Err: err}
	}

	if err := s.store.AttachGatewaySession(ctx, orderID, session.PaymentSessionID); err != nil {
		return nil, fmt.Errorf("failed to attach gateway session: %w", err)
	}

	if s.events != nil {
		eventItems := make([]models.OrderItemData, 0, len(items))
		for _, it := range items {
			eventItems = append(eventItems, models.OrderItemData{
				CatalogID: it.CatalogID,
				Name:      it.Name,
				UnitPrice: it.UnitPrice,
				Quantity:  it.Quantity,
			})
		}
		event := &models.OrderCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCreated,
				Timestamp: time.Now(),
			},
			OrderID:     orderID,
			BuyerEmail:  req.CustomerEmail,
			TotalAmount: total,
			Items:       eventItems,
		}
		if err := s.events.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return &CreateOrderResponse{
		OrderID:          orderID,
		PaymentSessionID: session.PaymentSessionID,
		OrderStatus:      session.OrderStatus,
		Amount:           total,
		Currency:         order.Currency,
		Environment:      s.environment,
	}, nil
}

// newOrderID builds a short, human-meaningless order id.
func newOrderID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken
		return "order_" + uuid.New().String()[:12]
	}
	sum := sha256.Sum256(buf)
	return "order_" + hex.EncodeToString(sum[:])[:12]
}

var nonDigits = regexp.MustCompile(`\D`)

// sanitizePhone keeps the last ten digits the way the gateway expects.
func sanitizePhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return "9999999999"
	}
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}
