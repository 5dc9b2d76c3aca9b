package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"registration-service/internal/gateway"
	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckoutStore struct {
	created    []*models.Order
	failed     map[string]string
	createErr  error
	sessionIDs map[string]string
}

func newFakeCheckoutStore() *fakeCheckoutStore {
	return &fakeCheckoutStore{
		failed:     make(map[string]string),
		sessionIDs: make(map[string]string),
	}
}

func (f *fakeCheckoutStore) CreateOrder(_ context.Context, order *models.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, order)
	return nil
}

func (f *fakeCheckoutStore) AttachGatewaySession(_ context.Context, orderID, sessionID string) error {
	f.sessionIDs[orderID] = sessionID
	return nil
}

func (f *fakeCheckoutStore) MarkOrderFailed(_ context.Context, orderID, reason string) (bool, error) {
	f.failed[orderID] = reason
	return true, nil
}

type fakeGateway struct {
	requests []*gateway.CreateOrderRequest
	err      error
}

func (f *fakeGateway) CreateOrder(_ context.Context, req *gateway.CreateOrderRequest) (*gateway.Session, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Session{
		PaymentSessionID: "session_" + req.OrderID,
		OrderStatus:      "ACTIVE",
	}, nil
}

func newCheckout(st *fakeCheckoutStore, gw *fakeGateway) *CheckoutService {
	return NewCheckoutService(st, NewPricingResolver(testCatalog()), gw, nil,
		"sandbox", "https://tickets.example.com")
}

func TestCreateOrderPricesServerSide(t *testing.T) {
	st := newFakeCheckoutStore()
	gw := &fakeGateway{}
	svc := newCheckout(st, gw)

	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Asha Rao",
		CustomerEmail: "asha@example.com",
		Items: []CartItem{
			{Name: "Chess", Category: "Boys"},
			{Name: "Kabaddi"},
		},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(150+1100), resp.Amount)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, "sandbox", resp.Environment)
	assert.NotEmpty(t, resp.PaymentSessionID)

	require.Len(t, st.created, 1)
	order := st.created[0]
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, resp.Amount, order.TotalAmount)
	assert.Equal(t, "Chess (Boys)", order.Items[0].Name)

	require.Len(t, gw.requests, 1)
	assert.Equal(t, order.OrderID, gw.requests[0].OrderID)
	assert.Contains(t, gw.requests[0].ReturnURL, "order_id="+order.OrderID)
	assert.Equal(t, resp.PaymentSessionID, st.sessionIDs[order.OrderID])
}

func TestCreateOrderRejectsUnknownItems(t *testing.T) {
	st := newFakeCheckoutStore()
	gw := &fakeGateway{}
	svc := newCheckout(st, gw)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerEmail: "asha@example.com",
		Items:         []CartItem{{Name: "Quidditch"}},
	}, nil)

	var itemErr *models.ItemNotFoundError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, []string{"Quidditch"}, itemErr.Names)

	// Nothing persisted, nothing sent to the gateway.
	assert.Empty(t, st.created)
	assert.Empty(t, gw.requests)
}

func TestCreateOrderRejectsBlankCart(t *testing.T) {
	st := newFakeCheckoutStore()
	gw := &fakeGateway{}
	svc := newCheckout(st, gw)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerEmail: "asha@example.com",
		Items:         []CartItem{{Name: ""}, {Name: "   "}},
	}, nil)

	require.ErrorIs(t, err, models.ErrEmptyCart)
	var itemErr *models.ItemNotFoundError
	assert.False(t, errors.As(err, &itemErr))

	assert.Empty(t, st.created)
	assert.Empty(t, gw.requests)
}

func TestCreateOrderGatewayFailureMarksOrderFailed(t *testing.T) {
	st := newFakeCheckoutStore()
	gw := &fakeGateway{err: fmt.Errorf("gateway unavailable")}
	svc := newCheckout(st, gw)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerEmail: "asha@example.com",
		Items:         []CartItem{{Name: "Kabaddi"}},
	}, nil)

	var upstream *models.UpstreamError
	require.ErrorAs(t, err, &upstream)

	require.Len(t, st.created, 1)
	assert.Equal(t, "gateway unavailable", st.failed[st.created[0].OrderID])
}

func TestCreateOrderPersistenceFailureSkipsGateway(t *testing.T) {
	st := newFakeCheckoutStore()
	st.createErr = fmt.Errorf("connection refused")
	gw := &fakeGateway{}
	svc := newCheckout(st, gw)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerEmail: "asha@example.com",
		Items:         []CartItem{{Name: "Kabaddi"}},
	}, nil)

	require.Error(t, err)
	assert.Empty(t, gw.requests)
}

func TestSanitizePhone(t *testing.T) {
	assert.Equal(t, "9876543210", sanitizePhone("+91 98765-43210"))
	assert.Equal(t, "9876543210", sanitizePhone("9876543210"))
	assert.Equal(t, "9999999999", sanitizePhone(""))
	assert.Equal(t, "9999999999", sanitizePhone("abc"))
}
