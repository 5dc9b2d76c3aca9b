package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"registration-service/config"
	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.GatewayConfig{
		AppID:          "app",
		SecretKey:      "secret",
		Environment:    "sandbox",
		RequestTimeout: timeout,
	})
	return c, srv
}

func TestCreateOrderSendsAuthHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]interface{}

	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(Session{PaymentSessionID: "sess_1", OrderStatus: "ACTIVE"})
	}, 2*time.Second)

	var session Session
	err := c.do(context.Background(), http.MethodPost, srv.URL+"/orders", map[string]interface{}{
		"order_id":     "order_x",
		"order_amount": 150.0,
	}, &session)
	require.NoError(t, err)

	assert.Equal(t, "sess_1", session.PaymentSessionID)
	assert.Equal(t, "app", gotHeaders.Get("x-client-id"))
	assert.Equal(t, "secret", gotHeaders.Get("x-client-secret"))
	assert.Equal(t, apiVersion, gotHeaders.Get("x-api-version"))
	assert.Equal(t, "order_x", gotBody["order_id"])
}

func TestDoTimesOut(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}, 50*time.Millisecond)

	err := c.do(context.Background(), http.MethodGet, srv.URL+"/orders/x", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGatewayTimeout)
}

func TestDoSurfacesGatewayErrorMessage(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "order_id already exists"})
	}, time.Second)

	err := c.do(context.Background(), http.MethodGet, srv.URL+"/orders/x", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_id already exists")
}

func TestFetchPaymentsDecodesNumericTransactionID(t *testing.T) {
	c, srv := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"payment_status":"SUCCESS","cf_payment_id":5114911130,"payment_group":"upi"}]`))
	}, time.Second)

	var payments []Payment
	err := c.do(context.Background(), http.MethodGet, srv.URL+"/orders/x/payments", nil, &payments)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, PaymentStatusSuccess, payments[0].Status)
	assert.Equal(t, "5114911130", payments[0].TransactionID.String())
	assert.Equal(t, "upi", payments[0].Method)
}
