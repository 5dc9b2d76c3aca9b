package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"registration-service/internal/gateway"
	"registration-service/internal/models"
	"registration-service/internal/redisclient"
	"registration-service/internal/service"
	"registration-service/internal/store"
	"registration-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout     *service.CheckoutService
	registration *service.RegistrationService
	tickets      *service.TicketService
	store        *store.Store
	gateway      *gateway.Client
	webhook      *WebhookHandler
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	registration *service.RegistrationService,
	tickets *service.TicketService,
	st *store.Store,
	gw *gateway.Client,
	webhook *WebhookHandler,
	redis *redisclient.Client,
) *Handler {
	return &Handler{
		checkout:     checkout,
		registration: registration,
		tickets:      tickets,
		store:        st,
		gateway:      gw,
		webhook:      webhook,
		redis:        redis,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The gateway retries aggressively; its pushes are never rate limited.
	router.POST("/api/v1/payments/webhook", h.webhook.Handle)

	general := rateLimit(h.redis, "general", 100, 15*time.Minute,
		"Too many requests from this IP, please try again after 15 minutes")
	strict := rateLimit(h.redis, "strict", 10, time.Hour,
		"Too many attempts, please try again after an hour")

	v1 := router.Group("/api/v1", general)
	{
		v1.GET("/catalog", h.listCatalog)

		v1.POST("/orders", strict, h.createOrder)
		v1.GET("/orders/:orderId/verify", h.verifyOrderByParam)
		v1.POST("/orders/verify", h.verifyOrderByBody)
		v1.GET("/orders/:orderId/status", h.orderStatus)
		v1.GET("/orders/:orderId/complete", h.completeOrder)
		v1.GET("/orders/:orderId/teams", h.orderTeams)

		v1.GET("/credentials/by-order/:orderId", h.credentialByOrder)
		v1.GET("/credentials/by-attendee/:attendeeId", h.credentialByAttendee)

		v1.POST("/tickets/otp", strict, h.requestOTP)
		v1.POST("/tickets/otp/verify", strict, h.verifyOTP)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder prices the cart, persists a pending order and opens a gateway
// session.
func (h *Handler) createOrder(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var req service.CreateOrderRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CustomerEmail == "" || len(req.Items) == 0 {
		respondError(c, http.StatusBadRequest, "Missing required fields: customer_email and items array")
		return
	}

	resp, err := h.checkout.CreateOrder(c.Request.Context(), &req, raw)
	if err != nil {
		var itemErr *models.ItemNotFoundError
		var upstreamErr *models.UpstreamError
		switch {
		case errors.Is(err, models.ErrEmptyCart):
			respondError(c, http.StatusBadRequest, "No valid items found to process")
		case errors.As(err, &itemErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Cannot verify price: unknown items in cart",
				"error":   gin.H{"unresolved_items": itemErr.Names},
			})
		case errors.As(err, &upstreamErr):
			respondError(c, http.StatusBadGateway, upstreamErr.Error())
		default:
			h.logger.Error("Order creation failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "Could not save order. Please try again.")
		}
		return
	}

	respondOK(c, resp)
}

// verifyOrderByParam proxies the gateway's payment list for an order
func (h *Handler) verifyOrderByParam(c *gin.Context) {
	h.verifyOrder(c, c.Param("orderId"))
}

func (h *Handler) verifyOrderByBody(c *gin.Context) {
	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "order_id is required")
		return
	}
	h.verifyOrder(c, req.OrderID)
}

func (h *Handler) verifyOrder(c *gin.Context, orderID string) {
	payments, err := h.gateway.FetchPayments(c.Request.Context(), orderID)
	if err != nil {
		h.respondGatewayError(c, orderID, err)
		return
	}

	respondOK(c, payments)
}

// orderStatus summarizes the gateway's view of an order
func (h *Handler) orderStatus(c *gin.Context) {
	orderID := c.Param("orderId")

	status, err := h.gateway.FetchOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondGatewayError(c, orderID, err)
		return
	}

	paymentStatus := models.OrderStatusPending
	if status.Status == "PAID" {
		paymentStatus = models.OrderStatusCompleted
	}

	respondOK(c, gin.H{
		"order_id":       orderID,
		"payment_status": paymentStatus,
		"total_amount":   status.Amount,
	})
}

// completeOrder is the redirect-poll trigger: the buyer landed back on the
// success page, so ask the gateway whether the order is actually paid and
// materialize the registration if it is. Nothing is mutated on a pending
// answer.
func (h *Handler) completeOrder(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("orderId")

	paymentStatus := gateway.PaymentStatusPending
	payments, err := h.gateway.FetchPayments(ctx, orderID)
	switch {
	case err != nil:
		// The ledger is still authoritative: a gateway hiccup must not hide
		// an order the webhook already completed.
		h.logger.Warn("Payment verification failed, falling back to ledger",
			zap.String("order_id", orderID),
			zap.Error(err))
		if order, derr := h.store.GetOrderByOrderID(ctx, orderID); derr == nil && order.Status == models.OrderStatusCompleted {
			paymentStatus = gateway.PaymentStatusSuccess
		}
	case len(payments) > 0:
		paymentStatus = payments[len(payments)-1].Status
	}

	if paymentStatus != gateway.PaymentStatusSuccess {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Payment is still pending",
			"data":    gin.H{"order_id": orderID, "status": models.OrderStatusPending},
		})
		return
	}

	result, err := h.registration.Complete(ctx, orderID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			respondError(c, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("Completion failed", zap.String("order_id", orderID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Payment processing failed")
		return
	}

	message := "Payment processed successfully"
	if result.AlreadyProcessed {
		message = "Payment already processed"
	}

	data := gin.H{
		"order_id": result.Order.OrderID,
		"status":   result.Order.Status,
	}
	if result.Attendee != nil {
		data["attendee"] = gin.H{
			"id":    result.Attendee.ID,
			"name":  result.Attendee.Name,
			"email": result.Attendee.Email,
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "data": data})
}

// listCatalog returns the priced event catalog
func (h *Handler) listCatalog(c *gin.Context) {
	items, err := h.store.ListCatalogItems(c.Request.Context())
	if err != nil {
		h.logger.Error("Catalog listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to load catalog")
		return
	}
	respondOK(c, items)
}

// orderTeams returns the team compositions materialized for a completed order
func (h *Handler) orderTeams(c *gin.Context) {
	order, err := h.store.GetOrderByOrderID(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			respondError(c, http.StatusNotFound, "Order not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to fetch teams")
		return
	}
	if order.Status != models.OrderStatusCompleted {
		respondError(c, http.StatusForbidden, "Access denied: payment not completed")
		return
	}

	teams, err := h.store.ListTeamCompositionsByOrder(c.Request.Context(), order.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to fetch teams")
		return
	}
	respondOK(c, gin.H{"order_id": order.OrderID, "teams": teams})
}

// credentialByOrder serves the credential for a completed order
func (h *Handler) credentialByOrder(c *gin.Context) {
	order, err := h.store.GetOrderByOrderID(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			respondError(c, http.StatusNotFound, "Order not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to fetch credential")
		return
	}

	if order.Status != models.OrderStatusCompleted {
		respondError(c, http.StatusForbidden, "Access denied: payment not completed")
		return
	}

	if !order.AttendeeID.Valid {
		respondError(c, http.StatusNotFound, "Credential not found for this order")
		return
	}

	attendee, err := h.store.GetAttendeeByID(c.Request.Context(), order.AttendeeID.Int64)
	if err != nil || !attendee.HasCredential() {
		respondError(c, http.StatusNotFound, "Credential not found for this order")
		return
	}

	h.serveCredential(c, order, attendee)
}

// credentialByAttendee serves an attendee's credential directly. Only
// validated attendees (completed payments) may be served.
func (h *Handler) credentialByAttendee(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("attendeeId"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid attendee ID")
		return
	}

	attendee, err := h.store.GetAttendeeByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, "Attendee not found")
		return
	}

	if !attendee.Validated {
		respondError(c, http.StatusForbidden, "Access denied: payment not completed")
		return
	}

	if !attendee.HasCredential() {
		respondError(c, http.StatusNotFound, "Credential not found for this attendee")
		return
	}

	h.serveCredential(c, nil, attendee)
}

func (h *Handler) serveCredential(c *gin.Context, order *models.Order, attendee *models.Attendee) {
	if c.DefaultQuery("format", "json") == "image" {
		c.Data(http.StatusOK, "image/png", attendee.CredentialImage)
		return
	}

	data := gin.H{
		"attendee": gin.H{
			"id":    attendee.ID,
			"name":  attendee.Name,
			"email": attendee.Email,
		},
		"credential_base64": base64.StdEncoding.EncodeToString(attendee.CredentialImage),
	}
	if order != nil {
		data["order_id"] = order.OrderID
		data["payment_status"] = order.Status
	}
	respondOK(c, data)
}

// requestOTP mails a ticket-access code to a registered address
func (h *Handler) requestOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "A valid email is required")
		return
	}

	if err := h.tickets.RequestOTP(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, models.ErrAttendeeNotFound) {
			respondError(c, http.StatusNotFound, "No registration found for this email")
			return
		}
		h.logger.Error("OTP request failed", zap.String("email", req.Email), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Could not send access code")
		return
	}

	respondOK(c, gin.H{"message": "Access code sent"})
}

// verifyOTP exchanges a valid code for the attendee's credential
func (h *Handler) verifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Email and code are required")
		return
	}

	attendee, ok, err := h.tickets.VerifyOTP(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.logger.Error("OTP verification failed", zap.String("email", req.Email), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Could not verify access code")
		return
	}
	if !ok {
		respondError(c, http.StatusUnauthorized, "Invalid or expired access code")
		return
	}

	h.serveCredential(c, nil, attendee)
}

func (h *Handler) respondGatewayError(c *gin.Context, orderID string, err error) {
	h.logger.Error("Gateway call failed",
		zap.String("order_id", orderID),
		zap.Error(err))
	respondError(c, http.StatusBadGateway, "Payment gateway error")
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
