package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/middleware"
	"github.com/crafttrace/settlement/internal/model"
	"github.com/crafttrace/settlement/internal/service"
)

// PaymentHandler exposes payment creation and the provider callback
// endpoints. Callback routes are unauthenticated: the gateway signature
// is the authentication.
type PaymentHandler struct {
	orderService service.OrderService
	log          *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(orderService service.OrderService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{orderService: orderService, log: log.Named("payment-handler")}
}

// CreatePayment builds the provider payment request for an order
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
		return
	}
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	payment, err := h.orderService.CreatePayment(c.Request.Context(), claims.UserID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// Status polls the provider and settles the order when it reports paid
func (h *PaymentHandler) Status(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
		return
	}
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	order, err := h.orderService.SyncPaymentStatus(c.Request.Context(), claims.UserID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id": order.ID,
		"status":   order.Status,
		"paid":     order.Status != model.StatusCreated && order.Status != model.StatusCancelled,
	})
}

// Refund requests a refund for a settled order
func (h *PaymentHandler) Refund(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found in context"})
		return
	}
	orderID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}
	var req model.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orderService.RequestRefund(c.Request.Context(), claims.UserID, orderID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewOrderResponse(order))
}

// AlipayNotify receives the Alipay asynchronous callback. The provider
// expects a plain "success" or "fail" body and retries on "fail".
func (h *PaymentHandler) AlipayNotify(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusOK, "fail")
		return
	}
	params := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	if h.orderService.HandlePaymentCallback(c.Request.Context(), model.PaymentMethodAlipay, params) {
		c.String(http.StatusOK, "success")
		return
	}
	c.String(http.StatusOK, "fail")
}

// WechatNotify receives the WeChat Pay v3 callback. The acknowledgement
// is a JSON envelope with code SUCCESS or FAIL.
func (h *PaymentHandler) WechatNotify(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "FAIL", "message": "unreadable body"})
		return
	}
	params := map[string]string{
		"body":      string(body),
		"timestamp": c.GetHeader("Wechatpay-Timestamp"),
		"nonce":     c.GetHeader("Wechatpay-Nonce"),
		"signature": c.GetHeader("Wechatpay-Signature"),
	}

	if h.orderService.HandlePaymentCallback(c.Request.Context(), model.PaymentMethodWechatPay, params) {
		c.JSON(http.StatusOK, gin.H{"code": "SUCCESS", "message": "OK"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": "FAIL", "message": "processing failed"})
}

// StripeNotify receives the Stripe webhook
func (h *PaymentHandler) StripeNotify(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	params := map[string]string{
		"body":      string(body),
		"signature": c.GetHeader("Stripe-Signature"),
	}

	if h.orderService.HandlePaymentCallback(c.Request.Context(), model.PaymentMethodCreditCard, params) {
		c.Status(http.StatusOK)
		return
	}
	c.Status(http.StatusBadRequest)
}

// Return is the browser redirect target after provider-hosted payment.
// Settlement happens through the asynchronous callback, so this only
// points the buyer back at their order.
func (h *PaymentHandler) Return(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Payment submitted, order status will update shortly"})
}
