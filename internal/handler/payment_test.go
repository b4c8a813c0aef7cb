package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/model"
	"github.com/crafttrace/settlement/internal/service"
)

// stubOrderService overrides only the callback path; other methods are
// never reached by these tests.
type stubOrderService struct {
	service.OrderService
	ack       bool
	gotMethod model.PaymentMethod
	gotParams map[string]string
}

func (s *stubOrderService) HandlePaymentCallback(_ context.Context, method model.PaymentMethod, params map[string]string) bool {
	s.gotMethod = method
	s.gotParams = params
	return s.ack
}

func newNotifyRouter(stub *stubOrderService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewPaymentHandler(stub, zap.NewNop())
	r := gin.New()
	r.POST("/notify/alipay", h.AlipayNotify)
	r.POST("/notify/wechat", h.WechatNotify)
	r.POST("/notify/stripe", h.StripeNotify)
	return r
}

func TestAlipayNotifyAck(t *testing.T) {
	stub := &stubOrderService{ack: true}
	r := newNotifyRouter(stub)

	form := "out_trade_no=MH20240101120000000042&trade_status=TRADE_SUCCESS&sign=abc"
	req := httptest.NewRequest(http.MethodPost, "/notify/alipay", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
	assert.Equal(t, model.PaymentMethodAlipay, stub.gotMethod)
	assert.Equal(t, "MH20240101120000000042", stub.gotParams["out_trade_no"])
}

func TestAlipayNotifyNack(t *testing.T) {
	stub := &stubOrderService{ack: false}
	r := newNotifyRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/notify/alipay", strings.NewReader("sign=bad"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fail", w.Body.String())
}

func TestWechatNotifyAck(t *testing.T) {
	stub := &stubOrderService{ack: true}
	r := newNotifyRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/notify/wechat", strings.NewReader(`{"resource":{}}`))
	req.Header.Set("Wechatpay-Timestamp", "1700000000")
	req.Header.Set("Wechatpay-Nonce", "nonce1")
	req.Header.Set("Wechatpay-Signature", "sig1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"SUCCESS"`)
	assert.Equal(t, model.PaymentMethodWechatPay, stub.gotMethod)
	assert.Equal(t, "1700000000", stub.gotParams["timestamp"])
	assert.Equal(t, "sig1", stub.gotParams["signature"])
	assert.Equal(t, `{"resource":{}}`, stub.gotParams["body"])
}

func TestWechatNotifyNack(t *testing.T) {
	stub := &stubOrderService{ack: false}
	r := newNotifyRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/notify/wechat", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"FAIL"`)
}

func TestStripeNotifyAck(t *testing.T) {
	stub := &stubOrderService{ack: true}
	r := newNotifyRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/notify/stripe", strings.NewReader(`{"type":"payment_intent.succeeded"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.PaymentMethodCreditCard, stub.gotMethod)
	assert.Equal(t, "t=1,v1=abc", stub.gotParams["signature"])
}

func TestStripeNotifyNack(t *testing.T) {
	stub := &stubOrderService{ack: false}
	r := newNotifyRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/notify/stripe", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
