package service

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/crafttrace/settlement/internal/model"
)

// CallbackResult is the payment attempt a gateway extracted from a
// verified provider callback. Succeeded is only meaningful when the
// signature check passed; an unverifiable callback yields an error
// instead.
type CallbackResult struct {
	MerchantOrderNo string
	ProviderTxID    string
	Succeeded       bool
}

// RefundResult reports a refund attempt. A provider-side rejection is
// reported through Success/ErrorMsg, not as an error.
type RefundResult struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refund_id,omitempty"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// Gateway is the capability set every payment provider adapter
// implements.
type Gateway interface {
	Method() model.PaymentMethod
	// CreatePayment builds the provider-specific payment request
	// (redirect form, QR payload or hosted URL) for an order whose
	// MerchantOrderNo is already assigned.
	CreatePayment(ctx context.Context, order *model.Order) (map[string]string, error)
	// QueryPaymentStatus is the synchronous poll fallback used when no
	// callback has arrived.
	QueryPaymentStatus(ctx context.Context, order *model.Order) (bool, error)
	// HandleCallback verifies the provider signature before trusting any
	// field. Verification failure is returned as an error and the caller
	// must not mutate order state.
	HandleCallback(ctx context.Context, params map[string]string) (*CallbackResult, error)
	Refund(ctx context.Context, order *model.Order, amount decimal.Decimal) (*RefundResult, error)
}

// GatewayConfig is the configuration shared by all adapters through
// composition: callback endpoints and the subject line shown to payers.
type GatewayConfig struct {
	ReturnURL string
	NotifyURL string
	Subject   string
}

// PaymentManager routes an order's payment-method tag to exactly one
// registered adapter.
type PaymentManager struct {
	gateways map[model.PaymentMethod]Gateway
}

func NewPaymentManager(gateways ...Gateway) *PaymentManager {
	m := &PaymentManager{gateways: make(map[model.PaymentMethod]Gateway)}
	for _, gw := range gateways {
		m.Register(gw)
	}
	return m
}

func (m *PaymentManager) Register(gw Gateway) {
	m.gateways[gw.Method()] = gw
}

func (m *PaymentManager) Gateway(method model.PaymentMethod) (Gateway, error) {
	gw, ok := m.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, method)
	}
	return gw, nil
}

// MerchantOrderNo derives the provider-facing correlation key from the
// order id and a timestamp. It is persisted on the order at the first
// payment attempt and reused afterwards.
func MerchantOrderNo(orderID uint, at time.Time) string {
	return fmt.Sprintf("MH%s%06d", at.Format("20060102150405"), orderID)
}

// sortedQueryString joins non-empty params as k=v pairs in key order,
// the canonical form both RSA-signed providers sign over.
func sortedQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

// LoadRSAPrivateKey reads a PEM private key from disk.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}
	return key, nil
}

// LoadRSAPublicKey reads a PEM public key from disk.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	return key, nil
}
