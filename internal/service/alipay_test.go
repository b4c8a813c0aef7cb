package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/model"
)

func newAlipayFixture(t *testing.T) (*alipayGateway, *rsa.PrivateKey) {
	t.Helper()
	merchantKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	providerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	gw := &alipayGateway{
		cfg: AlipayConfig{
			GatewayConfig: GatewayConfig{
				ReturnURL: "http://localhost/return",
				NotifyURL: "http://localhost/notify",
				Subject:   "Handcraft order",
			},
			AppID:      "2021000000000001",
			GatewayURL: "https://openapi.alipay.test/gateway.do",
			PrivateKey: merchantKey,
			PublicKey:  &providerKey.PublicKey,
		},
		log: zap.NewNop(),
	}
	return gw, providerKey
}

// providerSign emulates the provider side: sign the callback params with
// the key the gateway verifies against.
func providerSign(t *testing.T, key *rsa.PrivateKey, params map[string]string) string {
	t.Helper()
	signer := &alipayGateway{cfg: AlipayConfig{PrivateKey: key}}
	sign, err := signer.sign(params)
	require.NoError(t, err)
	return sign
}

func TestAlipayCreatePaymentForm(t *testing.T) {
	gw, _ := newAlipayFixture(t)
	order := &model.Order{
		MerchantOrderNo: "MH20240101120000000042",
		ActualPayment:   decimal.RequireFromString("200.00"),
	}

	result, err := gw.CreatePayment(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "form", result["paymentType"])
	assert.Contains(t, result["form"], gw.cfg.GatewayURL)
	assert.Contains(t, result["form"], "MH20240101120000000042")
	assert.Contains(t, result["form"], "200.00")
	assert.Contains(t, result["form"], `name="sign"`)
}

func TestAlipayCallbackVerification(t *testing.T) {
	gw, providerKey := newAlipayFixture(t)
	params := map[string]string{
		"out_trade_no": "MH20240101120000000042",
		"trade_no":     "2024010122001400001",
		"trade_status": "TRADE_SUCCESS",
		"total_amount": "200.00",
	}
	params["sign"] = providerSign(t, providerKey, params)
	params["sign_type"] = "RSA2"

	result, err := gw.HandleCallback(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, "MH20240101120000000042", result.MerchantOrderNo)
	assert.Equal(t, "2024010122001400001", result.ProviderTxID)
}

func TestAlipayCallbackClosedTradeIsNotSuccess(t *testing.T) {
	gw, providerKey := newAlipayFixture(t)
	params := map[string]string{
		"out_trade_no": "MH20240101120000000042",
		"trade_status": "TRADE_CLOSED",
	}
	params["sign"] = providerSign(t, providerKey, params)

	result, err := gw.HandleCallback(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
}

func TestAlipayCallbackRejectsTampering(t *testing.T) {
	gw, providerKey := newAlipayFixture(t)
	params := map[string]string{
		"out_trade_no": "MH20240101120000000042",
		"trade_status": "TRADE_SUCCESS",
		"total_amount": "200.00",
	}
	params["sign"] = providerSign(t, providerKey, params)

	// Amount changed after signing.
	params["total_amount"] = "0.01"
	_, err := gw.HandleCallback(context.Background(), params)
	assert.ErrorIs(t, err, ErrCallbackRejected)
}

func TestAlipayCallbackRejectsWrongKey(t *testing.T) {
	gw, _ := newAlipayFixture(t)
	attackerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	params := map[string]string{
		"out_trade_no": "MH20240101120000000042",
		"trade_status": "TRADE_SUCCESS",
	}
	params["sign"] = providerSign(t, attackerKey, params)

	_, err = gw.HandleCallback(context.Background(), params)
	assert.ErrorIs(t, err, ErrCallbackRejected)

	delete(params, "sign")
	_, err = gw.HandleCallback(context.Background(), params)
	assert.ErrorIs(t, err, ErrCallbackRejected)
}

func TestSortedQueryString(t *testing.T) {
	got := sortedQueryString(map[string]string{
		"b":     "2",
		"a":     "1",
		"empty": "",
		"c":     "3",
	})
	assert.Equal(t, "a=1&b=2&c=3", got)
}
