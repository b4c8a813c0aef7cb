package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crafttrace/settlement/internal/model"
)

func TestPaymentManagerRouting(t *testing.T) {
	alipay := &fakeGateway{method: model.PaymentMethodAlipay}
	wechat := &fakeGateway{method: model.PaymentMethodWechatPay}
	manager := NewPaymentManager(alipay, wechat)

	gw, err := manager.Gateway(model.PaymentMethodAlipay)
	require.NoError(t, err)
	assert.Same(t, alipay, gw)

	gw, err = manager.Gateway(model.PaymentMethodWechatPay)
	require.NoError(t, err)
	assert.Same(t, wechat, gw)

	_, err = manager.Gateway(model.PaymentMethodUnionPay)
	assert.ErrorIs(t, err, ErrUnsupportedPaymentMethod)
}

func TestMerchantOrderNo(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "MH20240101120000000042", MerchantOrderNo(42, at))
	assert.Equal(t, "MH20240101120000123456", MerchantOrderNo(123456, at))
	assert.Len(t, MerchantOrderNo(1, at), 22)
}
