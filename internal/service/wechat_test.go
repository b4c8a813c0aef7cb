package service

import (
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWechatFixture(t *testing.T) (*wechatGateway, *rsa.PrivateKey, []byte) {
	t.Helper()
	merchantKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	platformKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	apiV3Key := []byte("0123456789abcdef0123456789abcdef")

	gw := &wechatGateway{
		cfg: WechatConfig{
			GatewayConfig: GatewayConfig{
				NotifyURL: "http://localhost/notify",
				Subject:   "Handcraft order",
			},
			AppID:             "wx0000000001",
			MchID:             "1600000001",
			SerialNo:          "ABCDEF",
			APIv3Key:          apiV3Key,
			PrivateKey:        merchantKey,
			PlatformPublicKey: &platformKey.PublicKey,
			APIBaseURL:        "https://api.mch.test",
		},
		log: zap.NewNop(),
	}
	return gw, platformKey, apiV3Key
}

func encryptResource(t *testing.T, key []byte, nonce, associatedData string, plaintext []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, []byte(nonce), plaintext, []byte(associatedData))
	return base64.StdEncoding.EncodeToString(sealed)
}

func platformSignNotify(t *testing.T, key *rsa.PrivateKey, timestamp, nonce, body string) string {
	t.Helper()
	message := fmt.Sprintf("%s\n%s\n%s\n", timestamp, nonce, body)
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func buildNotify(t *testing.T, platformKey *rsa.PrivateKey, apiV3Key []byte, tradeState string) map[string]string {
	t.Helper()
	resource, err := json.Marshal(map[string]string{
		"out_trade_no":   "MH20240101120000000042",
		"transaction_id": "4200000000000001",
		"trade_state":    tradeState,
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"event_type": "TRANSACTION.SUCCESS",
		"resource": map[string]string{
			"ciphertext":      encryptResource(t, apiV3Key, "notifynonce1", "transaction", resource),
			"nonce":           "notifynonce1",
			"associated_data": "transaction",
		},
	})
	require.NoError(t, err)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return map[string]string{
		"body":      string(body),
		"timestamp": ts,
		"nonce":     "headernonce",
		"signature": platformSignNotify(t, platformKey, ts, "headernonce", string(body)),
	}
}

func TestWechatCallbackVerification(t *testing.T) {
	gw, platformKey, apiV3Key := newWechatFixture(t)
	params := buildNotify(t, platformKey, apiV3Key, "SUCCESS")

	result, err := gw.HandleCallback(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, result.Succeeded)
	assert.Equal(t, "MH20240101120000000042", result.MerchantOrderNo)
	assert.Equal(t, "4200000000000001", result.ProviderTxID)
}

func TestWechatCallbackUnpaidTrade(t *testing.T) {
	gw, platformKey, apiV3Key := newWechatFixture(t)
	params := buildNotify(t, platformKey, apiV3Key, "PAYERROR")

	result, err := gw.HandleCallback(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
}

func TestWechatCallbackRejectsTamperedBody(t *testing.T) {
	gw, platformKey, apiV3Key := newWechatFixture(t)
	params := buildNotify(t, platformKey, apiV3Key, "SUCCESS")
	params["body"] += " "

	_, err := gw.HandleCallback(context.Background(), params)
	assert.ErrorIs(t, err, ErrCallbackRejected)
}

func TestWechatCallbackRejectsWrongPlatformKey(t *testing.T) {
	gw, _, apiV3Key := newWechatFixture(t)
	attackerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	params := buildNotify(t, attackerKey, apiV3Key, "SUCCESS")

	_, err = gw.HandleCallback(context.Background(), params)
	assert.ErrorIs(t, err, ErrCallbackRejected)
}

func TestDecryptAESGCM(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	plaintext := []byte(`{"trade_state":"SUCCESS"}`)
	ciphertext := encryptResource(t, key, "nonce1234567", "transaction", plaintext)

	got, err := DecryptAESGCM(key, "nonce1234567", "transaction", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	// Wrong associated data fails authentication.
	_, err = DecryptAESGCM(key, "nonce1234567", "refund", ciphertext)
	assert.Error(t, err)

	// Flipped ciphertext byte fails authentication.
	raw, _ := base64.StdEncoding.DecodeString(ciphertext)
	raw[0] ^= 0xff
	_, err = DecryptAESGCM(key, "nonce1234567", "transaction", base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestWechatAuthorizationHeader(t *testing.T) {
	gw, _, _ := newWechatFixture(t)
	header, err := gw.authorization("POST", "/v3/pay/transactions/native", `{"mchid":"1600000001"}`)
	require.NoError(t, err)
	assert.Contains(t, header, "WECHATPAY2-SHA256-RSA2048 ")
	assert.Contains(t, header, `mchid="1600000001"`)
	assert.Contains(t, header, `serial_no="ABCDEF"`)
	assert.Contains(t, header, `signature="`)
}
