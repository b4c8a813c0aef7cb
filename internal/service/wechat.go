package service

import (
	"bytes"
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
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/model"
)

// WechatConfig holds the v3 API merchant credentials. APIv3Key is the
// 32-byte symmetric key that decrypts callback resources;
// PlatformPublicKey verifies the platform's callback signature.
type WechatConfig struct {
	GatewayConfig
	AppID             string
	MchID             string
	SerialNo          string
	APIv3Key          []byte
	PrivateKey        *rsa.PrivateKey
	PlatformPublicKey *rsa.PublicKey
	APIBaseURL        string
}

type wechatGateway struct {
	cfg    WechatConfig
	client *http.Client
	log    *zap.Logger
}

func NewWechatGateway(cfg WechatConfig, log *zap.Logger) Gateway {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.mch.weixin.qq.com"
	}
	return &wechatGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.Named("wechat"),
	}
}

func (g *wechatGateway) Method() model.PaymentMethod {
	return model.PaymentMethodWechatPay
}

// CreatePayment opens a native-pay transaction and returns the QR code
// payload the buyer scans.
func (g *wechatGateway) CreatePayment(ctx context.Context, order *model.Order) (map[string]string, error) {
	payload := map[string]any{
		"appid":        g.cfg.AppID,
		"mchid":        g.cfg.MchID,
		"description":  g.cfg.Subject,
		"out_trade_no": order.MerchantOrderNo,
		"notify_url":   g.cfg.NotifyURL,
		"amount": map[string]any{
			"total":    order.ActualPayment.Mul(decimal.NewFromInt(100)).IntPart(),
			"currency": "CNY",
		},
	}
	body, err := g.request(ctx, http.MethodPost, "/v3/pay/transactions/native", payload)
	if err != nil {
		return nil, err
	}
	var result struct {
		CodeURL string `json:"code_url"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode native pay response: %w", err)
	}
	if result.CodeURL == "" {
		return nil, fmt.Errorf("native pay response missing code_url")
	}
	return map[string]string{
		"codeUrl":     result.CodeURL,
		"paymentType": "qrcode",
	}, nil
}

// HandleCallback verifies the platform signature over the notify
// envelope, then decrypts the AES-256-GCM resource to read the trade
// result. Expected params: body, timestamp, nonce, signature.
func (g *wechatGateway) HandleCallback(_ context.Context, params map[string]string) (*CallbackResult, error) {
	body := params["body"]
	if err := g.verifyCallback(params["timestamp"], params["nonce"], body, params["signature"]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackRejected, err)
	}

	var notify struct {
		Resource struct {
			Ciphertext     string `json:"ciphertext"`
			Nonce          string `json:"nonce"`
			AssociatedData string `json:"associated_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal([]byte(body), &notify); err != nil {
		return nil, fmt.Errorf("%w: malformed notify body: %v", ErrCallbackRejected, err)
	}
	plaintext, err := DecryptAESGCM(g.cfg.APIv3Key, notify.Resource.Nonce, notify.Resource.AssociatedData, notify.Resource.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackRejected, err)
	}

	var resource struct {
		OutTradeNo    string `json:"out_trade_no"`
		TransactionID string `json:"transaction_id"`
		TradeState    string `json:"trade_state"`
	}
	if err := json.Unmarshal(plaintext, &resource); err != nil {
		return nil, fmt.Errorf("%w: malformed resource: %v", ErrCallbackRejected, err)
	}
	return &CallbackResult{
		MerchantOrderNo: resource.OutTradeNo,
		ProviderTxID:    resource.TransactionID,
		Succeeded:       resource.TradeState == "SUCCESS",
	}, nil
}

func (g *wechatGateway) QueryPaymentStatus(ctx context.Context, order *model.Order) (bool, error) {
	path := fmt.Sprintf("/v3/pay/transactions/out-trade-no/%s?mchid=%s", url.PathEscape(order.MerchantOrderNo), g.cfg.MchID)
	body, err := g.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	var result struct {
		TradeState string `json:"trade_state"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("failed to decode transaction query: %w", err)
	}
	return result.TradeState == "SUCCESS", nil
}

func (g *wechatGateway) Refund(ctx context.Context, order *model.Order, amount decimal.Decimal) (*RefundResult, error) {
	cents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	total := order.ActualPayment.Mul(decimal.NewFromInt(100)).IntPart()
	payload := map[string]any{
		"out_trade_no":  order.MerchantOrderNo,
		"out_refund_no": fmt.Sprintf("refund_%d", time.Now().Unix()),
		"amount": map[string]any{
			"refund":   cents,
			"total":    total,
			"currency": "CNY",
		},
	}
	body, err := g.request(ctx, http.MethodPost, "/v3/refund/domestic/refunds", payload)
	if err != nil {
		return nil, err
	}
	var result struct {
		RefundID string `json:"refund_id"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode refund response: %w", err)
	}
	if result.Status == "ABNORMAL" || result.Status == "CLOSED" {
		return &RefundResult{Success: false, ErrorMsg: "refund " + result.Status}, nil
	}
	return &RefundResult{Success: true, RefundID: result.RefundID}, nil
}

// request signs and executes a v3 API call. Non-2xx responses surface
// as ErrGatewayUnavailable with the provider message attached.
func (g *wechatGateway) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.APIBaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	auth, err := g.authorization(method, path, string(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrGatewayUnavailable, method, path, resp.StatusCode, body)
	}
	return body, nil
}

// authorization builds the WECHATPAY2-SHA256-RSA2048 header. The
// signed message is method, URL path, timestamp, nonce and body, each
// newline terminated.
func (g *wechatGateway) authorization(method, path, body string) (string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := uuid.NewString()
	message := fmt.Sprintf("%s\n%s\n%s\n%s\n%s\n", method, path, ts, nonce, body)
	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, g.cfg.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return fmt.Sprintf(
		`WECHATPAY2-SHA256-RSA2048 mchid="%s",nonce_str="%s",timestamp="%s",serial_no="%s",signature="%s"`,
		g.cfg.MchID, nonce, ts, g.cfg.SerialNo, base64.StdEncoding.EncodeToString(sig),
	), nil
}

// verifyCallback checks the platform signature over
// timestamp\nnonce\nbody\n.
func (g *wechatGateway) verifyCallback(timestamp, nonce, body, signature string) error {
	if signature == "" {
		return fmt.Errorf("missing signature")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	message := fmt.Sprintf("%s\n%s\n%s\n", timestamp, nonce, body)
	digest := sha256.Sum256([]byte(message))
	if err := rsa.VerifyPKCS1v15(g.cfg.PlatformPublicKey, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("signature mismatch: %w", err)
	}
	return nil
}

// DecryptAESGCM opens a base64 AES-256-GCM ciphertext with the given
// nonce and associated data.
func DecryptAESGCM(key []byte, nonce, associatedData, ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("malformed ciphertext: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid cipher key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, []byte(nonce), raw, []byte(associatedData))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt resource: %w", err)
	}
	return plaintext, nil
}
