package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/model"
)

// AlipayConfig holds the merchant credentials for the Alipay open
// platform. PrivateKey signs outgoing requests, PublicKey verifies
// callbacks and query responses.
type AlipayConfig struct {
	GatewayConfig
	AppID      string
	GatewayURL string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

type alipayGateway struct {
	cfg    AlipayConfig
	client *http.Client
	log    *zap.Logger
}

func NewAlipayGateway(cfg AlipayConfig, log *zap.Logger) Gateway {
	return &alipayGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.Named("alipay"),
	}
}

func (g *alipayGateway) Method() model.PaymentMethod {
	return model.PaymentMethodAlipay
}

// CreatePayment renders a self-submitting page-pay form. The buyer's
// browser posts it to the Alipay gateway, so no network call happens
// here.
func (g *alipayGateway) CreatePayment(_ context.Context, order *model.Order) (map[string]string, error) {
	bizContent, err := json.Marshal(map[string]string{
		"out_trade_no": order.MerchantOrderNo,
		"total_amount": order.ActualPayment.StringFixed(2),
		"subject":      g.cfg.Subject,
		"product_code": "FAST_INSTANT_TRADE_PAY",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode biz_content: %w", err)
	}

	params := map[string]string{
		"app_id":      g.cfg.AppID,
		"method":      "alipay.trade.page.pay",
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"return_url":  g.cfg.ReturnURL,
		"notify_url":  g.cfg.NotifyURL,
		"biz_content": string(bizContent),
	}
	sign, err := g.sign(params)
	if err != nil {
		return nil, err
	}
	params["sign"] = sign

	var form strings.Builder
	form.WriteString(`<form id="alipay_submit" action="` + g.cfg.GatewayURL + `?charset=utf-8" method="POST">`)
	for k, v := range params {
		form.WriteString(fmt.Sprintf(`<input type="hidden" name="%s" value='%s'/>`, k, strings.ReplaceAll(v, "'", "&apos;")))
	}
	form.WriteString(`</form><script>document.getElementById("alipay_submit").submit();</script>`)

	return map[string]string{
		"form":        form.String(),
		"paymentType": "form",
	}, nil
}

// HandleCallback verifies the asynchronous notify. Alipay sends the
// signature in sign plus sign_type, neither of which participates in
// the signed string.
func (g *alipayGateway) HandleCallback(_ context.Context, params map[string]string) (*CallbackResult, error) {
	if err := g.verify(params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackRejected, err)
	}
	status := params["trade_status"]
	return &CallbackResult{
		MerchantOrderNo: params["out_trade_no"],
		ProviderTxID:    params["trade_no"],
		Succeeded:       status == "TRADE_SUCCESS" || status == "TRADE_FINISHED",
	}, nil
}

func (g *alipayGateway) QueryPaymentStatus(ctx context.Context, order *model.Order) (bool, error) {
	bizContent, _ := json.Marshal(map[string]string{"out_trade_no": order.MerchantOrderNo})
	resp, err := g.execute(ctx, "alipay.trade.query", string(bizContent))
	if err != nil {
		return false, err
	}
	var body struct {
		Response struct {
			Code        string `json:"code"`
			TradeStatus string `json:"trade_status"`
		} `json:"alipay_trade_query_response"`
	}
	if err := json.Unmarshal(resp, &body); err != nil {
		return false, fmt.Errorf("failed to decode trade query response: %w", err)
	}
	if body.Response.Code != "10000" {
		return false, nil
	}
	return body.Response.TradeStatus == "TRADE_SUCCESS" || body.Response.TradeStatus == "TRADE_FINISHED", nil
}

func (g *alipayGateway) Refund(ctx context.Context, order *model.Order, amount decimal.Decimal) (*RefundResult, error) {
	bizContent, _ := json.Marshal(map[string]string{
		"out_trade_no":   order.MerchantOrderNo,
		"refund_amount":  amount.StringFixed(2),
		"out_request_no": fmt.Sprintf("refund_%d", time.Now().Unix()),
	})
	resp, err := g.execute(ctx, "alipay.trade.refund", string(bizContent))
	if err != nil {
		return nil, err
	}
	var body struct {
		Response struct {
			Code    string `json:"code"`
			SubMsg  string `json:"sub_msg"`
			TradeNo string `json:"trade_no"`
		} `json:"alipay_trade_refund_response"`
	}
	if err := json.Unmarshal(resp, &body); err != nil {
		return nil, fmt.Errorf("failed to decode refund response: %w", err)
	}
	if body.Response.Code != "10000" {
		return &RefundResult{Success: false, ErrorMsg: body.Response.SubMsg}, nil
	}
	return &RefundResult{Success: true, RefundID: body.Response.TradeNo}, nil
}

// execute posts a signed API call to the gateway and returns the raw
// response body.
func (g *alipayGateway) execute(ctx context.Context, method, bizContent string) ([]byte, error) {
	params := map[string]string{
		"app_id":      g.cfg.AppID,
		"method":      method,
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"biz_content": bizContent,
	}
	sign, err := g.sign(params)
	if err != nil {
		return nil, err
	}
	params["sign"] = sign

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}
	return body, nil
}

// sign produces the RSA2 signature: SHA256withRSA over the sorted
// k=v&... string, base64 encoded.
func (g *alipayGateway) sign(params map[string]string) (string, error) {
	digest := sha256.Sum256([]byte(sortedQueryString(params)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, g.cfg.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (g *alipayGateway) verify(params map[string]string) error {
	sign := params["sign"]
	if sign == "" {
		return fmt.Errorf("missing sign")
	}
	unsigned := make(map[string]string, len(params))
	for k, v := range params {
		if k == "sign" || k == "sign_type" {
			continue
		}
		unsigned[k] = v
	}
	sig, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return fmt.Errorf("malformed sign: %w", err)
	}
	digest := sha256.Sum256([]byte(sortedQueryString(unsigned)))
	if err := rsa.VerifyPKCS1v15(g.cfg.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("signature mismatch: %w", err)
	}
	return nil
}
