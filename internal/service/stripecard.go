package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/refund"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/model"
)

// StripeConfig holds the secret API key and webhook signing secret for
// card payments through Stripe Checkout.
type StripeConfig struct {
	GatewayConfig
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

type stripeGateway struct {
	cfg StripeConfig
	log *zap.Logger
}

func NewStripeGateway(cfg StripeConfig, log *zap.Logger) Gateway {
	stripe.Key = cfg.APIKey
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &stripeGateway{cfg: cfg, log: log.Named("stripe")}
}

func (g *stripeGateway) Method() model.PaymentMethod {
	return model.PaymentMethodCreditCard
}

// CreatePayment opens a hosted Checkout session. The merchant order
// number rides on the payment intent metadata so the webhook and the
// poll fallback can correlate it back.
func (g *stripeGateway) CreatePayment(ctx context.Context, order *model.Order) (map[string]string, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items))
	for _, item := range order.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.cfg.Currency),
				UnitAmount: stripe.Int64(item.Price.Mul(decimal.NewFromInt(100)).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.ProductName),
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}
	if !order.ShippingFee.IsZero() {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.cfg.Currency),
				UnitAmount: stripe.Int64(order.ShippingFee.Mul(decimal.NewFromInt(100)).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Shipping"),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"merchant_order_no": order.MerchantOrderNo},
		},
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", ErrGatewayUnavailable, err)
	}
	return map[string]string{
		"url":         s.URL,
		"sessionId":   s.ID,
		"paymentType": "redirect",
	}, nil
}

// HandleCallback verifies the webhook signature and extracts the
// settled payment intent. Expected params: body, signature.
func (g *stripeGateway) HandleCallback(_ context.Context, params map[string]string) (*CallbackResult, error) {
	event, err := webhook.ConstructEvent([]byte(params["body"]), params["signature"], g.cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackRejected, err)
	}
	if event.Type != "payment_intent.succeeded" && event.Type != "payment_intent.payment_failed" {
		return nil, fmt.Errorf("%w: unhandled event type %s", ErrCallbackRejected, event.Type)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: malformed payment intent: %v", ErrCallbackRejected, err)
	}
	return &CallbackResult{
		MerchantOrderNo: intent.Metadata["merchant_order_no"],
		ProviderTxID:    intent.ID,
		Succeeded:       event.Type == "payment_intent.succeeded",
	}, nil
}

func (g *stripeGateway) QueryPaymentStatus(ctx context.Context, order *model.Order) (bool, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf(`metadata["merchant_order_no"]:"%s"`, order.MerchantOrderNo),
		},
	}
	params.Context = ctx
	iter := paymentintent.Search(params)
	for iter.Next() {
		if iter.PaymentIntent().Status == stripe.PaymentIntentStatusSucceeded {
			return true, nil
		}
	}
	if err := iter.Err(); err != nil {
		return false, fmt.Errorf("%w: payment intent search: %v", ErrGatewayUnavailable, err)
	}
	return false, nil
}

func (g *stripeGateway) Refund(ctx context.Context, order *model.Order, amount decimal.Decimal) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(order.PaymentID),
		Amount:        stripe.Int64(amount.Mul(decimal.NewFromInt(100)).IntPart()),
	}
	params.Context = ctx
	r, err := refund.New(params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok {
			return &RefundResult{Success: false, ErrorMsg: stripeErr.Msg}, nil
		}
		return nil, fmt.Errorf("%w: refund: %v", ErrGatewayUnavailable, err)
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return &RefundResult{Success: false, ErrorMsg: string(r.Status)}, nil
	}
	return &RefundResult{Success: true, RefundID: r.ID}, nil
}
