package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest carries the shipping info and payment method for a
// cart checkout.
type CreateOrderRequest struct {
	ShippingAddress string `json:"shipping_address" binding:"required"`
	ShippingName    string `json:"shipping_name" binding:"required"`
	ShippingPhone   string `json:"shipping_phone" binding:"required"`
	PaymentMethod   string `json:"payment_method" binding:"required"`
	Remark          string `json:"remark"`
}

// UpdateOrderStatusRequest is the privileged status-change payload.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AddCartItemRequest adds or bumps a cart line.
type AddCartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// UpdateCartItemRequest replaces a cart line quantity.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// RefundRequest optionally overrides the refunded amount; the default is
// the order's actual payment.
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// OrderItemResponse is the line-item slice of OrderResponse.
type OrderItemResponse struct {
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	AssetID      string          `json:"asset_id,omitempty"`
}

// OrderResponse is the order DTO exposed to the API layer.
type OrderResponse struct {
	ID              uint                `json:"id"`
	OrderNumber     string              `json:"order_number"`
	Status          Status              `json:"status"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	ShippingFee     decimal.Decimal     `json:"shipping_fee"`
	ActualPayment   decimal.Decimal     `json:"actual_payment"`
	PaymentMethod   PaymentMethod       `json:"payment_method"`
	PaymentTime     *time.Time          `json:"payment_time,omitempty"`
	ShippingAddress string              `json:"shipping_address"`
	ShippingName    string              `json:"shipping_name"`
	ShippingPhone   string              `json:"shipping_phone"`
	ShippingTime    *time.Time          `json:"shipping_time,omitempty"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	TransactionHash string              `json:"transaction_hash,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// NewOrderResponse maps the aggregate to its DTO.
func NewOrderResponse(o *Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			Price:        it.Price,
			Quantity:     it.Quantity,
			Subtotal:     it.Subtotal,
			AssetID:      it.AssetID,
		})
	}
	return &OrderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		ShippingFee:     o.ShippingFee,
		ActualPayment:   o.ActualPayment,
		PaymentMethod:   o.PaymentMethod,
		PaymentTime:     o.PaymentTime,
		ShippingAddress: o.ShippingAddress,
		ShippingName:    o.ShippingName,
		ShippingPhone:   o.ShippingPhone,
		ShippingTime:    o.ShippingTime,
		TrackingNumber:  o.TrackingNumber,
		TransactionHash: o.TransactionHash,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
