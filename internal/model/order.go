package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusPaid       Status = "PAID"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunding  Status = "REFUNDING"
	StatusRefunded   Status = "REFUNDED"
)

// statusTransitions is the full lifecycle table. A pair absent from the
// table is an illegal transition.
var statusTransitions = map[Status][]Status{
	StatusCreated:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusRefunding},
	StatusProcessing: {StatusShipped, StatusRefunding},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusCompleted, StatusRefunding},
	StatusRefunding:  {StatusRefunded},
}

// CanTransition reports whether the lifecycle allows moving from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, t := range statusTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

func (s Status) String() string { return string(s) }

// ParseStatus validates a status string coming from a request.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusCreated, StatusPaid, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunding, StatusRefunded:
		return Status(s), true
	}
	return "", false
}

// PaymentMethod tags which gateway settles an order.
type PaymentMethod string

const (
	PaymentMethodAlipay     PaymentMethod = "ALIPAY"
	PaymentMethodWechatPay  PaymentMethod = "WECHAT_PAY"
	PaymentMethodUnionPay   PaymentMethod = "UNION_PAY"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodWallet     PaymentMethod = "WALLET"
)

// ParsePaymentMethod validates a payment method string coming from a request.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case PaymentMethodAlipay, PaymentMethodWechatPay, PaymentMethodUnionPay,
		PaymentMethodCreditCard, PaymentMethodWallet:
		return PaymentMethod(s), true
	}
	return "", false
}

// Order is the settlement aggregate root. Line items are owned by the
// order and removed with it; the user and the catalog products are only
// referenced.
type Order struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	OrderNumber string `json:"order_number" gorm:"type:varchar(32);uniqueIndex;not null"`
	UserID      uint   `json:"user_id" gorm:"index;not null"`
	Status      Status `json:"status" gorm:"type:varchar(20);not null;index"`

	Items []OrderItem `json:"items" gorm:"constraint:OnDelete:CASCADE"`

	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:numeric(10,2);not null"`
	ShippingFee   decimal.Decimal `json:"shipping_fee" gorm:"type:numeric(10,2)"`
	ActualPayment decimal.Decimal `json:"actual_payment" gorm:"type:numeric(10,2)"`

	PaymentMethod PaymentMethod `json:"payment_method" gorm:"type:varchar(20)"`
	// PaymentID is the provider-assigned transaction id recorded on settlement.
	PaymentID string `json:"payment_id" gorm:"type:varchar(64)"`
	// MerchantOrderNo is the provider-facing correlation key, distinct from
	// OrderNumber. Assigned once at the first payment attempt.
	MerchantOrderNo string     `json:"merchant_order_no" gorm:"type:varchar(32)"`
	PaymentTime     *time.Time `json:"payment_time"`

	ShippingAddress string     `json:"shipping_address" gorm:"type:varchar(500);not null"`
	ShippingName    string     `json:"shipping_name" gorm:"type:varchar(100);not null"`
	ShippingPhone   string     `json:"shipping_phone" gorm:"type:varchar(32);not null"`
	ShippingTime    *time.Time `json:"shipping_time"`
	TrackingNumber  string     `json:"tracking_number" gorm:"type:varchar(64)"`

	// TransactionHash is the ledger transaction recorded once the asset
	// transfer settles. Empty while provenance is pending or failed.
	TransactionHash string `json:"transaction_hash" gorm:"type:varchar(128)"`

	Remark    string    `json:"remark" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// OrderItem snapshots the product at order time so later catalog edits do
// not rewrite history. Quantity is always >= 1.
type OrderItem struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	OrderID      uint            `json:"order_id" gorm:"index;not null"`
	ProductID    uint            `json:"product_id" gorm:"index;not null"`
	ProductName  string          `json:"product_name" gorm:"type:varchar(200);not null"`
	ProductImage string          `json:"product_image" gorm:"type:varchar(500)"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null"`
	Quantity     int             `json:"quantity" gorm:"not null"`
	Subtotal     decimal.Decimal `json:"subtotal" gorm:"type:numeric(10,2);not null"`
	// AssetID links the item to its provenance record on the ledger, empty
	// for untraced goods.
	AssetID   string    `json:"asset_id" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderItem) TableName() string { return "order_items" }
