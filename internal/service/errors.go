package service

import (
	"errors"
	"fmt"

	"github.com/crafttrace/settlement/internal/model"
)

var (
	// Validation errors: rejected before any state is touched.
	ErrEmptyCart                = errors.New("order: cart is empty")
	ErrInvalidQuantity          = errors.New("cart: quantity must be greater than zero")
	ErrUnsupportedPaymentMethod = errors.New("payment: unsupported payment method")
	ErrMissingPaymentAttempt    = errors.New("payment: order has no payment attempt")

	// Conflict errors: the whole unit of work rolls back.
	ErrInsufficientStock  = errors.New("catalog: insufficient stock")
	ErrInvalidOrderState  = errors.New("order: status does not allow this operation")
	ErrIllegalTransition  = errors.New("order: illegal status transition")
	ErrNotOrderOwner      = errors.New("order: not owned by requester")
	ErrOrderNotFound      = errors.New("order: not found")
	ErrProductNotFound    = errors.New("catalog: product not found")
	ErrCartItemNotFound   = errors.New("cart: item not found")
	ErrCallbackRejected   = errors.New("payment: callback verification failed")
	ErrGatewayUnavailable = errors.New("payment: provider request failed")
)

// InsufficientStockError names the product that ran short so the caller
// can report which cart line aborted the order.
type InsufficientStockError struct {
	Product string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("catalog: insufficient stock for product %q", e.Product)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// IllegalTransitionError carries both ends of a rejected transition.
type IllegalTransitionError struct {
	From model.Status
	To   model.Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order: illegal status transition %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }
