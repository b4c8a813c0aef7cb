package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/crafttrace/settlement/internal/metrics"
	"github.com/crafttrace/settlement/internal/model"
)

// OrderService settles carts into orders and drives the order lifecycle.
type OrderService interface {
	// CreateOrderFromCart settles the user's cart atomically: snapshot
	// items, reserve stock, persist the order and clear the cart in one
	// transaction.
	CreateOrderFromCart(ctx context.Context, userID uint, req *model.CreateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, userID, orderID uint) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, userID uint, orderNumber string) (*model.Order, error)
	ListUserOrders(ctx context.Context, userID uint, status string, page, size int) ([]model.Order, int64, error)

	// CreatePayment builds the provider payment request for an order in
	// CREATED, assigning the merchant order number on first use.
	CreatePayment(ctx context.Context, userID, orderID uint) (map[string]string, error)
	// ProcessPayment settles a successful payment: CREATED -> PAID, then
	// kicks off asset transfers. An order past CREATED rejects the call
	// with ErrInvalidOrderState.
	ProcessPayment(ctx context.Context, orderID uint, paymentID string) error
	// SyncPaymentStatus polls the provider for orders whose callback
	// never arrived and settles them if the provider reports success.
	SyncPaymentStatus(ctx context.Context, userID, orderID uint) (*model.Order, error)
	// HandlePaymentCallback verifies and applies a provider callback.
	// The returned bool is the acknowledgement: true tells the provider
	// to stop retrying.
	HandlePaymentCallback(ctx context.Context, method model.PaymentMethod, params map[string]string) bool

	CancelOrder(ctx context.Context, userID, orderID uint) error
	RequestRefund(ctx context.Context, userID, orderID uint, amount *decimal.Decimal) (*model.Order, error)
	// UpdateOrderStatus applies a privileged lifecycle transition.
	UpdateOrderStatus(ctx context.Context, orderID uint, to model.Status) error
}

type orderServiceImpl struct {
	db        *gorm.DB
	inventory InventoryService
	payments  *PaymentManager
	assets    AssetTransferService
	log       *zap.Logger
}

// NewOrderService wires the orchestrator over its collaborators.
func NewOrderService(db *gorm.DB, inventory InventoryService, payments *PaymentManager, assets AssetTransferService, log *zap.Logger) OrderService {
	return &orderServiceImpl{
		db:        db,
		inventory: inventory,
		payments:  payments,
		assets:    assets,
		log:       log.Named("order"),
	}
}

// newOrderNumber produces the customer-facing order number: a millisecond
// timestamp plus a random suffix.
func newOrderNumber() string {
	return fmt.Sprintf("M%d%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *orderServiceImpl) CreateOrderFromCart(ctx context.Context, userID uint, req *model.CreateOrderRequest) (*model.Order, error) {
	method, ok := model.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, req.PaymentMethod)
	}

	var order *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cartItems []model.CartItem
		if err := tx.Where("user_id = ?", userID).Order("created_at").Find(&cartItems).Error; err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		if len(cartItems) == 0 {
			return ErrEmptyCart
		}

		items := make([]model.OrderItem, 0, len(cartItems))
		total := decimal.Zero
		for _, ci := range cartItems {
			var product model.Product
			if err := tx.First(&product, ci.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrProductNotFound
				}
				return fmt.Errorf("failed to load product %d: %w", ci.ProductID, err)
			}
			if err := s.inventory.Reserve(tx, product.ID, ci.Quantity); err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					return &InsufficientStockError{Product: product.Name}
				}
				return err
			}
			subtotal := product.Price.Mul(decimal.NewFromInt(int64(ci.Quantity)))
			items = append(items, model.OrderItem{
				ProductID:    product.ID,
				ProductName:  product.Name,
				ProductImage: product.PrimaryImage,
				Price:        product.Price,
				Quantity:     ci.Quantity,
				Subtotal:     subtotal,
				AssetID:      product.AssetID,
			})
			total = total.Add(subtotal)
		}

		shippingFee := decimal.Zero
		order = &model.Order{
			OrderNumber:     newOrderNumber(),
			UserID:          userID,
			Status:          model.StatusCreated,
			Items:           items,
			TotalAmount:     total,
			ShippingFee:     shippingFee,
			ActualPayment:   total.Add(shippingFee),
			PaymentMethod:   method,
			ShippingAddress: req.ShippingAddress,
			ShippingName:    req.ShippingName,
			ShippingPhone:   req.ShippingPhone,
			Remark:          req.Remark,
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.log.Info("order created",
		zap.Uint("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Uint("user_id", userID),
		zap.String("total", order.ActualPayment.StringFixed(2)))
	return order, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, userID, orderID uint) (*model.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

func (s *orderServiceImpl) GetOrderByNumber(ctx context.Context, userID uint, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderNumber, err)
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	return &order, nil
}

func (s *orderServiceImpl) ListUserOrders(ctx context.Context, userID uint, status string, page, size int) ([]model.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	query := s.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)
	if status != "" {
		parsed, ok := model.ParseStatus(status)
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown status %s", ErrInvalidOrderState, status)
		}
		query = query.Where("status = ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	var orders []model.Order
	if err := query.Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *orderServiceImpl) CreatePayment(ctx context.Context, userID, orderID uint) (map[string]string, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.StatusCreated {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, orderID, order.Status)
	}
	gw, err := s.payments.Gateway(order.PaymentMethod)
	if err != nil {
		return nil, err
	}

	if order.MerchantOrderNo == "" {
		order.MerchantOrderNo = MerchantOrderNo(order.ID, time.Now())
		if err := s.db.WithContext(ctx).Model(order).
			Update("merchant_order_no", order.MerchantOrderNo).Error; err != nil {
			return nil, fmt.Errorf("failed to assign merchant order no: %w", err)
		}
	}
	return gw.CreatePayment(ctx, order)
}

func (s *orderServiceImpl) ProcessPayment(ctx context.Context, orderID uint, paymentID string) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return s.settle(ctx, order, paymentID)
}

// settle moves CREATED -> PAID with a guarded update and fires the
// asset transfers. The guard makes the state change happen at most
// once: a repeated or concurrent settlement fails with
// ErrInvalidOrderState instead of double-applying.
func (s *orderServiceImpl) settle(ctx context.Context, order *model.Order, paymentID string) error {
	if order.Status != model.StatusCreated {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, order.ID, order.Status)
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, model.StatusCreated).
		Updates(map[string]any{
			"status":       model.StatusPaid,
			"payment_id":   paymentID,
			"payment_time": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to settle order %d: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d moved concurrently", ErrInvalidOrderState, order.ID)
	}
	order.Status = model.StatusPaid
	order.PaymentID = paymentID
	order.PaymentTime = &now

	s.log.Info("order settled",
		zap.Uint("order_id", order.ID),
		zap.String("payment_id", paymentID))

	ledgerIdentity, err := s.ledgerIdentity(ctx, order.UserID)
	if err != nil {
		s.log.Warn("skipping asset transfer, no ledger identity",
			zap.Uint("order_id", order.ID), zap.Error(err))
		return nil
	}
	s.assets.TransferOrderAssets(order, ledgerIdentity)
	return nil
}

func (s *orderServiceImpl) ledgerIdentity(ctx context.Context, userID uint) (string, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return "", fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user.LedgerIdentity == "" {
		return "", fmt.Errorf("user %d has no ledger identity", userID)
	}
	return user.LedgerIdentity, nil
}

func (s *orderServiceImpl) SyncPaymentStatus(ctx context.Context, userID, orderID uint) (*model.Order, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.StatusCreated {
		return order, nil
	}
	if order.MerchantOrderNo == "" {
		return nil, ErrMissingPaymentAttempt
	}
	gw, err := s.payments.Gateway(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	paid, err := gw.QueryPaymentStatus(ctx, order)
	if err != nil {
		return nil, err
	}
	if paid {
		// A callback may have settled the order between the status check
		// and here; that race is not an error for the poller.
		if err := s.settle(ctx, order, order.MerchantOrderNo); err != nil && !errors.Is(err, ErrInvalidOrderState) {
			return nil, err
		}
	}
	return s.loadOrder(ctx, orderID)
}

func (s *orderServiceImpl) HandlePaymentCallback(ctx context.Context, method model.PaymentMethod, params map[string]string) bool {
	provider := string(method)
	gw, err := s.payments.Gateway(method)
	if err != nil {
		s.log.Error("callback for unregistered method", zap.String("method", provider))
		metrics.PaymentCallbacks.WithLabelValues(provider, "rejected").Inc()
		return false
	}

	result, err := gw.HandleCallback(ctx, params)
	if err != nil {
		s.log.Warn("callback rejected", zap.String("method", provider), zap.Error(err))
		metrics.PaymentCallbacks.WithLabelValues(provider, "rejected").Inc()
		return false
	}
	if !result.Succeeded {
		// A verified failure notification carries no state change; ack it
		// so the provider stops retrying.
		s.log.Info("callback reported unpaid trade",
			zap.String("method", provider),
			zap.String("merchant_order_no", result.MerchantOrderNo))
		metrics.PaymentCallbacks.WithLabelValues(provider, "accepted").Inc()
		return true
	}

	var order model.Order
	err = s.db.WithContext(ctx).Preload("Items").
		Where("merchant_order_no = ?", result.MerchantOrderNo).
		First(&order).Error
	if err != nil {
		s.log.Error("callback for unknown merchant order no",
			zap.String("method", provider),
			zap.String("merchant_order_no", result.MerchantOrderNo),
			zap.Error(err))
		metrics.PaymentCallbacks.WithLabelValues(provider, "failed").Inc()
		return false
	}

	if order.Status != model.StatusCreated {
		if order.Status == model.StatusCancelled {
			s.log.Error("callback for cancelled order",
				zap.String("method", provider),
				zap.Uint("order_id", order.ID))
			metrics.PaymentCallbacks.WithLabelValues(provider, "failed").Inc()
			return false
		}
		// Provider retry of an already settled order; ack to stop it.
		metrics.PaymentCallbacks.WithLabelValues(provider, "accepted").Inc()
		return true
	}

	if err := s.settle(ctx, &order, result.ProviderTxID); err != nil {
		s.log.Error("callback settlement failed",
			zap.String("method", provider),
			zap.Uint("order_id", order.ID),
			zap.Error(err))
		metrics.PaymentCallbacks.WithLabelValues(provider, "failed").Inc()
		return false
	}
	metrics.PaymentCallbacks.WithLabelValues(provider, "accepted").Inc()
	return true
}

func (s *orderServiceImpl) CancelOrder(ctx context.Context, userID, orderID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order %d: %w", orderID, err)
		}
		if order.UserID != userID {
			return ErrNotOrderOwner
		}

		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", orderID, model.StatusCreated).
			Update("status", model.StatusCancelled)
		if res.Error != nil {
			return fmt.Errorf("failed to cancel order %d: %w", orderID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, orderID, order.Status)
		}

		for _, item := range order.Items {
			if err := s.inventory.Release(tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *orderServiceImpl) RequestRefund(ctx context.Context, userID, orderID uint, amount *decimal.Decimal) (*model.Order, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentID == "" {
		return nil, ErrMissingPaymentAttempt
	}
	if err := s.applyTransition(ctx, order, model.StatusRefunding); err != nil {
		return nil, err
	}

	gw, err := s.payments.Gateway(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	refundAmount := order.ActualPayment
	if amount != nil {
		refundAmount = *amount
	}
	result, err := gw.Refund(ctx, order, refundAmount)
	if err != nil {
		// The order stays in REFUNDING for a later retry.
		return nil, err
	}
	if !result.Success {
		s.log.Warn("refund declined",
			zap.Uint("order_id", orderID),
			zap.String("reason", result.ErrorMsg))
		return s.loadOrder(ctx, orderID)
	}

	if err := s.applyTransition(ctx, order, model.StatusRefunded); err != nil {
		return nil, err
	}
	s.log.Info("order refunded",
		zap.Uint("order_id", orderID),
		zap.String("refund_id", result.RefundID),
		zap.String("amount", refundAmount.StringFixed(2)))
	return s.loadOrder(ctx, orderID)
}

func (s *orderServiceImpl) UpdateOrderStatus(ctx context.Context, orderID uint, to model.Status) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return s.applyTransition(ctx, order, to)
}

// applyTransition validates the move against the lifecycle table, then
// applies it with a guarded update so a concurrent transition from the
// same state loses cleanly.
func (s *orderServiceImpl) applyTransition(ctx context.Context, order *model.Order, to model.Status) error {
	if !model.CanTransition(order.Status, to) {
		return &IllegalTransitionError{From: order.Status, To: to}
	}

	updates := map[string]any{"status": to}
	now := time.Now()
	switch to {
	case model.StatusPaid:
		updates["payment_time"] = now
	case model.StatusShipped:
		updates["shipping_time"] = now
	}

	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to transition order %d to %s: %w", order.ID, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d moved concurrently", ErrInvalidOrderState, order.ID)
	}
	order.Status = to
	return nil
}

func (s *orderServiceImpl) loadOrder(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	return &order, nil
}
