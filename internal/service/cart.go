package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/crafttrace/settlement/internal/model"

	"gorm.io/gorm"
)

// CartService is the cart collaborator surface. Order creation consumes
// the cart rows directly inside its own transaction; this service backs
// the HTTP cart endpoints.
type CartService interface {
	ListItems(ctx context.Context, userID uint) ([]model.CartItem, error)
	AddItem(ctx context.Context, userID, productID uint, quantity int) (*model.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, productID uint, quantity int) (*model.CartItem, error)
	RemoveItem(ctx context.Context, userID, productID uint) error
	Clear(ctx context.Context, userID uint) error
}

type cartServiceImpl struct {
	db *gorm.DB
}

// NewCartService creates the cart service.
func NewCartService(db *gorm.DB) CartService {
	return &cartServiceImpl{db: db}
}

func (s *cartServiceImpl) ListItems(ctx context.Context, userID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	return items, nil
}

// AddItem bumps an existing line or inserts a new one. The stock check
// uses the current catalog value; the authoritative check happens again
// at order creation.
func (s *cartServiceImpl) AddItem(ctx context.Context, userID, productID uint, quantity int) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var item model.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("failed to load product %d: %w", productID, err)
		}

		err := tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = model.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
		case err != nil:
			return fmt.Errorf("failed to load cart item: %w", err)
		default:
			item.Quantity += quantity
		}

		if product.Stock < item.Quantity {
			return &InsufficientStockError{Product: product.Name}
		}
		return tx.Save(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *cartServiceImpl) UpdateQuantity(ctx context.Context, userID, productID uint, quantity int) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	var item model.CartItem
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to load cart item: %w", err)
	}
	item.Quantity = quantity
	if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	return &item, nil
}

func (s *cartServiceImpl) RemoveItem(ctx context.Context, userID, productID uint) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (s *cartServiceImpl) Clear(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
