package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/crafttrace/settlement/internal/model"

	"gorm.io/gorm"
)

// InventoryService adjusts catalog stock. Reserve and Release run on the
// caller's transaction handle so stock mutation commits or rolls back
// together with the order row.
type InventoryService interface {
	FindProduct(ctx context.Context, id uint) (*model.Product, error)
	Reserve(tx *gorm.DB, productID uint, quantity int) error
	Release(tx *gorm.DB, productID uint, quantity int) error
}

type inventoryServiceImpl struct {
	db *gorm.DB
}

// NewInventoryService creates the stock adapter.
func NewInventoryService(db *gorm.DB) InventoryService {
	return &inventoryServiceImpl{db: db}
}

func (s *inventoryServiceImpl) FindProduct(ctx context.Context, id uint) (*model.Product, error) {
	var product model.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return &product, nil
}

// Reserve decrements stock with a guarded single-statement update. The
// WHERE clause both serializes concurrent reservations on the product row
// and rejects oversell: zero rows affected means the stock was short.
func (s *inventoryServiceImpl) Reserve(tx *gorm.DB, productID uint, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	res := tx.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		Update("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to reserve stock for product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// Release restores previously reserved stock.
func (s *inventoryServiceImpl) Release(tx *gorm.DB, productID uint, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	res := tx.Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to release stock for product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
