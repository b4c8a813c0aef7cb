package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crafttrace/settlement/internal/model"
)

func TestCartAddItem(t *testing.T) {
	db := newTestDB(t)
	cart := NewCartService(db)
	ctx := context.Background()

	product := &model.Product{Name: "Scarf", Price: decimal.RequireFromString("59.90"), Stock: 3}
	require.NoError(t, db.Create(product).Error)

	item, err := cart.AddItem(ctx, 1, product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)

	// Same product merges into the existing line.
	item, err = cart.AddItem(ctx, 1, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	// Bumping past available stock is rejected.
	_, err = cart.AddItem(ctx, 1, product.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = cart.AddItem(ctx, 1, product.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = cart.AddItem(ctx, 1, 999, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)

	items, err := cart.ListItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestCartUpdateAndRemove(t *testing.T) {
	db := newTestDB(t)
	cart := NewCartService(db)
	ctx := context.Background()

	product := &model.Product{Name: "Scarf", Price: decimal.RequireFromString("59.90"), Stock: 10}
	require.NoError(t, db.Create(product).Error)
	_, err := cart.AddItem(ctx, 1, product.ID, 2)
	require.NoError(t, err)

	item, err := cart.UpdateQuantity(ctx, 1, product.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)

	_, err = cart.UpdateQuantity(ctx, 1, 999, 5)
	assert.ErrorIs(t, err, ErrCartItemNotFound)

	require.NoError(t, cart.RemoveItem(ctx, 1, product.ID))
	assert.ErrorIs(t, cart.RemoveItem(ctx, 1, product.ID), ErrCartItemNotFound)

	items, err := cart.ListItems(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCartClear(t *testing.T) {
	db := newTestDB(t)
	cart := NewCartService(db)
	ctx := context.Background()

	for _, name := range []string{"Scarf", "Cloth"} {
		product := &model.Product{Name: name, Price: decimal.RequireFromString("10.00"), Stock: 10}
		require.NoError(t, db.Create(product).Error)
		_, err := cart.AddItem(ctx, 1, product.ID, 1)
		require.NoError(t, err)
	}

	require.NoError(t, cart.Clear(ctx, 1))
	items, err := cart.ListItems(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}
