package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/model"
)

func TestTransferOrderAssetsSkipsUntracedItems(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{}
	svc := NewAssetTransferService(db, ledger, zap.NewNop(), 0)

	order := &model.Order{
		OrderNumber:     "M1700000000000abcd1234",
		Status:          model.StatusPaid,
		ShippingAddress: "12 Mountain Rd",
		ShippingName:    "A. Customer",
		ShippingPhone:   "13800000000",
		Items: []model.OrderItem{
			{ProductID: 1, ProductName: "Scarf", Quantity: 1, AssetID: "asset-1"},
			{ProductID: 2, ProductName: "Plain cloth", Quantity: 2},
		},
	}
	require.NoError(t, db.Create(order).Error)

	svc.TransferOrderAssets(order, "ledger-user-1")
	svc.Wait()

	assert.Equal(t, []string{"asset-1->ledger-user-1"}, ledger.transfers)

	var stored model.Order
	require.NoError(t, db.First(&stored, order.ID).Error)
	assert.Equal(t, "tx-asset-1", stored.TransactionHash)
}

func TestRecordTransactionHashKeepsFirstWrite(t *testing.T) {
	db := newTestDB(t)
	svc := NewAssetTransferService(db, &fakeLedger{}, zap.NewNop(), 0).(*assetTransferServiceImpl)

	order := &model.Order{
		OrderNumber:     "M1700000000001abcd1234",
		Status:          model.StatusPaid,
		ShippingAddress: "12 Mountain Rd",
		ShippingName:    "A. Customer",
		ShippingPhone:   "13800000000",
	}
	require.NoError(t, db.Create(order).Error)

	ctx := context.Background()
	require.NoError(t, svc.recordTransactionHash(ctx, order.ID, "tx-first"))
	require.NoError(t, svc.recordTransactionHash(ctx, order.ID, "tx-second"))

	var stored model.Order
	require.NoError(t, db.First(&stored, order.ID).Error)
	assert.Equal(t, "tx-first", stored.TransactionHash)
}

func TestQueryAsset(t *testing.T) {
	db := newTestDB(t)
	svc := NewAssetTransferService(db, &fakeLedger{}, zap.NewNop(), 0)

	asset, err := svc.QueryAsset(context.Background(), "asset-9")
	require.NoError(t, err)
	assert.Equal(t, "asset-9", asset.ID)
}
