package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/crafttrace/settlement/internal/metrics"
	"github.com/crafttrace/settlement/internal/model"
)

// LedgerClient talks to the asset ledger. Implementations must be safe
// for concurrent use.
type LedgerClient interface {
	// TransferAsset moves ownership to newOwner and returns the ledger
	// transaction hash.
	TransferAsset(ctx context.Context, assetID, newOwner string) (string, error)
	QueryAsset(ctx context.Context, assetID string) (*model.AssetSnapshot, error)
}

// AssetTransferService moves ledger ownership of purchased assets to
// the buyer after payment settles. Transfers run asynchronously and
// their failures never affect order state: an order stays paid even
// when the ledger is down.
type AssetTransferService interface {
	TransferOrderAssets(order *model.Order, newOwner string)
	QueryAsset(ctx context.Context, assetID string) (*model.AssetSnapshot, error)
	// Wait blocks until all in-flight transfers finish. Used at
	// shutdown and in tests.
	Wait()
}

type assetTransferServiceImpl struct {
	db      *gorm.DB
	ledger  LedgerClient
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAssetTransferService(db *gorm.DB, ledger LedgerClient, log *zap.Logger, timeout time.Duration) AssetTransferService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &assetTransferServiceImpl{
		db:      db,
		ledger:  ledger,
		log:     log.Named("asset-transfer"),
		timeout: timeout,
	}
}

// TransferOrderAssets spawns one transfer per asset-bearing item.
// Items without an asset id are plain goods and are skipped. The
// caller's context is not reused: transfers outlive the request that
// triggered them.
func (s *assetTransferServiceImpl) TransferOrderAssets(order *model.Order, newOwner string) {
	for _, item := range order.Items {
		if item.AssetID == "" {
			continue
		}
		s.wg.Add(1)
		go s.transfer(order.ID, item.AssetID, newOwner)
	}
}

func (s *assetTransferServiceImpl) transfer(orderID uint, assetID, newOwner string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	txHash, err := s.ledger.TransferAsset(ctx, assetID, newOwner)
	if err != nil {
		metrics.AssetTransfers.WithLabelValues("failure").Inc()
		s.log.Error("asset transfer failed",
			zap.Uint("order_id", orderID),
			zap.String("asset_id", assetID),
			zap.String("new_owner", newOwner),
			zap.Error(err))
		return
	}
	metrics.AssetTransfers.WithLabelValues("success").Inc()

	if err := s.recordTransactionHash(ctx, orderID, txHash); err != nil {
		s.log.Error("failed to record transaction hash",
			zap.Uint("order_id", orderID),
			zap.String("tx_hash", txHash),
			zap.Error(err))
	}
}

// recordTransactionHash stores the first hash to land for an order and
// leaves an existing one untouched.
func (s *assetTransferServiceImpl) recordTransactionHash(ctx context.Context, orderID uint, txHash string) error {
	result := s.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND (transaction_hash IS NULL OR transaction_hash = '')", orderID).
		Update("transaction_hash", txHash)
	if result.Error != nil {
		return fmt.Errorf("failed to update order %d: %w", orderID, result.Error)
	}
	return nil
}

func (s *assetTransferServiceImpl) QueryAsset(ctx context.Context, assetID string) (*model.AssetSnapshot, error) {
	asset, err := s.ledger.QueryAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset %s: %w", assetID, err)
	}
	return asset, nil
}

func (s *assetTransferServiceImpl) Wait() {
	s.wg.Wait()
}
