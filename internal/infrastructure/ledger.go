package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/metrics"
	"github.com/crafttrace/settlement/internal/model"
)

// FabricGatewayClient talks to the asset chaincode through a Fabric
// gateway REST facade. A circuit breaker shields the settlement path
// from a struggling ledger: once it opens, calls fail fast instead of
// piling up on timeouts.
type FabricGatewayClient struct {
	cfg     LedgerConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     *zap.Logger
}

func NewFabricGatewayClient(cfg LedgerConfig, log *zap.Logger) *FabricGatewayClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &FabricGatewayClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.Named("ledger"),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name: "fabric-gateway",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

type chaincodeRequest struct {
	Function string   `json:"function"`
	Args     []string `json:"args"`
}

type chaincodeResponse struct {
	TransactionID string          `json:"transaction_id"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
}

// TransferAsset invokes the TransferAsset chaincode function and returns
// the ledger transaction id.
func (c *FabricGatewayClient) TransferAsset(ctx context.Context, assetID, newOwner string) (string, error) {
	resp, err := c.call(ctx, "invoke", "TransferAsset", assetID, newOwner)
	if err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("ledger: transfer of %s returned no transaction id", assetID)
	}
	return resp.TransactionID, nil
}

// QueryAsset reads the asset's current ledger state.
func (c *FabricGatewayClient) QueryAsset(ctx context.Context, assetID string) (*model.AssetSnapshot, error) {
	resp, err := c.call(ctx, "query", "QueryAsset", assetID)
	if err != nil {
		return nil, err
	}
	var asset model.AssetSnapshot
	if err := json.Unmarshal(resp.Payload, &asset); err != nil {
		return nil, fmt.Errorf("ledger: malformed asset payload for %s: %w", assetID, err)
	}
	return &asset, nil
}

func (c *FabricGatewayClient) call(ctx context.Context, action, function string, args ...string) (*chaincodeResponse, error) {
	url := fmt.Sprintf("%s/channels/%s/chaincodes/%s/%s", c.cfg.BaseURL, c.cfg.Channel, c.cfg.Chaincode, action)
	payload, err := json.Marshal(chaincodeRequest{Function: function, Args: args})
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to encode %s request: %w", function, err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, raw)
		}
		return raw, nil
	})
	metrics.LedgerRequestDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("ledger: %s failed: %w", function, err)
	}

	var result chaincodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("ledger: malformed %s response: %w", function, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ledger: %s rejected: %s", function, result.Error)
	}
	return &result, nil
}
