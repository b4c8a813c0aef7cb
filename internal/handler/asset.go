package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crafttrace/settlement/internal/service"
)

// AssetHandler exposes read-only ledger provenance lookups
type AssetHandler struct {
	assets service.AssetTransferService
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(assets service.AssetTransferService) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// Get returns the current ledger record for an asset, including its
// ownership history
func (h *AssetHandler) Get(c *gin.Context) {
	assetID := c.Param("assetId")
	if assetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Asset id required"})
		return
	}
	asset, err := h.assets.QueryAsset(c.Request.Context(), assetID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Ledger query failed"})
		return
	}
	c.JSON(http.StatusOK, asset)
}
