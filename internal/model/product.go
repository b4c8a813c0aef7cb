package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog contract the settlement engine consumes: price,
// stock and the optional ledger asset id. Catalog management itself lives
// elsewhere.
type Product struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"type:varchar(200);not null"`
	Description string          `json:"description" gorm:"type:varchar(1000)"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	// PrimaryImage is snapshotted onto order items at checkout.
	PrimaryImage string `json:"primary_image" gorm:"type:varchar(500)"`
	// AssetID is the ledger provenance record for a traced handcrafted
	// item, empty for ordinary goods.
	AssetID   string    `json:"asset_id" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Product) TableName() string { return "products" }
