package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is a reference entity; account management is handled by a separate
// service. The settlement engine only needs the ledger identity that
// receives transferred assets.
type User struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Username string `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	// LedgerIdentity is the user's identity on the distributed ledger,
	// the transfer target for purchased assets.
	LedgerIdentity string    `json:"ledger_identity" gorm:"type:varchar(128)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// JWTClaims is the identity resolved once at the API boundary and passed
// explicitly into the services.
type JWTClaims struct {
	UserID         uint   `json:"user_id"`
	Username       string `json:"username"`
	LedgerIdentity string `json:"ledger_identity"`
	Admin          bool   `json:"admin"`
	jwt.RegisteredClaims
}
