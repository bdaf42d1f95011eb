package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet Model. One wallet per user; balance never goes below zero and is
// only mutated by the engine while the row is locked.
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`       // Primary key
	UserID    uint            `gorm:"uniqueIndex" json:"user_id"` // Foreign key to User, one wallet per user
	Balance   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
