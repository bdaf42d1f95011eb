package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds
const (
	KindCredit = "credit" // Money coming into the wallet
	KindDebit  = "debit"  // Money going out of the wallet
)

// Transaction Model. Append-only ledger entry: one row per credit or debit
// against a single wallet. A transfer writes two rows (debit + credit)
// sharing one ReferenceID. Rows are never updated or deleted.
type Transaction struct {
	ID          uint            `gorm:"primaryKey" json:"-"`                       // Primary key, monotonic per insertion
	WalletID    uint            `gorm:"index;not null" json:"-"`                   // Owning wallet
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"` // Always positive, Kind says the direction
	Kind        string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_txn_reference_kind,priority:2" json:"kind"`
	Description string          `gorm:"size:255" json:"description"` // Free text, e.g. "Sent to user 7"
	// Idempotency key. Unique per (reference, kind) system-wide: a transfer's
	// debit+credit pair shares one reference, a retried transfer collides.
	ReferenceID *string   `gorm:"size:100;uniqueIndex:idx_txn_reference_kind,priority:1" json:"reference_id,omitempty"`
	CreatedAt   time.Time `json:"timestamp"`
}
