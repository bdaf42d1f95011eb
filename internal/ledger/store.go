package ledger

import (
	"context"
	"errors"

	"ledger_core/internal/domain" // Importing domain models

	"github.com/shopspring/decimal"
)

// Sentinel errors returned by Store implementations. Callers match them
// with errors.Is.
var (
	// ErrNotFound is returned when a wallet lookup misses.
	ErrNotFound = errors.New("wallet not found")
	// ErrDuplicateReference is returned when inserting a transaction whose
	// reference id already exists anywhere in the ledger.
	ErrDuplicateReference = errors.New("duplicate transaction reference")
	// ErrLockWait is returned when a wallet row lock cannot be acquired
	// within the store's bounded wait. The caller may retry.
	ErrLockWait = errors.New("wallet lock wait timed out")
)

// UnitOfWork groups mutations so that either all of them commit or none do.
// It is only valid inside the function passed to Store.Atomic.
type UnitOfWork interface {
	// LockWallet takes the exclusive row lock on a wallet and returns its
	// current row. The lock is held until the unit of work finishes.
	// Blocks other units of work touching the same wallet; fails with
	// ErrLockWait if the lock cannot be taken within the bounded wait.
	LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error)

	// SaveBalance writes a new balance for a wallet. The caller must hold
	// the wallet's lock via LockWallet.
	SaveBalance(ctx context.Context, walletID uint, balance decimal.Decimal) error

	// InsertTransaction appends a ledger entry. A non-nil ReferenceID that
	// already exists fails with ErrDuplicateReference; the uniqueness check
	// is re-run when the unit of work commits.
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
}

// Store is the durable ledger: wallets plus their append-only transaction
// log. Reads outside Atomic observe committed state only.
type Store interface {
	// CreateWallet creates the wallet for a user with a zero balance.
	// If the user already has one it returns the existing wallet and
	// created=false, so provisioning can be retried safely.
	CreateWallet(ctx context.Context, userID uint) (wallet *domain.Wallet, created bool, err error)

	// WalletByUser returns the wallet owned by a user, or ErrNotFound.
	WalletByUser(ctx context.Context, userID uint) (*domain.Wallet, error)

	// History returns a wallet's transactions newest first, plus the total
	// count for pagination. limit <= 0 means no limit; a negative offset is
	// treated as 0.
	History(ctx context.Context, walletID uint, limit, offset int) ([]domain.Transaction, int64, error)

	// ReferenceExists reports whether any committed transaction carries the
	// reference id. Used as a fast-path idempotency check; the insert-time
	// uniqueness constraint stays authoritative.
	ReferenceExists(ctx context.Context, referenceID string) (bool, error)

	// Atomic runs fn inside a unit of work. If fn returns an error, or the
	// commit fails, every write made through the UnitOfWork is rolled back.
	Atomic(ctx context.Context, fn func(uow UnitOfWork) error) error
}
