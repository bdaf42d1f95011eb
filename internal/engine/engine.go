package engine

import (
	"context"
	"errors"
	"fmt"

	"ledger_core/internal/ledger"

	"github.com/shopspring/decimal"
)

// Errors reported for rejected operations. Store-level failures
// (ledger.ErrNotFound, ledger.ErrLockWait) pass through unchanged.
var (
	// ErrNonPositiveAmount is returned when an amount is zero or negative.
	ErrNonPositiveAmount = errors.New("amount must be greater than zero")
	// ErrSelfTransfer is returned when sender and receiver are the same user.
	ErrSelfTransfer = errors.New("cannot transfer to the same wallet")
	// ErrInsufficientBalance is returned when the sender's locked balance
	// cannot cover the transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// NameResolver turns a user id into a display name for transaction
// descriptions ("Sent to alice"). The users table belongs to the identity
// collaborator, so the engine only sees it through this function.
type NameResolver func(ctx context.Context, userID uint) (string, error)

// Service runs the money-movement protocol on top of a ledger Store: atomic
// transfers with deterministic lock ordering, deposits, wallet provisioning
// and snapshot reads.
type Service struct {
	store ledger.Store
	names NameResolver
}

// New builds a Service over the given store. names may be nil, in which
// case descriptions fall back to numeric user ids.
func New(store ledger.Store, names NameResolver) *Service {
	return &Service{store: store, names: names}
}

// displayName resolves a user's name for a ledger description, falling back
// to the numeric id when no resolver is wired or the lookup fails. The
// description is cosmetic; a failed lookup must not fail the transfer.
func (s *Service) displayName(ctx context.Context, userID uint) string {
	if s.names != nil {
		if name, err := s.names(ctx, userID); err == nil && name != "" {
			return name
		}
	}
	return fmt.Sprintf("user %d", userID)
}

// TransferResult is the outcome of a Transfer call.
type TransferResult struct {
	// AlreadyApplied is true when the reference id had been used before and
	// the call changed nothing.
	AlreadyApplied bool
	// Post-transfer balances; zero when AlreadyApplied.
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal
}

// DepositResult is the outcome of a Deposit call.
type DepositResult struct {
	AlreadyApplied bool
	// Balance after the credit; zero when AlreadyApplied.
	Balance decimal.Decimal
}

// refPtr maps the empty reference ("no idempotency guard requested") to a
// NULL column value.
func refPtr(referenceID string) *string {
	if referenceID == "" {
		return nil
	}
	return &referenceID
}
