package engine

import (
	"context"
	"errors"

	"ledger_core/internal/domain"
	"ledger_core/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus" // Logging library
)

// Deposit credits amount to the user's wallet and records a single credit
// transaction. referenceID is optional; when supplied it gets the same
// duplicate suppression as Transfer, so retried deposits are safe too.
func (s *Service) Deposit(ctx context.Context, userID uint, amount decimal.Decimal, referenceID string) (*DepositResult, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	if referenceID != "" {
		applied, err := s.store.ReferenceExists(ctx, referenceID)
		if err != nil {
			return nil, err
		}
		if applied {
			logrus.WithFields(logrus.Fields{
				"user_id":      userID,
				"reference_id": referenceID,
			}).Info("Deposit already applied")
			return &DepositResult{AlreadyApplied: true}, nil
		}
	}

	wallet, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var result DepositResult
	err = s.store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		locked, err := uow.LockWallet(ctx, wallet.ID)
		if err != nil {
			return err
		}
		balance := locked.Balance.Add(amount)
		if err := uow.SaveBalance(ctx, locked.ID, balance); err != nil {
			return err
		}
		credit := domain.Transaction{
			WalletID:    locked.ID,
			Amount:      amount,
			Kind:        domain.KindCredit,
			Description: "Money added to wallet",
			ReferenceID: refPtr(referenceID),
		}
		if err := uow.InsertTransaction(ctx, &credit); err != nil {
			return err
		}
		result.Balance = balance
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			logrus.WithFields(logrus.Fields{
				"user_id":      userID,
				"reference_id": referenceID,
			}).Info("Deposit already applied")
			return &DepositResult{AlreadyApplied: true}, nil
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":      userID,
		"amount":       amount.String(),
		"reference_id": referenceID,
	}).Info("Deposit completed")
	return &result, nil
}
