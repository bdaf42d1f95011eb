package engine

import (
	"context"
	"errors"
	"fmt"

	"ledger_core/internal/domain"
	"ledger_core/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus" // Logging library
)

// Transfer moves amount from the sender's wallet to the receiver's inside a
// single unit of work. A non-empty referenceID makes the call idempotent:
// retries return AlreadyApplied instead of moving funds twice.
//
// Both wallet rows are locked in ascending wallet-id order regardless of
// which side is the sender. Locking sender-first would deadlock as soon as
// two opposite-direction transfers between the same pair run concurrently.
func (s *Service) Transfer(ctx context.Context, senderUserID, receiverUserID uint, amount decimal.Decimal, referenceID string) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if senderUserID == receiverUserID {
		return nil, ErrSelfTransfer
	}

	// Fast path: a committed transaction already carries this reference.
	// Only an optimization; the uniqueness constraint checked at commit is
	// what actually closes the race window.
	if referenceID != "" {
		applied, err := s.store.ReferenceExists(ctx, referenceID)
		if err != nil {
			return nil, err
		}
		if applied {
			logrus.WithFields(logrus.Fields{
				"sender_user_id":   senderUserID,
				"receiver_user_id": receiverUserID,
				"reference_id":     referenceID,
			}).Info("Transfer already applied")
			return &TransferResult{AlreadyApplied: true}, nil
		}
	}

	// Resolve both wallets up front so the lock order below can be decided
	// before anything is locked.
	senderWallet, err := s.store.WalletByUser(ctx, senderUserID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	receiverWallet, err := s.store.WalletByUser(ctx, receiverUserID)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	var result TransferResult
	err = s.store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		first, second := senderWallet.ID, receiverWallet.ID
		if second < first {
			first, second = second, first
		}
		locked := make(map[uint]*domain.Wallet, 2)
		for _, walletID := range []uint{first, second} {
			wallet, err := uow.LockWallet(ctx, walletID)
			if err != nil {
				return err
			}
			locked[walletID] = wallet
		}
		sender := locked[senderWallet.ID]
		receiver := locked[receiverWallet.ID]

		if sender.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		senderBalance := sender.Balance.Sub(amount)
		receiverBalance := receiver.Balance.Add(amount)
		if err := uow.SaveBalance(ctx, sender.ID, senderBalance); err != nil {
			return err
		}
		if err := uow.SaveBalance(ctx, receiver.ID, receiverBalance); err != nil {
			return err
		}

		reference := refPtr(referenceID)
		debit := domain.Transaction{
			WalletID:    sender.ID,
			Amount:      amount,
			Kind:        domain.KindDebit,
			Description: "Sent to " + s.displayName(ctx, receiverUserID),
			ReferenceID: reference,
		}
		if err := uow.InsertTransaction(ctx, &debit); err != nil {
			return err
		}
		credit := domain.Transaction{
			WalletID:    receiver.ID,
			Amount:      amount,
			Kind:        domain.KindCredit,
			Description: "Received from " + s.displayName(ctx, senderUserID),
			ReferenceID: reference,
		}
		if err := uow.InsertTransaction(ctx, &credit); err != nil {
			return err
		}

		result.SenderBalance = senderBalance
		result.ReceiverBalance = receiverBalance
		return nil
	})
	if err != nil {
		// A concurrent retry with the same reference won the commit race;
		// everything rolled back, same outcome as the fast path.
		if errors.Is(err, ledger.ErrDuplicateReference) {
			logrus.WithFields(logrus.Fields{
				"sender_user_id":   senderUserID,
				"receiver_user_id": receiverUserID,
				"reference_id":     referenceID,
			}).Info("Transfer already applied")
			return &TransferResult{AlreadyApplied: true}, nil
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"sender_user_id":   senderUserID,
		"receiver_user_id": receiverUserID,
		"amount":           amount.String(),
		"reference_id":     referenceID,
	}).Info("Transfer completed")
	return &result, nil
}
