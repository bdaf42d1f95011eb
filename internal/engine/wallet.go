package engine

import (
	"context"

	"ledger_core/internal/domain"

	"github.com/sirupsen/logrus" // Logging library
)

// CreateWalletForUser provisions the user's wallet with a zero balance.
// The user-creation workflow calls this right after creating the user; a
// repeated call is a no-op returning the existing wallet, so the workflow
// can retry without risking a second wallet.
func (s *Service) CreateWalletForUser(ctx context.Context, userID uint) (*domain.Wallet, error) {
	wallet, created, err := s.store.CreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if created {
		logrus.WithFields(logrus.Fields{
			"user_id":   userID,
			"wallet_id": wallet.ID,
		}).Info("Wallet created")
	}
	return wallet, nil
}
