package engine

import (
	"context"

	"ledger_core/internal/domain"
)

// Wallet returns a committed snapshot of the user's wallet. No locks are
// taken; concurrent transfers are not blocked.
func (s *Service) Wallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return s.store.WalletByUser(ctx, userID)
}

// History returns a page of the user's transactions newest first, plus the
// total count across all pages. Pages are 1-based; anything lower is read
// as the first page.
func (s *Service) History(ctx context.Context, userID uint, page, pageSize int) ([]domain.Transaction, int64, error) {
	wallet, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	return s.store.History(ctx, wallet.ID, pageSize, offset)
}
