package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger_core/internal/domain"
	"ledger_core/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newStoreWithWallet(t *testing.T, lockWait time.Duration) (*ledger.MemoryStore, *domain.Wallet) {
	t.Helper()
	store := ledger.NewMemoryStore(lockWait)
	wallet, created, err := store.CreateWallet(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, created)
	return store, wallet
}

func strPtr(s string) *string { return &s }

func TestCreateWalletOncePerUser(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Second)

	again, created, err := store.CreateWallet(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, wallet.ID, again.ID)
	require.True(t, again.Balance.IsZero())
}

func TestWalletByUserNotFound(t *testing.T) {
	t.Parallel()
	store := ledger.NewMemoryStore(time.Second)
	_, err := store.WalletByUser(context.Background(), 99)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestAtomicCommitsAllWrites(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Second)
	ctx := context.Background()

	err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		locked, err := uow.LockWallet(ctx, wallet.ID)
		if err != nil {
			return err
		}
		if err := uow.SaveBalance(ctx, locked.ID, decimal.NewFromInt(75)); err != nil {
			return err
		}
		return uow.InsertTransaction(ctx, &domain.Transaction{
			WalletID:    locked.ID,
			Amount:      decimal.NewFromInt(75),
			Kind:        domain.KindCredit,
			ReferenceID: strPtr("commit-ref"),
		})
	})
	require.NoError(t, err)

	committed, err := store.WalletByUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, committed.Balance.Equal(decimal.NewFromInt(75)))
	exists, err := store.ReferenceExists(ctx, "commit-ref")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestAtomicRollbackDiscardsAllWrites(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Second)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		if _, err := uow.LockWallet(ctx, wallet.ID); err != nil {
			return err
		}
		if err := uow.SaveBalance(ctx, wallet.ID, decimal.NewFromInt(999)); err != nil {
			return err
		}
		if err := uow.InsertTransaction(ctx, &domain.Transaction{
			WalletID:    wallet.ID,
			Amount:      decimal.NewFromInt(999),
			Kind:        domain.KindCredit,
			ReferenceID: strPtr("rollback-ref"),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	committed, err := store.WalletByUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, committed.Balance.IsZero(), "balance write must be discarded")
	exists, err := store.ReferenceExists(ctx, "rollback-ref")
	require.NoError(t, err)
	require.False(t, exists, "reference from a rolled-back unit of work must stay free")
	_, total, err := store.History(ctx, wallet.ID, 0, 0)
	require.NoError(t, err)
	require.Zero(t, total)
}

// A transfer's debit and credit share one reference; a second row with the
// same (reference, kind) is rejected at commit.
func TestReferenceUniquePerKind(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Second)
	ctx := context.Background()

	insert := func(kind string) error {
		return store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
			return uow.InsertTransaction(ctx, &domain.Transaction{
				WalletID:    wallet.ID,
				Amount:      decimal.NewFromInt(10),
				Kind:        kind,
				ReferenceID: strPtr("pair-ref"),
			})
		})
	}

	require.NoError(t, insert(domain.KindDebit))
	require.NoError(t, insert(domain.KindCredit), "the pair's other half must fit")
	require.ErrorIs(t, insert(domain.KindDebit), ledger.ErrDuplicateReference)
	require.ErrorIs(t, insert(domain.KindCredit), ledger.ErrDuplicateReference)
}

func TestReferenceCheckedWithinUnitOfWork(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Second)
	ctx := context.Background()

	err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		txn := domain.Transaction{
			WalletID:    wallet.ID,
			Amount:      decimal.NewFromInt(10),
			Kind:        domain.KindDebit,
			ReferenceID: strPtr("same-ref"),
		}
		if err := uow.InsertTransaction(ctx, &txn); err != nil {
			return err
		}
		dup := txn
		return uow.InsertTransaction(ctx, &dup)
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateReference)
}

func TestNilReferencesNeverCollide(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
			return uow.InsertTransaction(ctx, &domain.Transaction{
				WalletID: wallet.ID,
				Amount:   decimal.NewFromInt(1),
				Kind:     domain.KindCredit,
			})
		})
		require.NoError(t, err)
	}
	_, total, err := store.History(ctx, wallet.ID, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
}

func TestLockWalletBoundedWait(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, 50*time.Millisecond)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
			if _, err := uow.LockWallet(ctx, wallet.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	// The row is locked by the other unit of work: bounded wait, then fail.
	err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		_, err := uow.LockWallet(ctx, wallet.ID)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrLockWait)

	close(release)
	require.NoError(t, <-done)

	// Lock released on commit; the wallet is usable again.
	err = store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		_, err := uow.LockWallet(ctx, wallet.ID)
		return err
	})
	require.NoError(t, err)
}

func TestLockWalletHonorsContext(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Minute)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	background := context.Background()
	go func() {
		done <- store.Atomic(background, func(uow ledger.UnitOfWork) error {
			if _, err := uow.LockWallet(background, wallet.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	ctx, cancel := context.WithTimeout(background, 20*time.Millisecond)
	defer cancel()
	err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		_, err := uow.LockWallet(ctx, wallet.ID)
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestLockWalletUnknownWallet(t *testing.T) {
	t.Parallel()
	store := ledger.NewMemoryStore(time.Second)
	ctx := context.Background()
	err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		_, err := uow.LockWallet(ctx, 123)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestHistoryOrderAndCounts(t *testing.T) {
	t.Parallel()
	store, wallet := newStoreWithWallet(t, time.Second)
	ctx := context.Background()

	amounts := []int64{10, 20, 30, 40}
	for _, amount := range amounts {
		err := store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
			return uow.InsertTransaction(ctx, &domain.Transaction{
				WalletID: wallet.ID,
				Amount:   decimal.NewFromInt(amount),
				Kind:     domain.KindCredit,
			})
		})
		require.NoError(t, err)
	}

	page, total, err := store.History(ctx, wallet.ID, 2, 0)
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, page, 2)
	require.True(t, page[0].Amount.Equal(decimal.NewFromInt(40)), "newest first")
	require.True(t, page[1].Amount.Equal(decimal.NewFromInt(30)))

	rest, _, err := store.History(ctx, wallet.ID, 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.True(t, rest[1].Amount.Equal(decimal.NewFromInt(10)))

	// Contract edges: limit <= 0 means no limit, negative offset reads from
	// the start.
	all, total, err := store.History(ctx, wallet.ID, 0, -20)
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, all, 4)
}
