package ledger_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"ledger_core/internal/domain"
	"ledger_core/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newGormStore connects to the MySQL instance named by TEST_DB_DSN and
// resets the schema. Tests in this file are skipped when the variable is
// unset, so the normal test run stays self-contained.
func newGormStore(t *testing.T) (*ledger.GormStore, *gorm.DB) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping MySQL store tests")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// One pooled connection so session-level effects are observable.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrator().DropTable(&domain.Transaction{}, &domain.Wallet{}, &domain.User{}))
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Wallet{}, &domain.Transaction{}))
	return ledger.NewGormStore(db, 2*time.Second), db
}

func TestGormStoreWalletLifecycle(t *testing.T) {
	store, _ := newGormStore(t)
	ctx := context.Background()

	wallet, created, err := store.CreateWallet(ctx, 1)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, wallet.Balance.IsZero())

	again, created, err := store.CreateWallet(ctx, 1)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, wallet.ID, again.ID)

	_, err = store.WalletByUser(ctx, 2)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestGormStoreAtomicTransferShape(t *testing.T) {
	store, _ := newGormStore(t)
	ctx := context.Background()

	sender, _, err := store.CreateWallet(ctx, 1)
	require.NoError(t, err)
	receiver, _, err := store.CreateWallet(ctx, 2)
	require.NoError(t, err)

	ref := "gorm-ref"
	err = store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		if _, err := uow.LockWallet(ctx, sender.ID); err != nil {
			return err
		}
		if _, err := uow.LockWallet(ctx, receiver.ID); err != nil {
			return err
		}
		if err := uow.SaveBalance(ctx, receiver.ID, decimal.NewFromInt(40)); err != nil {
			return err
		}
		if err := uow.InsertTransaction(ctx, &domain.Transaction{
			WalletID: sender.ID, Amount: decimal.NewFromInt(40),
			Kind: domain.KindDebit, ReferenceID: &ref,
		}); err != nil {
			return err
		}
		return uow.InsertTransaction(ctx, &domain.Transaction{
			WalletID: receiver.ID, Amount: decimal.NewFromInt(40),
			Kind: domain.KindCredit, ReferenceID: &ref,
		})
	})
	require.NoError(t, err)

	exists, err := store.ReferenceExists(ctx, ref)
	require.NoError(t, err)
	require.True(t, exists)

	// Retrying the debit trips the unique index and rolls everything back.
	err = store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		if err := uow.InsertTransaction(ctx, &domain.Transaction{
			WalletID: sender.ID, Amount: decimal.NewFromInt(40),
			Kind: domain.KindDebit, ReferenceID: &ref,
		}); err != nil {
			return err
		}
		return uow.SaveBalance(ctx, sender.ID, decimal.NewFromInt(999))
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateReference)
	committed, err := store.WalletByUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, committed.Balance.IsZero(), "rolled-back balance write must not persist")

	// limit <= 0 means no limit, matching the memory store.
	rows, total, err := store.History(ctx, receiver.ID, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
}

func TestGormStoreRestoresLockWaitTimeout(t *testing.T) {
	store, db := newGormStore(t)
	ctx := context.Background()

	var before int
	require.NoError(t, db.Raw("SELECT @@innodb_lock_wait_timeout").Scan(&before).Error)

	wallet, _, err := store.CreateWallet(ctx, 1)
	require.NoError(t, err)
	err = store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		_, err := uow.LockWallet(ctx, wallet.ID)
		return err
	})
	require.NoError(t, err)

	// Single-connection pool: this reads the session Atomic just used.
	var after int
	require.NoError(t, db.Raw("SELECT @@innodb_lock_wait_timeout").Scan(&after).Error)
	require.Equal(t, before, after, "session lock wait timeout must not leak out of Atomic")
}

func TestGormStoreRollbackOnError(t *testing.T) {
	store, _ := newGormStore(t)
	ctx := context.Background()

	wallet, _, err := store.CreateWallet(ctx, 1)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Atomic(ctx, func(uow ledger.UnitOfWork) error {
		if err := uow.SaveBalance(ctx, wallet.ID, decimal.NewFromInt(500)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	committed, err := store.WalletByUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, committed.Balance.IsZero())
}
