package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger_core/internal/domain" // Importing domain models

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"        // GORM ORM library
	"gorm.io/gorm/clause" // For SELECT ... FOR UPDATE
)

// MySQL server error numbers the store cares about.
const (
	mysqlErrDuplicateEntry  = 1062 // unique index violation
	mysqlErrLockWaitTimeout = 1205 // innodb_lock_wait_timeout exceeded
	mysqlErrDeadlock        = 1213 // deadlock detected, transaction rolled back
)

// GormStore is the production Store backed by GORM on MySQL. Row locks are
// SELECT ... FOR UPDATE, units of work are database transactions, and the
// unique index on transactions.reference_id enforces idempotency.
type GormStore struct {
	db       *gorm.DB
	lockWait time.Duration // bounded row-lock wait, applied per transaction
}

// NewGormStore wraps a GORM connection as a ledger Store. lockWait bounds
// how long a unit of work blocks on a wallet row lock before failing with
// ErrLockWait (rounded up to whole seconds, InnoDB granularity).
func NewGormStore(db *gorm.DB, lockWait time.Duration) *GormStore {
	return &GormStore{db: db, lockWait: lockWait}
}

// CreateWallet creates a zero-balance wallet for the user, or returns the
// existing one. The unique index on user_id is the authoritative 1:1 guard;
// a lost creation race falls back to fetching the winner.
func (s *GormStore) CreateWallet(ctx context.Context, userID uint) (*domain.Wallet, bool, error) {
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err == nil {
		return &wallet, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	wallet = domain.Wallet{UserID: userID, Balance: decimal.Zero}
	if err := s.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		if isMySQLError(err, mysqlErrDuplicateEntry) {
			// Concurrent creation for the same user; return the row that won.
			var existing domain.Wallet
			if err2 := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error; err2 == nil {
				return &existing, false, nil
			}
		}
		return nil, false, err
	}
	return &wallet, true, nil
}

// WalletByUser returns the user's wallet, or ErrNotFound.
func (s *GormStore) WalletByUser(ctx context.Context, userID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// History returns the wallet's transactions newest first plus the total
// count. The id tiebreak keeps ordering stable when two rows from one unit
// of work share a timestamp.
func (s *GormStore) History(ctx context.Context, walletID uint, limit, offset int) ([]domain.Transaction, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("wallet_id = ?", walletID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := s.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var transactions []domain.Transaction
	if err := query.Find(&transactions).Error; err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// ReferenceExists reports whether any committed transaction carries the
// reference id.
func (s *GormStore) ReferenceExists(ctx context.Context, referenceID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("reference_id = ?", referenceID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Atomic runs fn inside a database transaction. Any error from fn or from
// the commit rolls everything back; MySQL lock-wait and duplicate-key
// failures are translated to the store's sentinel errors.
func (s *GormStore) Atomic(ctx context.Context, fn func(uow UnitOfWork) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.lockWait > 0 {
			// innodb_lock_wait_timeout is session-scoped and the session
			// outlives the transaction in the connection pool, so the
			// previous value is put back before the connection is returned.
			var prev int
			if err := tx.Raw("SELECT @@innodb_lock_wait_timeout").Scan(&prev).Error; err != nil {
				return fmt.Errorf("read lock wait timeout: %w", err)
			}
			secs := int((s.lockWait + time.Second - 1) / time.Second)
			if err := tx.Exec("SET innodb_lock_wait_timeout = ?", secs).Error; err != nil {
				return fmt.Errorf("set lock wait timeout: %w", err)
			}
			defer tx.Exec("SET innodb_lock_wait_timeout = ?", prev)
		}
		return fn(&gormUnitOfWork{tx: tx})
	})
	return translateMySQLError(err)
}

// gormUnitOfWork scopes mutations to one database transaction.
type gormUnitOfWork struct {
	tx *gorm.DB
}

// LockWallet takes the row lock with SELECT ... FOR UPDATE and returns the
// locked row. The lock is released when the transaction commits or rolls
// back.
func (u *gormUnitOfWork) LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := u.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, "id = ?", walletID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, translateMySQLError(err)
	}
	return &wallet, nil
}

// SaveBalance persists a new balance for a locked wallet row.
func (u *gormUnitOfWork) SaveBalance(ctx context.Context, walletID uint, balance decimal.Decimal) error {
	res := u.tx.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", balance)
	if res.Error != nil {
		return translateMySQLError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertTransaction appends a ledger row. A duplicate reference id trips
// the unique index and surfaces as ErrDuplicateReference.
func (u *gormUnitOfWork) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if err := u.tx.WithContext(ctx).Create(txn).Error; err != nil {
		return translateMySQLError(err)
	}
	return nil
}

// translateMySQLError maps MySQL server errors onto the store's sentinels.
// Other errors (including sentinels already returned from inside a unit of
// work) pass through unchanged.
func translateMySQLError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %v", ErrDuplicateReference, err)
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock:
			return fmt.Errorf("%w: %v", ErrLockWait, err)
		}
	}
	return err
}

func isMySQLError(err error, number uint16) bool {
	var mysqlErr *gomysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == number
}
