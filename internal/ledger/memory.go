package ledger

import (
	"context"
	"sync"
	"time"

	"ledger_core/internal/domain" // Importing domain models

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store with the same contract as GormStore:
// blocking per-wallet locks with a bounded wait, all-or-nothing units of
// work, and (reference, kind) uniqueness enforced at commit. Used by the
// engine tests; reads observe committed state only.
type MemoryStore struct {
	mu           sync.RWMutex
	wallets      map[uint]domain.Wallet // committed rows by wallet id
	byUser       map[uint]uint          // user id -> wallet id
	transactions []domain.Transaction   // committed, append order = id order
	refs         map[string]struct{}    // committed (reference, kind) pairs
	locks        map[uint]chan struct{} // per-wallet row locks, capacity 1
	nextWalletID uint
	nextTxnID    uint
	lockWait     time.Duration
}

// NewMemoryStore builds an empty in-memory ledger. lockWait bounds how long
// LockWallet blocks before failing with ErrLockWait.
func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[uint]domain.Wallet),
		byUser:   make(map[uint]uint),
		refs:     make(map[string]struct{}),
		locks:    make(map[uint]chan struct{}),
		lockWait: lockWait,
	}
}

// refKey builds the uniqueness key for a (reference, kind) pair.
func refKey(referenceID, kind string) string {
	return referenceID + "\x00" + kind
}

// CreateWallet creates a zero-balance wallet for the user, or returns the
// existing one with created=false.
func (s *MemoryStore) CreateWallet(ctx context.Context, userID uint) (*domain.Wallet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if walletID, ok := s.byUser[userID]; ok {
		wallet := s.wallets[walletID]
		return &wallet, false, nil
	}
	s.nextWalletID++
	now := time.Now()
	wallet := domain.Wallet{
		ID:        s.nextWalletID,
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[wallet.ID] = wallet
	s.byUser[userID] = wallet.ID
	out := wallet
	return &out, true, nil
}

// WalletByUser returns a snapshot of the user's wallet, or ErrNotFound.
func (s *MemoryStore) WalletByUser(ctx context.Context, userID uint) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	walletID, ok := s.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	wallet := s.wallets[walletID]
	return &wallet, nil
}

// History returns the wallet's committed transactions newest first.
func (s *MemoryStore) History(ctx context.Context, walletID uint, limit, offset int) ([]domain.Transaction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.Transaction
	// Insertion order is id order, so walking backwards is newest first.
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].WalletID == walletID {
			all = append(all, s.transactions[i])
		}
	}
	total := int64(len(all))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]domain.Transaction, len(all))
	copy(out, all)
	return out, total, nil
}

// ReferenceExists reports whether any committed transaction carries the
// reference id, regardless of kind.
func (s *MemoryStore) ReferenceExists(ctx context.Context, referenceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kind := range []string{domain.KindCredit, domain.KindDebit} {
		if _, ok := s.refs[refKey(referenceID, kind)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Atomic runs fn in a unit of work. Writes are staged and applied only if
// fn and the commit-time uniqueness check both succeed; wallet locks taken
// by fn are released when the unit of work finishes either way.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow := &memoryUnitOfWork{
		store:    s,
		balances: make(map[uint]decimal.Decimal),
	}
	err := fn(uow)
	if err == nil {
		err = s.commit(uow)
	}
	s.release(uow.held)
	return err
}

// commit applies staged writes under the store mutex after re-checking the
// uniqueness constraint. This re-check is the authoritative idempotency
// guard; the engine's pre-check is only a fast path.
func (s *MemoryStore) commit(u *memoryUnitOfWork) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := make(map[string]struct{})
	for i := range u.inserts {
		txn := &u.inserts[i]
		if txn.ReferenceID == nil {
			continue
		}
		key := refKey(*txn.ReferenceID, txn.Kind)
		if _, dup := s.refs[key]; dup {
			return ErrDuplicateReference
		}
		if _, dup := staged[key]; dup {
			return ErrDuplicateReference
		}
		staged[key] = struct{}{}
	}
	now := time.Now()
	for walletID, balance := range u.balances {
		wallet := s.wallets[walletID]
		wallet.Balance = balance
		wallet.UpdatedAt = now
		s.wallets[walletID] = wallet
	}
	for i := range u.inserts {
		s.nextTxnID++
		txn := u.inserts[i]
		txn.ID = s.nextTxnID
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = now
		}
		s.transactions = append(s.transactions, txn)
		if txn.ReferenceID != nil {
			s.refs[refKey(*txn.ReferenceID, txn.Kind)] = struct{}{}
		}
	}
	return nil
}

// walletLock returns the lock channel for a wallet, creating it on first
// use. Capacity 1: a successful send holds the lock, the receive releases.
func (s *MemoryStore) walletLock(walletID uint) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[walletID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[walletID] = ch
	}
	return ch
}

// release drops wallet locks in reverse acquisition order.
func (s *MemoryStore) release(held []chan struct{}) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i]
	}
}

// memoryUnitOfWork stages writes until commit.
type memoryUnitOfWork struct {
	store    *MemoryStore
	held     []chan struct{}          // locks in acquisition order
	balances map[uint]decimal.Decimal // staged balance writes
	inserts  []domain.Transaction     // staged ledger rows
}

// LockWallet blocks until the wallet's lock is free, the bounded wait
// expires (ErrLockWait), or ctx is cancelled.
func (u *memoryUnitOfWork) LockWallet(ctx context.Context, walletID uint) (*domain.Wallet, error) {
	ch := u.store.walletLock(walletID)
	select {
	case ch <- struct{}{}:
		u.held = append(u.held, ch)
	case <-time.After(u.store.lockWait):
		return nil, ErrLockWait
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	u.store.mu.RLock()
	wallet, ok := u.store.wallets[walletID]
	u.store.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if balance, staged := u.balances[walletID]; staged {
		wallet.Balance = balance
	}
	return &wallet, nil
}

// SaveBalance stages a balance write for a wallet this unit of work has
// locked.
func (u *memoryUnitOfWork) SaveBalance(ctx context.Context, walletID uint, balance decimal.Decimal) error {
	u.store.mu.RLock()
	_, ok := u.store.wallets[walletID]
	u.store.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	u.balances[walletID] = balance
	return nil
}

// InsertTransaction stages a ledger row, rejecting reference collisions
// against both committed rows and rows staged earlier in this unit of work.
func (u *memoryUnitOfWork) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.ReferenceID != nil {
		key := refKey(*txn.ReferenceID, txn.Kind)
		u.store.mu.RLock()
		_, dup := u.store.refs[key]
		u.store.mu.RUnlock()
		if dup {
			return ErrDuplicateReference
		}
		for i := range u.inserts {
			staged := &u.inserts[i]
			if staged.ReferenceID != nil && refKey(*staged.ReferenceID, staged.Kind) == key {
				return ErrDuplicateReference
			}
		}
	}
	u.inserts = append(u.inserts, *txn)
	return nil
}
