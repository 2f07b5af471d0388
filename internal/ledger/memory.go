// internal/ledger/memory.go
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

// Memory is the in-process Ledger used by tests and DB-less development
// runs. One mutex serializes every operation, which matches the atomicity
// the Postgres implementation gets from transactions.
type Memory struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	entries  map[uuid.UUID][]models.LedgerEntry
	locks    map[uuid.UUID][]*models.BetLock // by session
	settled  map[uuid.UUID]SettleResult      // settlement marker by session
	refunded map[uuid.UUID]bool
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[uuid.UUID]int64),
		entries:  make(map[uuid.UUID][]models.LedgerEntry),
		locks:    make(map[uuid.UUID][]*models.BetLock),
		settled:  make(map[uuid.UUID]SettleResult),
		refunded: make(map[uuid.UUID]bool),
	}
}

// append records an entry and updates the materialized balance. Lock held.
func (m *Memory) append(userID uuid.UUID, amount int64, typ models.EntryType, sessionID *uuid.UUID) {
	m.balances[userID] += amount
	m.entries[userID] = append(m.entries[userID], models.LedgerEntry{
		ID:           uuid.New(),
		WalletID:     userID,
		Amount:       amount,
		Type:         typ,
		SessionID:    sessionID,
		BalanceAfter: m.balances[userID],
		CreatedAt:    time.Now(),
	})
}

func (m *Memory) Lock(ctx context.Context, userID, sessionID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	m.locks[sessionID] = append(m.locks[sessionID], &models.BetLock{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Amount:    amount,
		Status:    models.BetLockLocked,
		CreatedAt: time.Now(),
	})
	m.append(userID, -amount, models.EntryBet, &sessionID)
	return nil
}

func (m *Memory) Settle(ctx context.Context, sessionID uuid.UUID, payouts []models.Payout) (SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.settled[sessionID]; ok {
		prior.AlreadySettled = true
		return prior, nil
	}

	var pot int64
	locked := m.locks[sessionID]
	for _, l := range locked {
		if l.Status == models.BetLockLocked {
			pot += l.Amount
		}
	}
	if pot == 0 {
		return SettleResult{}, ErrNoLockedFunds
	}

	var paid int64
	for _, p := range payouts {
		if p.Amount < 0 {
			return SettleResult{}, ErrInvalidAmount
		}
		paid += p.Amount
	}
	if paid > pot {
		return SettleResult{}, ErrOverpayout
	}

	for _, l := range locked {
		if l.Status == models.BetLockLocked {
			l.Status = models.BetLockSettled
			l.UpdatedAt = time.Now()
		}
	}
	sid := sessionID
	for _, p := range payouts {
		if p.Amount > 0 {
			m.append(p.UserID, p.Amount, models.EntryPayout, &sid)
		}
	}

	res := SettleResult{Payouts: payouts, HouseFee: pot - paid}
	m.settled[sessionID] = res
	return res, nil
}

func (m *Memory) Refund(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.settled[sessionID]; ok {
		return ErrAlreadySettled
	}
	if m.refunded[sessionID] {
		return nil
	}
	sid := sessionID
	for _, l := range m.locks[sessionID] {
		if l.Status == models.BetLockLocked {
			l.Status = models.BetLockRefunded
			l.UpdatedAt = time.Now()
			m.append(l.UserID, l.Amount, models.EntryRefund, &sid)
		}
	}
	m.refunded[sessionID] = true
	return nil
}

func (m *Memory) Deposit(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(userID, amount, models.EntryDeposit, nil)
	return m.balances[userID], nil
}

func (m *Memory) Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return 0, ErrInsufficientFunds
	}
	m.append(userID, -amount, models.EntryWithdraw, nil)
	return m.balances[userID], nil
}

func (m *Memory) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *Memory) Entries(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.entries[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]models.LedgerEntry, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
