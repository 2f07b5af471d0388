// internal/models/wallet.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// All monetary amounts are int64 minor units (cents).

// BetLockStatus is the lifecycle of an escrow lock.
type BetLockStatus string

const (
	BetLockPending  BetLockStatus = "PENDING"
	BetLockLocked   BetLockStatus = "LOCKED"
	BetLockSettled  BetLockStatus = "SETTLED"
	BetLockRefunded BetLockStatus = "REFUNDED"
)

// BetLock is one player's escrowed stake for one session. A lock leaves
// LOCKED at most once: settlement and refund are mutually exclusive and
// idempotent at the session level.
type BetLock struct {
	ID        uuid.UUID     `json:"id"`
	SessionID uuid.UUID     `json:"sessionId"`
	UserID    uuid.UUID     `json:"userId"`
	Amount    int64         `json:"amount"`
	Status    BetLockStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// EntryType classifies a wallet ledger entry.
type EntryType string

const (
	EntryDeposit  EntryType = "DEPOSIT"
	EntryWithdraw EntryType = "WITHDRAW"
	EntryBet      EntryType = "BET"
	EntryPayout   EntryType = "PAYOUT"
	EntryRefund   EntryType = "REFUND"
)

// LedgerEntry is one signed movement on a wallet. The ledger is the
// authoritative record; a wallet balance is always the sum of its entries.
type LedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	WalletID     uuid.UUID  `json:"walletId"` // == user ID
	Amount       int64      `json:"amount"`   // signed
	Type         EntryType  `json:"type"`
	SessionID    *uuid.UUID `json:"sessionId,omitempty"`
	BalanceAfter int64      `json:"balanceAfter"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Payout is one (user, amount) pair of a settlement.
type Payout struct {
	UserID uuid.UUID `json:"userId"`
	Amount int64     `json:"amount"`
}
