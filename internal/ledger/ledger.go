// Package ledger is the escrow ledger: append-only wallet entries with
// derived balances, bet locks, and exactly-once session settlement. No other
// component may mutate balances.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrNoLockedFunds     = errors.New("ledger: no locked funds for session")
	ErrOverpayout        = errors.New("ledger: payouts exceed locked pot")
	ErrAlreadySettled    = errors.New("ledger: session already settled")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
)

// SettleResult reports what a settlement did. AlreadySettled marks the
// idempotent no-op path: the returned payouts and fee are those of the first
// settlement.
type SettleResult struct {
	Payouts        []models.Payout
	HouseFee       int64
	AlreadySettled bool
}

// Ledger is the escrow and wallet surface. Lock, Settle, and Refund each
// execute as one atomic transaction against the backing store.
type Ledger interface {
	// Lock escrows amount from the user's wallet for the session:
	// a balance check, a LOCKED bet lock, and a negative BET entry, all or
	// nothing. Fails with ErrInsufficientFunds without partial effect.
	Lock(ctx context.Context, userID, sessionID uuid.UUID, amount int64) error

	// Settle distributes the locked pot: payouts must sum to at most the
	// pot; the remainder is recorded as the house fee. A second call for
	// the same session is a no-op returning the first result.
	Settle(ctx context.Context, sessionID uuid.UUID, payouts []models.Payout) (SettleResult, error)

	// Refund reverses every locked entry for a session that never reached
	// active play. Idempotent; fails with ErrAlreadySettled after Settle.
	Refund(ctx context.Context, sessionID uuid.UUID) error

	// Deposit and Withdraw are the payments-collaborator surface: amounts
	// arrive already validated as (userID, amount) pairs.
	Deposit(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)

	// Balance returns the materialized wallet balance (always the sum of
	// the wallet's ledger entries).
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)

	// Entries lists a wallet's most recent ledger entries, newest first.
	Entries(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error)
}

// HouseFee computes the fee taken from a pot, in basis points, rounded down.
func HouseFee(pot, feeBps int64) int64 {
	return pot * feeBps / 10000
}
