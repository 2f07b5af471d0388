// internal/ledger/postgres.go
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nahuelpalumbo/mesa/internal/models"
)

// Postgres is the durable Ledger. Every operation is a single transaction;
// the settlements table's primary key is the exactly-once settlement marker.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// debit subtracts amount from a wallet inside tx, failing without effect if
// the balance is short, and records the ledger entry.
func (p *Postgres) debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, typ models.EntryType, sessionID *uuid.UUID) error {
	var after int64
	err := tx.QueryRow(ctx,
		`UPDATE wallets SET balance = balance - $2, updated_at = now()
		 WHERE user_id = $1 AND balance >= $2
		 RETURNING balance`, userID, amount).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInsufficientFunds
	}
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	return p.insertEntry(ctx, tx, userID, -amount, typ, sessionID, after)
}

// credit adds amount to a wallet inside tx, creating the wallet row on
// first use, and records the ledger entry.
func (p *Postgres) credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, typ models.EntryType, sessionID *uuid.UUID) error {
	var after int64
	err := tx.QueryRow(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + $2, updated_at = now()
		 RETURNING balance`, userID, amount).Scan(&after)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return p.insertEntry(ctx, tx, userID, amount, typ, sessionID, after)
}

func (p *Postgres) insertEntry(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, typ models.EntryType, sessionID *uuid.UUID, after int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO wallet_entries (id, wallet_id, amount, entry_type, session_id, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), userID, amount, typ, sessionID, after)
	if err != nil {
		return fmt.Errorf("insert wallet entry: %w", err)
	}
	return nil
}

func (p *Postgres) Lock(ctx context.Context, userID, sessionID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := p.debit(ctx, tx, userID, amount, models.EntryBet, &sessionID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO bet_locks (id, session_id, user_id, amount, status)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), sessionID, userID, amount, models.BetLockLocked)
		if err != nil {
			return fmt.Errorf("insert bet lock: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Settle(ctx context.Context, sessionID uuid.UUID, payouts []models.Payout) (SettleResult, error) {
	var res SettleResult
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		// Serialize concurrent settlements of one session on the lock rows.
		rows, err := tx.Query(ctx,
			`SELECT amount FROM bet_locks
			 WHERE session_id = $1 AND status = $2 FOR UPDATE`,
			sessionID, models.BetLockLocked)
		if err != nil {
			return fmt.Errorf("select locks: %w", err)
		}
		var pot int64
		for rows.Next() {
			var amount int64
			if err := rows.Scan(&amount); err != nil {
				rows.Close()
				return err
			}
			pot += amount
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		// A prior settlement consumed the locks: return its result.
		if pot == 0 {
			var blob []byte
			err := tx.QueryRow(ctx,
				`SELECT house_fee, payouts FROM settlements WHERE session_id = $1`,
				sessionID).Scan(&res.HouseFee, &blob)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoLockedFunds
			}
			if err != nil {
				return fmt.Errorf("load prior settlement: %w", err)
			}
			if err := json.Unmarshal(blob, &res.Payouts); err != nil {
				return fmt.Errorf("decode prior payouts: %w", err)
			}
			res.AlreadySettled = true
			return nil
		}

		var paid int64
		for _, pay := range payouts {
			if pay.Amount < 0 {
				return ErrInvalidAmount
			}
			paid += pay.Amount
		}
		if paid > pot {
			return ErrOverpayout
		}

		blob, err := json.Marshal(payouts)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO settlements (session_id, house_fee, payouts) VALUES ($1, $2, $3)`,
			sessionID, pot-paid, blob); err != nil {
			return fmt.Errorf("insert settlement marker: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE bet_locks SET status = $3, updated_at = now()
			 WHERE session_id = $1 AND status = $2`,
			sessionID, models.BetLockLocked, models.BetLockSettled); err != nil {
			return fmt.Errorf("settle locks: %w", err)
		}
		for _, pay := range payouts {
			if pay.Amount > 0 {
				if err := p.credit(ctx, tx, pay.UserID, pay.Amount, models.EntryPayout, &sessionID); err != nil {
					return err
				}
			}
		}
		res = SettleResult{Payouts: payouts, HouseFee: pot - paid}
		return nil
	})
	return res, err
}

func (p *Postgres) Refund(ctx context.Context, sessionID uuid.UUID) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var settled bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM settlements WHERE session_id = $1)`,
			sessionID).Scan(&settled)
		if err != nil {
			return fmt.Errorf("check settlement marker: %w", err)
		}
		if settled {
			return ErrAlreadySettled
		}

		rows, err := tx.Query(ctx,
			`UPDATE bet_locks SET status = $3, updated_at = now()
			 WHERE session_id = $1 AND status = $2
			 RETURNING user_id, amount`,
			sessionID, models.BetLockLocked, models.BetLockRefunded)
		if err != nil {
			return fmt.Errorf("refund locks: %w", err)
		}
		type ref struct {
			user   uuid.UUID
			amount int64
		}
		var refs []ref
		for rows.Next() {
			var r ref
			if err := rows.Scan(&r.user, &r.amount); err != nil {
				rows.Close()
				return err
			}
			refs = append(refs, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, r := range refs {
			if err := p.credit(ctx, tx, r.user, r.amount, models.EntryRefund, &sessionID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Postgres) Deposit(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var after int64
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := p.credit(ctx, tx, userID, amount, models.EntryDeposit, nil); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&after)
	})
	return after, err
}

func (p *Postgres) Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var after int64
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := p.debit(ctx, tx, userID, amount, models.EntryWithdraw, nil); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&after)
	})
	return after, err
}

func (p *Postgres) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM wallets WHERE user_id = $1), 0)`,
		userID).Scan(&balance)
	return balance, err
}

func (p *Postgres) Entries(ctx context.Context, userID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, wallet_id, amount, entry_type, session_id, balance_after, created_at
		 FROM wallet_entries WHERE wallet_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Amount, &e.Type, &e.SessionID, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
