package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"agromart/internal/models"
)

// LedgerStore persists the append-only wallet ledger. Rows are never updated
// or deleted outside the admin bulk reset; reversal is a new offsetting entry.
type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerEntryInput struct {
	ID           string
	UserID       string
	UTID         string
	EntryType    string
	Amount       int64
	BalanceAfter int64
	Metadata     string
}

func (s *LedgerStore) Insert(ctx context.Context, tx Execer, entry LedgerEntryInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger_entries (id, user_id, utid, entry_type, amount_minor, balance_after_minor, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.UserID, entry.UTID, entry.EntryType, entry.Amount, entry.BalanceAfter, entry.Metadata)
	return err
}

// LatestBalanceForUpdate reads the running balance from the newest entry of
// the given type group, locking that row so concurrent appends for the same
// user serialize. A user with no history has balance zero, not an error.
func (s *LedgerStore) LatestBalanceForUpdate(ctx context.Context, tx Getter, userID string, entryTypes []string) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		SELECT balance_after_minor
		FROM wallet_ledger_entries
		WHERE user_id = $1 AND entry_type = ANY($2)
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE
	`, userID, pq.Array(entryTypes))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// LatestBalance is the read-only variant used by dashboards.
func (s *LedgerStore) LatestBalance(ctx context.Context, userID string, entryTypes []string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT balance_after_minor
		FROM wallet_ledger_entries
		WHERE user_id = $1 AND entry_type = ANY($2)
		ORDER BY seq DESC
		LIMIT 1
	`, userID, pq.Array(entryTypes))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (s *LedgerStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.WalletLedgerEntry, error) {
	var rows []models.WalletLedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, seq, user_id, utid, entry_type, amount_minor, balance_after_minor, metadata, created_at
		FROM wallet_ledger_entries
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

// ListByUserAscending returns the full history oldest-first, for replay
// verification.
func (s *LedgerStore) ListByUserAscending(ctx context.Context, userID string) ([]models.WalletLedgerEntry, error) {
	var rows []models.WalletLedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, seq, user_id, utid, entry_type, amount_minor, balance_after_minor, metadata, created_at
		FROM wallet_ledger_entries
		WHERE user_id = $1
		ORDER BY seq ASC
	`, userID)
	return rows, err
}

// GetByUTID finds the entry a given transaction wrote, used by reversal to
// recover the original locked amount.
func (s *LedgerStore) GetByUTID(ctx context.Context, tx Getter, utidValue, entryType string) (models.WalletLedgerEntry, error) {
	var row models.WalletLedgerEntry
	err := tx.GetContext(ctx, &row, `
		SELECT id, seq, user_id, utid, entry_type, amount_minor, balance_after_minor, metadata, created_at
		FROM wallet_ledger_entries
		WHERE utid = $1 AND entry_type = $2
	`, utidValue, entryType)
	return row, err
}

// SumLockedCapital nets capital_lock entries against capital_unlock
// reversals for one user. Takes a Getter so the exposure check inside the
// lock transaction reads through the same tx it writes in.
func (s *LedgerStore) SumLockedCapital(ctx context.Context, q Getter, userID string) (int64, error) {
	var sum int64
	err := q.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(CASE entry_type
			WHEN 'capital_lock' THEN amount_minor
			WHEN 'capital_unlock' THEN -amount_minor
			ELSE 0 END), 0)
		FROM wallet_ledger_entries
		WHERE user_id = $1
	`, userID)
	return sum, err
}

// DeleteAll wipes the ledger. Only the admin bulk reset calls this.
func (s *LedgerStore) DeleteAll(ctx context.Context, tx Execer) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM wallet_ledger_entries`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
