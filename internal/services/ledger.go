package services

import (
	"context"

	"github.com/google/uuid"

	"agromart/internal/metrics"
	"agromart/internal/models"
	"agromart/internal/store"
)

// capitalTypes and profitTypes partition the entry types into the two
// logical ledgers multiplexed in the one append-only log. The running
// balance on an entry is the balance of its own group.
var (
	capitalTypes = []string{models.EntryCapitalDeposit, models.EntryCapitalLock, models.EntryCapitalUnlock}
	profitTypes  = []string{models.EntryProfitCredit, models.EntryProfitWithdrawal}
)

func entryGroup(entryType string) []string {
	switch entryType {
	case models.EntryProfitCredit, models.EntryProfitWithdrawal:
		return profitTypes
	default:
		return capitalTypes
	}
}

// entrySign encodes the semantic direction of each type. Amounts themselves
// are always non-negative; the type carries the sign.
func entrySign(entryType string) int64 {
	switch entryType {
	case models.EntryCapitalLock, models.EntryProfitWithdrawal:
		return -1
	default:
		return 1
	}
}

// LedgerEntryStore is the slice of the ledger store the engine needs.
type LedgerEntryStore interface {
	Insert(ctx context.Context, tx store.Execer, entry store.LedgerEntryInput) error
	LatestBalanceForUpdate(ctx context.Context, tx store.Getter, userID string, entryTypes []string) (int64, error)
}

// Ledger is the append engine. Append cannot fail on business grounds;
// callers pre-validate sufficient balance and exposure. It reads the user's
// latest entry of the relevant group under lock so concurrent appends for
// the same user serialize, computes the new running balance, and inserts one
// immutable row. No existing row is ever touched.
type Ledger struct {
	entries LedgerEntryStore
}

func NewLedger(entries LedgerEntryStore) *Ledger {
	return &Ledger{entries: entries}
}

func (l *Ledger) Append(ctx context.Context, tx store.Tx, userID, entryType string, amount int64, utidValue, metadata string) (store.LedgerEntryInput, error) {
	if amount < 0 {
		return store.LedgerEntryInput{}, ValidationError{Field: "amount", Detail: "must be non-negative; direction is carried by the entry type"}
	}
	if metadata == "" {
		metadata = "{}"
	}
	prior, err := l.entries.LatestBalanceForUpdate(ctx, tx, userID, entryGroup(entryType))
	if err != nil {
		return store.LedgerEntryInput{}, err
	}
	entry := store.LedgerEntryInput{
		ID:           uuid.NewString(),
		UserID:       userID,
		UTID:         utidValue,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: prior + entrySign(entryType)*amount,
		Metadata:     metadata,
	}
	if err := l.entries.Insert(ctx, tx, entry); err != nil {
		return store.LedgerEntryInput{}, err
	}
	metrics.LedgerEntriesTotal.WithLabelValues(entryType).Inc()
	return entry, nil
}
