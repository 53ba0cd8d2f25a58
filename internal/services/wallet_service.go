package services

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"agromart/internal/db"
	"agromart/internal/models"
	"agromart/internal/store"
	"agromart/internal/utid"
)

// LedgerQueryStore is the read side of the wallet ledger.
type LedgerQueryStore interface {
	LatestBalance(ctx context.Context, userID string, entryTypes []string) (int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.WalletLedgerEntry, error)
	ListByUserAscending(ctx context.Context, userID string) ([]models.WalletLedgerEntry, error)
}

// WalletService exposes the ledger to its owner: deposits from the external
// capital source, profit withdrawals, balance reads, and replay
// verification.
type WalletService struct {
	txRunner db.TxRunner
	ledger   *Ledger
	entries  LedgerQueryStore
	roles    RoleReader
}

func NewWalletService(txRunner db.TxRunner, ledger *Ledger, entries LedgerQueryStore, roles RoleReader) *WalletService {
	return &WalletService{txRunner: txRunner, ledger: ledger, entries: entries, roles: roles}
}

// Deposit records capital arriving from the external payment source. Open to
// traders and buyers; farmers are paid, not funded.
func (s *WalletService) Deposit(ctx context.Context, userID string, amountMinor int64) (store.LedgerEntryInput, error) {
	if amountMinor <= 0 {
		return store.LedgerEntryInput{}, ValidationError{Field: "amount", Detail: "must be positive"}
	}
	role, err := s.roles.GetRole(ctx, userID)
	if err != nil {
		return store.LedgerEntryInput{}, err
	}
	if role != models.RoleTrader && role != models.RoleBuyer {
		return store.LedgerEntryInput{}, AuthorizationError{UserID: userID, Role: role, Need: "trader or buyer"}
	}
	var entry store.LedgerEntryInput
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		entry, err = s.ledger.Append(ctx, tx, userID, models.EntryCapitalDeposit, amountMinor, utid.ForRole(role), `{"source":"external_gateway"}`)
		return err
	})
	return entry, err
}

func (s *WalletService) WithdrawProfit(ctx context.Context, traderID string, amountMinor int64) (store.LedgerEntryInput, error) {
	if amountMinor <= 0 {
		return store.LedgerEntryInput{}, ValidationError{Field: "amount", Detail: "must be positive"}
	}
	if err := requireRole(ctx, s.roles, traderID, models.RoleTrader); err != nil {
		return store.LedgerEntryInput{}, err
	}
	var entry store.LedgerEntryInput
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		profit, err := s.ledger.entries.LatestBalanceForUpdate(ctx, tx, traderID, profitTypes)
		if err != nil {
			return err
		}
		if profit < amountMinor {
			return StateConflictError{Entity: "profit balance", ID: traderID, State: "insufficient", Want: "balance >= withdrawal"}
		}
		entry, err = s.ledger.Append(ctx, tx, traderID, models.EntryProfitWithdrawal, amountMinor, utid.New(utid.ActorTrader), "{}")
		return err
	})
	return entry, err
}

type Balances struct {
	CapitalMinor int64 `json:"capital_minor"`
	ProfitMinor  int64 `json:"profit_minor"`
}

// Balances derives both balances from the latest entry of each ledger group.
// A user with no history has zero balances, not an error.
func (s *WalletService) Balances(ctx context.Context, userID string) (Balances, error) {
	capital, err := s.entries.LatestBalance(ctx, userID, capitalTypes)
	if err != nil {
		return Balances{}, err
	}
	profit, err := s.entries.LatestBalance(ctx, userID, profitTypes)
	if err != nil {
		return Balances{}, err
	}
	return Balances{CapitalMinor: capital, ProfitMinor: profit}, nil
}

func (s *WalletService) Entries(ctx context.Context, userID string, limit, offset int) ([]models.WalletLedgerEntry, error) {
	return s.entries.ListByUser(ctx, userID, limit, offset)
}

// ReplayMismatch describes one entry whose stored running balance disagrees
// with the replayed sum.
type ReplayMismatch struct {
	EntryID  string `json:"entry_id"`
	UTID     string `json:"utid"`
	Stored   int64  `json:"stored_balance_after"`
	Replayed int64  `json:"replayed_balance_after"`
}

// VerifyReplay replays a user's full history in order, applying the
// type-sign rules per ledger group, and reports every entry whose stored
// balance_after disagrees. An empty result means the ledger is internally
// consistent.
func (s *WalletService) VerifyReplay(ctx context.Context, userID string) ([]ReplayMismatch, error) {
	entries, err := s.entries.ListByUserAscending(ctx, userID)
	if err != nil {
		return nil, err
	}
	var mismatches []ReplayMismatch
	var capital, profit int64
	for _, entry := range entries {
		var running *int64
		switch entry.EntryType {
		case models.EntryProfitCredit, models.EntryProfitWithdrawal:
			running = &profit
		default:
			running = &capital
		}
		*running += entrySign(entry.EntryType) * entry.Amount
		if *running != entry.BalanceAfter {
			mismatches = append(mismatches, ReplayMismatch{
				EntryID:  entry.ID,
				UTID:     entry.UTID,
				Stored:   entry.BalanceAfter,
				Replayed: *running,
			})
		}
	}
	return mismatches, nil
}

func metadataJSON(fields map[string]string) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(data)
}
