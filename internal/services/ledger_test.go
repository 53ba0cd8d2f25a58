package services

import (
	"context"
	"errors"
	"testing"

	"agromart/internal/models"
)

func TestLedgerAppendRunningBalance(t *testing.T) {
	ctx := context.Background()
	mem := &memLedger{}
	ledger := NewLedger(mem)

	deposit, err := ledger.Append(ctx, nil, "trader-1", models.EntryCapitalDeposit, 100_000, "SYS-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deposit.BalanceAfter != 100_000 {
		t.Fatalf("unexpected balance after deposit: %d", deposit.BalanceAfter)
	}
	if deposit.Metadata != "{}" {
		t.Fatalf("expected empty metadata to default to {}, got %q", deposit.Metadata)
	}

	lock, err := ledger.Append(ctx, nil, "trader-1", models.EntryCapitalLock, 30_000, "TRD-1", "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lock.BalanceAfter != 70_000 {
		t.Fatalf("lock should debit capital: got %d", lock.BalanceAfter)
	}

	unlock, err := ledger.Append(ctx, nil, "trader-1", models.EntryCapitalUnlock, 30_000, "ADM-1", "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unlock.BalanceAfter != 100_000 {
		t.Fatalf("unlock should restore capital: got %d", unlock.BalanceAfter)
	}
}

func TestLedgerAppendSeparatesGroups(t *testing.T) {
	ctx := context.Background()
	mem := &memLedger{}
	ledger := NewLedger(mem)

	if _, err := ledger.Append(ctx, nil, "trader-1", models.EntryCapitalDeposit, 100_000, "SYS-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	credit, err := ledger.Append(ctx, nil, "trader-1", models.EntryProfitCredit, 20_000, "SYS-2", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credit.BalanceAfter != 20_000 {
		t.Fatalf("profit runs its own balance, got %d", credit.BalanceAfter)
	}
	withdrawal, err := ledger.Append(ctx, nil, "trader-1", models.EntryProfitWithdrawal, 5_000, "TRD-2", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withdrawal.BalanceAfter != 15_000 {
		t.Fatalf("unexpected profit balance: %d", withdrawal.BalanceAfter)
	}
	// Capital must be untouched by the profit moves.
	capital, err := mem.LatestBalance(ctx, "trader-1", capitalTypes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capital != 100_000 {
		t.Fatalf("capital balance disturbed: %d", capital)
	}
}

func TestLedgerAppendRejectsNegativeAmount(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(&memLedger{})
	_, err := ledger.Append(ctx, nil, "trader-1", models.EntryCapitalDeposit, -1, "SYS-1", "")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEntrySign(t *testing.T) {
	cases := map[string]int64{
		models.EntryCapitalDeposit:   1,
		models.EntryCapitalLock:      -1,
		models.EntryCapitalUnlock:    1,
		models.EntryProfitCredit:     1,
		models.EntryProfitWithdrawal: -1,
	}
	for entryType, want := range cases {
		if got := entrySign(entryType); got != want {
			t.Fatalf("entrySign(%s) = %d, want %d", entryType, got, want)
		}
	}
}
