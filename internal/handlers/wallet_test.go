package handlers

import (
	"context"
	"net/http"
	"testing"

	"agromart/internal/services"
	"agromart/internal/store"
)

func TestDepositEndpoint(t *testing.T) {
	var gotUser string
	var gotAmount int64
	stubs := handlerStubs{
		wallet: stubWalletService{
			depositFn: func(_ context.Context, userID string, amountMinor int64) (store.LedgerEntryInput, error) {
				gotUser, gotAmount = userID, amountMinor
				return store.LedgerEntryInput{UserID: userID, Amount: amountMinor, BalanceAfter: amountMinor}, nil
			},
		},
	}
	handler := newTestHandler(stubs).Routes()
	rec := doRequest(t, handler, http.MethodPost, "/wallet/deposit", tokenFor(t, "trader-1"), map[string]string{"amount": "500.00"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if gotUser != "trader-1" || gotAmount != 50_000 {
		t.Fatalf("unexpected call: user=%s amount=%d", gotUser, gotAmount)
	}
}

func TestDepositRejectsSubMinorPrecision(t *testing.T) {
	called := false
	stubs := handlerStubs{
		wallet: stubWalletService{
			depositFn: func(_ context.Context, _ string, _ int64) (store.LedgerEntryInput, error) {
				called = true
				return store.LedgerEntryInput{}, nil
			},
		},
	}
	handler := newTestHandler(stubs).Routes()
	rec := doRequest(t, handler, http.MethodPost, "/wallet/deposit", tokenFor(t, "trader-1"), map[string]string{"amount": "1.005"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if called {
		t.Fatal("unparseable amount must not reach the service")
	}
}

func TestDepositValidationMapsTo400(t *testing.T) {
	stubs := handlerStubs{
		wallet: stubWalletService{
			depositFn: func(_ context.Context, _ string, _ int64) (store.LedgerEntryInput, error) {
				return store.LedgerEntryInput{}, services.ValidationError{Field: "amount", Detail: "must be positive"}
			},
		},
	}
	handler := newTestHandler(stubs).Routes()
	rec := doRequest(t, handler, http.MethodPost, "/wallet/deposit", tokenFor(t, "trader-1"), map[string]string{"amount": "0.00"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestWithdrawForbiddenMapsTo403(t *testing.T) {
	stubs := handlerStubs{
		wallet: stubWalletService{
			withdrawFn: func(_ context.Context, traderID string, _ int64) (store.LedgerEntryInput, error) {
				return store.LedgerEntryInput{}, services.AuthorizationError{UserID: traderID, Role: "farmer", Need: "trader"}
			},
		},
	}
	handler := newTestHandler(stubs).Routes()
	rec := doRequest(t, handler, http.MethodPost, "/wallet/withdraw", tokenFor(t, "farmer-1"), map[string]string{"amount": "10.00"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestBalancesEndpoint(t *testing.T) {
	stubs := handlerStubs{
		wallet: stubWalletService{
			balancesFn: func(_ context.Context, _ string) (services.Balances, error) {
				return services.Balances{CapitalMinor: 80_000, ProfitMinor: 5_000}, nil
			},
		},
	}
	handler := newTestHandler(stubs).Routes()
	rec := doRequest(t, handler, http.MethodGet, "/wallet/balances", tokenFor(t, "trader-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["capital_minor"] != float64(80_000) || body["profit_minor"] != float64(5_000) {
		t.Fatalf("unexpected response: %#v", body)
	}
	if body["capital"] != "800.00" || body["profit"] != "50.00" {
		t.Fatalf("expected formatted balances, got %#v", body)
	}
}

func TestVerifyLedgerReportsConsistency(t *testing.T) {
	stubs := handlerStubs{
		wallet: stubWalletService{
			verifyFn: func(_ context.Context, _ string) ([]services.ReplayMismatch, error) {
				return nil, nil
			},
		},
	}
	handler := newTestHandler(stubs).Routes()
	rec := doRequest(t, handler, http.MethodGet, "/wallet/verify", tokenFor(t, "trader-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["consistent"] != true {
		t.Fatalf("unexpected response: %#v", body)
	}
}

func TestVerifyLedgerReportsMismatch(t *testing.T) {
	stubs := handlerStubs{
		wallet: stubWalletService{
			verifyFn: func(_ context.Context, _ string) ([]services.ReplayMismatch, error) {
				return []services.ReplayMismatch{{EntryID: "entry-2", Stored: 99_000, Replayed: 80_000}}, nil
			},
		},
	}
	handler := newTestHandler(stubs).Routes()
	rec := doRequest(t, handler, http.MethodGet, "/wallet/verify", tokenFor(t, "trader-1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["consistent"] != false {
		t.Fatalf("unexpected response: %#v", body)
	}
}
