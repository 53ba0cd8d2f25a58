package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"agromart/internal/models"
	"agromart/internal/store"
)

func newNegotiationService(units stubUnitStore, records stubNegotiationStore, buyerRecs stubBuyerNegotiationStore, inventories stubInventoryStore) *NegotiationService {
	roles := stubRoles{
		"farmer-1": models.RoleFarmer,
		"trader-1": models.RoleTrader,
		"buyer-1":  models.RoleBuyer,
	}
	return NewNegotiationService(fakeTxRunner{}, roles, units, records, buyerRecs, inventories)
}

func pendingOffer() models.Negotiation {
	return models.Negotiation{
		ID:           "neg-1",
		UnitID:       "unit-1",
		FarmerID:     "farmer-1",
		TraderID:     "trader-1",
		Status:       models.NegotiationPending,
		OriginPrice:  18_000,
		CurrentPrice: 18_000,
		Awaiting:     models.RoleFarmer,
	}
}

func TestOpenUnitOfferCreatesPendingOffer(t *testing.T) {
	ctx := context.Background()
	var pointer *string
	units := stubUnitStore{
		getUnitForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.ListingUnit, error) {
			return availableUnit(), nil
		},
		getListingForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Listing, error) {
			return testListing(), nil
		},
		setActiveNegFn: func(_ context.Context, _ store.Execer, _ string, negotiationID *string) error {
			pointer = negotiationID
			return nil
		},
	}
	svc := newNegotiationService(units, stubNegotiationStore{}, stubBuyerNegotiationStore{}, stubInventoryStore{})
	created, err := svc.OpenUnitOffer(ctx, "trader-1", "unit-1", 18_000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Status != models.NegotiationPending || created.Awaiting != models.RoleFarmer {
		t.Fatalf("unexpected offer: %#v", created)
	}
	if created.FarmerID != "farmer-1" || created.CurrentPrice != 18_000 {
		t.Fatalf("unexpected offer: %#v", created)
	}
	if !strings.HasPrefix(created.UTID, "TRD-") {
		t.Fatalf("unexpected utid: %s", created.UTID)
	}
	if pointer == nil || *pointer != created.ID {
		t.Fatalf("unit pointer not set to the new offer: %v", pointer)
	}
}

func TestOpenUnitOfferRejectsActiveNegotiation(t *testing.T) {
	ctx := context.Background()
	units := stubUnitStore{
		getUnitForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.ListingUnit, error) {
			unit := availableUnit()
			unit.ActiveNegotiationID = strPtr("neg-0")
			return unit, nil
		},
	}
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			n := pendingOffer()
			n.ID = "neg-0"
			return n, nil
		},
	}
	svc := newNegotiationService(units, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.OpenUnitOffer(ctx, "trader-1", "unit-1", 18_000, nil)
	var conflict StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestOpenUnitOfferRejectsNonPositivePrice(t *testing.T) {
	ctx := context.Background()
	svc := newNegotiationService(stubUnitStore{}, stubNegotiationStore{}, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.OpenUnitOffer(ctx, "trader-1", "unit-1", 0, nil)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestActOnUnitOfferRejectsOutsider(t *testing.T) {
	ctx := context.Background()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.ActOnUnitOffer(ctx, "buyer-1", "neg-1", "accept", 0)
	var aerr AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestActOnUnitOfferAcceptByAwaitedParty(t *testing.T) {
	ctx := context.Background()
	pointerCleared := false
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	units := stubUnitStore{
		setActiveNegFn: func(_ context.Context, _ store.Execer, _ string, negotiationID *string) error {
			if negotiationID == nil {
				pointerCleared = true
			}
			return nil
		},
	}
	svc := newNegotiationService(units, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	updated, err := svc.ActOnUnitOffer(ctx, "farmer-1", "neg-1", "accept", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.NegotiationAccepted {
		t.Fatalf("unexpected status: %s", updated.Status)
	}
	if updated.AcceptedUTID == nil || !strings.HasPrefix(*updated.AcceptedUTID, "FRM-") {
		t.Fatalf("acceptance must stamp the acceptor's utid, got %v", updated.AcceptedUTID)
	}
	if pointerCleared {
		t.Fatal("acceptance must keep the unit pointer for the lock step")
	}
}

func TestActOnUnitOfferAcceptByWrongParty(t *testing.T) {
	ctx := context.Background()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.ActOnUnitOffer(ctx, "trader-1", "neg-1", "accept", 0)
	var aerr AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestActOnUnitOfferCounterFlipsTurn(t *testing.T) {
	ctx := context.Background()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	updated, err := svc.ActOnUnitOffer(ctx, "farmer-1", "neg-1", "counter", 25_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.NegotiationCountered || updated.Awaiting != models.RoleTrader {
		t.Fatalf("counter must flip the turn: %#v", updated)
	}
	if updated.CurrentPrice != 25_000 || updated.CounterPrice == nil || *updated.CounterPrice != 25_000 {
		t.Fatalf("counter must move the price: %#v", updated)
	}
}

func TestActOnUnitOfferCounterRequiresPrice(t *testing.T) {
	ctx := context.Background()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.ActOnUnitOffer(ctx, "farmer-1", "neg-1", "counter", 0)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestActOnUnitOfferCancelByMaker(t *testing.T) {
	ctx := context.Background()
	pointerCleared := false
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	units := stubUnitStore{
		setActiveNegFn: func(_ context.Context, _ store.Execer, _ string, negotiationID *string) error {
			pointerCleared = negotiationID == nil
			return nil
		},
	}
	svc := newNegotiationService(units, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	updated, err := svc.ActOnUnitOffer(ctx, "trader-1", "neg-1", "cancel", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != models.NegotiationCancelled {
		t.Fatalf("unexpected status: %s", updated.Status)
	}
	if !pointerCleared {
		t.Fatal("cancellation must free the unit for new offers")
	}
}

func TestActOnUnitOfferCancelByAwaitedParty(t *testing.T) {
	ctx := context.Background()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.ActOnUnitOffer(ctx, "farmer-1", "neg-1", "cancel", 0)
	var aerr AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestActOnUnitOfferExpiredFlipsOnTouch(t *testing.T) {
	ctx := context.Background()
	// The runner discards writes staged in a transaction that returned an
	// error, so the flip only shows up if it was committed on its own.
	runner, committed := discardingTxRunner()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			n := pendingOffer()
			n.ExpiresAt = timePtr(time.Now().UTC().Add(-time.Minute))
			return n, nil
		},
		setStateFn: func(_ context.Context, _ store.Execer, _, status, _ string, _ *int64, _ int64, _ *string) error {
			committed.stageFlip(status)
			return nil
		},
	}
	units := stubUnitStore{
		setActiveNegFn: func(_ context.Context, _ store.Execer, unitID string, negotiationID *string) error {
			committed.stageClear(unitID, negotiationID)
			return nil
		},
	}
	roles := stubRoles{"farmer-1": models.RoleFarmer, "trader-1": models.RoleTrader}
	svc := NewNegotiationService(runner, roles, units, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.ActOnUnitOffer(ctx, "farmer-1", "neg-1", "accept", 0)
	var conflict StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(committed.flips) != 1 || committed.flips[0] != models.NegotiationExpired {
		t.Fatalf("touching an expired offer must commit the flip, got %v", committed.flips)
	}
	if len(committed.clears) != 1 || committed.clears[0].unitID != "unit-1" || committed.clears[0].negotiationID != nil {
		t.Fatalf("the unit must be freed for new offers, got %+v", committed.clears)
	}
}

func TestOpenUnitOfferFreesExpiredNegotiation(t *testing.T) {
	ctx := context.Background()
	runner, committed := discardingTxRunner()
	units := stubUnitStore{
		getUnitForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.ListingUnit, error) {
			unit := availableUnit()
			unit.ActiveNegotiationID = strPtr("neg-0")
			return unit, nil
		},
		setActiveNegFn: func(_ context.Context, _ store.Execer, unitID string, negotiationID *string) error {
			committed.stageClear(unitID, negotiationID)
			return nil
		},
	}
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			n := pendingOffer()
			n.ID = "neg-0"
			n.ExpiresAt = timePtr(time.Now().UTC().Add(-time.Minute))
			return n, nil
		},
		setStateFn: func(_ context.Context, _ store.Execer, _, status, _ string, _ *int64, _ int64, _ *string) error {
			committed.stageFlip(status)
			return nil
		},
	}
	roles := stubRoles{"farmer-1": models.RoleFarmer, "trader-1": models.RoleTrader}
	svc := NewNegotiationService(runner, roles, units, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.OpenUnitOffer(ctx, "trader-1", "unit-1", 18_000, nil)
	var conflict StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(committed.flips) != 1 || committed.flips[0] != models.NegotiationExpired {
		t.Fatalf("stale offer must be flipped to expired, got %v", committed.flips)
	}
	if len(committed.clears) != 1 || committed.clears[0].negotiationID != nil {
		t.Fatalf("the unit pointer must be cleared so a retry can open, got %+v", committed.clears)
	}
}

func TestActOnUnitOfferRejectsTerminalState(t *testing.T) {
	ctx := context.Background()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			n := pendingOffer()
			n.Status = models.NegotiationRejected
			return n, nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.ActOnUnitOffer(ctx, "farmer-1", "neg-1", "accept", 0)
	var conflict StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestActOnUnitOfferRejectsUnknownAction(t *testing.T) {
	ctx := context.Background()
	records := stubNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.Negotiation, error) {
			return pendingOffer(), nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, records, stubBuyerNegotiationStore{}, stubInventoryStore{})
	_, err := svc.ActOnUnitOffer(ctx, "farmer-1", "neg-1", "haggle", 0)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenBlockOfferCreatesPendingOffer(t *testing.T) {
	ctx := context.Background()
	inventories := stubInventoryStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.TraderInventory, error) {
			return models.TraderInventory{ID: "inv-1", TraderID: "trader-1", Status: models.InventoryInStorage}, nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, stubNegotiationStore{}, stubBuyerNegotiationStore{}, inventories)
	created, err := svc.OpenBlockOffer(ctx, "buyer-1", "inv-1", 90_000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Awaiting != models.RoleTrader || created.TraderID != "trader-1" {
		t.Fatalf("unexpected offer: %#v", created)
	}
	if !strings.HasPrefix(created.UTID, "BYR-") {
		t.Fatalf("unexpected utid: %s", created.UTID)
	}
}

func TestOpenBlockOfferRejectsBusyInventory(t *testing.T) {
	ctx := context.Background()
	inventories := stubInventoryStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.TraderInventory, error) {
			return models.TraderInventory{ID: "inv-1", TraderID: "trader-1", Status: models.InventoryInStorage}, nil
		},
	}
	buyerRecs := stubBuyerNegotiationStore{
		countActiveFn: func(_ context.Context, _ store.Getter, _ string) (int, error) {
			return 1, nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, stubNegotiationStore{}, buyerRecs, inventories)
	_, err := svc.OpenBlockOffer(ctx, "buyer-1", "inv-1", 90_000, nil)
	var conflict StateConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestActOnBlockOfferCounterFlipsToBuyer(t *testing.T) {
	ctx := context.Background()
	buyerRecs := stubBuyerNegotiationStore{
		getForUpdateFn: func(_ context.Context, _ store.Getter, _ string) (models.BuyerNegotiation, error) {
			return models.BuyerNegotiation{
				ID:           "bneg-1",
				InventoryID:  "inv-1",
				TraderID:     "trader-1",
				BuyerID:      "buyer-1",
				Status:       models.NegotiationPending,
				OriginPrice:  90_000,
				CurrentPrice: 90_000,
				Awaiting:     models.RoleTrader,
			}, nil
		},
	}
	svc := newNegotiationService(stubUnitStore{}, stubNegotiationStore{}, buyerRecs, stubInventoryStore{})
	updated, err := svc.ActOnBlockOffer(ctx, "trader-1", "bneg-1", "counter", 95_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Awaiting != models.RoleBuyer || updated.CurrentPrice != 95_000 {
		t.Fatalf("unexpected offer after counter: %#v", updated)
	}
}
