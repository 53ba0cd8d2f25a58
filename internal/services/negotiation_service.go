package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"agromart/internal/db"
	"agromart/internal/models"
	"agromart/internal/store"
	"agromart/internal/utid"
)

// NegotiationUnitStore is the slice of the listing store the farmer<->trader
// machine needs: the unit carries the at-most-one-active-negotiation pointer.
type NegotiationUnitStore interface {
	GetUnitForUpdate(ctx context.Context, tx store.Getter, unitID string) (models.ListingUnit, error)
	GetListingForUpdate(ctx context.Context, tx store.Getter, listingID string) (models.Listing, error)
	SetActiveNegotiation(ctx context.Context, tx store.Execer, unitID string, negotiationID *string) error
}

type NegotiationRecordStore interface {
	Create(ctx context.Context, tx store.Execer, n models.Negotiation) error
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.Negotiation, error)
	SetState(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error
}

type BuyerNegotiationRecordStore interface {
	Create(ctx context.Context, tx store.Execer, n models.BuyerNegotiation) error
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.BuyerNegotiation, error)
	CountActiveForInventory(ctx context.Context, tx store.Getter, inventoryID string) (int, error)
	SetState(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error
}

type NegotiationInventoryStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, inventoryID string) (models.TraderInventory, error)
}

// NegotiationService drives both price-discovery machines. States move
// pending -> accepted | rejected | countered | expired | cancelled, with
// countered ping-ponging the turn to the other party. Only the awaited party
// may accept, reject, or counter. Expiry is lazy: acting on an expired offer
// fails, and the flip to expired is committed in its own transaction so the
// rollback of the failed action cannot undo it.
type NegotiationService struct {
	txRunner    db.TxRunner
	roles       RoleReader
	units       NegotiationUnitStore
	records     NegotiationRecordStore
	buyerRecs   BuyerNegotiationRecordStore
	inventories NegotiationInventoryStore
}

func NewNegotiationService(txRunner db.TxRunner, roles RoleReader, units NegotiationUnitStore, records NegotiationRecordStore, buyerRecs BuyerNegotiationRecordStore, inventories NegotiationInventoryStore) *NegotiationService {
	return &NegotiationService{
		txRunner:    txRunner,
		roles:       roles,
		units:       units,
		records:     records,
		buyerRecs:   buyerRecs,
		inventories: inventories,
	}
}

// OpenUnitOffer starts a farmer<->trader negotiation: the trader proposes a
// per-unit price on an available unit. The unit's pointer enforces at most
// one active negotiation.
func (s *NegotiationService) OpenUnitOffer(ctx context.Context, traderID, unitID string, offerPrice int64, expiresAt *time.Time) (models.Negotiation, error) {
	if err := requireRole(ctx, s.roles, traderID, models.RoleTrader); err != nil {
		return models.Negotiation{}, err
	}
	if offerPrice <= 0 {
		return models.Negotiation{}, ValidationError{Field: "offer_price", Detail: "must be positive"}
	}
	var created models.Negotiation
	var lapsed models.Negotiation
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		unit, err := s.units.GetUnitForUpdate(ctx, tx, unitID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "unit", ID: unitID}
			}
			return err
		}
		if unit.Status != models.UnitAvailable {
			return StateConflictError{Entity: "unit", ID: unitID, State: unit.Status, Want: models.UnitAvailable}
		}
		if unit.ActiveNegotiationID != nil {
			existing, err := s.records.GetForUpdate(ctx, tx, *unit.ActiveNegotiationID)
			if err != nil {
				return err
			}
			if negotiationExpired(existing.Status, existing.ExpiresAt, time.Now().UTC()) {
				lapsed = existing
				return errOfferLapsed
			}
			return StateConflictError{Entity: "unit", ID: unitID, State: "negotiating", Want: "no active negotiation"}
		}
		listing, err := s.units.GetListingForUpdate(ctx, tx, unit.ListingID)
		if err != nil {
			return err
		}
		created = models.Negotiation{
			ID:           uuid.NewString(),
			UnitID:       unitID,
			FarmerID:     listing.FarmerID,
			TraderID:     traderID,
			Status:       models.NegotiationPending,
			OriginPrice:  offerPrice,
			CurrentPrice: offerPrice,
			Awaiting:     models.RoleFarmer,
			ExpiresAt:    expiresAt,
			UTID:         utid.New(utid.ActorTrader),
		}
		if err := s.records.Create(ctx, tx, created); err != nil {
			return err
		}
		return s.units.SetActiveNegotiation(ctx, tx, unitID, &created.ID)
	})
	if errors.Is(err, errOfferLapsed) {
		return models.Negotiation{}, s.expireUnitOffer(ctx, lapsed)
	}
	if err != nil {
		return models.Negotiation{}, err
	}
	return created, nil
}

// ActOnUnitOffer applies accept/reject/counter/cancel to a farmer<->trader
// negotiation. counterPrice is required for counter and ignored otherwise.
func (s *NegotiationService) ActOnUnitOffer(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.Negotiation, error) {
	var updated models.Negotiation
	var lapsed models.Negotiation
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.records.GetForUpdate(ctx, tx, negotiationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "negotiation", ID: negotiationID}
			}
			return err
		}
		party, err := s.negotiationParty(callerID, n.FarmerID, n.TraderID, models.RoleFarmer, models.RoleTrader)
		if err != nil {
			return err
		}
		next, err := s.transition(ctx, tx, offerState{
			id:           n.ID,
			status:       n.Status,
			awaiting:     n.Awaiting,
			counterPrice: n.CounterPrice,
			currentPrice: n.CurrentPrice,
			expiresAt:    n.ExpiresAt,
			otherParty:   otherOf(party, models.RoleFarmer, models.RoleTrader),
			acceptorRole: party,
		}, s.records.SetState, callerID, party, action, counterPrice)
		if err != nil {
			if errors.Is(err, errOfferLapsed) {
				lapsed = n
			}
			return err
		}
		n.Status = next.status
		n.Awaiting = next.awaiting
		n.CounterPrice = next.counterPrice
		n.CurrentPrice = next.currentPrice
		n.AcceptedUTID = next.acceptedUTID
		updated = n
		if terminalNegotiationState(next.status) && next.status != models.NegotiationAccepted {
			return s.units.SetActiveNegotiation(ctx, tx, n.UnitID, nil)
		}
		return nil
	})
	if errors.Is(err, errOfferLapsed) {
		return models.Negotiation{}, s.expireUnitOffer(ctx, lapsed)
	}
	if err != nil {
		return models.Negotiation{}, err
	}
	return updated, nil
}

// OpenBlockOffer starts a trader<->buyer negotiation on an in-storage
// inventory block.
func (s *NegotiationService) OpenBlockOffer(ctx context.Context, buyerID, inventoryID string, offerPrice int64, expiresAt *time.Time) (models.BuyerNegotiation, error) {
	if err := requireRole(ctx, s.roles, buyerID, models.RoleBuyer); err != nil {
		return models.BuyerNegotiation{}, err
	}
	if offerPrice <= 0 {
		return models.BuyerNegotiation{}, ValidationError{Field: "offer_price", Detail: "must be positive"}
	}
	var created models.BuyerNegotiation
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		inv, err := s.inventories.GetForUpdate(ctx, tx, inventoryID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "inventory", ID: inventoryID}
			}
			return err
		}
		if inv.Status != models.InventoryInStorage {
			return StateConflictError{Entity: "inventory", ID: inventoryID, State: inv.Status, Want: models.InventoryInStorage}
		}
		active, err := s.buyerRecs.CountActiveForInventory(ctx, tx, inventoryID)
		if err != nil {
			return err
		}
		if active > 0 {
			return StateConflictError{Entity: "inventory", ID: inventoryID, State: "negotiating", Want: "no active negotiation"}
		}
		created = models.BuyerNegotiation{
			ID:           uuid.NewString(),
			InventoryID:  inventoryID,
			TraderID:     inv.TraderID,
			BuyerID:      buyerID,
			Status:       models.NegotiationPending,
			OriginPrice:  offerPrice,
			CurrentPrice: offerPrice,
			Awaiting:     models.RoleTrader,
			ExpiresAt:    expiresAt,
			UTID:         utid.New(utid.ActorBuyer),
		}
		return s.buyerRecs.Create(ctx, tx, created)
	})
	if err != nil {
		return models.BuyerNegotiation{}, err
	}
	return created, nil
}

// ActOnBlockOffer applies accept/reject/counter/cancel to a trader<->buyer
// negotiation.
func (s *NegotiationService) ActOnBlockOffer(ctx context.Context, callerID, negotiationID, action string, counterPrice int64) (models.BuyerNegotiation, error) {
	var updated models.BuyerNegotiation
	var lapsed models.BuyerNegotiation
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.buyerRecs.GetForUpdate(ctx, tx, negotiationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "negotiation", ID: negotiationID}
			}
			return err
		}
		party, err := s.negotiationParty(callerID, n.TraderID, n.BuyerID, models.RoleTrader, models.RoleBuyer)
		if err != nil {
			return err
		}
		next, err := s.transition(ctx, tx, offerState{
			id:           n.ID,
			status:       n.Status,
			awaiting:     n.Awaiting,
			counterPrice: n.CounterPrice,
			currentPrice: n.CurrentPrice,
			expiresAt:    n.ExpiresAt,
			otherParty:   otherOf(party, models.RoleTrader, models.RoleBuyer),
			acceptorRole: party,
		}, s.buyerRecs.SetState, callerID, party, action, counterPrice)
		if err != nil {
			if errors.Is(err, errOfferLapsed) {
				lapsed = n
			}
			return err
		}
		n.Status = next.status
		n.Awaiting = next.awaiting
		n.CounterPrice = next.counterPrice
		n.CurrentPrice = next.currentPrice
		n.AcceptedUTID = next.acceptedUTID
		updated = n
		return nil
	})
	if errors.Is(err, errOfferLapsed) {
		return models.BuyerNegotiation{}, s.expireBlockOffer(ctx, lapsed)
	}
	if err != nil {
		return models.BuyerNegotiation{}, err
	}
	return updated, nil
}

type offerState struct {
	id           string
	status       string
	awaiting     string
	counterPrice *int64
	currentPrice int64
	expiresAt    *time.Time
	otherParty   string
	acceptorRole string
	acceptedUTID *string
}

type setStateFn func(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error

// errOfferLapsed signals that an open offer was found past its expiry. The
// enclosing transaction rolls back on error, which would discard the flip to
// expired, so the caller persists the flip in a fresh transaction after the
// aborted one and surfaces the conflict from there.
var errOfferLapsed = errors.New("offer lapsed")

// transition validates and applies one move of either machine. Shared rules:
// the offer must still be open, an expired offer is rejected on touch (the
// caller commits the flip separately), and accept/reject/counter belong to
// the awaited party only; cancel belongs to the party whose move it is NOT
// (the offer stands until its maker withdraws it or the awaited party
// answers).
func (s *NegotiationService) transition(ctx context.Context, tx store.Tx, state offerState, setState setStateFn, callerID, callerParty, action string, counterPrice int64) (offerState, error) {
	if state.status != models.NegotiationPending && state.status != models.NegotiationCountered {
		return state, StateConflictError{Entity: "negotiation", ID: state.id, State: state.status, Want: "pending or countered"}
	}
	if negotiationExpired(state.status, state.expiresAt, time.Now().UTC()) {
		return state, errOfferLapsed
	}
	switch action {
	case "accept", "reject", "counter":
		if callerParty != state.awaiting {
			return state, AuthorizationError{UserID: callerID, Role: callerParty, Need: "the awaited party (" + state.awaiting + ")"}
		}
	case "cancel":
		if callerParty == state.awaiting {
			return state, AuthorizationError{UserID: callerID, Role: callerParty, Need: "the offering party"}
		}
	default:
		return state, ValidationError{Field: "action", Detail: "must be accept, reject, counter, or cancel"}
	}
	switch action {
	case "accept":
		accepted := utid.ForRole(state.acceptorRole)
		state.status = models.NegotiationAccepted
		state.acceptedUTID = &accepted
	case "reject":
		state.status = models.NegotiationRejected
	case "cancel":
		state.status = models.NegotiationCancelled
	case "counter":
		if counterPrice <= 0 {
			return state, ValidationError{Field: "counter_price", Detail: "must be positive"}
		}
		state.status = models.NegotiationCountered
		state.counterPrice = &counterPrice
		state.currentPrice = counterPrice
		state.awaiting = state.otherParty
	}
	if err := setState(ctx, tx, state.id, state.status, state.awaiting, state.counterPrice, state.currentPrice, state.acceptedUTID); err != nil {
		return state, err
	}
	return state, nil
}

// expireUnitOffer commits the lazy expired flip for a farmer<->trader offer
// and frees its unit, then returns the conflict the touching call ran into.
func (s *NegotiationService) expireUnitOffer(ctx context.Context, n models.Negotiation) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.records.SetState(ctx, tx, n.ID, models.NegotiationExpired, n.Awaiting, n.CounterPrice, n.CurrentPrice, nil); err != nil {
			return err
		}
		return s.units.SetActiveNegotiation(ctx, tx, n.UnitID, nil)
	})
	if err != nil {
		return err
	}
	return StateConflictError{Entity: "negotiation", ID: n.ID, State: models.NegotiationExpired, Want: "pending or countered"}
}

// expireBlockOffer is the trader<->buyer counterpart; blocks carry no pointer
// to clear.
func (s *NegotiationService) expireBlockOffer(ctx context.Context, n models.BuyerNegotiation) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.buyerRecs.SetState(ctx, tx, n.ID, models.NegotiationExpired, n.Awaiting, n.CounterPrice, n.CurrentPrice, nil)
	})
	if err != nil {
		return err
	}
	return StateConflictError{Entity: "negotiation", ID: n.ID, State: models.NegotiationExpired, Want: "pending or countered"}
}

// negotiationParty maps the caller to their side of a negotiation, rejecting
// outsiders.
func (s *NegotiationService) negotiationParty(callerID, firstID, secondID, firstParty, secondParty string) (string, error) {
	switch callerID {
	case firstID:
		return firstParty, nil
	case secondID:
		return secondParty, nil
	default:
		return "", AuthorizationError{UserID: callerID, Role: "outsider", Need: "party to the negotiation"}
	}
}

func otherOf(party, first, second string) string {
	if party == first {
		return second
	}
	return first
}

func terminalNegotiationState(status string) bool {
	switch status {
	case models.NegotiationAccepted, models.NegotiationRejected, models.NegotiationExpired, models.NegotiationCancelled:
		return true
	}
	return false
}
