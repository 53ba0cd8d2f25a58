package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"agromart/internal/db"
	"agromart/internal/metrics"
	"agromart/internal/models"
	"agromart/internal/store"
	"agromart/internal/utid"
)

// TradeUnitStore is the slice of the listing store the trade service needs.
type TradeUnitStore interface {
	GetUnitForUpdate(ctx context.Context, tx store.Getter, unitID string) (models.ListingUnit, error)
	GetUnitsForUpdate(ctx context.Context, tx store.Selecter, unitIDs []string) ([]models.ListingUnit, error)
	GetListingForUpdate(ctx context.Context, tx store.Getter, listingID string) (models.Listing, error)
	LockUnit(ctx context.Context, tx store.Execer, unitID, traderID, lockUTID string, priceMinor int64, lockedAt, deadline time.Time) (int64, error)
	SetActiveNegotiation(ctx context.Context, tx store.Execer, unitID string, negotiationID *string) error
	CountAvailableUnits(ctx context.Context, tx store.Getter, listingID string) (int, error)
	SetListingStatus(ctx context.Context, tx store.Execer, listingID, status string) error
	AssignInventory(ctx context.Context, tx store.Execer, unitID, inventoryID string) error
}

// TradeNegotiationStore resolves a unit's active negotiation inside the lock
// transaction.
type TradeNegotiationStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.Negotiation, error)
	SetState(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error
}

type InventoryCreator interface {
	Create(ctx context.Context, tx store.Execer, inv models.TraderInventory) error
}

// ExposureComputer recomputes a trader's exposure through the lock
// transaction's own handle.
type ExposureComputer interface {
	ComputeIn(ctx context.Context, q store.Getter, traderID string) (Exposure, error)
}

// TradeService executes the trader-side transitions: pay-to-lock and block
// building. Each runs as one serializable transaction; a failed precondition
// aborts with no partial writes.
type TradeService struct {
	txRunner     db.TxRunner
	roles        RoleReader
	units        TradeUnitStore
	negotiations TradeNegotiationStore
	inventories  InventoryCreator
	ledger       *Ledger
	exposure     ExposureComputer
	deliverySLA  time.Duration
	blockSize    decimal.Decimal
}

func NewTradeService(txRunner db.TxRunner, roles RoleReader, units TradeUnitStore, negotiations TradeNegotiationStore, inventories InventoryCreator, ledger *Ledger, exposure ExposureComputer, deliverySLA time.Duration, blockSizeKilos int64) *TradeService {
	return &TradeService{
		txRunner:     txRunner,
		roles:        roles,
		units:        units,
		negotiations: negotiations,
		inventories:  inventories,
		ledger:       ledger,
		exposure:     exposure,
		deliverySLA:  deliverySLA,
		blockSize:    decimal.NewFromInt(blockSizeKilos),
	}
}

// LockResult describes a completed pay-to-lock transaction.
type LockResult struct {
	UTID             string    `json:"utid"`
	UnitID           string    `json:"unit_id"`
	PriceMinor       int64     `json:"price_minor"`
	LockedAt         time.Time `json:"locked_at"`
	DeliveryDeadline time.Time `json:"delivery_deadline"`
	ListingStatus    string    `json:"listing_status"`
}

// LockUnit is the pay-to-lock transaction. Inside one serializable tx, in
// order: the unit must be available; if it carries an active negotiation
// that negotiation must be accepted (expired ones are lazily flipped, in a
// follow-up transaction that survives this one's rollback) and its price
// replaces the listing price; the trader's fresh exposure plus the price
// must fit under the cap. Then one UTID stamps a capital_lock entry, the
// unit lock, and the derived listing status, all or nothing.
func (s *TradeService) LockUnit(ctx context.Context, traderID, unitID string) (LockResult, error) {
	if err := requireRole(ctx, s.roles, traderID, models.RoleTrader); err != nil {
		return LockResult{}, err
	}
	var result LockResult
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
			metrics.LockRejections.WithLabelValues("unit_not_available").Inc()
			return StateConflictError{Entity: "unit", ID: unitID, State: unit.Status, Want: models.UnitAvailable}
		}
		listing, err := s.units.GetListingForUpdate(ctx, tx, unit.ListingID)
		if err != nil {
			return err
		}
		price := unitPrice(listing)
		if unit.ActiveNegotiationID != nil {
			n, err := s.resolveAcceptedPrice(ctx, tx, *unit.ActiveNegotiationID, traderID)
			if err != nil {
				if errors.Is(err, errOfferLapsed) {
					lapsed = n
				}
				metrics.LockRejections.WithLabelValues("negotiation_not_accepted").Inc()
				return err
			}
			price = n.CurrentPrice
		}
		exposure, err := s.exposure.ComputeIn(ctx, tx, traderID)
		if err != nil {
			return err
		}
		if exposure.TotalExposureMinor+price > exposure.SpendCapMinor {
			metrics.LockRejections.WithLabelValues("cap_exceeded").Inc()
			return CapExceededError{
				TraderID: traderID,
				Exposure: exposure.TotalExposureMinor,
				Attempt:  price,
				Cap:      exposure.SpendCapMinor,
			}
		}
		lockUTID := utid.New(utid.ActorTrader)
		metadata := metadataJSON(map[string]string{"unit_id": unitID, "listing_id": listing.ID})
		if _, err := s.ledger.Append(ctx, tx, traderID, models.EntryCapitalLock, price, lockUTID, metadata); err != nil {
			return err
		}
		lockedAt := time.Now().UTC()
		deadline := lockedAt.Add(s.deliverySLA)
		affected, err := s.units.LockUnit(ctx, tx, unitID, traderID, lockUTID, price, lockedAt, deadline)
		if err != nil {
			return err
		}
		if affected == 0 {
			return StateConflictError{Entity: "unit", ID: unitID, State: "taken", Want: models.UnitAvailable}
		}
		status, err := s.recomputeListingStatus(ctx, tx, listing)
		if err != nil {
			return err
		}
		result = LockResult{
			UTID:             lockUTID,
			UnitID:           unitID,
			PriceMinor:       price,
			LockedAt:         lockedAt,
			DeliveryDeadline: deadline,
			ListingStatus:    status,
		}
		return nil
	})
	if errors.Is(err, errOfferLapsed) {
		return LockResult{}, s.expireLapsedNegotiation(ctx, lapsed, unitID)
	}
	if err != nil {
		return LockResult{}, err
	}
	metrics.LocksTotal.Inc()
	return result, nil
}

// resolveAcceptedPrice returns the negotiation iff it is accepted.
// Expired-but-not-yet-flipped negotiations surface errOfferLapsed; the flip
// itself happens after the lock transaction aborts.
func (s *TradeService) resolveAcceptedPrice(ctx context.Context, tx store.Tx, negotiationID, traderID string) (models.Negotiation, error) {
	n, err := s.negotiations.GetForUpdate(ctx, tx, negotiationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return n, NotFoundError{Entity: "negotiation", ID: negotiationID}
		}
		return n, err
	}
	if negotiationExpired(n.Status, n.ExpiresAt, time.Now().UTC()) {
		return n, errOfferLapsed
	}
	if n.Status != models.NegotiationAccepted {
		return n, StateConflictError{Entity: "negotiation", ID: n.ID, State: n.Status, Want: models.NegotiationAccepted}
	}
	if n.TraderID != traderID {
		return n, AuthorizationError{UserID: traderID, Role: models.RoleTrader, Need: "party to the negotiation"}
	}
	return n, nil
}

// expireLapsedNegotiation commits the expired flip in its own transaction
// and frees the unit, so a lapsed offer cannot pin its unit forever.
func (s *TradeService) expireLapsedNegotiation(ctx context.Context, n models.Negotiation, unitID string) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.negotiations.SetState(ctx, tx, n.ID, models.NegotiationExpired, n.Awaiting, n.CounterPrice, n.CurrentPrice, nil); err != nil {
			return err
		}
		return s.units.SetActiveNegotiation(ctx, tx, unitID, nil)
	})
	if err != nil {
		return err
	}
	return StateConflictError{Entity: "negotiation", ID: n.ID, State: models.NegotiationExpired, Want: models.NegotiationAccepted}
}

func (s *TradeService) recomputeListingStatus(ctx context.Context, tx store.Tx, listing models.Listing) (string, error) {
	available, err := s.units.CountAvailableUnits(ctx, tx, listing.ID)
	if err != nil {
		return "", err
	}
	status := listingStatusFor(available, listing.TotalUnits)
	if status == listing.Status {
		return status, nil
	}
	return status, s.units.SetListingStatus(ctx, tx, listing.ID, status)
}

func listingStatusFor(available, total int) string {
	switch {
	case available == total:
		return models.ListingActive
	case available == 0:
		return models.ListingFullyLocked
	default:
		return models.ListingPartiallyLocked
	}
}

// unitPrice is the listing's per-kilo price times the fixed unit size.
func unitPrice(listing models.Listing) int64 {
	return decimal.NewFromInt(listing.PricePerKilo).Mul(listing.UnitSize).Round(0).IntPart()
}

// BuildBlock aggregates a trader's own delivered, unconsumed units into one
// inventory record. The block flag is set when the total hits the standard
// block size exactly.
func (s *TradeService) BuildBlock(ctx context.Context, traderID string, unitIDs []string) (models.TraderInventory, error) {
	if err := requireRole(ctx, s.roles, traderID, models.RoleTrader); err != nil {
		return models.TraderInventory{}, err
	}
	if len(unitIDs) == 0 {
		return models.TraderInventory{}, ValidationError{Field: "unit_ids", Detail: "must not be empty"}
	}
	var inv models.TraderInventory
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		units, err := s.units.GetUnitsForUpdate(ctx, tx, unitIDs)
		if err != nil {
			return err
		}
		if len(units) != len(unitIDs) {
			return NotFoundError{Entity: "unit", ID: missingUnitID(unitIDs, units)}
		}
		totalKilos := decimal.Zero
		var value int64
		listingSizes := map[string]decimal.Decimal{}
		for _, unit := range units {
			if unit.LockedBy == nil || *unit.LockedBy != traderID {
				return AuthorizationError{UserID: traderID, Role: models.RoleTrader, Need: "owner of unit " + unit.ID}
			}
			if unit.Status != models.UnitDelivered {
				return StateConflictError{Entity: "unit", ID: unit.ID, State: unit.Status, Want: models.UnitDelivered}
			}
			if unit.InventoryID != nil {
				return StateConflictError{Entity: "unit", ID: unit.ID, State: "consumed", Want: "unconsumed"}
			}
			size, ok := listingSizes[unit.ListingID]
			if !ok {
				listing, err := s.units.GetListingForUpdate(ctx, tx, unit.ListingID)
				if err != nil {
					return err
				}
				size = listing.UnitSize
				listingSizes[unit.ListingID] = size
			}
			totalKilos = totalKilos.Add(size)
			if unit.LockedPrice != nil {
				value += *unit.LockedPrice
			}
		}
		inv = models.TraderInventory{
			ID:               uuid.NewString(),
			TraderID:         traderID,
			UTID:             utid.New(utid.ActorTrader),
			TotalKilos:       totalKilos,
			BlockSize:        s.blockSize,
			Value:            value,
			Status:           models.InventoryInStorage,
			StorageStartTime: time.Now().UTC(),
			IsBlock:          totalKilos.Equal(s.blockSize),
		}
		if err := s.inventories.Create(ctx, tx, inv); err != nil {
			return err
		}
		for _, unit := range units {
			if err := s.units.AssignInventory(ctx, tx, unit.ID, inv.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.TraderInventory{}, err
	}
	return inv, nil
}

func missingUnitID(requested []string, found []models.ListingUnit) string {
	present := make(map[string]struct{}, len(found))
	for _, unit := range found {
		present[unit.ID] = struct{}{}
	}
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			return id
		}
	}
	return ""
}

// negotiationExpired reports whether an open offer has outlived its expiry.
// Only pending and countered offers lapse; acceptance freezes the price and
// terminal states never expire further.
func negotiationExpired(status string, expiresAt *time.Time, now time.Time) bool {
	if status != models.NegotiationPending && status != models.NegotiationCountered {
		return false
	}
	return expiresAt != nil && now.After(*expiresAt)
}
