package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agromart/internal/db"
	"agromart/internal/metrics"
	"agromart/internal/models"
	"agromart/internal/storagefee"
	"agromart/internal/store"
	"agromart/internal/utid"
	"agromart/internal/validator"
)

// Delivery outcomes an admin may record.
const (
	OutcomeDelivered = models.DeliveryDelivered
	OutcomeLate      = models.DeliveryLate
	OutcomeCancelled = models.DeliveryCancelled
)

// Default red-flag thresholds for storage loss.
var (
	defaultMinLossPercent = decimal.NewFromInt(10)
	defaultMinLossKilos   = decimal.NewFromInt(5)
)

type AdminUnitStore interface {
	GetUnitForUpdate(ctx context.Context, tx store.Getter, unitID string) (models.ListingUnit, error)
	GetUnitByLockUTID(ctx context.Context, tx store.Getter, lockUTID string) (models.ListingUnit, error)
	GetListingForUpdate(ctx context.Context, tx store.Getter, listingID string) (models.Listing, error)
	SetDeliveryStatus(ctx context.Context, tx store.Execer, unitID, deliveryStatus string) error
	SetUnitStatus(ctx context.Context, tx store.Execer, unitID, status string) error
	ClearLock(ctx context.Context, tx store.Execer, unitID string) error
	AssignInventory(ctx context.Context, tx store.Execer, unitID, inventoryID string) error
	CountAvailableUnits(ctx context.Context, tx store.Getter, listingID string) (int, error)
	SetListingStatus(ctx context.Context, tx store.Execer, listingID, status string) error
	ListOverdueDeliveries(ctx context.Context, now time.Time) ([]models.ListingUnit, error)
	ResetUnits(ctx context.Context, tx store.Execer) (int64, error)
	ResetListings(ctx context.Context, tx store.Execer) (int64, error)
}

type AdminLedgerStore interface {
	GetByUTID(ctx context.Context, tx store.Getter, utidValue, entryType string) (models.WalletLedgerEntry, error)
	DeleteAll(ctx context.Context, tx store.Execer) (int64, error)
}

type AdminNegotiationStore interface {
	DeleteAll(ctx context.Context, tx store.Execer) (int64, error)
}

type AdminInventoryStore interface {
	Create(ctx context.Context, tx store.Execer, inv models.TraderInventory) error
	ListInStorage(ctx context.Context) ([]models.TraderInventory, error)
	DeleteAll(ctx context.Context, tx store.Execer) (int64, error)
}

type AdminPurchaseStore interface {
	ListOverduePickups(ctx context.Context, now time.Time) ([]models.BuyerPurchase, error)
	DeleteAll(ctx context.Context, tx store.Execer) (int64, error)
}

type AdminWindowStore interface {
	Append(ctx context.Context, tx store.Execer, event models.PurchaseWindowEvent) error
	IsOpen(ctx context.Context, tx store.Getter) (bool, error)
}

type AdminSettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, tx store.Execer, key, value, updatedBy string) (int64, error)
}

type AdminActionLogger interface {
	Log(ctx context.Context, tx store.Execer, action models.AdminAction) error
}

type AdminUserStore interface {
	GetRole(ctx context.Context, userID string) (string, error)
	ListByRole(ctx context.Context, role string) ([]models.User, error)
	UpdateSpendCap(ctx context.Context, tx store.Execer, userID string, capMinor *int64) error
}

// AdminService performs the admin-mediated transitions: delivery
// verification, failure reversal, the purchase-window toggle, setting
// updates, red-flag scans, and the last-resort bulk reset. Every mutation
// verifies the caller's stored admin role, demands a non-empty reason, and
// writes exactly one admin action inside the same transaction as the change.
type AdminService struct {
	txRunner     db.TxRunner
	users        AdminUserStore
	units        AdminUnitStore
	ledger       *Ledger
	entries      AdminLedgerStore
	negotiations AdminNegotiationStore
	buyerNegs    AdminNegotiationStore
	inventories  AdminInventoryStore
	purchases    AdminPurchaseStore
	window       AdminWindowStore
	settings     AdminSettingsStore
	actions      AdminActionLogger
	blockSize    decimal.Decimal
	defaultCap   int64
	log          zerolog.Logger
}

func NewAdminService(txRunner db.TxRunner, users AdminUserStore, units AdminUnitStore, ledger *Ledger, entries AdminLedgerStore, negotiations, buyerNegs AdminNegotiationStore, inventories AdminInventoryStore, purchases AdminPurchaseStore, window AdminWindowStore, settings AdminSettingsStore, actions AdminActionLogger, blockSizeKilos, defaultCapMinor int64, log zerolog.Logger) *AdminService {
	return &AdminService{
		txRunner:     txRunner,
		users:        users,
		units:        units,
		ledger:       ledger,
		entries:      entries,
		negotiations: negotiations,
		buyerNegs:    buyerNegs,
		inventories:  inventories,
		purchases:    purchases,
		window:       window,
		settings:     settings,
		actions:      actions,
		blockSize:    decimal.NewFromInt(blockSizeKilos),
		defaultCap:   defaultCapMinor,
		log:          log,
	}
}

func (s *AdminService) guard(ctx context.Context, adminID, reason string) error {
	if err := validator.ValidateReason(reason); err != nil {
		return ValidationError{Field: "reason", Detail: "must not be empty"}
	}
	return requireRole(ctx, s.users, adminID, models.RoleAdmin)
}

func (s *AdminService) logAction(ctx context.Context, tx store.Execer, adminID, actionType, actionUTID, reason, targetUTID, metadata string) error {
	if metadata == "" {
		metadata = "{}"
	}
	return s.actions.Log(ctx, tx, models.AdminAction{
		ID:         uuid.NewString(),
		AdminID:    adminID,
		ActionType: actionType,
		UTID:       actionUTID,
		Reason:     reason,
		TargetUTID: targetUTID,
		Metadata:   metadata,
	})
}

// VerifyDelivery records the physical outcome of a locked unit's delivery.
// Nothing transitions automatically at the deadline; this call is the only
// way a pending delivery resolves.
func (s *AdminService) VerifyDelivery(ctx context.Context, adminID, unitID, outcome, reason string) error {
	if err := s.guard(ctx, adminID, reason); err != nil {
		return err
	}
	if outcome != OutcomeDelivered && outcome != OutcomeLate && outcome != OutcomeCancelled {
		return ValidationError{Field: "outcome", Detail: "must be delivered, late, or cancelled"}
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		unit, err := s.units.GetUnitForUpdate(ctx, tx, unitID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "unit", ID: unitID}
			}
			return err
		}
		if unit.Status != models.UnitLocked {
			return StateConflictError{Entity: "unit", ID: unitID, State: unit.Status, Want: models.UnitLocked}
		}
		if unit.DeliveryStatus != models.DeliveryPending {
			return StateConflictError{Entity: "unit", ID: unitID, State: unit.DeliveryStatus, Want: models.DeliveryPending}
		}
		if err := s.units.SetDeliveryStatus(ctx, tx, unitID, outcome); err != nil {
			return err
		}
		switch outcome {
		case OutcomeDelivered:
			if err := s.units.SetUnitStatus(ctx, tx, unitID, models.UnitDelivered); err != nil {
				return err
			}
		case OutcomeCancelled:
			if err := s.units.SetUnitStatus(ctx, tx, unitID, models.UnitCancelled); err != nil {
				return err
			}
		}
		target := ""
		if unit.LockUTID != nil {
			target = *unit.LockUTID
		}
		metadata := metadataJSON(map[string]string{"unit_id": unitID, "outcome": outcome})
		return s.logAction(ctx, tx, adminID, "verify_delivery", utid.New(utid.ActorAdmin), reason, target, metadata)
	})
}

// ReverseDeliveryFailure unwinds a failed delivery: the unit returns to
// available with its lock fields cleared, the trader's capital comes back as
// an offsetting capital_unlock entry for the originally locked amount, and
// the listing status is recomputed, all in one transaction.
func (s *AdminService) ReverseDeliveryFailure(ctx context.Context, adminID, unitID, reason string) error {
	if err := s.guard(ctx, adminID, reason); err != nil {
		return err
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		unit, err := s.units.GetUnitForUpdate(ctx, tx, unitID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "unit", ID: unitID}
			}
			return err
		}
		if unit.LockUTID == nil || unit.LockedBy == nil {
			return StateConflictError{Entity: "unit", ID: unitID, State: "unlocked", Want: "a recorded lock"}
		}
		if unit.DeliveryStatus != models.DeliveryLate && unit.DeliveryStatus != models.DeliveryCancelled {
			return StateConflictError{Entity: "unit", ID: unitID, State: unit.DeliveryStatus, Want: "late or cancelled"}
		}
		lockEntry, err := s.entries.GetByUTID(ctx, tx, *unit.LockUTID, models.EntryCapitalLock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "ledger entry", ID: *unit.LockUTID}
			}
			return err
		}
		reverseUTID := utid.New(utid.ActorAdmin)
		metadata := metadataJSON(map[string]string{"reversal_of": *unit.LockUTID, "unit_id": unitID})
		if _, err := s.ledger.Append(ctx, tx, *unit.LockedBy, models.EntryCapitalUnlock, lockEntry.Amount, reverseUTID, metadata); err != nil {
			return err
		}
		if err := s.units.ClearLock(ctx, tx, unitID); err != nil {
			return err
		}
		listing, err := s.units.GetListingForUpdate(ctx, tx, unit.ListingID)
		if err != nil {
			return err
		}
		available, err := s.units.CountAvailableUnits(ctx, tx, listing.ID)
		if err != nil {
			return err
		}
		if status := listingStatusFor(available, listing.TotalUnits); status != listing.Status {
			if err := s.units.SetListingStatus(ctx, tx, listing.ID, status); err != nil {
				return err
			}
		}
		return s.logAction(ctx, tx, adminID, "reverse_delivery_failure", reverseUTID, reason, *unit.LockUTID, metadata)
	})
	if err != nil {
		return err
	}
	metrics.ReversalsTotal.Inc()
	return nil
}

// OpenWindow and CloseWindow toggle the buyer purchase gate by appending to
// the window event history.
func (s *AdminService) OpenWindow(ctx context.Context, adminID, reason string) error {
	return s.toggleWindow(ctx, adminID, reason, true)
}

func (s *AdminService) CloseWindow(ctx context.Context, adminID, reason string) error {
	return s.toggleWindow(ctx, adminID, reason, false)
}

func (s *AdminService) toggleWindow(ctx context.Context, adminID, reason string, open bool) error {
	if err := s.guard(ctx, adminID, reason); err != nil {
		return err
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.window.IsOpen(ctx, tx)
		if err != nil {
			return err
		}
		if current == open {
			state, want := "closed", "open"
			if current {
				state, want = "open", "closed"
			}
			return StateConflictError{Entity: "purchase window", ID: "current", State: state, Want: want}
		}
		eventUTID := utid.New(utid.ActorAdmin)
		if err := s.window.Append(ctx, tx, models.PurchaseWindowEvent{
			ID:      uuid.NewString(),
			IsOpen:  open,
			ActorID: adminID,
			UTID:    eventUTID,
		}); err != nil {
			return err
		}
		actionType := "close_purchase_window"
		if open {
			actionType = "open_purchase_window"
		}
		return s.logAction(ctx, tx, adminID, actionType, eventUTID, reason, "", "")
	})
}

// UpdateSetting changes one of the two admin tunables.
func (s *AdminService) UpdateSetting(ctx context.Context, adminID, key, value, reason string) error {
	if err := s.guard(ctx, adminID, reason); err != nil {
		return err
	}
	if key != models.SettingStorageFeeRate && key != models.SettingBuyerServiceFee {
		return ValidationError{Field: "key", Detail: "unknown setting"}
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil || parsed.IsNegative() {
		return ValidationError{Field: "value", Detail: "must be a non-negative number"}
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.settings.Set(ctx, tx, key, value, adminID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return NotFoundError{Entity: "setting", ID: key}
		}
		metadata := metadataJSON(map[string]string{"key": key, "value": value})
		return s.logAction(ctx, tx, adminID, "update_setting", utid.New(utid.ActorAdmin), reason, "", metadata)
	})
}

// SetTraderCap sets or clears a trader's spend-cap override.
func (s *AdminService) SetTraderCap(ctx context.Context, adminID, traderID string, capMinor *int64, reason string) error {
	if err := s.guard(ctx, adminID, reason); err != nil {
		return err
	}
	if capMinor != nil && *capMinor <= 0 {
		return ValidationError{Field: "spend_cap_minor", Detail: "must be positive"}
	}
	role, err := s.users.GetRole(ctx, traderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundError{Entity: "user", ID: traderID}
		}
		return err
	}
	if role != models.RoleTrader {
		return ValidationError{Field: "trader_id", Detail: "spend caps apply to traders only"}
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.UpdateSpendCap(ctx, tx, traderID, capMinor); err != nil {
			return err
		}
		capValue := "default"
		if capMinor != nil {
			capValue = fmt.Sprintf("%d", *capMinor)
		}
		metadata := metadataJSON(map[string]string{"trader_id": traderID, "spend_cap_minor": capValue})
		return s.logAction(ctx, tx, adminID, "set_trader_cap", utid.New(utid.ActorAdmin), reason, "", metadata)
	})
}

// HighLossInventory pairs an in-storage inventory with its computed decay.
type HighLossInventory struct {
	Inventory      models.TraderInventory `json:"inventory"`
	KilosLost      decimal.Decimal        `json:"kilos_lost"`
	EffectiveKilos decimal.Decimal        `json:"effective_kilos"`
}

// RedFlags is the SLA monitor's output: entities past deadline or past the
// loss thresholds, awaiting an admin decision. Computing it mutates nothing.
type RedFlags struct {
	OverdueDeliveries []models.ListingUnit   `json:"overdue_deliveries"`
	OverduePickups    []models.BuyerPurchase `json:"overdue_pickups"`
	HighLoss          []HighLossInventory    `json:"high_loss_inventories"`
}

func (s *AdminService) ScanRedFlags(ctx context.Context, now time.Time) (RedFlags, error) {
	var flags RedFlags
	var err error
	flags.OverdueDeliveries, err = s.units.ListOverdueDeliveries(ctx, now)
	if err != nil {
		return RedFlags{}, err
	}
	flags.OverduePickups, err = s.purchases.ListOverduePickups(ctx, now)
	if err != nil {
		return RedFlags{}, err
	}
	rateRaw, err := s.settings.Get(ctx, models.SettingStorageFeeRate)
	if err != nil {
		return RedFlags{}, err
	}
	rate, err := decimal.NewFromString(rateRaw)
	if err != nil {
		rate = storagefee.DefaultRatePerDay
	}
	stored, err := s.inventories.ListInStorage(ctx)
	if err != nil {
		return RedFlags{}, err
	}
	for _, inv := range stored {
		lost := storagefee.KilosLost(inv.TotalKilos, rate, inv.StorageStartTime, now)
		if storagefee.HighLoss(lost, inv.TotalKilos, defaultMinLossPercent, defaultMinLossKilos) {
			flags.HighLoss = append(flags.HighLoss, HighLossInventory{
				Inventory:      inv,
				KilosLost:      lost,
				EffectiveKilos: storagefee.EffectiveKilos(inv.TotalKilos, rate, inv.StorageStartTime, now),
			})
		}
	}
	return flags, nil
}

// ResetSummary reports the outcome of the bulk reset: per-step row counts
// and every error encountered. Errors do not abort the remaining steps.
type ResetSummary struct {
	UTID   string           `json:"utid"`
	Counts map[string]int64 `json:"counts"`
	Errors []string         `json:"errors"`
}

// ResetAllTransactions is the destructive last-resort recovery tool. Unlike
// everything else in this core it is deliberately non-atomic: each sub-step
// runs in its own transaction and failures are accumulated rather than
// rolling back the recovery already achieved. Deletes all purchases,
// inventories, negotiations, and ledger history, resets units and listings
// to initial state, then re-seeds every trader with a default-cap deposit.
func (s *AdminService) ResetAllTransactions(ctx context.Context, adminID, reason string) (ResetSummary, error) {
	if err := s.guard(ctx, adminID, reason); err != nil {
		return ResetSummary{}, err
	}
	summary := ResetSummary{
		UTID:   utid.New(utid.ActorAdmin),
		Counts: map[string]int64{},
	}
	step := func(name string, fn func(tx *sqlx.Tx) (int64, error)) {
		err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			count, err := fn(tx)
			if err != nil {
				return err
			}
			summary.Counts[name] = count
			return nil
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", name, err))
			s.log.Error().Err(err).Str("step", name).Msg("reset step failed")
		}
	}
	step("purchases_deleted", func(tx *sqlx.Tx) (int64, error) { return s.purchases.DeleteAll(ctx, tx) })
	step("inventories_deleted", func(tx *sqlx.Tx) (int64, error) { return s.inventories.DeleteAll(ctx, tx) })
	step("negotiations_deleted", func(tx *sqlx.Tx) (int64, error) {
		unitNegs, err := s.negotiations.DeleteAll(ctx, tx)
		if err != nil {
			return 0, err
		}
		blockNegs, err := s.buyerNegs.DeleteAll(ctx, tx)
		if err != nil {
			return 0, err
		}
		return unitNegs + blockNegs, nil
	})
	step("ledger_entries_deleted", func(tx *sqlx.Tx) (int64, error) { return s.entries.DeleteAll(ctx, tx) })
	step("units_reset", func(tx *sqlx.Tx) (int64, error) {
		units, err := s.units.ResetUnits(ctx, tx)
		if err != nil {
			return 0, err
		}
		if _, err := s.units.ResetListings(ctx, tx); err != nil {
			return 0, err
		}
		return units, nil
	})
	step("traders_reseeded", func(tx *sqlx.Tx) (int64, error) {
		traders, err := s.users.ListByRole(ctx, models.RoleTrader)
		if err != nil {
			return 0, err
		}
		metadata := metadataJSON(map[string]string{"reset_utid": summary.UTID})
		var reseeded int64
		for _, trader := range traders {
			if _, err := s.ledger.Append(ctx, tx, trader.ID, models.EntryCapitalDeposit, s.defaultCap, utid.New(utid.ActorSystem), metadata); err != nil {
				return reseeded, err
			}
			reseeded++
		}
		return reseeded, nil
	})
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		metadata := metadataJSON(map[string]string{
			"errors": fmt.Sprintf("%d", len(summary.Errors)),
		})
		return s.logAction(ctx, tx, adminID, "reset_all_transactions", summary.UTID, reason, "", metadata)
	})
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("audit: %v", err))
	}
	s.log.Info().
		Int("errors", len(summary.Errors)).
		Str("utid", summary.UTID).
		Msg("bulk reset finished")
	return summary, nil
}

// BatchInventorySummary reports the outcome of a bulk inventory build: the
// inventories created and every lock UTID that could not be converted.
type BatchInventorySummary struct {
	UTID    string   `json:"utid"`
	Created []string `json:"created_inventory_ids"`
	Errors  []string `json:"errors"`
}

// BatchCreateInventories builds one single-unit inventory per lock UTID, for
// recovering traders whose delivered units never made it into storage. Like
// the bulk reset it is best-effort: each UTID converts in its own
// transaction and failures are collected rather than aborting the batch.
func (s *AdminService) BatchCreateInventories(ctx context.Context, adminID string, lockUTIDs []string, reason string) (BatchInventorySummary, error) {
	if err := s.guard(ctx, adminID, reason); err != nil {
		return BatchInventorySummary{}, err
	}
	if len(lockUTIDs) == 0 {
		return BatchInventorySummary{}, ValidationError{Field: "lock_utids", Detail: "must not be empty"}
	}
	summary := BatchInventorySummary{UTID: utid.New(utid.ActorAdmin)}
	for _, lockUTID := range lockUTIDs {
		inventoryID, err := s.createInventoryFromLock(ctx, lockUTID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", lockUTID, err))
			s.log.Error().Err(err).Str("lock_utid", lockUTID).Msg("batch inventory step failed")
			continue
		}
		summary.Created = append(summary.Created, inventoryID)
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		metadata := metadataJSON(map[string]string{
			"created": fmt.Sprintf("%d", len(summary.Created)),
			"errors":  fmt.Sprintf("%d", len(summary.Errors)),
		})
		return s.logAction(ctx, tx, adminID, "batch_create_inventories", summary.UTID, reason, "", metadata)
	})
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("audit: %v", err))
	}
	return summary, nil
}

func (s *AdminService) createInventoryFromLock(ctx context.Context, lockUTID string) (string, error) {
	var inventoryID string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		unit, err := s.units.GetUnitByLockUTID(ctx, tx, lockUTID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "unit", ID: lockUTID}
			}
			return err
		}
		if unit.LockedBy == nil {
			return StateConflictError{Entity: "unit", ID: unit.ID, State: "unlocked", Want: "a recorded lock"}
		}
		if unit.Status != models.UnitDelivered {
			return StateConflictError{Entity: "unit", ID: unit.ID, State: unit.Status, Want: models.UnitDelivered}
		}
		if unit.InventoryID != nil {
			return StateConflictError{Entity: "unit", ID: unit.ID, State: "consumed", Want: "unconsumed"}
		}
		listing, err := s.units.GetListingForUpdate(ctx, tx, unit.ListingID)
		if err != nil {
			return err
		}
		var value int64
		if unit.LockedPrice != nil {
			value = *unit.LockedPrice
		}
		inv := models.TraderInventory{
			ID:               uuid.NewString(),
			TraderID:         *unit.LockedBy,
			UTID:             utid.New(utid.ActorAdmin),
			TotalKilos:       listing.UnitSize,
			BlockSize:        s.blockSize,
			Value:            value,
			Status:           models.InventoryInStorage,
			StorageStartTime: time.Now().UTC(),
			IsBlock:          listing.UnitSize.Equal(s.blockSize),
		}
		if err := s.inventories.Create(ctx, tx, inv); err != nil {
			return err
		}
		if err := s.units.AssignInventory(ctx, tx, unit.ID, inv.ID); err != nil {
			return err
		}
		inventoryID = inv.ID
		return nil
	})
	return inventoryID, err
}
