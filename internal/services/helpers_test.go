package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"agromart/internal/models"
	"agromart/internal/store"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

// stubRoles resolves roles from a fixed map; unknown users read as missing.
type stubRoles map[string]string

func (s stubRoles) GetRole(ctx context.Context, userID string) (string, error) {
	role, ok := s[userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return role, nil
}

// memLedger is an in-memory append-only ledger good enough to exercise the
// balance arithmetic without a database.
type memLedger struct {
	entries []store.LedgerEntryInput
}

func typeIn(entryType string, entryTypes []string) bool {
	for _, t := range entryTypes {
		if t == entryType {
			return true
		}
	}
	return false
}

func (m *memLedger) Insert(ctx context.Context, tx store.Execer, entry store.LedgerEntryInput) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memLedger) LatestBalanceForUpdate(ctx context.Context, tx store.Getter, userID string, entryTypes []string) (int64, error) {
	return m.latest(userID, entryTypes), nil
}

func (m *memLedger) LatestBalance(ctx context.Context, userID string, entryTypes []string) (int64, error) {
	return m.latest(userID, entryTypes), nil
}

func (m *memLedger) latest(userID string, entryTypes []string) int64 {
	for i := len(m.entries) - 1; i >= 0; i-- {
		entry := m.entries[i]
		if entry.UserID == userID && typeIn(entry.EntryType, entryTypes) {
			return entry.BalanceAfter
		}
	}
	return 0
}

func (m *memLedger) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.WalletLedgerEntry, error) {
	rows, err := m.ListByUserAscending(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memLedger) ListByUserAscending(ctx context.Context, userID string) ([]models.WalletLedgerEntry, error) {
	var rows []models.WalletLedgerEntry
	for i, entry := range m.entries {
		if entry.UserID != userID {
			continue
		}
		rows = append(rows, models.WalletLedgerEntry{
			ID:           entry.ID,
			Seq:          int64(i + 1),
			UserID:       entry.UserID,
			UTID:         entry.UTID,
			EntryType:    entry.EntryType,
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			Metadata:     entry.Metadata,
		})
	}
	return rows, nil
}

func (m *memLedger) GetByUTID(ctx context.Context, tx store.Getter, utidValue, entryType string) (models.WalletLedgerEntry, error) {
	for _, entry := range m.entries {
		if entry.UTID == utidValue && entry.EntryType == entryType {
			return models.WalletLedgerEntry{
				ID:           entry.ID,
				UserID:       entry.UserID,
				UTID:         entry.UTID,
				EntryType:    entry.EntryType,
				Amount:       entry.Amount,
				BalanceAfter: entry.BalanceAfter,
				Metadata:     entry.Metadata,
			}, nil
		}
	}
	return models.WalletLedgerEntry{}, sql.ErrNoRows
}

func (m *memLedger) DeleteAll(ctx context.Context, tx store.Execer) (int64, error) {
	count := int64(len(m.entries))
	m.entries = nil
	return count, nil
}

func (m *memLedger) byType(entryType string) []store.LedgerEntryInput {
	var matched []store.LedgerEntryInput
	for _, entry := range m.entries {
		if entry.EntryType == entryType {
			matched = append(matched, entry)
		}
	}
	return matched
}

// stubUnitStore satisfies the unit-store slices of the trade, negotiation,
// and admin services through optional function fields.
type stubUnitStore struct {
	getUnitForUpdateFn    func(ctx context.Context, tx store.Getter, unitID string) (models.ListingUnit, error)
	getUnitByLockUTIDFn   func(ctx context.Context, tx store.Getter, lockUTID string) (models.ListingUnit, error)
	getUnitsForUpdateFn   func(ctx context.Context, tx store.Selecter, unitIDs []string) ([]models.ListingUnit, error)
	getListingForUpdateFn func(ctx context.Context, tx store.Getter, listingID string) (models.Listing, error)
	lockUnitFn            func(ctx context.Context, tx store.Execer, unitID, traderID, lockUTID string, priceMinor int64, lockedAt, deadline time.Time) (int64, error)
	clearLockFn           func(ctx context.Context, tx store.Execer, unitID string) error
	setDeliveryStatusFn   func(ctx context.Context, tx store.Execer, unitID, deliveryStatus string) error
	setUnitStatusFn       func(ctx context.Context, tx store.Execer, unitID, status string) error
	setActiveNegFn        func(ctx context.Context, tx store.Execer, unitID string, negotiationID *string) error
	assignInventoryFn     func(ctx context.Context, tx store.Execer, unitID, inventoryID string) error
	countAvailableFn      func(ctx context.Context, tx store.Getter, listingID string) (int, error)
	setListingStatusFn    func(ctx context.Context, tx store.Execer, listingID, status string) error
	listOverdueFn         func(ctx context.Context, now time.Time) ([]models.ListingUnit, error)
	resetUnitsFn          func(ctx context.Context, tx store.Execer) (int64, error)
	resetListingsFn       func(ctx context.Context, tx store.Execer) (int64, error)
}

func (s stubUnitStore) GetUnitForUpdate(ctx context.Context, tx store.Getter, unitID string) (models.ListingUnit, error) {
	if s.getUnitForUpdateFn == nil {
		return models.ListingUnit{}, sql.ErrNoRows
	}
	return s.getUnitForUpdateFn(ctx, tx, unitID)
}

func (s stubUnitStore) GetUnitByLockUTID(ctx context.Context, tx store.Getter, lockUTID string) (models.ListingUnit, error) {
	if s.getUnitByLockUTIDFn == nil {
		return models.ListingUnit{}, sql.ErrNoRows
	}
	return s.getUnitByLockUTIDFn(ctx, tx, lockUTID)
}

func (s stubUnitStore) GetUnitsForUpdate(ctx context.Context, tx store.Selecter, unitIDs []string) ([]models.ListingUnit, error) {
	if s.getUnitsForUpdateFn == nil {
		return nil, nil
	}
	return s.getUnitsForUpdateFn(ctx, tx, unitIDs)
}

func (s stubUnitStore) GetListingForUpdate(ctx context.Context, tx store.Getter, listingID string) (models.Listing, error) {
	if s.getListingForUpdateFn == nil {
		return models.Listing{}, sql.ErrNoRows
	}
	return s.getListingForUpdateFn(ctx, tx, listingID)
}

func (s stubUnitStore) LockUnit(ctx context.Context, tx store.Execer, unitID, traderID, lockUTID string, priceMinor int64, lockedAt, deadline time.Time) (int64, error) {
	if s.lockUnitFn == nil {
		return 1, nil
	}
	return s.lockUnitFn(ctx, tx, unitID, traderID, lockUTID, priceMinor, lockedAt, deadline)
}

func (s stubUnitStore) ClearLock(ctx context.Context, tx store.Execer, unitID string) error {
	if s.clearLockFn == nil {
		return nil
	}
	return s.clearLockFn(ctx, tx, unitID)
}

func (s stubUnitStore) SetDeliveryStatus(ctx context.Context, tx store.Execer, unitID, deliveryStatus string) error {
	if s.setDeliveryStatusFn == nil {
		return nil
	}
	return s.setDeliveryStatusFn(ctx, tx, unitID, deliveryStatus)
}

func (s stubUnitStore) SetUnitStatus(ctx context.Context, tx store.Execer, unitID, status string) error {
	if s.setUnitStatusFn == nil {
		return nil
	}
	return s.setUnitStatusFn(ctx, tx, unitID, status)
}

func (s stubUnitStore) SetActiveNegotiation(ctx context.Context, tx store.Execer, unitID string, negotiationID *string) error {
	if s.setActiveNegFn == nil {
		return nil
	}
	return s.setActiveNegFn(ctx, tx, unitID, negotiationID)
}

func (s stubUnitStore) AssignInventory(ctx context.Context, tx store.Execer, unitID, inventoryID string) error {
	if s.assignInventoryFn == nil {
		return nil
	}
	return s.assignInventoryFn(ctx, tx, unitID, inventoryID)
}

func (s stubUnitStore) CountAvailableUnits(ctx context.Context, tx store.Getter, listingID string) (int, error) {
	if s.countAvailableFn == nil {
		return 0, nil
	}
	return s.countAvailableFn(ctx, tx, listingID)
}

func (s stubUnitStore) SetListingStatus(ctx context.Context, tx store.Execer, listingID, status string) error {
	if s.setListingStatusFn == nil {
		return nil
	}
	return s.setListingStatusFn(ctx, tx, listingID, status)
}

func (s stubUnitStore) ListOverdueDeliveries(ctx context.Context, now time.Time) ([]models.ListingUnit, error) {
	if s.listOverdueFn == nil {
		return nil, nil
	}
	return s.listOverdueFn(ctx, now)
}

func (s stubUnitStore) ResetUnits(ctx context.Context, tx store.Execer) (int64, error) {
	if s.resetUnitsFn == nil {
		return 0, nil
	}
	return s.resetUnitsFn(ctx, tx)
}

func (s stubUnitStore) ResetListings(ctx context.Context, tx store.Execer) (int64, error) {
	if s.resetListingsFn == nil {
		return 0, nil
	}
	return s.resetListingsFn(ctx, tx)
}

type stubNegotiationStore struct {
	createFn       func(ctx context.Context, tx store.Execer, n models.Negotiation) error
	getForUpdateFn func(ctx context.Context, tx store.Getter, id string) (models.Negotiation, error)
	setStateFn     func(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error
	deleteAllFn    func(ctx context.Context, tx store.Execer) (int64, error)
}

func (s stubNegotiationStore) Create(ctx context.Context, tx store.Execer, n models.Negotiation) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, n)
}

func (s stubNegotiationStore) GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.Negotiation, error) {
	if s.getForUpdateFn == nil {
		return models.Negotiation{}, sql.ErrNoRows
	}
	return s.getForUpdateFn(ctx, tx, id)
}

func (s stubNegotiationStore) SetState(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error {
	if s.setStateFn == nil {
		return nil
	}
	return s.setStateFn(ctx, tx, id, status, awaiting, counterPrice, currentPrice, acceptedUTID)
}

func (s stubNegotiationStore) DeleteAll(ctx context.Context, tx store.Execer) (int64, error) {
	if s.deleteAllFn == nil {
		return 0, nil
	}
	return s.deleteAllFn(ctx, tx)
}

type stubBuyerNegotiationStore struct {
	createFn       func(ctx context.Context, tx store.Execer, n models.BuyerNegotiation) error
	getForUpdateFn func(ctx context.Context, tx store.Getter, id string) (models.BuyerNegotiation, error)
	countActiveFn  func(ctx context.Context, tx store.Getter, inventoryID string) (int, error)
	getAcceptedFn  func(ctx context.Context, tx store.Getter, inventoryID, buyerID string) (models.BuyerNegotiation, error)
	setStateFn     func(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error
	deleteAllFn    func(ctx context.Context, tx store.Execer) (int64, error)
}

func (s stubBuyerNegotiationStore) Create(ctx context.Context, tx store.Execer, n models.BuyerNegotiation) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, n)
}

func (s stubBuyerNegotiationStore) GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.BuyerNegotiation, error) {
	if s.getForUpdateFn == nil {
		return models.BuyerNegotiation{}, sql.ErrNoRows
	}
	return s.getForUpdateFn(ctx, tx, id)
}

func (s stubBuyerNegotiationStore) CountActiveForInventory(ctx context.Context, tx store.Getter, inventoryID string) (int, error) {
	if s.countActiveFn == nil {
		return 0, nil
	}
	return s.countActiveFn(ctx, tx, inventoryID)
}

func (s stubBuyerNegotiationStore) GetAcceptedForInventory(ctx context.Context, tx store.Getter, inventoryID, buyerID string) (models.BuyerNegotiation, error) {
	if s.getAcceptedFn == nil {
		return models.BuyerNegotiation{}, sql.ErrNoRows
	}
	return s.getAcceptedFn(ctx, tx, inventoryID, buyerID)
}

func (s stubBuyerNegotiationStore) SetState(ctx context.Context, tx store.Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error {
	if s.setStateFn == nil {
		return nil
	}
	return s.setStateFn(ctx, tx, id, status, awaiting, counterPrice, currentPrice, acceptedUTID)
}

func (s stubBuyerNegotiationStore) DeleteAll(ctx context.Context, tx store.Execer) (int64, error) {
	if s.deleteAllFn == nil {
		return 0, nil
	}
	return s.deleteAllFn(ctx, tx)
}

type stubInventoryStore struct {
	createFn        func(ctx context.Context, tx store.Execer, inv models.TraderInventory) error
	getForUpdateFn  func(ctx context.Context, tx store.Getter, inventoryID string) (models.TraderInventory, error)
	setStatusFn     func(ctx context.Context, tx store.Execer, inventoryID, status string) error
	listInStorageFn func(ctx context.Context) ([]models.TraderInventory, error)
	deleteAllFn     func(ctx context.Context, tx store.Execer) (int64, error)
}

func (s stubInventoryStore) Create(ctx context.Context, tx store.Execer, inv models.TraderInventory) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, inv)
}

func (s stubInventoryStore) GetForUpdate(ctx context.Context, tx store.Getter, inventoryID string) (models.TraderInventory, error) {
	if s.getForUpdateFn == nil {
		return models.TraderInventory{}, sql.ErrNoRows
	}
	return s.getForUpdateFn(ctx, tx, inventoryID)
}

func (s stubInventoryStore) SetStatus(ctx context.Context, tx store.Execer, inventoryID, status string) error {
	if s.setStatusFn == nil {
		return nil
	}
	return s.setStatusFn(ctx, tx, inventoryID, status)
}

func (s stubInventoryStore) ListInStorage(ctx context.Context) ([]models.TraderInventory, error) {
	if s.listInStorageFn == nil {
		return nil, nil
	}
	return s.listInStorageFn(ctx)
}

func (s stubInventoryStore) DeleteAll(ctx context.Context, tx store.Execer) (int64, error) {
	if s.deleteAllFn == nil {
		return 0, nil
	}
	return s.deleteAllFn(ctx, tx)
}

type stubPurchaseStore struct {
	createFn      func(ctx context.Context, tx store.Execer, p models.BuyerPurchase) error
	listByBuyerFn func(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error)
	listOverdueFn func(ctx context.Context, now time.Time) ([]models.BuyerPurchase, error)
	deleteAllFn   func(ctx context.Context, tx store.Execer) (int64, error)
}

func (s stubPurchaseStore) Create(ctx context.Context, tx store.Execer, p models.BuyerPurchase) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, p)
}

func (s stubPurchaseStore) ListByBuyer(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error) {
	if s.listByBuyerFn == nil {
		return nil, nil
	}
	return s.listByBuyerFn(ctx, buyerID)
}

func (s stubPurchaseStore) ListOverduePickups(ctx context.Context, now time.Time) ([]models.BuyerPurchase, error) {
	if s.listOverdueFn == nil {
		return nil, nil
	}
	return s.listOverdueFn(ctx, now)
}

func (s stubPurchaseStore) DeleteAll(ctx context.Context, tx store.Execer) (int64, error) {
	if s.deleteAllFn == nil {
		return 0, nil
	}
	return s.deleteAllFn(ctx, tx)
}

type stubWindow struct {
	isOpenFn func(ctx context.Context, tx store.Getter) (bool, error)
	appendFn func(ctx context.Context, tx store.Execer, event models.PurchaseWindowEvent) error
}

func (s stubWindow) IsOpen(ctx context.Context, tx store.Getter) (bool, error) {
	if s.isOpenFn == nil {
		return false, nil
	}
	return s.isOpenFn(ctx, tx)
}

func (s stubWindow) Append(ctx context.Context, tx store.Execer, event models.PurchaseWindowEvent) error {
	if s.appendFn == nil {
		return nil
	}
	return s.appendFn(ctx, tx, event)
}

type stubSettings struct {
	values map[string]string
	setFn  func(ctx context.Context, tx store.Execer, key, value, updatedBy string) (int64, error)
}

func (s stubSettings) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", sql.ErrNoRows
	}
	return value, nil
}

func (s stubSettings) Set(ctx context.Context, tx store.Execer, key, value, updatedBy string) (int64, error) {
	if s.setFn == nil {
		return 1, nil
	}
	return s.setFn(ctx, tx, key, value, updatedBy)
}

// actionRecorder collects the admin audit rows a test run writes.
type actionRecorder struct {
	logged []models.AdminAction
}

func (a *actionRecorder) Log(ctx context.Context, tx store.Execer, action models.AdminAction) error {
	a.logged = append(a.logged, action)
	return nil
}

type stubExposureComputer struct {
	exposure Exposure
	err      error
}

func (s stubExposureComputer) ComputeIn(ctx context.Context, q store.Getter, traderID string) (Exposure, error) {
	return s.exposure, s.err
}

type stubAdminUsers struct {
	roles        stubRoles
	listByRoleFn func(ctx context.Context, role string) ([]models.User, error)
	updateCapFn  func(ctx context.Context, tx store.Execer, userID string, capMinor *int64) error
}

func (s stubAdminUsers) GetRole(ctx context.Context, userID string) (string, error) {
	return s.roles.GetRole(ctx, userID)
}

func (s stubAdminUsers) ListByRole(ctx context.Context, role string) ([]models.User, error) {
	if s.listByRoleFn == nil {
		return nil, nil
	}
	return s.listByRoleFn(ctx, role)
}

func (s stubAdminUsers) UpdateSpendCap(ctx context.Context, tx store.Execer, userID string, capMinor *int64) error {
	if s.updateCapFn == nil {
		return nil
	}
	return s.updateCapFn(ctx, tx, userID, capMinor)
}

// txJournal records the writes a test stages during transactions run by
// discardingTxRunner, split into committed and still-pending sets.
type txJournal struct {
	pendingFlips  []string
	pendingClears []unitClear
	flips         []string
	clears        []unitClear
}

type unitClear struct {
	unitID        string
	negotiationID *string
}

func (j *txJournal) stageFlip(status string) {
	j.pendingFlips = append(j.pendingFlips, status)
}

func (j *txJournal) stageClear(unitID string, negotiationID *string) {
	j.pendingClears = append(j.pendingClears, unitClear{unitID: unitID, negotiationID: negotiationID})
}

// discardingTxRunner mimics the real runner's rollback semantics: writes
// staged while the transaction function runs are committed only if it
// returns nil, and discarded otherwise.
func discardingTxRunner() (fakeTxRunner, *txJournal) {
	journal := &txJournal{}
	runner := fakeTxRunner{withTxFn: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
		journal.pendingFlips = nil
		journal.pendingClears = nil
		if err := fn(nil); err != nil {
			journal.pendingFlips = nil
			journal.pendingClears = nil
			return err
		}
		journal.flips = append(journal.flips, journal.pendingFlips...)
		journal.clears = append(journal.clears, journal.pendingClears...)
		return nil
	}}
	return runner, journal
}

func int64Ptr(value int64) *int64 {
	return &value
}

func strPtr(value string) *string {
	return &value
}

func timePtr(value time.Time) *time.Time {
	return &value
}
