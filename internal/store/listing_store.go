package store

import (
	"context"
	"time"

	"github.com/lib/pq"

	"agromart/internal/models"
)

// ListingStore persists listings and their fixed-size units. Units are the
// atomic tradeable object; listing status is derived from unit state and
// recomputed after every unit transition.
type ListingStore struct {
	db DB
}

func NewListingStore(db DB) *ListingStore {
	return &ListingStore{db: db}
}

func (s *ListingStore) CreateListing(ctx context.Context, tx Execer, listing models.Listing) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO listings (id, farmer_id, utid, produce_type, total_kilos, price_per_kilo_minor, unit_size_kilos, total_units, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, listing.ID, listing.FarmerID, listing.UTID, listing.ProduceType, listing.TotalKilos,
		listing.PricePerKilo, listing.UnitSize, listing.TotalUnits, listing.Status)
	return err
}

func (s *ListingStore) CreateUnit(ctx context.Context, tx Execer, unit models.ListingUnit) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO listing_units (id, listing_id, unit_index, status, delivery_status)
		VALUES ($1, $2, $3, $4, $5)
	`, unit.ID, unit.ListingID, unit.UnitIndex, unit.Status, unit.DeliveryStatus)
	return err
}

func (s *ListingStore) GetListing(ctx context.Context, listingID string) (models.Listing, error) {
	var row models.Listing
	err := s.db.GetContext(ctx, &row, `
		SELECT id, farmer_id, utid, produce_type, total_kilos, price_per_kilo_minor, unit_size_kilos, total_units, status, created_at
		FROM listings
		WHERE id = $1
	`, listingID)
	return row, err
}

func (s *ListingStore) GetListingForUpdate(ctx context.Context, tx Getter, listingID string) (models.Listing, error) {
	var row models.Listing
	err := tx.GetContext(ctx, &row, `
		SELECT id, farmer_id, utid, produce_type, total_kilos, price_per_kilo_minor, unit_size_kilos, total_units, status, created_at
		FROM listings
		WHERE id = $1
		FOR UPDATE
	`, listingID)
	return row, err
}

func (s *ListingStore) ListListings(ctx context.Context) ([]models.Listing, error) {
	var rows []models.Listing
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, farmer_id, utid, produce_type, total_kilos, price_per_kilo_minor, unit_size_kilos, total_units, status, created_at
		FROM listings
		ORDER BY created_at DESC
	`)
	return rows, err
}

const unitColumns = `id, listing_id, unit_index, status, locked_by, locked_at, lock_utid, locked_price_minor,
	delivery_deadline, delivery_status, active_negotiation_id, inventory_id, created_at`

func (s *ListingStore) GetUnit(ctx context.Context, unitID string) (models.ListingUnit, error) {
	var row models.ListingUnit
	err := s.db.GetContext(ctx, &row, `SELECT `+unitColumns+` FROM listing_units WHERE id = $1`, unitID)
	return row, err
}

func (s *ListingStore) GetUnitForUpdate(ctx context.Context, tx Getter, unitID string) (models.ListingUnit, error) {
	var row models.ListingUnit
	err := tx.GetContext(ctx, &row, `SELECT `+unitColumns+` FROM listing_units WHERE id = $1 FOR UPDATE`, unitID)
	return row, err
}

// GetUnitByLockUTID locks and returns the unit whose capital lock was
// recorded under the given UTID.
func (s *ListingStore) GetUnitByLockUTID(ctx context.Context, tx Getter, lockUTID string) (models.ListingUnit, error) {
	var row models.ListingUnit
	err := tx.GetContext(ctx, &row, `SELECT `+unitColumns+` FROM listing_units WHERE lock_utid = $1 FOR UPDATE`, lockUTID)
	return row, err
}

func (s *ListingStore) GetUnitsForUpdate(ctx context.Context, tx Selecter, unitIDs []string) ([]models.ListingUnit, error) {
	var rows []models.ListingUnit
	err := tx.SelectContext(ctx, &rows, `
		SELECT `+unitColumns+` FROM listing_units WHERE id = ANY($1) ORDER BY id FOR UPDATE
	`, pq.Array(unitIDs))
	return rows, err
}

func (s *ListingStore) ListUnits(ctx context.Context, listingID string) ([]models.ListingUnit, error) {
	var rows []models.ListingUnit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+unitColumns+` FROM listing_units WHERE listing_id = $1 ORDER BY unit_index
	`, listingID)
	return rows, err
}

// LockUnit flips an available unit to locked in one statement. The WHERE
// clause on status is a second line of defense behind the FOR UPDATE read;
// zero rows affected means the unit was taken concurrently.
func (s *ListingStore) LockUnit(ctx context.Context, tx Execer, unitID, traderID, lockUTID string, priceMinor int64, lockedAt, deadline time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE listing_units
		SET status = 'locked', locked_by = $1, locked_at = $2, lock_utid = $3,
		    locked_price_minor = $4, delivery_deadline = $5, delivery_status = 'pending'
		WHERE id = $6 AND status = 'available'
	`, traderID, lockedAt, lockUTID, priceMinor, deadline, unitID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearLock returns a unit to available with all lock fields cleared. Used
// only by admin reversal.
func (s *ListingStore) ClearLock(ctx context.Context, tx Execer, unitID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listing_units
		SET status = 'available', locked_by = NULL, locked_at = NULL, lock_utid = NULL,
		    locked_price_minor = NULL, delivery_deadline = NULL, delivery_status = 'pending'
		WHERE id = $1
	`, unitID)
	return err
}

func (s *ListingStore) SetDeliveryStatus(ctx context.Context, tx Execer, unitID, deliveryStatus string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listing_units SET delivery_status = $1 WHERE id = $2
	`, deliveryStatus, unitID)
	return err
}

func (s *ListingStore) SetUnitStatus(ctx context.Context, tx Execer, unitID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listing_units SET status = $1 WHERE id = $2
	`, status, unitID)
	return err
}

func (s *ListingStore) SetActiveNegotiation(ctx context.Context, tx Execer, unitID string, negotiationID *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listing_units SET active_negotiation_id = $1 WHERE id = $2
	`, negotiationID, unitID)
	return err
}

func (s *ListingStore) AssignInventory(ctx context.Context, tx Execer, unitID, inventoryID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listing_units SET inventory_id = $1 WHERE id = $2
	`, inventoryID, unitID)
	return err
}

// CountAvailableUnits reads the remaining available-unit count inside the
// caller's transaction, for deriving listing status.
func (s *ListingStore) CountAvailableUnits(ctx context.Context, tx Getter, listingID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM listing_units WHERE listing_id = $1 AND status = 'available'
	`, listingID)
	return count, err
}

func (s *ListingStore) SetListingStatus(ctx context.Context, tx Execer, listingID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE listings SET status = $1 WHERE id = $2
	`, status, listingID)
	return err
}

// SumLockedOrderValue totals the locked prices of units a trader currently
// holds locks on.
func (s *ListingStore) SumLockedOrderValue(ctx context.Context, q Getter, traderID string) (int64, error) {
	var sum int64
	err := q.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(locked_price_minor), 0)
		FROM listing_units
		WHERE locked_by = $1 AND status = 'locked'
	`, traderID)
	return sum, err
}

// ListOverdueDeliveries flags units whose delivery deadline has passed with
// delivery still pending. Flags only; nothing is mutated.
func (s *ListingStore) ListOverdueDeliveries(ctx context.Context, now time.Time) ([]models.ListingUnit, error) {
	var rows []models.ListingUnit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+unitColumns+`
		FROM listing_units
		WHERE status = 'locked' AND delivery_status = 'pending' AND delivery_deadline < $1
		ORDER BY delivery_deadline
	`, now)
	return rows, err
}

// ResetUnits and ResetListings restore initial state for the admin bulk
// reset.
func (s *ListingStore) ResetUnits(ctx context.Context, tx Execer) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE listing_units
		SET status = 'available', locked_by = NULL, locked_at = NULL, lock_utid = NULL,
		    locked_price_minor = NULL, delivery_deadline = NULL, delivery_status = 'pending',
		    active_negotiation_id = NULL, inventory_id = NULL
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ListingStore) ResetListings(ctx context.Context, tx Execer) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE listings SET status = 'active'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
