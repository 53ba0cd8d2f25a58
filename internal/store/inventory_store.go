package store

import (
	"context"

	"agromart/internal/models"
)

// InventoryStore persists trader-owned blocks of delivered produce. Decay is
// never written here; storage_start_time is the only time-related fact and
// loss is computed from it on read.
type InventoryStore struct {
	db DB
}

func NewInventoryStore(db DB) *InventoryStore {
	return &InventoryStore{db: db}
}

const inventoryColumns = `id, trader_id, utid, total_kilos, block_size_kilos, value_minor, status,
	storage_start_time, is_block, created_at`

func (s *InventoryStore) Create(ctx context.Context, tx Execer, inv models.TraderInventory) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trader_inventories (id, trader_id, utid, total_kilos, block_size_kilos, value_minor, status, storage_start_time, is_block)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, inv.ID, inv.TraderID, inv.UTID, inv.TotalKilos, inv.BlockSize, inv.Value, inv.Status, inv.StorageStartTime, inv.IsBlock)
	return err
}

func (s *InventoryStore) Get(ctx context.Context, inventoryID string) (models.TraderInventory, error) {
	var row models.TraderInventory
	err := s.db.GetContext(ctx, &row, `SELECT `+inventoryColumns+` FROM trader_inventories WHERE id = $1`, inventoryID)
	return row, err
}

func (s *InventoryStore) GetForUpdate(ctx context.Context, tx Getter, inventoryID string) (models.TraderInventory, error) {
	var row models.TraderInventory
	err := tx.GetContext(ctx, &row, `SELECT `+inventoryColumns+` FROM trader_inventories WHERE id = $1 FOR UPDATE`, inventoryID)
	return row, err
}

func (s *InventoryStore) ListByTrader(ctx context.Context, traderID string) ([]models.TraderInventory, error) {
	var rows []models.TraderInventory
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+inventoryColumns+` FROM trader_inventories WHERE trader_id = $1 ORDER BY created_at DESC
	`, traderID)
	return rows, err
}

// ListInStorage returns every unsold block, for buyer browsing and admin
// red-flag scans.
func (s *InventoryStore) ListInStorage(ctx context.Context) ([]models.TraderInventory, error) {
	var rows []models.TraderInventory
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+inventoryColumns+` FROM trader_inventories WHERE status = 'in_storage' ORDER BY storage_start_time
	`)
	return rows, err
}

func (s *InventoryStore) SetStatus(ctx context.Context, tx Execer, inventoryID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE trader_inventories SET status = $1 WHERE id = $2
	`, status, inventoryID)
	return err
}

// SumUnsoldValue totals the acquisition value of a trader's unsold inventory
// for the exposure calculation.
func (s *InventoryStore) SumUnsoldValue(ctx context.Context, q Getter, traderID string) (int64, error) {
	var sum int64
	err := q.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(value_minor), 0)
		FROM trader_inventories
		WHERE trader_id = $1 AND status = 'in_storage'
	`, traderID)
	return sum, err
}

func (s *InventoryStore) DeleteAll(ctx context.Context, tx Execer) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM trader_inventories`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
