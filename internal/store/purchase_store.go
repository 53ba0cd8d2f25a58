package store

import (
	"context"
	"time"

	"agromart/internal/models"
)

type PurchaseStore struct {
	db DB
}

func NewPurchaseStore(db DB) *PurchaseStore {
	return &PurchaseStore{db: db}
}

const purchaseColumns = `id, buyer_id, inventory_id, utid, kilos, price_minor, service_fee_minor,
	purchased_at, pickup_deadline, status`

func (s *PurchaseStore) Create(ctx context.Context, tx Execer, p models.BuyerPurchase) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO buyer_purchases (id, buyer_id, inventory_id, utid, kilos, price_minor, service_fee_minor, purchased_at, pickup_deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.BuyerID, p.InventoryID, p.UTID, p.Kilos, p.Price, p.ServiceFee, p.PurchasedAt, p.PickupDeadline, p.Status)
	return err
}

func (s *PurchaseStore) Get(ctx context.Context, purchaseID string) (models.BuyerPurchase, error) {
	var row models.BuyerPurchase
	err := s.db.GetContext(ctx, &row, `SELECT `+purchaseColumns+` FROM buyer_purchases WHERE id = $1`, purchaseID)
	return row, err
}

func (s *PurchaseStore) ListByBuyer(ctx context.Context, buyerID string) ([]models.BuyerPurchase, error) {
	var rows []models.BuyerPurchase
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+purchaseColumns+` FROM buyer_purchases WHERE buyer_id = $1 ORDER BY purchased_at DESC
	`, buyerID)
	return rows, err
}

// ListOverduePickups flags purchases whose pickup deadline has passed while
// still pending. Flags only; resolution is an admin decision.
func (s *PurchaseStore) ListOverduePickups(ctx context.Context, now time.Time) ([]models.BuyerPurchase, error) {
	var rows []models.BuyerPurchase
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+purchaseColumns+`
		FROM buyer_purchases
		WHERE status = 'pending_pickup' AND pickup_deadline < $1
		ORDER BY pickup_deadline
	`, now)
	return rows, err
}

func (s *PurchaseStore) DeleteAll(ctx context.Context, tx Execer) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM buyer_purchases`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
