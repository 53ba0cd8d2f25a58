package store

import (
	"context"

	"agromart/internal/models"
)

// BuyerNegotiationStore persists the trader<->buyer machine, one record per
// inventory block. Same shape as the farmer<->trader machine but the parties
// and the subject differ, so the two live in separate tables.
type BuyerNegotiationStore struct {
	db DB
}

func NewBuyerNegotiationStore(db DB) *BuyerNegotiationStore {
	return &BuyerNegotiationStore{db: db}
}

const buyerNegotiationColumns = `id, inventory_id, trader_id, buyer_id, status, origin_price_minor,
	counter_price_minor, current_price_minor, awaiting, expires_at, utid, accepted_utid, created_at, updated_at`

func (s *BuyerNegotiationStore) Create(ctx context.Context, tx Execer, n models.BuyerNegotiation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO buyer_negotiations (id, inventory_id, trader_id, buyer_id, status, origin_price_minor,
			counter_price_minor, current_price_minor, awaiting, expires_at, utid, accepted_utid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, n.ID, n.InventoryID, n.TraderID, n.BuyerID, n.Status, n.OriginPrice,
		n.CounterPrice, n.CurrentPrice, n.Awaiting, n.ExpiresAt, n.UTID, n.AcceptedUTID)
	return err
}

func (s *BuyerNegotiationStore) Get(ctx context.Context, id string) (models.BuyerNegotiation, error) {
	var row models.BuyerNegotiation
	err := s.db.GetContext(ctx, &row, `SELECT `+buyerNegotiationColumns+` FROM buyer_negotiations WHERE id = $1`, id)
	return row, err
}

func (s *BuyerNegotiationStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.BuyerNegotiation, error) {
	var row models.BuyerNegotiation
	err := tx.GetContext(ctx, &row, `SELECT `+buyerNegotiationColumns+` FROM buyer_negotiations WHERE id = $1 FOR UPDATE`, id)
	return row, err
}

// GetAcceptedForInventory finds an accepted negotiation between this buyer
// and the inventory's trader, if one exists. Used to resolve the purchase
// price.
func (s *BuyerNegotiationStore) GetAcceptedForInventory(ctx context.Context, tx Getter, inventoryID, buyerID string) (models.BuyerNegotiation, error) {
	var row models.BuyerNegotiation
	err := tx.GetContext(ctx, &row, `
		SELECT `+buyerNegotiationColumns+`
		FROM buyer_negotiations
		WHERE inventory_id = $1 AND buyer_id = $2 AND status = 'accepted'
		ORDER BY updated_at DESC
		LIMIT 1
	`, inventoryID, buyerID)
	return row, err
}

// CountActiveForInventory guards the at-most-one-active-negotiation
// invariant.
func (s *BuyerNegotiationStore) CountActiveForInventory(ctx context.Context, tx Getter, inventoryID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM buyer_negotiations
		WHERE inventory_id = $1 AND status IN ('pending', 'countered', 'accepted')
	`, inventoryID)
	return count, err
}

func (s *BuyerNegotiationStore) SetState(ctx context.Context, tx Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE buyer_negotiations
		SET status = $1, awaiting = $2, counter_price_minor = $3, current_price_minor = $4,
		    accepted_utid = $5, updated_at = now()
		WHERE id = $6
	`, status, awaiting, counterPrice, currentPrice, acceptedUTID, id)
	return err
}

func (s *BuyerNegotiationStore) ListForUser(ctx context.Context, userID string) ([]models.BuyerNegotiation, error) {
	var rows []models.BuyerNegotiation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+buyerNegotiationColumns+`
		FROM buyer_negotiations
		WHERE trader_id = $1 OR buyer_id = $1
		ORDER BY updated_at DESC
	`, userID)
	return rows, err
}

func (s *BuyerNegotiationStore) DeleteAll(ctx context.Context, tx Execer) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM buyer_negotiations`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
