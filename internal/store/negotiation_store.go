package store

import (
	"context"

	"agromart/internal/models"
)

// NegotiationStore persists the farmer<->trader price-discovery records, one
// per listing unit.
type NegotiationStore struct {
	db DB
}

func NewNegotiationStore(db DB) *NegotiationStore {
	return &NegotiationStore{db: db}
}

const negotiationColumns = `id, listing_unit_id, farmer_id, trader_id, status, origin_price_minor,
	counter_price_minor, current_price_minor, awaiting, expires_at, utid, accepted_utid, created_at, updated_at`

func (s *NegotiationStore) Create(ctx context.Context, tx Execer, n models.Negotiation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO negotiations (id, listing_unit_id, farmer_id, trader_id, status, origin_price_minor,
			counter_price_minor, current_price_minor, awaiting, expires_at, utid, accepted_utid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, n.ID, n.UnitID, n.FarmerID, n.TraderID, n.Status, n.OriginPrice,
		n.CounterPrice, n.CurrentPrice, n.Awaiting, n.ExpiresAt, n.UTID, n.AcceptedUTID)
	return err
}

func (s *NegotiationStore) Get(ctx context.Context, id string) (models.Negotiation, error) {
	var row models.Negotiation
	err := s.db.GetContext(ctx, &row, `SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1`, id)
	return row, err
}

func (s *NegotiationStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.Negotiation, error) {
	var row models.Negotiation
	err := tx.GetContext(ctx, &row, `SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1 FOR UPDATE`, id)
	return row, err
}

// SetState advances the machine. updated_at always moves with the state.
func (s *NegotiationStore) SetState(ctx context.Context, tx Execer, id, status, awaiting string, counterPrice *int64, currentPrice int64, acceptedUTID *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE negotiations
		SET status = $1, awaiting = $2, counter_price_minor = $3, current_price_minor = $4,
		    accepted_utid = $5, updated_at = now()
		WHERE id = $6
	`, status, awaiting, counterPrice, currentPrice, acceptedUTID, id)
	return err
}

func (s *NegotiationStore) ListForUser(ctx context.Context, userID string) ([]models.Negotiation, error) {
	var rows []models.Negotiation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+negotiationColumns+`
		FROM negotiations
		WHERE farmer_id = $1 OR trader_id = $1
		ORDER BY updated_at DESC
	`, userID)
	return rows, err
}

func (s *NegotiationStore) DeleteAll(ctx context.Context, tx Execer) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM negotiations`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
