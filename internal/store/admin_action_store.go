package store

import (
	"context"

	"agromart/internal/models"
)

// AdminActionStore is the immutable audit trail of admin-initiated state
// changes. Every admin write appends exactly one row here, inside the same
// transaction as the change it describes.
type AdminActionStore struct {
	db DB
}

func NewAdminActionStore(db DB) *AdminActionStore {
	return &AdminActionStore{db: db}
}

func (s *AdminActionStore) Log(ctx context.Context, tx Execer, action models.AdminAction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_actions (id, admin_id, action_type, utid, reason, target_utid, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, action.ID, action.AdminID, action.ActionType, action.UTID, action.Reason, action.TargetUTID, action.Metadata)
	return err
}

func (s *AdminActionStore) List(ctx context.Context, limit, offset int) ([]models.AdminAction, error) {
	var rows []models.AdminAction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, admin_id, action_type, utid, reason, target_utid, metadata, created_at
		FROM admin_actions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	return rows, err
}
