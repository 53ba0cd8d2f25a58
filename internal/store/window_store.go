package store

import (
	"context"
	"database/sql"
	"errors"

	"agromart/internal/models"
)

// WindowStore keeps the purchase-window toggle as an append-only event
// history rather than a mutable flag; the most recent row is authoritative
// and the full open/close history stays auditable.
type WindowStore struct {
	db DB
}

func NewWindowStore(db DB) *WindowStore {
	return &WindowStore{db: db}
}

func (s *WindowStore) Append(ctx context.Context, tx Execer, event models.PurchaseWindowEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO purchase_window_events (id, is_open, actor_id, utid)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.IsOpen, event.ActorID, event.UTID)
	return err
}

// IsOpen reports the current window state. No history means the window has
// never been opened.
func (s *WindowStore) IsOpen(ctx context.Context, tx Getter) (bool, error) {
	var open bool
	err := tx.GetContext(ctx, &open, `
		SELECT is_open FROM purchase_window_events ORDER BY seq DESC LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return open, err
}

func (s *WindowStore) History(ctx context.Context, limit int) ([]models.PurchaseWindowEvent, error) {
	var rows []models.PurchaseWindowEvent
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, seq, is_open, actor_id, utid, created_at
		FROM purchase_window_events
		ORDER BY seq DESC
		LIMIT $1
	`, limit)
	return rows, err
}
