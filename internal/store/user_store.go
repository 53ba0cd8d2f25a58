package store

import (
	"context"

	"agromart/internal/models"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, tx Execer, user models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, role, alias, spend_cap_minor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.Alias, user.SpendCap)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, password_hash, role, alias, spend_cap_minor, created_at
		FROM users
		WHERE id = $1
	`, userID)
	return row, err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, password_hash, role, alias, spend_cap_minor, created_at
		FROM users
		WHERE email = $1
	`, email)
	return row, err
}

// GetRole reads the stored role for a caller. Authorization decisions go
// through this, never through a role claim supplied by the client.
func (s *UserStore) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1`, userID)
	return role, err
}

func (s *UserStore) ListByRole(ctx context.Context, role string) ([]models.User, error) {
	var rows []models.User
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, username, email, password_hash, role, alias, spend_cap_minor, created_at
		FROM users
		WHERE role = $1
		ORDER BY created_at
	`, role)
	return rows, err
}

// GetSpendCap reads a trader's optional per-user cap override through the
// caller's transaction or the pool.
func (s *UserStore) GetSpendCap(ctx context.Context, q Getter, userID string) (*int64, error) {
	var capMinor *int64
	err := q.GetContext(ctx, &capMinor, `SELECT spend_cap_minor FROM users WHERE id = $1`, userID)
	return capMinor, err
}

func (s *UserStore) UpdateSpendCap(ctx context.Context, tx Execer, userID string, capMinor *int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users SET spend_cap_minor = $1 WHERE id = $2
	`, capMinor, userID)
	return err
}

// CountAdmins reads through the caller's transaction so that the
// first-user-becomes-admin check and the insert see the same snapshot.
func (s *UserStore) CountAdmins(ctx context.Context, q Getter) (int, error) {
	var count int
	err := q.GetContext(ctx, &count, `SELECT COUNT(1) FROM users WHERE role = 'admin'`)
	return count, err
}
