package store

import "context"

// SettingsStore reads the two admin-tunable system settings. Values are read
// at calculation time; nothing is cached.
type SettingsStore struct {
	db DB
}

func NewSettingsStore(db DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM system_settings WHERE key = $1`, key)
	return value, err
}

func (s *SettingsStore) Set(ctx context.Context, tx Execer, key, value, updatedBy string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE system_settings SET value = $1, updated_by = $2, updated_at = now() WHERE key = $3
	`, value, updatedBy, key)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SettingsStore) List(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}
