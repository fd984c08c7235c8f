package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/storage"
)

// Load decodes the value stored under key into dst.
func (d *Database) Load(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	err := d.querier(ctx).QueryRowContext(ctx,
		`SELECT value FROM engine_state WHERE key = $1`,
		key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (d *Database) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err = d.querier(ctx).ExecContext(ctx,
		`INSERT INTO engine_state (key, value, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key,
		raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// SaveBatch writes all entries in one transaction.
func (d *Database) SaveBatch(ctx context.Context, entries []storage.Entry) error {
	return d.InTx(ctx, func(ctx context.Context) error {
		for _, e := range entries {
			if err := d.Save(ctx, e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

var (
	_ storage.Store      = (*Database)(nil)
	_ storage.BatchStore = (*Database)(nil)
)
