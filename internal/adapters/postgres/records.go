package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Get implements ports.RecordStore.
func (db *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `SELECT record FROM site_records WHERE domain = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set implements ports.RecordStore. Records are replaced whole.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO site_records (domain, record, updated_at)
        VALUES ($1, $2::jsonb, now())
        ON CONFLICT (domain) DO UPDATE SET record = EXCLUDED.record, updated_at = now()
    `, key, string(value))
	return err
}

// Keys lists every stored domain.
func (db *DB) Keys(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT domain FROM site_records ORDER BY domain`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CountByStatus reports how many stored records are in each status.
func (db *DB) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.Pool.Query(ctx, `SELECT status, count(*) FROM site_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
