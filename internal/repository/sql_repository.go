package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockroom/internal/domain"
)

// Dialect selects the placeholder style of the SQL slot queries
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

type sqlRepository struct {
	db        *sql.DB
	slot      string
	loadQuery string
	saveQuery string
}

// NewSQLRepository stores the collection as one row of the collection_slots table
func NewSQLRepository(db *sql.DB, dialect Dialect, slot string) CollectionRepository {
	r := &sqlRepository{db: db, slot: slot}

	switch dialect {
	case DialectSQLite:
		r.loadQuery = `SELECT payload FROM collection_slots WHERE name = ?`
		r.saveQuery = `
			INSERT INTO collection_slots (name, payload, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
		`
	default:
		r.loadQuery = `SELECT payload FROM collection_slots WHERE name = $1`
		r.saveQuery = `
			INSERT INTO collection_slots (name, payload, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		`
	}

	return r
}

// Load retrieves the slot row using parameterized queries
func (r *sqlRepository) Load(ctx context.Context) ([]domain.Product, bool, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, r.loadQuery, r.slot).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load slot %s: %w", r.slot, err)
	}

	products, err := decodeCollection([]byte(payload))
	if err != nil {
		return nil, false, err
	}
	return products, true, nil
}

// Save upserts the slot row in a single statement
func (r *sqlRepository) Save(ctx context.Context, products []domain.Product) error {
	data, err := encodeCollection(products)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.saveQuery, r.slot, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save slot %s: %w", r.slot, err)
	}

	return nil
}
