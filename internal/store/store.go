package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"arenda-utils/internal/logging"
	"arenda-utils/pkg/models"
)

// ErrNotFound is returned by lookups for a URL that was never saved.
var ErrNotFound = errors.New("store: listing not found")

const createListingsTableSQL = `
CREATE TABLE IF NOT EXISTS listings (
	"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"url" TEXT NOT NULL UNIQUE,
	"title" TEXT,
	"price_raw" TEXT,
	"price_value" INTEGER,
	"bail_raw" TEXT,
	"bail_value" INTEGER,
	"commission_raw" TEXT,
	"commission_value" INTEGER,
	"services_raw" TEXT,
	"address" TEXT,
	"description" TEXT,
	"images_json" TEXT,
	"created_at" TEXT NOT NULL,
	"updated_at" TEXT NOT NULL
);`

const createListingsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_listings_created_desc ON listings (created_at DESC);`

const upsertListingSQL = `
INSERT INTO listings (
	url, title, price_raw, price_value, bail_raw, bail_value,
	commission_raw, commission_value, services_raw, address, description,
	images_json, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
	title=excluded.title,
	price_raw=excluded.price_raw,
	price_value=excluded.price_value,
	bail_raw=excluded.bail_raw,
	bail_value=excluded.bail_value,
	commission_raw=excluded.commission_raw,
	commission_value=excluded.commission_value,
	services_raw=excluded.services_raw,
	address=excluded.address,
	description=excluded.description,
	images_json=excluded.images_json,
	updated_at=excluded.updated_at`

const selectListingColumns = `
	url, title, price_raw, price_value, bail_raw, bail_value,
	commission_raw, commission_value, services_raw, address, description,
	images_json, created_at, updated_at`

// Store persists listing records in SQLite keyed by listing URL.
type Store struct {
	db     *sql.DB
	logger logging.Logger

	// now is swapped out by tests that assert timestamp behavior
	now func() time.Time
}

// New opens (or creates) the listings database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listings database: %w", err)
	}

	// Each pooled connection to :memory: gets its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(createListingsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create listings table: %w", err)
	}

	if _, err := db.Exec(createListingsIndexSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create listings index: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logging.GetGlobalLogger().WithField("component", "store"),
		now:    time.Now,
	}

	s.logger.Debug("Listing store ready", map[string]interface{}{
		"path": path,
	})

	return s, nil
}

// Upsert writes the record keyed by its URL. A first write sets created_at;
// later writes for the same URL keep created_at and advance updated_at.
func (s *Store) Upsert(ctx context.Context, rec models.ListingRecord) error {
	if rec.URL == "" {
		return fmt.Errorf("refusing to save listing without a URL")
	}

	images, err := encodeImages(rec.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images for %s: %w", rec.URL, err)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, upsertListingSQL,
		rec.URL, rec.Title, rec.PriceRaw, rec.PriceValue, rec.BailRaw, rec.BailValue,
		rec.CommissionRaw, rec.CommissionValue, rec.ServicesRaw, rec.Address, rec.Description,
		images, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing %s: %w", rec.URL, err)
	}
	return nil
}

// GetByURL returns the stored record for url, or ErrNotFound.
func (s *Store) GetByURL(ctx context.Context, url string) (*models.ListingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+selectListingColumns+` FROM listings WHERE url = ?`, url)

	rec, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %s: %w", url, err)
	}
	return rec, nil
}

// List returns saved listings newest-first. A limit of zero or less returns
// everything from the offset on.
func (s *Store) List(ctx context.Context, limit, offset int) ([]models.ListingRecord, error) {
	query := `SELECT` + selectListingColumns + ` FROM listings
	ORDER BY created_at DESC, id DESC`

	// SQLite requires LIMIT when OFFSET is present; -1 means unbounded
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, query+` LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var records []models.ListingRecord
	for rows.Next() {
		rec, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}
	return records, nil
}

// Ping verifies the database handle is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Count returns the number of saved listings.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row scanner) (*models.ListingRecord, error) {
	var (
		rec        models.ListingRecord
		price      sql.NullInt64
		bail       sql.NullInt64
		commission sql.NullInt64
		images     sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(
		&rec.URL, &rec.Title, &rec.PriceRaw, &price, &rec.BailRaw, &bail,
		&rec.CommissionRaw, &commission, &rec.ServicesRaw, &rec.Address, &rec.Description,
		&images, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.PriceValue = nullableInt(price)
	rec.BailValue = nullableInt(bail)
	rec.CommissionValue = nullableInt(commission)

	if rec.Images, err = decodeImages(images.String); err != nil {
		return nil, fmt.Errorf("corrupt images column for %s: %w", rec.URL, err)
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at for %s: %w", rec.URL, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("corrupt updated_at for %s: %w", rec.URL, err)
	}

	return &rec, nil
}

func nullableInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func encodeImages(images []string) (string, error) {
	if len(images) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(images)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeImages(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var images []string
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return nil, err
	}
	return images, nil
}
