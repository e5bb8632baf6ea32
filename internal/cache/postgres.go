package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

const createZipCacheTable = `
CREATE TABLE IF NOT EXISTS zip_cache (
	zip_code     TEXT PRIMARY KEY,
	city         TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT '',
	weather_data JSONB NOT NULL,
	climate_data JSONB,
	source       TEXT NOT NULL DEFAULT '',
	expires_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS zip_cache_expires_at_idx ON zip_cache (expires_at);`

// PostgresStore implements Store on a zip_cache table. Writes are upserts keyed by ZIP,
// so concurrent writers for the same ZIP resolve last-writer-wins.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and creates the cache table if missing.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the zip_cache table and index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createZipCacheTable); err != nil {
		return fmt.Errorf("create zip_cache table: %w", err)
	}
	return nil
}

// Get implements Store.Get.
func (s *PostgresStore) Get(ctx context.Context, zip string) (models.ZipCacheEntry, bool, error) {
	var (
		entry      models.ZipCacheEntry
		weatherRaw []byte
		climateRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT zip_code, city, state, weather_data, climate_data, source, expires_at
		 FROM zip_cache WHERE zip_code = $1`,
		zip,
	).Scan(&entry.ZipCode, &entry.City, &entry.State, &weatherRaw, &climateRaw, &entry.Source, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ZipCacheEntry{}, false, nil
		}
		return models.ZipCacheEntry{}, false, fmt.Errorf("get zip cache entry %s: %w", zip, err)
	}
	if err := json.Unmarshal(weatherRaw, &entry.WeatherData); err != nil {
		return models.ZipCacheEntry{}, false, fmt.Errorf("unmarshal weather data for %s: %w", zip, err)
	}
	if len(climateRaw) > 0 {
		var climate models.ClimateData
		if err := json.Unmarshal(climateRaw, &climate); err != nil {
			return models.ZipCacheEntry{}, false, fmt.Errorf("unmarshal climate data for %s: %w", zip, err)
		}
		entry.ClimateData = &climate
	}
	return entry, true, nil
}

// Set implements Store.Set as an upsert.
func (s *PostgresStore) Set(ctx context.Context, entry models.ZipCacheEntry) error {
	weatherRaw, err := json.Marshal(entry.WeatherData)
	if err != nil {
		return fmt.Errorf("marshal weather data: %w", err)
	}
	var climateRaw []byte
	if entry.ClimateData != nil {
		if climateRaw, err = json.Marshal(entry.ClimateData); err != nil {
			return fmt.Errorf("marshal climate data: %w", err)
		}
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO zip_cache (zip_code, city, state, weather_data, climate_data, source, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (zip_code) DO UPDATE SET
		   city = EXCLUDED.city,
		   state = EXCLUDED.state,
		   weather_data = EXCLUDED.weather_data,
		   climate_data = EXCLUDED.climate_data,
		   source = EXCLUDED.source,
		   expires_at = EXCLUDED.expires_at,
		   updated_at = NOW()`,
		entry.ZipCode, entry.City, entry.State, weatherRaw, climateRaw, entry.Source, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert zip cache entry %s: %w", entry.ZipCode, err)
	}
	return nil
}

// Delete implements Store.Delete.
func (s *PostgresStore) Delete(ctx context.Context, zip string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM zip_cache WHERE zip_code = $1`, zip); err != nil {
		return fmt.Errorf("delete zip cache entry %s: %w", zip, err)
	}
	return nil
}

// SweepExpired implements Store.SweepExpired.
func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM zip_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep zip cache: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks database reachability. Used for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
