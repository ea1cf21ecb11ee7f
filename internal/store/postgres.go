package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"forecast-cache/internal/forecast"
)

const (
	// DefaultHistoryLimit is used when a history query does not specify one.
	DefaultHistoryLimit = 10

	// MaxHistoryLimit bounds how many rows a single history query may return.
	MaxHistoryLimit = 100
)

const recordColumns = `city, language, forecast_text, audio_data, encoding, locale, text_size_bytes, audio_size_bytes, forecast_at`

// PostgresStore reads forecast rows from the forecasts table. It never
// writes: rows are inserted by the external generation agent and age out as
// a computed view, not by deletion.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewPostgresStore creates a store reading through pool. The pool is owned
// by the caller, which is responsible for closing it on shutdown.
func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Ping verifies store connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", forecast.ErrStoreUnavailable, err)
	}
	return nil
}

// GetLatest returns the newest forecast row for the normalized city with
// its freshness fields computed. An empty language matches any language.
func (s *PostgresStore) GetLatest(ctx context.Context, city, language string) (forecast.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM forecasts WHERE city = $1`
	args := []any{forecast.NormalizeCity(city)}
	if language != "" {
		query += ` AND language = $2`
		args = append(args, language)
	}
	query += ` ORDER BY forecast_at DESC LIMIT 1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return forecast.Record{}, forecast.ErrNotFound
		}
		return forecast.Record{}, fmt.Errorf("%w: %v", forecast.ErrStoreUnavailable, err)
	}

	return rec.WithFreshness(s.now(), s.ttl), nil
}

// ListHistory returns up to limit recent rows for the normalized city,
// newest first. Each row carries its own computed expired flag; expired
// rows are included here and filtered by the caller if unwanted.
func (s *PostgresStore) ListHistory(ctx context.Context, city string, limit int) ([]forecast.Record, error) {
	limit = ClampLimit(limit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM forecasts WHERE city = $1 ORDER BY forecast_at DESC LIMIT $2`,
		forecast.NormalizeCity(city), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", forecast.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	now := s.now()
	recs := make([]forecast.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", forecast.ErrStoreUnavailable, err)
		}
		recs = append(recs, rec.WithFreshness(now, s.ttl))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", forecast.ErrStoreUnavailable, err)
	}

	return recs, nil
}

// ClampLimit bounds a history limit to [1, MaxHistoryLimit], falling back
// to DefaultHistoryLimit when unset.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (forecast.Record, error) {
	var (
		rec          forecast.Record
		lang, locale *string
	)
	err := row.Scan(
		&rec.City,
		&lang,
		&rec.Text,
		&rec.Audio,
		&rec.Encoding,
		&locale,
		&rec.Sizes.TextBytes,
		&rec.Sizes.AudioBytes,
		&rec.ForecastAt,
	)
	if err != nil {
		return forecast.Record{}, err
	}
	if lang != nil {
		rec.Language = *lang
	}
	if locale != nil {
		rec.Locale = *locale
	}
	rec.ForecastAt = rec.ForecastAt.UTC()
	return rec, nil
}
