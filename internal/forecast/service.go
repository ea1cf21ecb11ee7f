package forecast

import (
	"context"
	"errors"
	"log"
	"time"
)

var (
	// ErrNotFound is returned when no servable forecast exists for a city.
	ErrNotFound = errors.New("no forecast for city")

	// ErrStoreUnavailable is returned when the persistent store cannot be
	// queried. It is never conflated with ErrNotFound.
	ErrStoreUnavailable = errors.New("forecast store unavailable")
)

// Store is the read contract the persistent forecast table must satisfy.
// Implementations report a newest record with its derived freshness fields
// already computed, ErrNotFound when no record exists, and wrap every
// connectivity or query failure in ErrStoreUnavailable.
type Store interface {
	GetLatest(ctx context.Context, city, language string) (Record, error)
	ListHistory(ctx context.Context, city string, limit int) ([]Record, error)
}

// Trigger asks the external agent to generate a fresh forecast.
// Implementations must return immediately and must never propagate failures
// to the caller.
type Trigger interface {
	Trigger(city, language string)
}

// Service answers forecast reads and fires regeneration on misses.
type Service struct {
	store   Store
	trigger Trigger
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates a Service reading from store with the given TTL.
func NewService(store Store, trigger Trigger, ttl time.Duration) *Service {
	return &Service{
		store:   store,
		trigger: trigger,
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetLatest returns the newest fresh forecast for city, optionally fixed to
// language; an empty language accepts any language, newest wins. A missing
// or expired forecast fires the regeneration trigger and returns
// ErrNotFound. Store failures propagate as-is and never trigger.
func (s *Service) GetLatest(ctx context.Context, city, language string) (Record, error) {
	rec, err := s.store.GetLatest(ctx, city, language)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("forecast: no record for %q; requesting generation", city)
			s.trigger.Trigger(city, language)
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	if rec.Expired {
		log.Printf("forecast: record for %q is %ds old (ttl %s); requesting generation", city, rec.AgeSeconds, s.ttl)
		s.trigger.Trigger(city, language)
		return Record{}, ErrNotFound
	}

	return rec, nil
}

// GetHistory returns up to limit recent forecasts for city, newest first.
// Expired entries are dropped unless includeExpired is set. An unknown city
// yields an empty history, not an error.
func (s *Service) GetHistory(ctx context.Context, city string, limit int, includeExpired bool) ([]Record, error) {
	recs, err := s.store.ListHistory(ctx, city, limit)
	if err != nil {
		return nil, err
	}

	if includeExpired {
		return recs, nil
	}

	filtered := make([]Record, 0, len(recs))
	for _, r := range recs {
		if !r.Expired {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Refresh runs the classify-and-trigger path for city without assembling a
// response. Used by the warmup scheduler; a miss is not an error here since
// the trigger has already been fired.
func (s *Service) Refresh(ctx context.Context, city string) error {
	_, err := s.GetLatest(ctx, city, "")
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
