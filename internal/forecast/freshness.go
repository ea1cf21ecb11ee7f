package forecast

import "time"

// Freshness classifies a stored forecast against the configured TTL.
type Freshness int

const (
	Fresh Freshness = iota
	Expired
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "expired"
}

// Classify reports whether a forecast generated at forecastAt is still
// servable at now under ttl. The boundary is inclusive: a record exactly
// ttl old is still Fresh. Absence of a record is a different outcome
// (ErrNotFound from the store) and never reaches this function.
func Classify(forecastAt, now time.Time, ttl time.Duration) Freshness {
	if now.Sub(forecastAt) <= ttl {
		return Fresh
	}
	return Expired
}
