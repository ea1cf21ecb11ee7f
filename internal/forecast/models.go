package forecast

import (
	"strings"
	"time"
)

// Sizes carries byte-size metadata for a forecast's payloads.
type Sizes struct {
	TextBytes  int `json:"text_bytes"`
	AudioBytes int `json:"audio_bytes"`
}

// Record is one stored forecast: the generated text, its audio rendering and
// the generation timestamp, plus freshness fields derived at read time.
// Records are written only by the external generation agent; this service
// never mutates them.
type Record struct {
	City     string
	Language string // empty means the agent's default language
	Text     string
	Audio    []byte
	Encoding string // audio format tag, e.g. "mp3"
	Locale   string // display locale, independent of Language
	Sizes    Sizes

	// ForecastAt is when the agent generated this forecast. Authoritative
	// for freshness; always UTC.
	ForecastAt time.Time

	// Derived per read, never stored.
	ExpiresAt  time.Time
	AgeSeconds int64
	Expired    bool
}

// WithFreshness returns a copy of r with the derived freshness fields
// computed against now and ttl.
func (r Record) WithFreshness(now time.Time, ttl time.Duration) Record {
	r.ExpiresAt = r.ForecastAt.Add(ttl)
	r.AgeSeconds = int64(now.Sub(r.ForecastAt).Seconds())
	r.Expired = Classify(r.ForecastAt, now, ttl) == Expired
	return r
}

// NormalizeCity canonicalizes a city identifier for lookups. City matching
// is case-insensitive throughout.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
