package httpapi

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"forecast-cache/internal/forecast"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. The history
// route is registered first so it wins over the catch-all city route.
func RegisterRoutes(app *fiber.App, service *forecast.Service) {
	app.Get("/:city/history", func(c *fiber.Ctx) error {
		city := c.Params("city")

		var q historyQuery
		q.bind(c)
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		recs, err := service.GetHistory(c.Context(), city, q.Limit, q.IncludeExpired)
		if err != nil {
			if errors.Is(err, forecast.ErrStoreUnavailable) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "forecast store unavailable")
			}
			return err
		}

		entries := make([]historyEntry, 0, len(recs))
		for _, r := range recs {
			entries = append(entries, toHistoryEntry(r))
		}

		return c.JSON(fiber.Map{
			"status":    "success",
			"city":      forecast.NormalizeCity(city),
			"count":     len(entries),
			"forecasts": entries,
		})
	})

	app.Get("/:city", func(c *fiber.Ctx) error {
		city := c.Params("city")
		language := c.Query("language")

		rec, err := service.GetLatest(c.Context(), city, language)
		if err != nil {
			switch {
			case errors.Is(err, forecast.ErrNotFound):
				// The regeneration trigger has already been fired; the miss
				// response does not wait on it.
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"status": "not_found",
					"city":   forecast.NormalizeCity(city),
					"detail": "no fresh forecast available; generation has been requested",
				})
			case errors.Is(err, forecast.ErrStoreUnavailable):
				return fiber.NewError(fiber.StatusServiceUnavailable, "forecast store unavailable")
			}
			return err
		}

		return c.JSON(forecastResponse{
			Status:   "success",
			City:     forecast.NormalizeCity(city),
			Forecast: toPayload(rec),
		})
	})
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Limit          int `validate:"min=1,max=100"`
	IncludeExpired bool
}

func (h *historyQuery) bind(c *fiber.Ctx) {
	h.Limit = c.QueryInt("limit", 10)
	h.IncludeExpired = c.QueryBool("include_expired", false)
}

type forecastResponse struct {
	Status   string          `json:"status"`
	City     string          `json:"city"`
	Forecast forecastPayload `json:"forecast"`
}

type forecastPayload struct {
	Text        string    `json:"text"`
	AudioBase64 string    `json:"audio_base64"`
	ForecastAt  time.Time `json:"forecast_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	AgeSeconds  int64     `json:"age_seconds"`
	Metadata    metadata  `json:"metadata"`
}

type metadata struct {
	Encoding string         `json:"encoding"`
	Language string         `json:"language,omitempty"`
	Locale   string         `json:"locale,omitempty"`
	Sizes    forecast.Sizes `json:"sizes"`
}

func toPayload(r forecast.Record) forecastPayload {
	return forecastPayload{
		Text:        r.Text,
		AudioBase64: base64.StdEncoding.EncodeToString(r.Audio),
		ForecastAt:  r.ForecastAt,
		ExpiresAt:   r.ExpiresAt,
		AgeSeconds:  r.AgeSeconds,
		Metadata: metadata{
			Encoding: r.Encoding,
			Language: r.Language,
			Locale:   r.Locale,
			Sizes:    r.Sizes,
		},
	}
}

// historyEntry is one history row. The audio blob is omitted; its size is
// still reported through the metadata.
type historyEntry struct {
	Text       string    `json:"text"`
	ForecastAt time.Time `json:"forecast_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	AgeSeconds int64     `json:"age_seconds"`
	Expired    bool      `json:"expired"`
	Metadata   metadata  `json:"metadata"`
}

func toHistoryEntry(r forecast.Record) historyEntry {
	return historyEntry{
		Text:       r.Text,
		ForecastAt: r.ForecastAt,
		ExpiresAt:  r.ExpiresAt,
		AgeSeconds: r.AgeSeconds,
		Expired:    r.Expired,
		Metadata: metadata{
			Encoding: r.Encoding,
			Language: r.Language,
			Locale:   r.Locale,
			Sizes:    r.Sizes,
		},
	}
}
