package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
)

// Client triggers forecast generation on the external agent over HTTP.
// Trigger is fire-and-forget: it returns immediately and every failure in
// the dispatch path ends up in the log and nowhere else.
type Client struct {
	baseURL string
	appName string
	userID  string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	sem     *semaphore.Weighted
	timeout time.Duration
}

// Config configures the agent client.
type Config struct {
	// BaseURL of the agent API server. Empty disables triggering entirely.
	BaseURL string

	// AppName and UserID identify this service to the agent's session API.
	AppName string
	UserID  string

	// Timeout bounds each dispatch end to end. Default 30s.
	Timeout time.Duration

	// MaxConcurrent bounds in-flight dispatches; excess triggers are
	// dropped, not queued. Default 8.
	MaxConcurrent int64
}

// NewClient creates an agent client. A client with no BaseURL is valid:
// its Trigger is a logged no-op.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.AppName == "" {
		cfg.AppName = "weather_agent"
	}
	if cfg.UserID == "" {
		cfg.UserID = "forecast-cache"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "forecast-agent",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		appName: cfg.AppName,
		userID:  cfg.UserID,
		client:  &http.Client{Timeout: cfg.Timeout},
		circuit: cb,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		timeout: cfg.Timeout,
	}
}

// SessionKey returns the deterministic session id grouping generation
// requests for the same (city, language), so repeated misses within a short
// window address the same generation session.
func SessionKey(city, language string) string {
	if language == "" {
		language = "default"
	}
	return fmt.Sprintf("user_request_%s_%s", city, language)
}

// Prompt builds the natural-language generation request for the agent.
func Prompt(city, language string) string {
	p := fmt.Sprintf("What is the current weather condition in the city of %s", city)
	if language != "" {
		p += " in " + language
	}
	return p
}

// Trigger asks the agent for a fresh forecast. It returns immediately; the
// dispatch runs on its own goroutine with its own deadline, deliberately
// detached from the request context so a cancelled request does not abort
// an in-flight generation. When the dispatch pool is saturated the trigger
// is dropped with a warning.
func (c *Client) Trigger(city, language string) {
	if c.baseURL == "" {
		log.Printf("WARN: agent: no endpoint configured; skipping generation for %q", city)
		return
	}

	if !c.sem.TryAcquire(1) {
		log.Printf("WARN: agent: dispatch pool saturated; dropping generation for %q", city)
		return
	}

	id := uuid.NewString()
	go func() {
		defer c.sem.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.dispatch(ctx, city, language); err != nil {
			log.Printf("WARN: agent: dispatch %s failed for %q: %v", id, city, err)
			return
		}
		log.Printf("agent: dispatch %s submitted for %q", id, city)
	}()
}

// dispatch creates (or reuses) the generation session and submits the
// prompt. The agent's response body carries no contract beyond its status.
func (c *Client) dispatch(ctx context.Context, city, language string) error {
	sessionID := SessionKey(city, language)

	sessionURL := fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s", c.baseURL, c.appName, c.userID, sessionID)
	if err := c.postJSON(ctx, sessionURL, struct{}{}, true); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	run := runRequest{
		AppName:   c.appName,
		UserID:    c.userID,
		SessionID: sessionID,
		NewMessage: message{
			Role:  "user",
			Parts: []part{{Text: Prompt(city, language)}},
		},
		Streaming: false,
	}
	if err := c.postJSON(ctx, c.baseURL+"/run", run, false); err != nil {
		return fmt.Errorf("submit message: %w", err)
	}

	return nil
}

type runRequest struct {
	AppName    string  `json:"appName"`
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	NewMessage message `json:"newMessage"`
	Streaming  bool    `json:"streaming"`
}

type message struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// postJSON posts body to url behind the circuit breaker and drains the
// response. When allowConflict is set, 400 and 409 count as success (the
// session already exists).
func (c *Client) postJSON(ctx context.Context, url string, body any, allowConflict bool) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	_, err = c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil, nil
		case allowConflict && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict):
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	})
	return err
}
