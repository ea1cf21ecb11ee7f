package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSessionKey(t *testing.T) {
	if got := SessionKey("Paris", ""); got != "user_request_Paris_default" {
		t.Errorf("SessionKey = %q", got)
	}
	if got := SessionKey("Tokyo", "ja"); got != "user_request_Tokyo_ja" {
		t.Errorf("SessionKey = %q", got)
	}
	// Deterministic: the same miss maps to the same session.
	if SessionKey("Paris", "fr") != SessionKey("Paris", "fr") {
		t.Error("SessionKey is not deterministic")
	}
}

func TestPrompt(t *testing.T) {
	if got := Prompt("Paris", ""); got != "What is the current weather condition in the city of Paris" {
		t.Errorf("Prompt = %q", got)
	}
	if got := Prompt("Paris", "French"); got != "What is the current weather condition in the city of Paris in French" {
		t.Errorf("Prompt = %q", got)
	}
}

func TestTriggerDispatches(t *testing.T) {
	var (
		mu      sync.Mutex
		paths   []string
		runBody runRequest
	)
	gotRun := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		if r.URL.Path == "/run" {
			if err := json.NewDecoder(r.Body).Decode(&runBody); err != nil {
				t.Errorf("bad run body: %v", err)
			}
			close(gotRun)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AppName: "weather_agent", UserID: "svc"})
	c.Trigger("Paris", "")

	select {
	case <-gotRun:
	case <-time.After(5 * time.Second):
		t.Fatal("run request never arrived")
	}

	mu.Lock()
	defer mu.Unlock()

	if want := "/apps/weather_agent/users/svc/sessions/user_request_Paris_default"; paths[0] != want {
		t.Errorf("session path = %q, want %q", paths[0], want)
	}
	if runBody.AppName != "weather_agent" || runBody.UserID != "svc" {
		t.Errorf("run identity = %s/%s", runBody.AppName, runBody.UserID)
	}
	if runBody.SessionID != "user_request_Paris_default" {
		t.Errorf("run session = %q", runBody.SessionID)
	}
	if runBody.Streaming {
		t.Error("streaming should be false")
	}
	if len(runBody.NewMessage.Parts) != 1 || !strings.Contains(runBody.NewMessage.Parts[0].Text, "city of Paris") {
		t.Errorf("unexpected prompt: %+v", runBody.NewMessage)
	}
	if runBody.NewMessage.Role != "user" {
		t.Errorf("role = %q, want user", runBody.NewMessage.Role)
	}
}

func TestTriggerSessionConflictIsNotFailure(t *testing.T) {
	gotRun := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions/") {
			// Session already exists from an earlier miss.
			w.WriteHeader(http.StatusConflict)
			return
		}
		if r.URL.Path == "/run" {
			close(gotRun)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	c.Trigger("Paris", "fr")

	select {
	case <-gotRun:
	case <-time.After(5 * time.Second):
		t.Fatal("run request never arrived after session conflict")
	}
}

func TestTriggerFailureIsContained(t *testing.T) {
	seen := make(chan struct{}, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- struct{}{}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	// Must return immediately and must not panic even though every
	// outbound call fails.
	done := make(chan struct{})
	go func() {
		c.Trigger("Paris", "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked the caller")
	}

	// The failing session call was made; the run call never follows it.
	select {
	case <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("session request never arrived")
	}
	select {
	case <-seen:
		t.Error("run request should not follow a failed session creation")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTriggerUnconfiguredIsNoop(t *testing.T) {
	c := NewClient(Config{})
	// No endpoint configured: warn-and-return, no dial, no panic.
	c.Trigger("Paris", "")
}

func TestTriggerDropsWhenSaturated(t *testing.T) {
	var (
		mu       sync.Mutex
		sessions int
	)
	gate := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions/") {
			mu.Lock()
			sessions++
			mu.Unlock()
			<-gate
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, MaxConcurrent: 1})

	// First trigger takes the only slot before returning; the rest are
	// dropped synchronously.
	c.Trigger("Paris", "")
	c.Trigger("Tokyo", "")
	c.Trigger("Oslo", "")

	close(gate)

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := sessions
		mu.Unlock()
		if n >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if sessions != 1 {
		t.Fatalf("saturated pool allowed %d dispatches, want 1", sessions)
	}
}
