package peer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/status"
)

var peerBand = Config{Interval: time.Minute, StartBelow: 30, StopAbove: 90}

func TestDeriveIntent(t *testing.T) {
	tests := []struct {
		level   float64
		trusted bool
		want    Intent
	}{
		{10, true, IntentStart},
		{30, true, IntentStart},
		{30.1, true, IntentNone},
		{55, true, IntentNone},
		{89.9, true, IntentNone},
		{90, true, IntentStop},
		{100, true, IntentStop},
		{10, false, IntentNone},
		{95, false, IntentNone},
	}
	for _, tt := range tests {
		if got := peerBand.Derive(tt.level, tt.trusted); got != tt.want {
			t.Errorf("Derive(%g, %v) = %q, want %q", tt.level, tt.trusted, got, tt.want)
		}
	}
}

func newTestCoordinator(t *testing.T, handler http.Handler, level func() (float64, bool)) *Coordinator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "top-controller-1", "peer-secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	tracker := status.NewTracker("top-controller-1", time.Now(), status.Config{})
	return NewCoordinator(client, peerBand, level, tracker, zap.NewNop())
}

func TestTickSendsStartWhenLow(t *testing.T) {
	var gotPath string
	var req motorRequest
	c := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&req)
	}), func() (float64, bool) { return 22, true })

	c.tick(context.Background())

	if gotPath != "/motor" {
		t.Fatalf("path = %q, want /motor", gotPath)
	}
	if req.Command != "start" || req.LevelPercentage != 22 {
		t.Errorf("request = %+v", req)
	}
	if !c.tracker.Snapshot().PeerAvailable {
		t.Error("successful exchange must mark the peer available")
	}
}

func TestTickSendsStopWhenFull(t *testing.T) {
	var req motorRequest
	c := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&req)
	}), func() (float64, bool) { return 95, true })

	c.tick(context.Background())

	if req.Command != "stop" {
		t.Errorf("command = %q, want stop", req.Command)
	}
}

func TestTickProbesWhenIdle(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		io.WriteString(w, `{"status":{"tank":{"level_percentage":40},"motor":{"running":false},"panic":{"active":false}}}`)
	}), func() (float64, bool) { return 55, true })

	c.tick(context.Background())

	if gotMethod != http.MethodGet || gotPath != "/status.json" {
		t.Errorf("request = %s %s, want GET /status.json", gotMethod, gotPath)
	}
	if !c.tracker.Snapshot().PeerAvailable {
		t.Error("liveness probe success must mark the peer available")
	}
}

func TestTickNeverCommandsOnUntrustedLevel(t *testing.T) {
	var gotMethod string
	c := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		io.WriteString(w, `{"status":{}}`)
	}), func() (float64, bool) { return 12, false })

	c.tick(context.Background())

	// A stale 12% must not start the sump pump; only the probe goes out.
	if gotMethod != http.MethodGet {
		t.Errorf("method = %q, want GET", gotMethod)
	}
}

func TestTickMarksPeerDownAndHolds(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client, err := NewClient(srv.URL, "top-controller-1", "peer-secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv.Close()

	calls := 0
	level := func() (float64, bool) { calls++; return 22, true }
	tracker := status.NewTracker("top-controller-1", time.Now(), status.Config{})
	c := NewCoordinator(client, peerBand, level, tracker, zap.NewNop())

	c.tick(context.Background())
	if tracker.Snapshot().PeerAvailable {
		t.Error("dead peer must be marked unavailable")
	}
	if !time.Now().Before(c.holdUntil) {
		t.Fatal("network failure must arm the backoff hold")
	}

	c.tick(context.Background())
	if calls != 1 {
		t.Errorf("held tick still derived an intent (%d level reads)", calls)
	}
}

func TestTickRecoveryClearsHold(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	broken, err := NewClient(srv.URL, "top-controller-1", "peer-secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv.Close()

	tracker := status.NewTracker("top-controller-1", time.Now(), status.Config{})
	c := NewCoordinator(broken, peerBand, func() (float64, bool) { return 22, true }, tracker, zap.NewNop())
	c.tick(context.Background())

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(live.Close)
	revived, err := NewClient(live.URL, "top-controller-1", "peer-secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.client = revived
	c.holdUntil = time.Time{} // hold elapsed

	c.tick(context.Background())
	if !tracker.Snapshot().PeerAvailable {
		t.Error("recovered peer must be marked available again")
	}
	if !c.holdUntil.IsZero() {
		t.Error("recovery must clear the hold")
	}
}

func TestTickRefusalKeepsPeerAlive(t *testing.T) {
	c := newTestCoordinator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}), func() (float64, bool) { return 22, true })

	c.tick(context.Background())

	if !c.tracker.Snapshot().PeerAvailable {
		t.Error("a refusing peer answered and is therefore alive")
	}
	if !c.holdUntil.IsZero() {
		t.Error("refusal must not arm the network backoff")
	}
}
