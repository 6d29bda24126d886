package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/command"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/status"
)

func newManagerWith(t *testing.T, c *Client) *Manager {
	t.Helper()
	prober := NewLinkProber("wlan0", 1)
	prober.check = func() Link {
		return Link{Up: true, IP: "192.168.1.50", SSID: "tanknet", SignalDBm: -55}
	}
	cfg := ManagerConfig{
		HeartbeatInterval: time.Minute,
		ReportInterval:    time.Minute,
		PollInterval:      time.Minute,
		Timeout:           time.Second,
		BackoffCap:        30 * time.Second,
	}
	telemetry := func() Telemetry {
		return Telemetry{ProtocolVersion: ProtocolVersion, DeviceID: "sump-controller-1"}
	}
	queue := command.NewQueue(10 * time.Minute)
	tracker := status.NewTracker("sump-controller-1", time.Now(), status.Config{})
	return NewManager(c, queue, tracker, prober, telemetry, cfg, zap.NewNop())
}

func newTestManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "sump-controller-1", "key", "secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return newManagerWith(t, c)
}

func TestHeartbeatMissAccounting(t *testing.T) {
	var mu sync.Mutex
	fail := false
	setFail := func(v bool) { mu.Lock(); fail = v; mu.Unlock() }
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		f := fail
		mu.Unlock()
		if f {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	ctx := context.Background()

	m.heartbeat(ctx)
	ok := m.tracker.Snapshot().Conn
	if !ok.BackendAvailable || !ok.EverAvailable {
		t.Fatalf("after first success: %+v", ok)
	}
	if ok.HeartbeatMisses != 0 || ok.LastOK.IsZero() {
		t.Fatalf("after first success: %+v", ok)
	}

	setFail(true)
	m.heartbeat(ctx)
	m.heartbeat(ctx)
	mid := m.tracker.Snapshot().Conn
	if !mid.BackendAvailable {
		t.Error("two misses must not flip availability")
	}
	if mid.HeartbeatMisses != 2 {
		t.Errorf("misses = %d, want 2", mid.HeartbeatMisses)
	}

	m.heartbeat(ctx)
	down := m.tracker.Snapshot().Conn
	if down.BackendAvailable {
		t.Error("three misses must mark the backend unavailable")
	}
	if !down.EverAvailable {
		t.Error("EverAvailable must survive an outage")
	}
	if !down.LastOK.Equal(ok.LastOK) {
		t.Errorf("LastOK moved during silence: %v -> %v", ok.LastOK, down.LastOK)
	}

	setFail(false)
	m.heartbeat(ctx)
	up := m.tracker.Snapshot().Conn
	if !up.BackendAvailable || up.HeartbeatMisses != 0 {
		t.Errorf("after recovery: %+v", up)
	}
	if up.LastOK.Before(ok.LastOK) {
		t.Errorf("LastOK did not advance on recovery")
	}
}

func TestRejectedResponseLeavesNoBackoff(t *testing.T) {
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	m.heartbeat(context.Background())

	if m.holding() {
		t.Error("an auth rejection proves the backend is reachable; no backoff")
	}
	if got := m.tracker.Snapshot().Conn.HeartbeatMisses; got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}
}

func TestNetworkFailureArmsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := NewClient(srv.URL, "sump-controller-1", "key", "secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv.Close()
	m := newManagerWith(t, c)

	m.heartbeat(context.Background())

	if !m.holding() {
		t.Error("a connection failure must arm the backoff hold")
	}
	if got := m.tracker.Snapshot().Conn.HeartbeatMisses; got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}
}

func TestBackoffHoldSkipsTraffic(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		if r.Method == http.MethodGet {
			io.WriteString(w, `{"commands":[]}`)
		}
	}))
	ctx := context.Background()
	count := func() int { mu.Lock(); defer mu.Unlock(); return requests }

	m.armBackoff()
	m.report(ctx)
	m.poll(ctx)
	m.ack(ctx, command.Result{Command: command.Command{ID: "cmd-1"}, Status: command.StatusApplied})
	m.motorStatus(ctx, motor.Transition{From: "stopped_auto", To: "running_auto"})
	if got := count(); got != 0 {
		t.Fatalf("%d requests went out during the hold", got)
	}

	// A heartbeat skipped during the hold still counts as a miss.
	m.heartbeat(ctx)
	if got := count(); got != 0 {
		t.Fatalf("held heartbeat still hit the network (%d requests)", got)
	}
	if got := m.tracker.Snapshot().Conn.HeartbeatMisses; got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}

	m.holdUntil = time.Time{}
	m.report(ctx)
	if got := count(); got != 1 {
		t.Errorf("after the hold expired: %d requests, want 1", got)
	}
}

func TestPollQueuesAndAcksDuplicates(t *testing.T) {
	var mu sync.Mutex
	var acked []ackPayload
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			io.WriteString(w, `{"commands":[{"id":"cmd-1","command":"start"}]}`)
		case strings.HasSuffix(r.URL.Path, "/ack"):
			var p ackPayload
			json.NewDecoder(r.Body).Decode(&p)
			mu.Lock()
			acked = append(acked, p)
			mu.Unlock()
		}
	}))
	ctx := context.Background()

	m.poll(ctx)
	if got := m.queue.Len(); got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}
	mu.Lock()
	n := len(acked)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("fresh command should not be acked at poll time, got %d acks", n)
	}

	// The backend re-delivers until it sees an ack. The second poll must
	// acknowledge without queueing a second copy.
	m.poll(ctx)
	if got := m.queue.Len(); got != 1 {
		t.Errorf("queue length after redelivery = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(acked) != 1 {
		t.Fatalf("got %d acks, want 1", len(acked))
	}
	if acked[0].CommandID != "cmd-1" || acked[0].Status != string(command.StatusDuplicate) {
		t.Errorf("ack = %+v", acked[0])
	}
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < cap(m.acks); i++ {
		if !m.EnqueueAck(command.Result{Command: command.Command{ID: "cmd"}}) {
			t.Fatalf("ack %d rejected with room to spare", i)
		}
	}
	if m.EnqueueAck(command.Result{}) {
		t.Error("full ack buffer must refuse, not block")
	}

	for i := 0; i < cap(m.events); i++ {
		if !m.EnqueueTransition(motor.Transition{}) {
			t.Fatalf("transition %d rejected with room to spare", i)
		}
	}
	if m.EnqueueTransition(motor.Transition{}) {
		t.Error("full event buffer must refuse, not block")
	}
}

func TestRefreshLinkPublishesWifiState(t *testing.T) {
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ctx := context.Background()

	m.refreshLink(ctx)
	conn := m.tracker.Snapshot().Conn
	if !conn.WifiUp || conn.IP != "192.168.1.50" || conn.SSID != "tanknet" {
		t.Errorf("link state = %+v", conn)
	}
	if conn.SignalDBm != -55 {
		t.Errorf("signal = %d, want -55", conn.SignalDBm)
	}

	m.prober.check = func() Link { return Link{} }
	m.refreshLink(ctx)
	conn = m.tracker.Snapshot().Conn
	if conn.WifiUp {
		t.Error("downed link still reported up")
	}
}
