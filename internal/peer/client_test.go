package peer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chandud1124/aquaguard/internal/backend"
)

var peerTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newPeerClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "top-controller-1", "peer-secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.now = func() time.Time { return peerTime }
	return c
}

func TestSendMotorSignsAndPosts(t *testing.T) {
	var (
		gotPath   string
		gotMethod string
		headers   http.Header
		body      []byte
	)
	c := newPeerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
	}))

	if err := c.SendMotor(context.Background(), "start", 22.5); err != nil {
		t.Fatalf("SendMotor: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/motor" {
		t.Errorf("request = %s %s, want POST /motor", gotMethod, gotPath)
	}
	if got := headers.Get(backend.HeaderDeviceID); got != "top-controller-1" {
		t.Errorf("device header = %q", got)
	}
	err := backend.Verify("peer-secret", "top-controller-1", body,
		headers.Get(backend.HeaderTimestamp), headers.Get(backend.HeaderSignature),
		time.Minute, peerTime)
	if err != nil {
		t.Errorf("receiver-side verification failed: %v", err)
	}

	var req motorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if req.Command != "start" || req.DeviceID != "top-controller-1" || req.LevelPercentage != 22.5 {
		t.Errorf("request body = %+v", req)
	}
}

func TestSendMotorErrorKinds(t *testing.T) {
	c := newPeerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	if err := c.SendMotor(context.Background(), "start", 20); !backend.IsAuth(err) {
		t.Errorf("401: err = %v, want auth kind", err)
	}

	c = newPeerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	if err := c.SendMotor(context.Background(), "bananas", 20); !backend.IsRejected(err) {
		t.Errorf("422: err = %v, want rejected kind", err)
	}
}

func TestStatusDecodesEnvelope(t *testing.T) {
	c := newPeerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `{"status":{
			"tank":{"level_percentage":64.5,"volume_liters":852.1,"confidence":"good"},
			"motor":{"running":true,"mode":"auto"},
			"panic":{"active":false}
		}}`)
	}))

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LevelPercentage != 64.5 || !st.MotorRunning || st.Panic {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := NewClient(srv.URL, "top-controller-1", "peer-secret", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv.Close()

	if _, err := c.Status(context.Background()); !backend.IsNetwork(err) {
		t.Errorf("err = %v, want network kind", err)
	}
}
