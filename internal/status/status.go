// Package status provides a thread-safe status tracker for the controller
// daemon. It is read by the HTTP handlers, the comm manager, the panel
// alert driver and the supervisor; each field group has exactly one writer.
package status

import (
	"sync"
	"time"

	"github.com/chandud1124/aquaguard/internal/gpio"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/sensor"
)

// ConnectionHealth is the comm manager's view of the outside world. This is
// a local copy to avoid importing internal/backend from status.
type ConnectionHealth struct {
	WifiUp           bool
	IP               string
	SSID             string
	SignalDBm        int
	BackendAvailable bool
	EverAvailable    bool // the backend answered at least once this boot
	HeartbeatMisses  int
	LastOK           time.Time // last successful backend exchange
}

// PanicState mirrors the supervisor's latch. Local copy, same reason.
type PanicState struct {
	Active bool
	Reason string
	Since  time.Time
}

// Config contains controller configuration for display.
type Config struct {
	Role         string
	LoopMs       int64
	ReadSeconds  int64
	HeartbeatSec int64
	AutoStartPct float64
	AutoStopPct  float64
	BackendURL   string
	PeerURL      string
	HTTPAddr     string
	Broker       string
}

// Snapshot is a point-in-time view of controller state. It is a value
// type, safe to use after the lock is released.
type Snapshot struct {
	DeviceID  string
	StartTime time.Time
	Now       time.Time
	Config    Config

	Level           sensor.LevelEstimate
	Motor           motor.State
	MotorTrips      int
	Inputs          gpio.Inputs
	CommandsPending int

	Conn  ConnectionHealth
	Panic PanicState

	PeerAvailable bool // false until a peer exchange succeeds; stays false with no peer configured
	MQTTConnected bool
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given identity, start time and
// display config.
func NewTracker(deviceID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			DeviceID:  deviceID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the loop-owned fields: level estimate, motor state, runtime
// trip count, debounced inputs and queued command count. Called from the
// control loop on every tick.
func (t *Tracker) Update(level sensor.LevelEstimate, st motor.State, trips int, in gpio.Inputs, pending int) {
	t.mu.Lock()
	t.snap.Level = level
	t.snap.Motor = st
	t.snap.MotorTrips = trips
	t.snap.Inputs = in
	t.snap.CommandsPending = pending
	t.mu.Unlock()
}

// SetConnection sets the connection health. Called by the comm manager.
func (t *Tracker) SetConnection(conn ConnectionHealth) {
	t.mu.Lock()
	t.snap.Conn = conn
	t.mu.Unlock()
}

// SetPanic sets the panic latch view. Called by the supervisor.
func (t *Tracker) SetPanic(p PanicState) {
	t.mu.Lock()
	t.snap.Panic = p
	t.mu.Unlock()
}

// SetPeerAvailable records the outcome of the last peer exchange. Called by
// the peer coordinator.
func (t *Tracker) SetPeerAvailable(up bool) {
	t.mu.Lock()
	t.snap.PeerAvailable = up
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
