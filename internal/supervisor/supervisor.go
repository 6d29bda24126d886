// Package supervisor watches the controller's own health and pulls the
// plug when it degrades. It owns the panic latch, the daily maintenance
// restart and the hardware watchdog; the control loop drives it on a slow
// cadence and feeds the watchdog every iteration.
package supervisor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/backend"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/sensor"
	"github.com/chandud1124/aquaguard/internal/status"
)

// Panic reasons, reported to the backend and shown on the status page.
const (
	ReasonBackendSilent = "backend_silent"
	ReasonSensorStale   = "sensor_stale"
	ReasonLowMemory     = "low_memory"
	ReasonRuntimeTrips  = "runtime_trips"
	ReasonEmergencyHalt = "emergency_halt"
)

// Config holds the panic thresholds.
type Config struct {
	BackendSilence time.Duration // silence after the backend was available
	SensorStale    time.Duration // continuous stale-confidence window
	MemoryFloorKB  uint64        // zero disables the memory check
	TripLimit      int           // max-runtime stops per boot
	Grace          time.Duration // bound on the pre-restart report
}

// Pump is the slice of the motor controller the supervisor needs.
type Pump interface {
	Stop(reason motor.Reason, at time.Time) (*motor.Transition, error)
	MaxRuntimeTrips() int
}

// Restarter ends the process so the init system brings the daemon back up.
type Restarter interface {
	Restart(reason string)
}

// Deps are the supervisor's handles into the rest of the daemon. Pump is
// nil on the top role; Client is nil when the backend is disabled and
// Telemetry must be set whenever Client is.
type Deps struct {
	Pump      Pump
	Tracker   *status.Tracker
	Client    *backend.Client
	Telemetry func() backend.Telemetry
	Watchdog  Watchdog
	Restarter Restarter
	Log       *zap.Logger
}

// Supervisor evaluates the panic conditions and the restart schedule. All
// methods are called from the control loop goroutine; no locking here.
type Supervisor struct {
	cfg       Config
	pump      Pump
	tracker   *status.Tracker
	client    *backend.Client
	telemetry func() backend.Telemetry
	watchdog  Watchdog
	restart   Restarter
	log       *zap.Logger

	schedule    cron.Schedule
	nextRestart time.Time
	staleSince  time.Time
	panicked    bool

	// freeMemory is swappable in tests.
	freeMemory func() uint64
}

// New wires a supervisor. schedule may be nil to disable the maintenance
// restart.
func New(cfg Config, schedule cron.Schedule, deps Deps) *Supervisor {
	s := &Supervisor{
		cfg:        cfg,
		pump:       deps.Pump,
		tracker:    deps.Tracker,
		client:     deps.Client,
		telemetry:  deps.Telemetry,
		watchdog:   deps.Watchdog,
		restart:    deps.Restarter,
		log:        deps.Log,
		schedule:   schedule,
		freeMemory: FreeMemoryKB,
	}
	if schedule != nil {
		s.nextRestart = schedule.Next(time.Now())
	}
	return s
}

// Check evaluates the panic conditions and the restart schedule. It
// reports whether a restart has been initiated.
func (s *Supervisor) Check(now time.Time) bool {
	if s.panicked {
		return true
	}
	snap := s.tracker.Snapshot()

	if snap.Level.Confidence == sensor.ConfidenceStale {
		if s.staleSince.IsZero() {
			s.staleSince = now
		}
	} else {
		s.staleSince = time.Time{}
	}

	if reason, ok := s.panicCondition(snap, now); ok {
		s.Panic(reason, now)
		return true
	}
	if s.schedule != nil && !s.nextRestart.IsZero() && !now.Before(s.nextRestart) {
		s.scheduledRestart(now)
		return true
	}
	return false
}

func (s *Supervisor) panicCondition(snap status.Snapshot, now time.Time) (string, bool) {
	// Backend silence only counts against a working link: losing WiFi
	// alone puts the device in degraded mode, never in a reboot loop.
	conn := snap.Conn
	if conn.WifiUp && conn.EverAvailable && !conn.LastOK.IsZero() &&
		now.Sub(conn.LastOK) > s.cfg.BackendSilence {
		return ReasonBackendSilent, true
	}
	if !s.staleSince.IsZero() && now.Sub(s.staleSince) > s.cfg.SensorStale {
		return ReasonSensorStale, true
	}
	if s.cfg.MemoryFloorKB > 0 {
		if free := s.freeMemory(); free > 0 && free < s.cfg.MemoryFloorKB {
			return ReasonLowMemory, true
		}
	}
	if s.pump != nil && s.cfg.TripLimit > 0 && s.pump.MaxRuntimeTrips() >= s.cfg.TripLimit {
		return ReasonRuntimeTrips, true
	}
	return "", false
}

// Panic runs the full panic sequence once: latch, relay off, best-effort
// report, restart. Entering panic is monotonic within a boot.
func (s *Supervisor) Panic(reason string, now time.Time) {
	if s.panicked {
		return
	}
	s.panicked = true
	s.tracker.SetPanic(status.PanicState{Active: true, Reason: reason, Since: now})
	s.log.Error("panic", zap.String("reason", reason))

	s.watchdog.Feed()
	if s.pump != nil {
		if _, err := s.pump.Stop(motor.ReasonPanic, now); err != nil {
			s.log.Error("panic relay stop failed", zap.Error(err))
		}
	}
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Grace)
		if err := s.client.ReportPanic(ctx, reason, s.telemetry()); err != nil {
			s.log.Warn("panic report not delivered", zap.Error(err))
		}
		cancel()
	}
	s.restart.Restart(reason)
}

func (s *Supervisor) scheduledRestart(now time.Time) {
	s.log.Info("scheduled maintenance restart")

	s.watchdog.Feed()
	if s.pump != nil {
		if _, err := s.pump.Stop(motor.ReasonScheduled, now); err != nil {
			s.log.Error("restart relay stop failed", zap.Error(err))
		}
	}
	if s.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Grace)
		if err := s.client.ReportScheduledRestart(ctx, s.telemetry()); err != nil {
			s.log.Warn("restart report not delivered", zap.Error(err))
		}
		cancel()
	}
	s.nextRestart = s.schedule.Next(now)
	s.restart.Restart("scheduled_restart")
}

// SetEmergency mirrors the motor's emergency latch into the panic view.
// The loop calls it when an emergency transition applies. emergency_reset
// clears only this sub-case; a real panic stays latched.
func (s *Supervisor) SetEmergency(active bool, at time.Time) {
	if s.panicked {
		return
	}
	if active {
		s.tracker.SetPanic(status.PanicState{Active: true, Reason: ReasonEmergencyHalt, Since: at})
		return
	}
	s.tracker.SetPanic(status.PanicState{})
}
