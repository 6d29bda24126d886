// Package motor owns the pump relay and the state machine that drives it.
// Decisions are made on injected conditions and timestamps; the only side
// effect is the relay write, which happens in the same call that commits
// the state change so the two can never be observed disagreeing.
package motor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chandud1124/aquaguard/internal/gpio"
)

// Mode selects between level-driven and operator-driven control.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Reason identifies what caused a transition. The values appear verbatim
// in telemetry payloads and logs.
type Reason string

const (
	ReasonAutoLevel      Reason = "auto_level"
	ReasonLevelStop      Reason = "level_stop"
	ReasonFloatLost      Reason = "float_lost"
	ReasonMaxRuntime     Reason = "max_runtime"
	ReasonCommand        Reason = "command"
	ReasonSwitch         Reason = "switch"
	ReasonPeer           Reason = "peer"
	ReasonEmergency      Reason = "emergency"
	ReasonEmergencyReset Reason = "emergency_reset"
	ReasonModeChange     Reason = "mode_change"
	ReasonRelayFault     Reason = "relay_fault"
	ReasonPanic          Reason = "panic"
	ReasonScheduled      Reason = "scheduled_restart"
)

// Start rejection errors, surfaced to command acknowledgments.
var (
	ErrFloatAbsent = errors.New("float switch reports no water")
	ErrCooldown    = errors.New("cooldown period has not elapsed")
	ErrPanicked    = errors.New("panic active, motor starts are locked out")
	ErrEmergency   = errors.New("emergency halt latched, reset required")
)

// State is the externally visible motor state. Running always reflects the
// physical relay: a stop whose relay write failed keeps Running true until
// the retried write lands.
type State struct {
	Running   bool
	Mode      Mode
	Since     time.Time // start of the current run, zero when stopped
	LastStop  time.Time // cooldown anchor
	Emergency bool      // latched by emergency_stop, cleared only by emergency_reset
}

// Label renders the state in the form used by telemetry and the status page.
func (s State) Label() string {
	switch {
	case s.Emergency:
		return "emergency_halt"
	case s.Running:
		return "running_" + string(s.Mode)
	default:
		return "stopped_" + string(s.Mode)
	}
}

// Transition records one state change (or one failed attempt) for telemetry.
type Transition struct {
	From   string
	To     string
	Reason Reason
	At     time.Time
	Err    error // relay write error when the attempt did not reach hardware
}

// Conditions is the per-tick snapshot the controller decides on.
type Conditions struct {
	FloatPresent bool
	LevelPct     float64
	LevelTrusted bool // false while the level estimate is stale
	PanicActive  bool
}

// Config carries the safety limits and auto thresholds.
type Config struct {
	MaxRuntime   time.Duration
	Cooldown     time.Duration
	AutoStartPct float64
	AutoStopPct  float64
}

// Controller is the single writer of motor state and the only owner of the
// relay line.
type Controller struct {
	mu    sync.Mutex
	relay gpio.Relay
	cfg   Config

	state       State
	trips       int
	relayFault  bool   // a de-energize is pending retry
	faultReason Reason // stop reason to report once the retry lands
	startFault  bool   // suppresses repeated auto-start failure events
}

// NewController forces the relay de-energized and starts in stopped auto
// mode. The relay write is the first hardware action so a power cycle can
// never leave the pump running uncontrolled.
func NewController(relay gpio.Relay, cfg Config) (*Controller, error) {
	if cfg.MaxRuntime <= 0 || cfg.Cooldown < 0 {
		return nil, fmt.Errorf("invalid runtime limits: max=%s cooldown=%s", cfg.MaxRuntime, cfg.Cooldown)
	}
	if cfg.AutoStartPct <= 0 || cfg.AutoStopPct <= cfg.AutoStartPct || cfg.AutoStopPct > 100 {
		return nil, fmt.Errorf("invalid auto thresholds: start=%g%% stop=%g%%", cfg.AutoStartPct, cfg.AutoStopPct)
	}
	if err := relay.Set(false); err != nil {
		return nil, fmt.Errorf("de-energizing relay at boot: %w", err)
	}
	return &Controller{relay: relay, cfg: cfg, state: State{Mode: ModeAuto}}, nil
}

// State returns a copy of the current motor state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MaxRuntimeTrips reports how often the runtime ceiling forced a stop since
// boot. The supervisor treats repeated trips as a fault.
func (c *Controller) MaxRuntimeTrips() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trips
}

// Tick runs one control cycle. Stop conditions are evaluated and applied
// before start conditions, so a tank that is both ready to pump and unsafe
// ends the cycle stopped.
func (c *Controller) Tick(cond Conditions, at time.Time) []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []Transition

	if c.relayFault {
		if ev := c.retryStop(at); ev != nil {
			events = append(events, *ev)
		}
	}
	if c.state.Running && !c.relayFault {
		if ev := c.autoStop(cond, at); ev != nil {
			events = append(events, *ev)
		}
	}
	if !c.state.Running && !c.relayFault {
		if ev := c.autoStart(cond, at); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// Start handles a validated start request from the panel switch, a backend
// command, or the peer. Every source passes the same interlocks.
func (c *Controller) Start(cond Conditions, reason Reason, at time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Running {
		return nil, nil
	}
	if c.state.Emergency {
		return nil, ErrEmergency
	}
	if cond.PanicActive {
		return nil, ErrPanicked
	}
	if !cond.FloatPresent {
		return nil, ErrFloatAbsent
	}
	if !c.cooldownElapsed(at) {
		return nil, ErrCooldown
	}
	ev := c.startLocked(reason, at)
	return ev, ev.Err
}

// Stop handles an explicit stop request. Always permitted.
func (c *Controller) Stop(reason Reason, at time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Running || c.relayFault {
		return nil, nil
	}
	ev := c.stopLocked(reason, at)
	return ev, ev.Err
}

// EmergencyStop de-energizes the relay, forces manual mode and latches the
// halt so auto logic cannot silently restart the pump. It applies from any
// state and only EmergencyReset clears it.
func (c *Controller) EmergencyStop(at time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Emergency && !c.state.Running {
		return nil, nil
	}
	from := c.state.Label()
	c.state.Emergency = true
	c.state.Mode = ModeManual

	if c.state.Running && !c.relayFault {
		if err := c.relay.Set(false); err != nil {
			c.relayFault = true
			c.faultReason = ReasonEmergency
			wrapped := fmt.Errorf("de-energizing relay: %w", err)
			return &Transition{From: from, To: c.state.Label(), Reason: ReasonEmergency, At: at, Err: wrapped}, wrapped
		}
		c.state.Running = false
		c.state.Since = time.Time{}
		c.state.LastStop = at
	}
	return &Transition{From: from, To: c.state.Label(), Reason: ReasonEmergency, At: at}, nil
}

// EmergencyReset clears the halt latch and returns to stopped auto mode.
// The cooldown anchor from the halt still applies to the next start.
func (c *Controller) EmergencyReset(at time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Emergency {
		return nil, nil
	}
	from := c.state.Label()
	c.state.Emergency = false
	c.state.Mode = ModeAuto
	return &Transition{From: from, To: c.state.Label(), Reason: ReasonEmergencyReset, At: at}, nil
}

// SetMode switches between auto and manual without touching the relay.
func (c *Controller) SetMode(mode Mode, at time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setModeLocked(mode, at)
}

// ToggleMode flips the mode, used by the panel mode switch edge.
func (c *Controller) ToggleMode(at time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := ModeManual
	if c.state.Mode == ModeManual {
		target = ModeAuto
	}
	return c.setModeLocked(target, at)
}

func (c *Controller) setModeLocked(mode Mode, at time.Time) (*Transition, error) {
	if mode != ModeAuto && mode != ModeManual {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if c.state.Emergency {
		return nil, ErrEmergency
	}
	if c.state.Mode == mode {
		return nil, nil
	}
	from := c.state.Label()
	c.state.Mode = mode
	return &Transition{From: from, To: c.state.Label(), Reason: ReasonModeChange, At: at}, nil
}

// autoStop checks the stop conditions in priority order. Float-switch loss
// overrides everything, including manual mode; the runtime ceiling applies
// regardless of mode.
func (c *Controller) autoStop(cond Conditions, at time.Time) *Transition {
	switch {
	case !cond.FloatPresent:
		return c.stopLocked(ReasonFloatLost, at)
	case c.state.Mode == ModeAuto && cond.LevelTrusted && cond.LevelPct >= c.cfg.AutoStopPct:
		return c.stopLocked(ReasonLevelStop, at)
	case at.Sub(c.state.Since) >= c.cfg.MaxRuntime:
		c.trips++
		return c.stopLocked(ReasonMaxRuntime, at)
	}
	return nil
}

// autoStart gates the level-driven start. A level at or past the stop
// threshold never starts the pump, even though it is past the start
// threshold too.
func (c *Controller) autoStart(cond Conditions, at time.Time) *Transition {
	if c.state.Mode != ModeAuto || c.state.Emergency {
		return nil
	}
	if !cond.FloatPresent || cond.PanicActive || !cond.LevelTrusted {
		return nil
	}
	if cond.LevelPct < c.cfg.AutoStartPct || cond.LevelPct >= c.cfg.AutoStopPct {
		return nil
	}
	if !c.cooldownElapsed(at) {
		return nil
	}
	ev := c.startLocked(ReasonAutoLevel, at)
	if ev.Err != nil {
		if c.startFault {
			return nil // already reported, retried next tick anyway
		}
		c.startFault = true
	}
	return ev
}

// startLocked energizes the relay and commits the running state. A failed
// write leaves the state stopped.
func (c *Controller) startLocked(reason Reason, at time.Time) *Transition {
	from := c.state.Label()
	if err := c.relay.Set(true); err != nil {
		wrapped := fmt.Errorf("energizing relay: %w", err)
		return &Transition{From: from, To: from, Reason: reason, At: at, Err: wrapped}
	}
	c.startFault = false
	c.state.Running = true
	c.state.Since = at
	return &Transition{From: from, To: c.state.Label(), Reason: reason, At: at}
}

// stopLocked de-energizes the relay and commits the stopped state. A failed
// write keeps Running true (the pump really is still on) and arms a retry
// on every following tick.
func (c *Controller) stopLocked(reason Reason, at time.Time) *Transition {
	from := c.state.Label()
	if err := c.relay.Set(false); err != nil {
		c.relayFault = true
		c.faultReason = reason
		wrapped := fmt.Errorf("de-energizing relay: %w", err)
		return &Transition{From: from, To: from, Reason: ReasonRelayFault, At: at, Err: wrapped}
	}
	c.state.Running = false
	c.state.Since = time.Time{}
	c.state.LastStop = at
	return &Transition{From: from, To: c.state.Label(), Reason: reason, At: at}
}

// retryStop re-attempts a de-energize that previously failed. Repeated
// failures stay silent; the original fault event already went out.
func (c *Controller) retryStop(at time.Time) *Transition {
	if err := c.relay.Set(false); err != nil {
		return nil
	}
	from := c.state.Label()
	reason := c.faultReason
	c.relayFault = false
	c.faultReason = ""
	c.state.Running = false
	c.state.Since = time.Time{}
	c.state.LastStop = at
	return &Transition{From: from, To: c.state.Label(), Reason: reason, At: at}
}

func (c *Controller) cooldownElapsed(at time.Time) bool {
	return c.state.LastStop.IsZero() || at.Sub(c.state.LastStop) >= c.cfg.Cooldown
}
