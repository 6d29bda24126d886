package main

import (
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/alert"
	"github.com/chandud1124/aquaguard/internal/backend"
	"github.com/chandud1124/aquaguard/internal/command"
	"github.com/chandud1124/aquaguard/internal/config"
	"github.com/chandud1124/aquaguard/internal/gpio"
	"github.com/chandud1124/aquaguard/internal/input"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/mqtt"
	"github.com/chandud1124/aquaguard/internal/sensor"
	"github.com/chandud1124/aquaguard/internal/status"
	"github.com/chandud1124/aquaguard/internal/supervisor"
)

// Debounce channel names, in reader declaration order.
const (
	chFloat       = "float_switch"
	chMotorSwitch = "motor_switch"
	chModeSwitch  = "mode_switch"
)

// daemon bundles everything the control loop drives. The loop goroutine is
// the single writer of motor, sensor and supervisor state; the comm
// manager, peer coordinator and web server run beside it and reach it only
// through the tracker and the command queue.
type daemon struct {
	cfg     *config.Config
	log     *zap.Logger
	tracker *status.Tracker

	finder gpio.RangeFinder
	reader gpio.InputReader  // nil on the top role
	pump   *motor.Controller // nil on the top role
	queue  *command.Queue
	engine *sensor.Engine
	alerts *alert.Driver
	sup    *supervisor.Supervisor
	watch  supervisor.Watchdog

	manager *backend.Manager      // nil when the backend is disabled
	pub     mqtt.Publisher        // nil when MQTT is disabled
	conn    mqtt.ConnectionStatus // nil when MQTT is disabled
	mirror  *mirror               // nil when MQTT is disabled

	debounce *input.Debouncer // nil on the top role

	now   func() time.Time
	sleep func(time.Duration)

	lastRead  time.Time
	lastCheck time.Time
}

// runLoop blocks until a termination signal arrives. Ticks that fire while
// a step is still running are dropped by the ticker, which is the behavior
// we want when a sensor cycle overruns the loop interval.
func (d *daemon) runLoop(tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			d.log.Info("shutting down", zap.String("signal", name))
			d.publishShutdown(name)
			return nil
		case <-tick:
			d.step(d.now())
		}
	}
}

// step is one pass of the control loop: inputs, sensor, commands, motor,
// status, supervisor, panel. Everything here runs on the loop goroutine.
func (d *daemon) step(now time.Time) {
	d.watch.Feed()

	var in gpio.Inputs
	var edges []input.Edge
	if d.reader != nil {
		if raw, err := d.reader.Read(); err != nil {
			d.log.Warn("input read failed", zap.Error(err))
		} else {
			edges = d.debounce.Process(now, raw.FloatPresent, raw.MotorSwitch, raw.ModeSwitch)
		}
		in = gpio.Inputs{
			FloatPresent: d.debounce.Stable(chFloat),
			MotorSwitch:  d.debounce.Stable(chMotorSwitch),
			ModeSwitch:   d.debounce.Stable(chModeSwitch),
		}
	}

	if now.Sub(d.lastRead) >= d.cfg.Sensor.ReadInterval() {
		d.lastRead = now
		est := d.engine.ProcessCycle(d.acquire(now), now)
		d.mirror.Event(mqtt.Event{
			Timestamp:  now,
			Kind:       "level",
			LevelPct:   est.Percentage,
			Volume:     est.VolumeLiters,
			Confidence: string(est.Confidence),
		})
	}

	est := d.engine.Estimate()
	cond := motor.Conditions{
		FloatPresent: in.FloatPresent,
		LevelPct:     est.Percentage,
		LevelTrusted: est.Confidence != sensor.ConfidenceStale,
		PanicActive:  d.tracker.Snapshot().Panic.Active,
	}

	var transitions []motor.Transition
	if d.pump != nil {
		for _, e := range edges {
			transitions = append(transitions, d.applyEdge(e, cond)...)
		}
	}

	apply, expired := d.queue.Drain(now)
	for _, cmd := range expired {
		d.finishCommand(command.Result{Command: cmd, Status: command.StatusExpired})
	}
	for _, cmd := range apply {
		res, evs := d.dispatch(cmd, cond, now)
		transitions = append(transitions, evs...)
		d.finishCommand(res)
	}

	if d.pump != nil {
		transitions = append(transitions, d.pump.Tick(cond, now)...)
	}
	d.recordTransitions(transitions, est)

	var st motor.State
	var trips int
	if d.pump != nil {
		st = d.pump.State()
		trips = d.pump.MaxRuntimeTrips()
	}
	d.tracker.Update(est, st, trips, in, d.queue.Len())
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}

	if now.Sub(d.lastCheck) >= d.cfg.Supervisor.CheckInterval() {
		d.lastCheck = now
		d.sup.Check(now)
	}

	if err := d.alerts.Step(d.tracker.Snapshot(), now); err != nil {
		d.log.Warn("panel update failed", zap.Error(err))
	}
}

func (d *daemon) acquire(now time.Time) []sensor.LevelSample {
	return acquireSamples(d.finder, d.cfg.Sensor.PulsesPerCycle, d.cfg.Sensor.PulseGap(), d.sleep, now)
}

// applyEdge maps a debounced switch edge onto the motor controller. The
// float switch carries no edge action; its stable state gates every start
// and Tick stops a running pump when it drops.
func (d *daemon) applyEdge(e input.Edge, cond motor.Conditions) []motor.Transition {
	var (
		ev  *motor.Transition
		err error
	)
	switch e.Channel {
	case chMotorSwitch:
		if e.On {
			ev, err = d.pump.Start(cond, motor.ReasonSwitch, e.At)
		} else {
			ev, err = d.pump.Stop(motor.ReasonSwitch, e.At)
		}
	case chModeSwitch:
		ev, err = d.pump.ToggleMode(e.At)
	default:
		return nil
	}
	if err != nil && ev == nil {
		d.log.Warn("switch request refused",
			zap.String("switch", e.Channel),
			zap.Bool("on", e.On),
			zap.Error(err))
		return nil
	}
	if ev == nil {
		return nil
	}
	return []motor.Transition{*ev}
}

// dispatch runs one drained command. The top role has no pump, so every
// motor command that reaches it is rejected and acknowledged as such.
func (d *daemon) dispatch(cmd command.Command, cond motor.Conditions, now time.Time) (command.Result, []motor.Transition) {
	if d.pump == nil {
		return command.Result{
			Command: cmd,
			Status:  command.StatusRejected,
			Detail:  "no pump on this controller",
		}, nil
	}
	res, evs := command.Apply(d.pump, cmd, cond, now)
	if res.Status == command.StatusApplied {
		switch cmd.Kind {
		case command.KindEmergencyStop:
			d.sup.SetEmergency(true, now)
		case command.KindEmergencyReset:
			d.sup.SetEmergency(false, now)
		}
	}
	return res, evs
}

// finishCommand records the outcome and, for backend-issued commands,
// queues the acknowledgment. Peer commands are acknowledged by the HTTP
// response at enqueue time and need nothing here.
func (d *daemon) finishCommand(res command.Result) {
	d.log.Info("command finished",
		zap.String("id", res.Command.ID),
		zap.String("kind", string(res.Command.Kind)),
		zap.String("status", string(res.Status)),
		zap.String("detail", res.Detail))
	if d.manager != nil && res.Command.Source == command.SourceBackend {
		d.manager.EnqueueAck(res)
	}
}

func (d *daemon) recordTransitions(transitions []motor.Transition, est sensor.LevelEstimate) {
	for _, ev := range transitions {
		if ev.Err != nil {
			d.log.Error("motor transition failed",
				zap.String("from", ev.From),
				zap.String("to", ev.To),
				zap.String("reason", string(ev.Reason)),
				zap.Error(ev.Err))
		} else {
			d.log.Info("motor transition",
				zap.String("from", ev.From),
				zap.String("to", ev.To),
				zap.String("reason", string(ev.Reason)))
		}
		if d.manager != nil {
			d.manager.EnqueueTransition(ev)
		}
		d.mirror.Event(mqtt.Event{
			Timestamp:  ev.At,
			Kind:       "motor",
			LevelPct:   est.Percentage,
			Volume:     est.VolumeLiters,
			Confidence: string(est.Confidence),
			Motor:      ev.To,
			From:       ev.From,
			To:         ev.To,
			Reason:     string(ev.Reason),
		})
	}
}

// publishShutdown sends the retained shutdown event so the broker state
// distinguishes a clean stop from a dropped connection, which the will
// message covers.
func (d *daemon) publishShutdown(reason string) {
	if d.pub == nil {
		return
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "shutdown",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "shutdown", reason),
	}
	if err := d.pub.PublishSystem(ev); err != nil {
		d.log.Warn("shutdown event not published", zap.Error(err))
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return s.String()
	}
}

// mirror decouples the control loop from the broker. Events cross a
// buffered channel to a forwarding goroutine; when the buffer is full the
// event is dropped, since every reading repeats within seconds. System
// events do not pass through here, the few that exist are published
// synchronously at startup, shutdown and restart.
type mirror struct {
	pub    mqtt.Publisher
	log    *zap.Logger
	events chan mqtt.Event
	stop   chan struct{}
	done   chan struct{}
}

func newMirror(pub mqtt.Publisher, log *zap.Logger) *mirror {
	m := &mirror{
		pub:    pub,
		log:    log,
		events: make(chan mqtt.Event, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.forward()
	return m
}

// Event hands an event to the forwarding goroutine. Safe on a nil mirror.
func (m *mirror) Event(ev mqtt.Event) {
	if m == nil {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.log.Debug("mirror buffer full, event dropped")
	}
}

func (m *mirror) forward() {
	defer close(m.done)
	for {
		select {
		case ev := <-m.events:
			m.publish(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.events:
					m.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *mirror) publish(ev mqtt.Event) {
	if err := m.pub.Publish(ev); err != nil {
		m.log.Warn("event publish failed", zap.Error(err))
	}
}

// Close flushes queued events and stops the forwarding goroutine.
func (m *mirror) Close() {
	close(m.stop)
	<-m.done
}

// notifyRestarter announces the restart on the MQTT system topic before
// handing over to the real restarter, so watchers can tell a supervised
// restart from a crash.
type notifyRestarter struct {
	pub     mqtt.Publisher
	tracker *status.Tracker
	next    supervisor.Restarter
	log     *zap.Logger
}

func (r notifyRestarter) Restart(reason string) {
	snap := r.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "restart",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "restart", reason),
	}
	if err := r.pub.PublishSystem(ev); err != nil {
		r.log.Warn("restart event not published", zap.Error(err))
	}
	r.next.Restart(reason)
}
