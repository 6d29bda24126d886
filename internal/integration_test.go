package internal

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/command"
	"github.com/chandud1124/aquaguard/internal/gpio"
	"github.com/chandud1124/aquaguard/internal/input"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/sensor"
	"github.com/chandud1124/aquaguard/internal/status"
	"github.com/chandud1124/aquaguard/internal/supervisor"
)

var rigStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// rig wires the control-loop pieces together the way the daemon does,
// minus the process scaffolding: debounced inputs and the level estimate
// feed the motor conditions, commands drain through the queue, the
// tracker and supervisor see every cycle. One scripted reading and one
// scripted input sample are consumed per tick, 100 ms apart.
type rig struct {
	t *testing.T

	relay     *gpio.FakeRelay
	reader    *gpio.FakeInputReader
	finder    *gpio.FakeRangeFinder
	engine    *sensor.Engine
	pump      *motor.Controller
	queue     *command.Queue
	tracker   *status.Tracker
	sup       *supervisor.Supervisor
	debounce  *input.Debouncer
	restarter *supervisor.FakeRestarter

	transitions []motor.Transition
	results     []command.Result
	next        int
}

func newRig(t *testing.T, cooldown time.Duration, readings []gpio.RangeReading, samples []gpio.Inputs) *rig {
	t.Helper()

	relay := &gpio.FakeRelay{}
	pump, err := motor.NewController(relay, motor.Config{
		MaxRuntime:   30 * time.Minute,
		Cooldown:     cooldown,
		AutoStartPct: 75,
		AutoStopPct:  90,
	})
	if err != nil {
		t.Fatalf("motor controller: %v", err)
	}

	engine, err := sensor.NewEngine(sensor.Config{
		Geometry: sensor.TankGeometry{
			Shape:     sensor.ShapeRectangular,
			HeightCM:  100,
			LengthCM:  100,
			BreadthCM: 100,
		},
		RangeMarginCM: 10,
		MaxDeltaPct:   100,
		FastDeltaPct:  5,
		SlowAlpha:     0.5,
		FastAlpha:     1,
		DistrustLimit: 2,
		WindowSize:    3,
		StaleAfter:    3,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	tracker := status.NewTracker("sump-controller-1", rigStart, status.Config{Role: "sump"})
	restarter := &supervisor.FakeRestarter{}
	sup := supervisor.New(supervisor.Config{
		BackendSilence: time.Hour,
		SensorStale:    time.Hour,
		TripLimit:      100,
		Grace:          time.Second,
	}, nil, supervisor.Deps{
		Pump:      pump,
		Tracker:   tracker,
		Watchdog:  &supervisor.FakeWatchdog{},
		Restarter: restarter,
		Log:       zap.NewNop(),
	})

	return &rig{
		t:         t,
		relay:     relay,
		reader:    gpio.NewFakeInputReader(samples),
		finder:    gpio.NewFakeRangeFinder(readings),
		engine:    engine,
		pump:      pump,
		queue:     command.NewQueue(time.Hour),
		tracker:   tracker,
		sup:       sup,
		debounce:  input.New(200*time.Millisecond, "float_switch", "motor_switch", "mode_switch"),
		restarter: restarter,
	}
}

func (r *rig) at(i int) time.Time {
	return rigStart.Add(time.Duration(i) * 100 * time.Millisecond)
}

// tick runs one control cycle against the next scripted reading and
// input sample.
func (r *rig) tick() {
	now := r.at(r.next)
	r.next++

	raw, err := r.reader.Read()
	if err != nil {
		r.t.Fatalf("input read: %v", err)
	}
	r.debounce.Process(now, raw.FloatPresent, raw.MotorSwitch, raw.ModeSwitch)
	in := gpio.Inputs{
		FloatPresent: r.debounce.Stable("float_switch"),
		MotorSwitch:  r.debounce.Stable("motor_switch"),
		ModeSwitch:   r.debounce.Stable("mode_switch"),
	}

	cm, err := r.finder.MeasureDistance()
	est := r.engine.ProcessCycle([]sensor.LevelSample{
		{DistanceCM: cm, Time: now, Valid: err == nil},
	}, now)

	cond := motor.Conditions{
		FloatPresent: in.FloatPresent,
		LevelPct:     est.Percentage,
		LevelTrusted: est.Confidence != sensor.ConfidenceStale,
		PanicActive:  r.tracker.Snapshot().Panic.Active,
	}

	apply, _ := r.queue.Drain(now)
	for _, cmd := range apply {
		res, evs := command.Apply(r.pump, cmd, cond, now)
		if res.Status == command.StatusApplied {
			switch cmd.Kind {
			case command.KindEmergencyStop:
				r.sup.SetEmergency(true, now)
			case command.KindEmergencyReset:
				r.sup.SetEmergency(false, now)
			}
		}
		r.results = append(r.results, res)
		r.transitions = append(r.transitions, evs...)
	}

	r.transitions = append(r.transitions, r.pump.Tick(cond, now)...)

	r.tracker.Update(est, r.pump.State(), r.pump.MaxRuntimeTrips(), in, r.queue.Len())
	r.sup.Check(now)
}

func (r *rig) enqueue(id string, kind command.Kind) {
	r.queue.Enqueue(command.Command{
		ID:       id,
		Kind:     kind,
		Source:   command.SourceBackend,
		IssuedAt: r.at(r.next),
	}, r.at(r.next))
}

func (r *rig) lastTransition() motor.Transition {
	if len(r.transitions) == 0 {
		r.t.Fatal("no transitions recorded")
	}
	return r.transitions[len(r.transitions)-1]
}

// A dropped float switch stops a running pump in the cycle where the
// debounced state flips, and anchors the cooldown.
func TestFloatDropStopsRunningMotor(t *testing.T) {
	samples := repeatInputs(gpio.Inputs{FloatPresent: true}, 4)
	samples = append(samples, repeatInputs(gpio.Inputs{}, 3)...)
	r := newRig(t, 0, distances(40), samples)

	for i := 0; i < 3; i++ {
		r.tick()
	}
	r.enqueue("start-1", command.KindStart)
	r.tick()

	if st := r.pump.State(); !st.Running {
		t.Fatal("pump not running after start command")
	}
	if got := r.tracker.Snapshot().Level.Percentage; got != 60 {
		t.Fatalf("level: got %v, want 60", got)
	}

	// Raw float drops at tick 4; the debounce window holds it until
	// tick 6, and the stop lands in that same cycle.
	for i := 0; i < 3; i++ {
		r.tick()
	}

	st := r.pump.State()
	if st.Running {
		t.Error("pump still running after float loss")
	}
	if !st.LastStop.Equal(r.at(6)) {
		t.Errorf("last stop: got %v, want %v", st.LastStop, r.at(6))
	}
	last := r.lastTransition()
	if last.Reason != motor.ReasonFloatLost {
		t.Errorf("stop reason: got %q, want float_lost", last.Reason)
	}
	if !last.At.Equal(r.at(6)) {
		t.Errorf("stop time: got %v, want %v", last.At, r.at(6))
	}
	if want := []bool{false, true, false}; !sameBools(r.relay.History, want) {
		t.Errorf("relay history: got %v, want %v", r.relay.History, want)
	}
}

// A level rise across the start threshold starts the pump in auto mode,
// and a start command issued while it is already running is a no-op.
func TestLevelRiseAcrossStartThreshold(t *testing.T) {
	r := newRig(t, 5*time.Minute, distances(30, 30, 30, 24), repeatInputs(gpio.Inputs{FloatPresent: true}, 1))

	for i := 0; i < 3; i++ {
		r.tick()
	}
	if r.pump.State().Running {
		t.Fatal("pump started below the start threshold")
	}

	r.tick() // 76%, inside the start band

	st := r.pump.State()
	if !st.Running {
		t.Fatal("pump did not start on the level rise")
	}
	if got := r.lastTransition(); got.Reason != motor.ReasonAutoLevel || !got.At.Equal(r.at(3)) {
		t.Errorf("start transition: reason=%q at=%v", got.Reason, got.At)
	}

	r.enqueue("start-2", command.KindStart)
	r.tick()

	if len(r.results) != 1 {
		t.Fatalf("results: got %d, want 1", len(r.results))
	}
	if r.results[0].Status != command.StatusNoop {
		t.Errorf("second start: got %q, want noop", r.results[0].Status)
	}
	if len(r.relay.History) != 2 {
		t.Errorf("relay history: got %v, want no writes past the start", r.relay.History)
	}
}

// An emergency stop halts a running pump in the same cycle, latches
// manual mode and the panic view, and locks out starts until the reset.
func TestEmergencyStopLatchesUntilReset(t *testing.T) {
	r := newRig(t, 0, distances(20), repeatInputs(gpio.Inputs{FloatPresent: true}, 1))

	// 80% sits inside the auto band, so the pump starts right after the
	// inputs baseline.
	for i := 0; i < 3; i++ {
		r.tick()
	}
	if !r.pump.State().Running {
		t.Fatal("pump not running before the emergency stop")
	}

	r.enqueue("em-1", command.KindEmergencyStop)
	r.tick()

	st := r.pump.State()
	if st.Running {
		t.Error("pump still running after emergency stop")
	}
	if !st.Emergency || st.Mode != motor.ModeManual {
		t.Errorf("latch state: emergency=%v mode=%q", st.Emergency, st.Mode)
	}
	snap := r.tracker.Snapshot()
	if !snap.Panic.Active || snap.Panic.Reason != "emergency_halt" {
		t.Errorf("panic view: %+v", snap.Panic)
	}

	r.enqueue("start-3", command.KindStart)
	r.tick()
	if got := r.results[len(r.results)-1]; got.Status != command.StatusRejected {
		t.Errorf("start during halt: got %q, want rejected", got.Status)
	}

	r.enqueue("em-2", command.KindEmergencyReset)
	r.tick()
	if snap := r.tracker.Snapshot(); snap.Panic.Active {
		t.Errorf("panic view survived reset: %+v", snap.Panic)
	}

	r.enqueue("start-4", command.KindStart)
	r.tick()
	if got := r.results[len(r.results)-1]; got.Status != command.StatusApplied {
		t.Errorf("start after reset: got %q detail=%q, want applied", got.Status, got.Detail)
	}
	if st := r.pump.State(); !st.Running || st.Emergency {
		t.Errorf("final state: running=%v emergency=%v", st.Running, st.Emergency)
	}
	if want := []bool{false, true, false, true}; !sameBools(r.relay.History, want) {
		t.Errorf("relay history: got %v, want %v", r.relay.History, want)
	}
}

func distances(values ...float64) []gpio.RangeReading {
	out := make([]gpio.RangeReading, len(values))
	for i, v := range values {
		out[i] = gpio.RangeReading{CM: v}
	}
	return out
}

func repeatInputs(s gpio.Inputs, n int) []gpio.Inputs {
	out := make([]gpio.Inputs, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func sameBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
