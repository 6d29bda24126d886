//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealRangeFinder drives an HC-SR04 style ultrasonic sensor through the
// Linux GPIO character device. Echo edges are timestamped by the kernel,
// so the round-trip measurement does not depend on userspace latency.
type RealRangeFinder struct {
	chip    *gpiocdev.Chip
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
	events  chan gpiocdev.LineEvent
	timeout time.Duration
}

// NewRealRangeFinder requests the trigger and echo lines on the given chip.
func NewRealRangeFinder(chipName string, trigPin, echoPin int, echoTimeout time.Duration) (*RealRangeFinder, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	f := &RealRangeFinder{
		chip:    chip,
		events:  make(chan gpiocdev.LineEvent, 8),
		timeout: echoTimeout,
	}

	trigger, err := chip.RequestLine(trigPin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", trigPin, err)
	}
	f.trigger = trigger

	echo, err := chip.RequestLine(echoPin,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(f.handleEdge))
	if err != nil {
		trigger.Close()
		chip.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", echoPin, err)
	}
	f.echo = echo

	return f, nil
}

func (f *RealRangeFinder) handleEdge(evt gpiocdev.LineEvent) {
	select {
	case f.events <- evt:
	default:
		// Overflow only happens with spurious edges; MeasureDistance
		// drains before each pulse anyway.
	}
}

// MeasureDistance fires a 10us trigger pulse and times the echo.
func (f *RealRangeFinder) MeasureDistance() (float64, error) {
	// Drop edges left over from a previous pulse.
	for drained := false; !drained; {
		select {
		case <-f.events:
		default:
			drained = true
		}
	}

	if err := f.trigger.SetValue(1); err != nil {
		return 0, fmt.Errorf("trigger high: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := f.trigger.SetValue(0); err != nil {
		return 0, fmt.Errorf("trigger low: %w", err)
	}

	deadline := time.NewTimer(f.timeout)
	defer deadline.Stop()

	rise, err := f.waitEdge(gpiocdev.LineEventRisingEdge, deadline)
	if err != nil {
		return 0, err
	}
	fall, err := f.waitEdge(gpiocdev.LineEventFallingEdge, deadline)
	if err != nil {
		return 0, err
	}

	return EchoDistanceCM(fall - rise), nil
}

// waitEdge blocks until the requested edge arrives or the deadline fires.
// Kernel timestamps are monotonic, so subtracting two of them yields the
// pulse width.
func (f *RealRangeFinder) waitEdge(kind gpiocdev.LineEventType, deadline *time.Timer) (time.Duration, error) {
	for {
		select {
		case evt := <-f.events:
			if evt.Type == kind {
				return evt.Timestamp, nil
			}
		case <-deadline.C:
			return 0, ErrEchoTimeout
		}
	}
}

// Close releases GPIO resources.
func (f *RealRangeFinder) Close() error {
	var errs []error

	if f.trigger != nil {
		if err := f.trigger.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("lower trigger: %w", err))
		}
		if err := f.trigger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trigger: %w", err))
		}
	}
	if f.echo != nil {
		if err := f.echo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close echo: %w", err))
		}
	}
	if f.chip != nil {
		if err := f.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// ReadLineLevel reports the current electrical level of a pin without
// changing its direction or value. It fails while the daemon holds the
// line, since character-device requests are exclusive.
func ReadLineLevel(chipName string, pin int) (int, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return 0, fmt.Errorf("open gpio chip: %w", err)
	}
	defer chip.Close()

	line, err := chip.RequestLine(pin, gpiocdev.AsIs)
	if err != nil {
		return 0, fmt.Errorf("request pin %d: %w", pin, err)
	}
	defer line.Close()

	v, err := line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v, nil
}

// RealInputReader reads the float switch and the panel switches.
// All three are wired switch-to-ground with internal pull-ups, so the raw
// value is inverted: raw 0 = switch closed.
type RealInputReader struct {
	chip    *gpiocdev.Chip
	float   *gpiocdev.Line
	motorSw *gpiocdev.Line
	modeSw  *gpiocdev.Line
}

// NewRealInputReader requests the three input lines on the given chip.
func NewRealInputReader(chipName string, floatPin, motorSwPin, modeSwPin int) (*RealInputReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	floatLine, err := chip.RequestLine(floatPin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request float switch pin %d: %w", floatPin, err)
	}

	motorLine, err := chip.RequestLine(motorSwPin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		floatLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request motor switch pin %d: %w", motorSwPin, err)
	}

	modeLine, err := chip.RequestLine(modeSwPin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		motorLine.Close()
		floatLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request mode switch pin %d: %w", modeSwPin, err)
	}

	return &RealInputReader{
		chip:    chip,
		float:   floatLine,
		motorSw: motorLine,
		modeSw:  modeLine,
	}, nil
}

// Read returns the logical states of the three inputs.
func (r *RealInputReader) Read() (Inputs, error) {
	floatRaw, err := r.float.Value()
	if err != nil {
		return Inputs{}, fmt.Errorf("read float switch: %w", err)
	}
	motorRaw, err := r.motorSw.Value()
	if err != nil {
		return Inputs{}, fmt.Errorf("read motor switch: %w", err)
	}
	modeRaw, err := r.modeSw.Value()
	if err != nil {
		return Inputs{}, fmt.Errorf("read mode switch: %w", err)
	}

	// Pull-up wiring: closed switch pulls the line to ground.
	return Inputs{
		FloatPresent: floatRaw == 0,
		MotorSwitch:  motorRaw == 0,
		ModeSwitch:   modeRaw == 0,
	}, nil
}

// Close releases GPIO resources.
func (r *RealInputReader) Close() error {
	var errs []error

	for _, l := range []*gpiocdev.Line{r.float, r.motorSw, r.modeSw} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealRelay drives the pump relay output. Polarity is configurable since
// common relay boards are active-low.
type RealRelay struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

// NewRealRelay requests the relay line, de-energized. This runs before any
// sensor or network setup so a power-cycle can never leave the pump on.
func NewRealRelay(chipName string, pin int, activeLow bool) (*RealRelay, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	initial := 0
	if activeLow {
		initial = 1
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(initial))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &RealRelay{chip: chip, line: line, activeLow: activeLow}, nil
}

// Set energizes or de-energizes the relay.
func (r *RealRelay) Set(energized bool) error {
	v := 0
	if energized != r.activeLow {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	return nil
}

// Close forces the relay safe and releases the line.
func (r *RealRelay) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.Set(false); err != nil {
			errs = append(errs, err)
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealPanel drives the three indicator LEDs and the buzzer.
type RealPanel struct {
	chip     *gpiocdev.Chip
	autoLED  *gpiocdev.Line
	fullLED  *gpiocdev.Line
	lowLED   *gpiocdev.Line
	buzzer   *gpiocdev.Line
}

// NewRealPanel requests the panel output lines, all off.
func NewRealPanel(chipName string, autoPin, fullPin, lowPin, buzzerPin int) (*RealPanel, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPanel{chip: chip}
	pins := []struct {
		pin  int
		dest **gpiocdev.Line
		name string
	}{
		{autoPin, &p.autoLED, "auto mode LED"},
		{fullPin, &p.fullLED, "tank full LED"},
		{lowPin, &p.lowLED, "tank low LED"},
		{buzzerPin, &p.buzzer, "buzzer"},
	}
	for _, req := range pins {
		line, err := chip.RequestLine(req.pin, gpiocdev.AsOutput(0))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", req.name, req.pin, err)
		}
		*req.dest = line
	}

	return p, nil
}

// SetLEDs writes all three indicator LEDs.
func (p *RealPanel) SetLEDs(autoMode, tankFull, tankLow bool) error {
	writes := []struct {
		line *gpiocdev.Line
		on   bool
		name string
	}{
		{p.autoLED, autoMode, "auto mode LED"},
		{p.fullLED, tankFull, "tank full LED"},
		{p.lowLED, tankLow, "tank low LED"},
	}
	for _, w := range writes {
		v := 0
		if w.on {
			v = 1
		}
		if err := w.line.SetValue(v); err != nil {
			return fmt.Errorf("set %s: %w", w.name, err)
		}
	}
	return nil
}

// SetBuzzer turns the buzzer on or off.
func (p *RealPanel) SetBuzzer(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := p.buzzer.SetValue(v); err != nil {
		return fmt.Errorf("set buzzer: %w", err)
	}
	return nil
}

// Close turns everything off and releases the lines.
func (p *RealPanel) Close() error {
	var errs []error

	for _, l := range []*gpiocdev.Line{p.autoLED, p.fullLED, p.lowLED, p.buzzer} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, err)
		}
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
