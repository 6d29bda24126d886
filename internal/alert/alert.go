// Package alert drives the indicator LEDs and the buzzer from the control
// loop. Patterns are computed from wall-clock phase on every tick, so a
// pattern can never stall the loop the way a sleep-based beeper would.
package alert

import (
	"fmt"
	"time"

	"github.com/chandud1124/aquaguard/internal/gpio"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/status"
)

const (
	beepLen       = 150 * time.Millisecond
	patternPeriod = 10 * time.Second
)

// Config holds the display thresholds, percentages of tank capacity.
type Config struct {
	FullAbovePct     float64
	LowBelowPct      float64
	CriticalBelowPct float64
}

// Driver owns the panel outputs. Step is called once per control-loop
// tick; the buzzer patterns are a pure function of elapsed time, so a
// human can count beeps to triage without console access.
type Driver struct {
	panel gpio.Panel
	cfg   Config
	epoch time.Time
}

// NewDriver wires the panel.
func NewDriver(panel gpio.Panel, cfg Config) *Driver {
	return &Driver{panel: panel, cfg: cfg}
}

// Step writes the LED and buzzer states for this instant. Priority order
// for the buzzer: panic, critical level, backend down, wifi down.
func (d *Driver) Step(snap status.Snapshot, now time.Time) error {
	if d.epoch.IsZero() {
		d.epoch = now
	}
	since := now.Sub(d.epoch)

	// A tank with no accepted reading yet has no level to display.
	hasReading := !snap.Level.UpdatedAt.IsZero()
	autoLED := snap.Motor.Mode == motor.ModeAuto
	fullLED := hasReading && snap.Level.Percentage >= d.cfg.FullAbovePct
	lowLED := hasReading && snap.Level.Percentage <= d.cfg.LowBelowPct

	var buzz bool
	switch {
	case snap.Panic.Active:
		buzz = fastPulse(since)
	case hasReading && snap.Level.Percentage <= d.cfg.CriticalBelowPct:
		buzz = shortBeeps(3, since)
	case snap.Conn.EverAvailable && !snap.Conn.BackendAvailable:
		buzz = shortBeeps(2, since)
	case !snap.Conn.WifiUp:
		buzz = shortBeeps(1, since)
	}

	if err := d.panel.SetLEDs(autoLED, fullLED, lowLED); err != nil {
		return fmt.Errorf("setting panel LEDs: %w", err)
	}
	if err := d.panel.SetBuzzer(buzz); err != nil {
		return fmt.Errorf("setting buzzer: %w", err)
	}
	return nil
}

// shortBeeps is on during the i-th beep slot of an n-beep pattern, which
// repeats every patternPeriod.
func shortBeeps(n int, since time.Duration) bool {
	phase := since % patternPeriod
	for k := 0; k < n; k++ {
		start := time.Duration(k) * 2 * beepLen
		if phase >= start && phase < start+beepLen {
			return true
		}
	}
	return false
}

// fastPulse is a continuous square wave, one beepLen on, one off.
func fastPulse(since time.Duration) bool {
	return (since/beepLen)%2 == 0
}
