// Package gpio provides hardware access with abstraction for testing.
// The real implementations use the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// ErrEchoTimeout is returned by a range finder when no echo comes back
// within the configured window. It signals a sensor fault, not an empty tank.
var ErrEchoTimeout = errors.New("gpio: echo timeout")

// RangeFinder measures the distance to the water surface.
type RangeFinder interface {
	// MeasureDistance fires a single ultrasonic pulse and returns the
	// measured distance in centimeters.
	MeasureDistance() (float64, error)

	// Close releases GPIO resources.
	Close() error
}

// Inputs holds one sample of the digital inputs in logical form.
// All switches are wired active-low with pull-ups; the reader inverts them.
type Inputs struct {
	FloatPresent bool // float switch closed, water present at the pump intake
	MotorSwitch  bool // manual motor override switch engaged
	ModeSwitch   bool // mode toggle switch engaged
}

// InputReader reads the digital inputs.
type InputReader interface {
	Read() (Inputs, error)
	Close() error
}

// Relay drives the pump contactor.
type Relay interface {
	// Set energizes or de-energizes the relay.
	Set(energized bool) error
	Close() error
}

// Panel drives the indicator LEDs and the buzzer.
type Panel interface {
	SetLEDs(autoMode, tankFull, tankLow bool) error
	SetBuzzer(on bool) error
	Close() error
}

// speedOfSoundCM is the speed of sound in cm/s at room temperature.
const speedOfSoundCM = 34300.0

// EchoDistanceCM converts an echo round-trip duration to a one-way
// distance in centimeters.
func EchoDistanceCM(roundTrip time.Duration) float64 {
	return roundTrip.Seconds() * speedOfSoundCM / 2
}
