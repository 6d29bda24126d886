//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealRangeFinder is not available on non-Linux platforms.
type RealRangeFinder struct{}

// NewRealRangeFinder returns an error on non-Linux platforms.
func NewRealRangeFinder(chipName string, trigPin, echoPin int, echoTimeout time.Duration) (*RealRangeFinder, error) {
	return nil, errUnsupported
}

// MeasureDistance is not implemented on non-Linux platforms.
func (f *RealRangeFinder) MeasureDistance() (float64, error) {
	return 0, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (f *RealRangeFinder) Close() error {
	return nil
}

// ReadLineLevel is not available on non-Linux platforms.
func ReadLineLevel(chipName string, pin int) (int, error) {
	return 0, errUnsupported
}

// RealInputReader is not available on non-Linux platforms.
type RealInputReader struct{}

// NewRealInputReader returns an error on non-Linux platforms.
func NewRealInputReader(chipName string, floatPin, motorSwPin, modeSwPin int) (*RealInputReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealInputReader) Read() (Inputs, error) {
	return Inputs{}, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealInputReader) Close() error {
	return nil
}

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(chipName string, pin int, activeLow bool) (*RealRelay, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (r *RealRelay) Set(energized bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}

// RealPanel is not available on non-Linux platforms.
type RealPanel struct{}

// NewRealPanel returns an error on non-Linux platforms.
func NewRealPanel(chipName string, autoPin, fullPin, lowPin, buzzerPin int) (*RealPanel, error) {
	return nil, errUnsupported
}

// SetLEDs is not implemented on non-Linux platforms.
func (p *RealPanel) SetLEDs(autoMode, tankFull, tankLow bool) error {
	return errUnsupported
}

// SetBuzzer is not implemented on non-Linux platforms.
func (p *RealPanel) SetBuzzer(on bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (p *RealPanel) Close() error {
	return nil
}
