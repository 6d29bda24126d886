package gpio

import "errors"

// RangeReading is a single scripted range finder result.
type RangeReading struct {
	CM  float64
	Err error
}

// FakeRangeFinder is a test double that returns scripted distances.
type FakeRangeFinder struct {
	// Readings contains scripted results. Each call to MeasureDistance
	// consumes the next one; the last reading repeats once exhausted.
	Readings []RangeReading

	index  int
	Closed bool
}

// NewFakeRangeFinder creates a FakeRangeFinder with the given readings.
func NewFakeRangeFinder(readings []RangeReading) *FakeRangeFinder {
	return &FakeRangeFinder{Readings: readings}
}

// MeasureDistance returns the next scripted reading.
func (f *FakeRangeFinder) MeasureDistance() (float64, error) {
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}

	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}

	return r.CM, r.Err
}

// Close marks the finder as closed.
func (f *FakeRangeFinder) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the beginning of the readings.
func (f *FakeRangeFinder) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeInputReader is a test double that returns scripted input samples.
type FakeInputReader struct {
	// Samples contains scripted input states. Each call to Read consumes
	// the next sample; the last sample repeats once exhausted.
	Samples []Inputs

	index int

	// ReadError, if set, is returned by Read.
	ReadError error

	Closed bool
}

// NewFakeInputReader creates a FakeInputReader with the given samples.
func NewFakeInputReader(samples []Inputs) *FakeInputReader {
	return &FakeInputReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeInputReader) Read() (Inputs, error) {
	if f.ReadError != nil {
		return Inputs{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Inputs{}, errors.New("no samples configured")
	}

	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return s, nil
}

// Close marks the reader as closed.
func (f *FakeInputReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the beginning of the samples.
func (f *FakeInputReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeRelay is a test double recording relay writes.
type FakeRelay struct {
	// Energized is the current relay state.
	Energized bool

	// History records every Set call in order.
	History []bool

	// SetError, if set, is returned by Set and the state is left unchanged.
	SetError error

	Closed bool
}

// Set records the requested state.
func (f *FakeRelay) Set(energized bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Energized = energized
	f.History = append(f.History, energized)
	return nil
}

// Close marks the relay as closed.
func (f *FakeRelay) Close() error {
	f.Closed = true
	return nil
}

// FakePanel is a test double recording LED and buzzer writes.
type FakePanel struct {
	AutoMode bool
	TankFull bool
	TankLow  bool
	Buzzer   bool

	// BuzzerWrites counts SetBuzzer calls, useful for pattern tests.
	BuzzerWrites int

	Closed bool
}

// SetLEDs records the LED states.
func (f *FakePanel) SetLEDs(autoMode, tankFull, tankLow bool) error {
	f.AutoMode = autoMode
	f.TankFull = tankFull
	f.TankLow = tankLow
	return nil
}

// SetBuzzer records the buzzer state.
func (f *FakePanel) SetBuzzer(on bool) error {
	f.Buzzer = on
	f.BuzzerWrites++
	return nil
}

// Close marks the panel as closed.
func (f *FakePanel) Close() error {
	f.Closed = true
	return nil
}
