// Package sensor converts raw ultrasonic pulse results into a validated,
// smoothed liquid level estimate. This package has no hardware
// dependencies; time is always injectable via time.Time parameters.
package sensor

import (
	"fmt"
	"sort"
	"time"
)

// Confidence qualifies the current level estimate.
type Confidence string

const (
	// ConfidenceGood means the estimate tracks recent accepted readings.
	ConfidenceGood Confidence = "good"
	// ConfidenceDistrusted means the latest cycles jumped too far from the
	// accepted estimate and are being held back pending confirmation.
	ConfidenceDistrusted Confidence = "distrusted"
	// ConfidenceStale means validation has failed long enough that the
	// estimate is frozen and must not drive automatic decisions.
	ConfidenceStale Confidence = "stale"
)

// LevelSample is a single raw pulse result. Produced every cycle, consumed
// immediately, never persisted.
type LevelSample struct {
	DistanceCM float64
	Time       time.Time
	Valid      bool
}

// LevelEstimate is the engine's durable output, overwritten each cycle.
type LevelEstimate struct {
	Percentage   float64
	VolumeLiters float64
	Confidence   Confidence
	UpdatedAt    time.Time
}

// Config tunes the filtering pipeline.
type Config struct {
	Geometry      TankGeometry
	RangeMarginCM float64 // extra accepted distance below the empty line
	MaxDeltaPct   float64 // outlier threshold against the accepted estimate
	FastDeltaPct  float64 // delta at which fast smoothing kicks in
	SlowAlpha     float64
	FastAlpha     float64
	DistrustLimit int // consecutive distrusted cycles before median fallback
	WindowSize    int // rolling buffer of recent candidate levels
	StaleAfter    int // consecutive invalid cycles before stale
}

// Engine turns per-cycle pulse batches into a LevelEstimate.
// It never touches the motor relay; its only output is the estimate.
type Engine struct {
	cfg Config

	estimate  LevelEstimate
	havePrior bool

	distrustStreak int
	invalidCycles  int
	window         []float64
}

// NewEngine validates the configuration and returns a fresh engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("tank geometry: %w", err)
	}
	if cfg.SlowAlpha <= 0 || cfg.SlowAlpha > 1 || cfg.FastAlpha <= 0 || cfg.FastAlpha > 1 {
		return nil, fmt.Errorf("alphas must be in (0,1], got slow=%g fast=%g", cfg.SlowAlpha, cfg.FastAlpha)
	}
	if cfg.MaxDeltaPct <= 0 {
		return nil, fmt.Errorf("max delta must be positive, got %g", cfg.MaxDeltaPct)
	}
	if cfg.DistrustLimit < 1 || cfg.WindowSize < 3 || cfg.StaleAfter < 1 {
		return nil, fmt.Errorf("invalid streak limits: distrust=%d window=%d stale=%d",
			cfg.DistrustLimit, cfg.WindowSize, cfg.StaleAfter)
	}
	// Until the first reading is accepted there is nothing to trust.
	return &Engine{cfg: cfg, estimate: LevelEstimate{Confidence: ConfidenceStale}}, nil
}

// ProcessCycle consumes one cycle's pulse batch and returns the updated
// estimate. An all-invalid cycle leaves the numeric estimate frozen; after
// StaleAfter consecutive invalid cycles the confidence degrades to stale
// and the internal failure counter starts over.
func (e *Engine) ProcessCycle(samples []LevelSample, at time.Time) LevelEstimate {
	distances := e.validDistances(samples)

	if len(distances) == 0 {
		e.invalidCycles++
		if e.invalidCycles > e.cfg.StaleAfter {
			e.estimate.Confidence = ConfidenceStale
			e.invalidCycles = 0
		}
		return e.estimate
	}
	e.invalidCycles = 0

	candidate := e.cfg.Geometry.PercentFromDistance(median(distances))

	// First accepted reading seeds the filter directly.
	if !e.havePrior {
		e.accept(candidate, candidate, at)
		return e.estimate
	}

	delta := abs(candidate - e.estimate.Percentage)

	if delta > e.cfg.MaxDeltaPct {
		e.distrustStreak++
		e.pushWindow(candidate)
		if e.distrustStreak < e.cfg.DistrustLimit {
			// Hold the estimate, flag it, wait for confirmation.
			e.estimate.Confidence = ConfidenceDistrusted
			return e.estimate
		}
		// Sustained jump: the level really moved. Re-seed from the
		// window median instead of freezing forever.
		e.distrustStreak = 0
		fallback := median(e.window)
		e.accept(fallback, fallback, at)
		return e.estimate
	}

	e.distrustStreak = 0
	alpha := e.cfg.SlowAlpha
	if delta >= e.cfg.FastDeltaPct {
		alpha = e.cfg.FastAlpha
	}
	smoothed := e.estimate.Percentage + alpha*(candidate-e.estimate.Percentage)
	e.accept(smoothed, candidate, at)
	return e.estimate
}

// accept commits a new estimate value and records the raw candidate in the
// rolling window.
func (e *Engine) accept(value, candidate float64, at time.Time) {
	value = clampPercent(value)
	e.estimate = LevelEstimate{
		Percentage:   value,
		VolumeLiters: e.cfg.Geometry.VolumeLitersAt(value),
		Confidence:   ConfidenceGood,
		UpdatedAt:    at,
	}
	e.havePrior = true
	e.pushWindow(candidate)
}

func (e *Engine) pushWindow(level float64) {
	e.window = append(e.window, level)
	if len(e.window) > e.cfg.WindowSize {
		e.window = e.window[1:]
	}
}

// validDistances filters a pulse batch down to plausible distances.
func (e *Engine) validDistances(samples []LevelSample) []float64 {
	var out []float64
	for _, s := range samples {
		if !s.Valid {
			continue
		}
		if !e.cfg.Geometry.DistanceInRange(s.DistanceCM, e.cfg.RangeMarginCM) {
			continue
		}
		out = append(out, s.DistanceCM)
	}
	return out
}

// Estimate returns the current estimate without processing anything.
func (e *Engine) Estimate() LevelEstimate {
	return e.estimate
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
