// Package peer implements the controller-to-controller coordination path.
// The top-tank device watches its own level and commands the sump-tank pump
// directly over the LAN, so refilling keeps working while the backend is
// down. The sump side of the exchange is the web server's /motor handler.
package peer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/backend"
	"github.com/chandud1124/aquaguard/internal/status"
)

// Intent is what the top tank wants the sump pump to do right now.
type Intent string

const (
	IntentNone  Intent = ""
	IntentStart Intent = "start"
	IntentStop  Intent = "stop"
)

// Config bounds the coordination cadence and the level band.
type Config struct {
	Interval   time.Duration
	StartBelow float64 // ask for water at or below this level
	StopAbove  float64 // ask to stop at or above this level
}

// Derive maps the top tank's own level onto a pump intent. Between the two
// thresholds nothing is requested and the sump's own logic is in charge. An
// untrusted level never commands the peer.
func (c Config) Derive(levelPct float64, trusted bool) Intent {
	if !trusted {
		return IntentNone
	}
	switch {
	case levelPct <= c.StartBelow:
		return IntentStart
	case levelPct >= c.StopAbove:
		return IntentStop
	}
	return IntentNone
}

// Coordinator runs the top-role coordination loop in its own goroutine.
// Each interval it either sends the current intent or probes the peer for
// liveness, and records reachability on the status tracker. A dead peer
// arms a backoff hold and nothing more; the control loop never waits on it.
type Coordinator struct {
	client  *Client
	cfg     Config
	level   func() (pct float64, trusted bool)
	tracker *status.Tracker
	log     *zap.Logger

	holdUntil time.Time
	retry     *backoff.ExponentialBackOff
}

// NewCoordinator wires the peer loop. level is read at send time so every
// request carries the current estimate.
func NewCoordinator(client *Client, cfg Config, level func() (float64, bool),
	tracker *status.Tracker, log *zap.Logger) *Coordinator {

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 2 * time.Second
	retry.MaxInterval = 30 * time.Second

	return &Coordinator{
		client:  client,
		cfg:     cfg,
		level:   level,
		tracker: tracker,
		log:     log,
		retry:   retry,
	}
}

// Run drives the coordination cadence until the context is canceled. Call
// it in its own goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	if time.Now().Before(c.holdUntil) {
		return
	}
	pct, trusted := c.level()
	intent := c.cfg.Derive(pct, trusted)

	var err error
	if intent == IntentNone {
		// Nothing to request; keep the liveness view fresh instead.
		_, err = c.client.Status(ctx)
	} else {
		err = c.client.SendMotor(ctx, string(intent), pct)
	}

	if err != nil {
		if backend.IsNetwork(err) {
			c.tracker.SetPeerAvailable(false)
			c.holdUntil = time.Now().Add(c.retry.NextBackOff())
			c.log.Warn("peer unreachable", zap.Error(err))
			return
		}
		// The peer answered, so it is alive even though it refused.
		c.tracker.SetPeerAvailable(true)
		c.log.Warn("peer refused request", zap.Error(err))
		return
	}

	c.retry.Reset()
	c.holdUntil = time.Time{}
	c.tracker.SetPeerAvailable(true)
	if intent != IntentNone {
		c.log.Info("peer command sent",
			zap.String("command", string(intent)), zap.Float64("level", pct))
	}
}
