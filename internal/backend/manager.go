package backend

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/command"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/status"
)

// heartbeatMissLimit is how many consecutive heartbeat failures mark the
// backend unavailable. Unavailability alone never panics; the supervisor
// applies its own, much longer silence threshold.
const heartbeatMissLimit = 3

// ManagerConfig carries the comm cadences and bounds.
type ManagerConfig struct {
	HeartbeatInterval time.Duration
	ReportInterval    time.Duration
	PollInterval      time.Duration
	Timeout           time.Duration // per-call bound
	BackoffCap        time.Duration
}

// Manager runs the periodic backend traffic in its own goroutine so a slow
// or dead backend can never stall the control loop. It is the single
// writer of ConnectionHealth.
type Manager struct {
	client    *Client
	queue     *command.Queue
	tracker   *status.Tracker
	prober    *LinkProber
	telemetry func() Telemetry
	cfg       ManagerConfig
	log       *zap.Logger

	acks   chan command.Result
	events chan motor.Transition

	conn      status.ConnectionHealth
	misses    int
	holdUntil time.Time
	retry     *backoff.ExponentialBackOff
}

// NewManager wires the comm goroutine. telemetry is called at send time so
// every message carries fresh state.
func NewManager(client *Client, queue *command.Queue, tracker *status.Tracker, prober *LinkProber,
	telemetry func() Telemetry, cfg ManagerConfig, log *zap.Logger) *Manager {

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = cfg.BackoffCap

	return &Manager{
		client:    client,
		queue:     queue,
		tracker:   tracker,
		prober:    prober,
		telemetry: telemetry,
		cfg:       cfg,
		log:       log,
		acks:      make(chan command.Result, 64),
		events:    make(chan motor.Transition, 64),
		retry:     retry,
	}
}

// EnqueueAck hands a command outcome to the manager without blocking the
// control loop. A full buffer drops the ack; the backend re-delivers the
// command and the duplicate path acknowledges it then.
func (m *Manager) EnqueueAck(res command.Result) bool {
	select {
	case m.acks <- res:
		return true
	default:
		return false
	}
}

// EnqueueTransition hands a motor transition to the manager for a
// best-effort motor-status report. Never blocks.
func (m *Manager) EnqueueTransition(ev motor.Transition) bool {
	select {
	case m.events <- ev:
		return true
	default:
		return false
	}
}

// Run drives the heartbeat, report and poll cadences until the context is
// canceled. Call it in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	report := time.NewTicker(m.cfg.ReportInterval)
	defer report.Stop()
	poll := time.NewTicker(m.cfg.PollInterval)
	defer poll.Stop()

	m.refreshLink(ctx)
	m.heartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			m.refreshLink(ctx)
			m.heartbeat(ctx)
		case <-report.C:
			m.report(ctx)
		case <-poll.C:
			m.poll(ctx)
		case res := <-m.acks:
			m.ack(ctx, res)
		case ev := <-m.events:
			m.motorStatus(ctx, ev)
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context) {
	if m.holding() {
		// The beacon did not go out, so it counts as a miss.
		m.missHeartbeat()
		return
	}
	if err := m.call(ctx, "heartbeat", func(cctx context.Context) error {
		return m.client.Heartbeat(cctx, m.telemetry())
	}); err != nil {
		m.missHeartbeat()
	}
}

func (m *Manager) report(ctx context.Context) {
	if m.holding() {
		return
	}
	m.call(ctx, "sensor-data", func(cctx context.Context) error {
		return m.client.ReportSensorData(cctx, m.telemetry())
	})
}

func (m *Manager) poll(ctx context.Context) {
	if m.holding() {
		return
	}
	var cmds []command.Command
	err := m.call(ctx, "commands", func(cctx context.Context) error {
		var err error
		cmds, err = m.client.FetchCommands(cctx)
		return err
	})
	if err != nil {
		return
	}
	now := time.Now()
	for _, cmd := range cmds {
		if m.queue.Enqueue(cmd, now) {
			m.log.Info("command queued",
				zap.String("id", cmd.ID), zap.String("kind", string(cmd.Kind)))
			continue
		}
		// Already seen this boot: acknowledge without a second transition.
		m.ack(ctx, command.Result{Command: cmd, Status: command.StatusDuplicate})
	}
}

func (m *Manager) ack(ctx context.Context, res command.Result) {
	if m.holding() {
		m.log.Debug("ack dropped during backoff", zap.String("id", res.Command.ID))
		return
	}
	m.call(ctx, "ack", func(cctx context.Context) error {
		return m.client.AckCommand(cctx, res)
	})
}

func (m *Manager) motorStatus(ctx context.Context, ev motor.Transition) {
	if m.holding() {
		return
	}
	m.call(ctx, "motor-status", func(cctx context.Context) error {
		return m.client.ReportMotorStatus(cctx, ev, m.telemetry())
	})
}

// call runs one bounded backend operation and keeps the availability
// bookkeeping for all endpoints.
func (m *Manager) call(ctx context.Context, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	err := fn(cctx)
	if err == nil {
		m.success()
		return nil
	}
	switch kindOf(err) {
	case KindNetwork:
		m.armBackoff()
		m.log.Warn("backend unreachable", zap.String("op", op), zap.Error(err))
	case KindAuth:
		// Never retried within a cycle; a retry cannot fix credentials.
		m.log.Error("backend rejected credentials", zap.String("op", op), zap.Error(err))
	default:
		m.log.Warn("backend rejected request", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (m *Manager) success() {
	m.misses = 0
	m.holdUntil = time.Time{}
	m.retry.Reset()
	m.conn.BackendAvailable = true
	m.conn.EverAvailable = true
	m.conn.HeartbeatMisses = 0
	m.conn.LastOK = time.Now()
	m.publish()
}

func (m *Manager) missHeartbeat() {
	m.misses++
	m.conn.HeartbeatMisses = m.misses
	if m.misses >= heartbeatMissLimit && m.conn.BackendAvailable {
		m.conn.BackendAvailable = false
		m.log.Warn("backend marked unavailable",
			zap.Int("misses", m.misses), zap.Time("last_ok", m.conn.LastOK))
	}
	m.publish()
}

func (m *Manager) armBackoff() {
	d := m.retry.NextBackOff()
	if m.cfg.BackoffCap > 0 && d > m.cfg.BackoffCap {
		d = m.cfg.BackoffCap
	}
	m.holdUntil = time.Now().Add(d)
}

func (m *Manager) holding() bool {
	return time.Now().Before(m.holdUntil)
}

func (m *Manager) refreshLink(ctx context.Context) {
	link := m.prober.Probe(ctx)
	m.conn.WifiUp = link.Up
	m.conn.IP = link.IP
	m.conn.SSID = link.SSID
	m.conn.SignalDBm = link.SignalDBm
	m.publish()
}

func (m *Manager) publish() {
	m.tracker.SetConnection(m.conn)
}
