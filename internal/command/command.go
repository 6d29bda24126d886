// Package command queues remote motor commands and applies them to the
// controller. Every command is deduplicated by id, expired after its TTL
// without being applied, and acknowledged with an explicit status.
package command

import (
	"fmt"
	"sync"
	"time"

	"github.com/chandud1124/aquaguard/internal/motor"
)

// Kind is the remote command verb.
type Kind string

const (
	KindStart          Kind = "start"
	KindStop           Kind = "stop"
	KindEmergencyStop  Kind = "emergency_stop"
	KindEmergencyReset Kind = "emergency_reset"
	KindSetMode        Kind = "set_mode"
)

// Source tells the dispatcher which interlock reason to report.
type Source string

const (
	SourceBackend Source = "backend"
	SourcePeer    Source = "peer"
)

// Command is one queued instruction. Peer commands get a generated id at
// the HTTP boundary; backend commands carry the id they were issued with.
type Command struct {
	ID       string
	Kind     Kind
	Mode     string // set_mode parameter: "auto" or "manual"
	Source   Source
	LevelPct float64 // issuing peer's own level, informational
	IssuedAt time.Time
}

// Status is the acknowledgment outcome reported back per command id.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusNoop      Status = "noop"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusDuplicate Status = "duplicate"
	StatusInvalid   Status = "invalid"
)

// Result pairs a drained command with its outcome.
type Result struct {
	Command Command
	Status  Status
	Detail  string
}

// Queue holds commands between retrieval and the control loop iteration
// that applies them. Safe for use from the HTTP handlers and the comm
// goroutine concurrently with the loop.
type Queue struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending []Command
	seen    map[string]time.Time
}

// NewQueue returns an empty queue. Commands older than ttl at drain time
// are expired instead of applied.
func NewQueue(ttl time.Duration) *Queue {
	return &Queue{ttl: ttl, seen: make(map[string]time.Time)}
}

// Enqueue adds a command unless its id was already seen this boot.
// Re-delivered ids are reported false so the caller can acknowledge them
// as duplicates without a second state transition.
func (q *Queue) Enqueue(cmd Command, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.seen[cmd.ID]; dup {
		return false
	}
	q.seen[cmd.ID] = now
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = now
	}
	q.pending = append(q.pending, cmd)
	return true
}

// Drain removes all pending commands, splitting them into ones to apply
// and ones whose TTL has lapsed. Expired commands must be acknowledged but
// never applied, so a long-offline device cannot replay stale motor
// commands on reconnect.
func (q *Queue) Drain(now time.Time) (apply, expired []Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, cmd := range q.pending {
		if now.Sub(cmd.IssuedAt) > q.ttl {
			expired = append(expired, cmd)
			continue
		}
		apply = append(apply, cmd)
	}
	q.pending = nil

	// The dedup horizon only needs to outlive the TTL.
	for id, first := range q.seen {
		if now.Sub(first) > 2*q.ttl {
			delete(q.seen, id)
		}
	}
	return apply, expired
}

// Len reports how many commands are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Controller is the slice of the motor controller the dispatcher needs.
type Controller interface {
	Start(cond motor.Conditions, reason motor.Reason, at time.Time) (*motor.Transition, error)
	Stop(reason motor.Reason, at time.Time) (*motor.Transition, error)
	EmergencyStop(at time.Time) (*motor.Transition, error)
	EmergencyReset(at time.Time) (*motor.Transition, error)
	SetMode(mode motor.Mode, at time.Time) (*motor.Transition, error)
}

// Apply executes one command against the controller and reports the
// outcome plus any transitions for telemetry. Interlock refusals come back
// as rejections, not errors; the loop acknowledges and moves on.
func Apply(ctrl Controller, cmd Command, cond motor.Conditions, at time.Time) (Result, []motor.Transition) {
	reason := motor.ReasonCommand
	if cmd.Source == SourcePeer {
		reason = motor.ReasonPeer
	}

	var (
		ev  *motor.Transition
		err error
	)
	switch cmd.Kind {
	case KindStart:
		ev, err = ctrl.Start(cond, reason, at)
	case KindStop:
		ev, err = ctrl.Stop(reason, at)
	case KindEmergencyStop:
		ev, err = ctrl.EmergencyStop(at)
	case KindEmergencyReset:
		ev, err = ctrl.EmergencyReset(at)
	case KindSetMode:
		mode := motor.Mode(cmd.Mode)
		if mode != motor.ModeAuto && mode != motor.ModeManual {
			return Result{Command: cmd, Status: StatusInvalid, Detail: fmt.Sprintf("unknown mode %q", cmd.Mode)}, nil
		}
		ev, err = ctrl.SetMode(mode, at)
	default:
		return Result{Command: cmd, Status: StatusInvalid, Detail: fmt.Sprintf("unknown command %q", cmd.Kind)}, nil
	}

	var transitions []motor.Transition
	if ev != nil {
		transitions = append(transitions, *ev)
	}
	switch {
	case err != nil:
		return Result{Command: cmd, Status: StatusRejected, Detail: err.Error()}, transitions
	case ev == nil:
		return Result{Command: cmd, Status: StatusNoop}, nil
	default:
		return Result{Command: cmd, Status: StatusApplied}, transitions
	}
}
