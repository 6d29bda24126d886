// Package mqtt mirrors tank and system events to a local broker. The
// mirror is observational only: nothing in the control path reads it.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPrefix is the topic namespace used when none is configured.
const DefaultPrefix = "aquaguard"

// TopicEvents returns the per-device tank event topic.
func TopicEvents(prefix, deviceID string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s/%s/events", prefix, deviceID)
}

// TopicSystem returns the per-device system lifecycle topic.
func TopicSystem(prefix, deviceID string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s/%s/system", prefix, deviceID)
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a tank event to the broker. Failures must never
	// crash the caller.
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is one mirrored occurrence on the events topic: a periodic level
// reading, or a motor transition with its reason.
type Event struct {
	Timestamp  time.Time
	Kind       string // "level" or "motor"
	LevelPct   float64
	Volume     float64
	Confidence string

	// Motor transition details, empty for level events.
	Motor  string // state label after the event
	From   string
	To     string
	Reason string
}

// SystemEvent represents a system lifecycle event such as startup,
// shutdown, heartbeat or panic.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the MQTT message envelope for tank events.
type Payload struct {
	Tank TankPayload `json:"tank"`
}

// TankPayload contains the tank event details.
type TankPayload struct {
	Timestamp  string  `json:"timestamp"`
	Event      string  `json:"event"`
	LevelPct   float64 `json:"level_percentage"`
	Volume     float64 `json:"volume_liters"`
	Confidence string  `json:"confidence,omitempty"`
	Motor      string  `json:"motor,omitempty"`
	From       string  `json:"from,omitempty"`
	To         string  `json:"to,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// FormatPayload creates the JSON payload for a tank event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Tank: TankPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      event.Kind,
			LevelPct:   event.LevelPct,
			Volume:     event.Volume,
			Confidence: event.Confidence,
			Motor:      event.Motor,
			From:       event.From,
			To:         event.To,
			Reason:     event.Reason,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the envelope for simple system events that carry no
// status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event. If
// event.RawPayload is set it is returned directly; the control loop uses
// that for full status snapshots.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
