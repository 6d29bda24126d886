package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	DeviceID      string     `json:"device_id"`
	Role          string     `json:"role"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Tank          TankJSON   `json:"tank"`
	Motor         MotorJSON  `json:"motor"`
	Inputs        InputsJSON `json:"inputs"`
	Panic         PanicJSON  `json:"panic"`
	Connection    ConnJSON   `json:"connection"`
	MQTT          MQTTStatus `json:"mqtt"`
	Commands      int        `json:"commands_pending"`
	Config        ConfigJSON `json:"config"`
}

// TankJSON is the JSON representation of the level estimate.
type TankJSON struct {
	LevelPercentage float64 `json:"level_percentage"`
	VolumeLiters    float64 `json:"volume_liters"`
	Confidence      string  `json:"confidence"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// MotorJSON is the JSON representation of the motor state.
type MotorJSON struct {
	Running      bool   `json:"running"`
	Mode         string `json:"mode"`
	State        string `json:"state"`
	Since        string `json:"since,omitempty"`
	LastStop     string `json:"last_stop,omitempty"`
	Emergency    bool   `json:"emergency"`
	RuntimeTrips int    `json:"runtime_trips"`
}

// InputsJSON is the JSON representation of the debounced panel inputs.
type InputsJSON struct {
	FloatPresent bool `json:"float_present"`
	MotorSwitch  bool `json:"motor_switch"`
	ModeSwitch   bool `json:"mode_switch"`
}

// PanicJSON is the JSON representation of the panic latch.
type PanicJSON struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
	Since  string `json:"since,omitempty"`
}

// ConnJSON is the JSON representation of connection health.
type ConnJSON struct {
	WifiUp           bool   `json:"wifi_up"`
	IP               string `json:"ip,omitempty"`
	SSID             string `json:"ssid,omitempty"`
	SignalDBm        int    `json:"signal_dbm"`
	BackendAvailable bool   `json:"backend_available"`
	HeartbeatMisses  int    `json:"heartbeat_misses"`
	LastOK           string `json:"last_ok,omitempty"`
	PeerAvailable    bool   `json:"peer_available"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	Role         string  `json:"role"`
	LoopMs       int64   `json:"loop_ms"`
	ReadSeconds  int64   `json:"read_seconds"`
	HeartbeatSec int64   `json:"heartbeat_seconds"`
	AutoStartPct float64 `json:"auto_start_percent"`
	AutoStopPct  float64 `json:"auto_stop_percent"`
	BackendURL   string  `json:"backend_url,omitempty"`
	PeerURL      string  `json:"peer_url,omitempty"`
	HTTPAddr     string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	confidence := string(snap.Level.Confidence)
	if confidence == "" {
		confidence = "stale"
	}

	inner := StatusInner{
		DeviceID:      snap.DeviceID,
		Role:          snap.Config.Role,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Tank: TankJSON{
			LevelPercentage: snap.Level.Percentage,
			VolumeLiters:    snap.Level.VolumeLiters,
			Confidence:      confidence,
		},
		Motor: MotorJSON{
			Running:      snap.Motor.Running,
			Mode:         string(snap.Motor.Mode),
			State:        snap.Motor.Label(),
			Emergency:    snap.Motor.Emergency,
			RuntimeTrips: snap.MotorTrips,
		},
		Inputs: InputsJSON{
			FloatPresent: snap.Inputs.FloatPresent,
			MotorSwitch:  snap.Inputs.MotorSwitch,
			ModeSwitch:   snap.Inputs.ModeSwitch,
		},
		Panic: PanicJSON{
			Active: snap.Panic.Active,
			Reason: snap.Panic.Reason,
		},
		Connection: ConnJSON{
			WifiUp:           snap.Conn.WifiUp,
			IP:               snap.Conn.IP,
			SSID:             snap.Conn.SSID,
			SignalDBm:        snap.Conn.SignalDBm,
			BackendAvailable: snap.Conn.BackendAvailable,
			HeartbeatMisses:  snap.Conn.HeartbeatMisses,
			PeerAvailable:    snap.PeerAvailable,
		},
		MQTT:     MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Commands: snap.CommandsPending,
		Config: ConfigJSON{
			Role:         snap.Config.Role,
			LoopMs:       snap.Config.LoopMs,
			ReadSeconds:  snap.Config.ReadSeconds,
			HeartbeatSec: snap.Config.HeartbeatSec,
			AutoStartPct: snap.Config.AutoStartPct,
			AutoStopPct:  snap.Config.AutoStopPct,
			BackendURL:   snap.Config.BackendURL,
			PeerURL:      snap.Config.PeerURL,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}

	if !snap.Level.UpdatedAt.IsZero() {
		inner.Tank.UpdatedAt = snap.Level.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if !snap.Motor.Since.IsZero() {
		inner.Motor.Since = snap.Motor.Since.UTC().Format(time.RFC3339)
	}
	if !snap.Motor.LastStop.IsZero() {
		inner.Motor.LastStop = snap.Motor.LastStop.UTC().Format(time.RFC3339)
	}
	if !snap.Panic.Since.IsZero() {
		inner.Panic.Since = snap.Panic.Since.UTC().Format(time.RFC3339)
	}
	if !snap.Conn.LastOK.IsZero() {
		inner.Connection.LastOK = snap.Conn.LastOK.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
