// Package backend implements the authenticated HTTP protocol to the remote
// service: telemetry writes, heartbeat, command retrieval and
// acknowledgment, and the comm manager goroutine that schedules them.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chandud1124/aquaguard/internal/command"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/status"
)

// ProtocolVersion is carried in every payload so the backend can reject
// messages from incompatible firmware.
const ProtocolVersion = 1

const (
	pathHeartbeat        = "/heartbeat"
	pathSensorData       = "/sensor-data"
	pathCommands         = "/commands/"
	pathPanic            = "/panic"
	pathScheduledRestart = "/scheduled-restart"
	pathMotorStatus      = "/motor-status"
)

// Telemetry is the field set shared by every write endpoint.
type Telemetry struct {
	ProtocolVersion int     `json:"protocol_version"`
	DeviceID        string  `json:"device_id"`
	LevelPercentage float64 `json:"level_percentage"`
	VolumeLiters    float64 `json:"volume_liters"`
	Confidence      string  `json:"confidence"`
	MotorRunning    bool    `json:"motor_running"`
	AutoMode        bool    `json:"auto_mode"`
	Panic           bool    `json:"panic"`
	WifiSignalDBm   int     `json:"wifi_signal_dbm"`
	FreeMemoryKB    uint64  `json:"free_memory_kb"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Timestamp       string  `json:"timestamp"`
}

// NewTelemetry assembles the write fields from a status snapshot.
func NewTelemetry(snap status.Snapshot, freeMemoryKB uint64) Telemetry {
	return Telemetry{
		ProtocolVersion: ProtocolVersion,
		DeviceID:        snap.DeviceID,
		LevelPercentage: snap.Level.Percentage,
		VolumeLiters:    snap.Level.VolumeLiters,
		Confidence:      string(snap.Level.Confidence),
		MotorRunning:    snap.Motor.Running,
		AutoMode:        snap.Motor.Mode == motor.ModeAuto,
		Panic:           snap.Panic.Active,
		WifiSignalDBm:   snap.Conn.SignalDBm,
		FreeMemoryKB:    freeMemoryKB,
		UptimeSeconds:   int64(snap.Uptime().Truncate(time.Second).Seconds()),
		Timestamp:       snap.Now.UTC().Format(time.RFC3339),
	}
}

type ackPayload struct {
	ProtocolVersion int    `json:"protocol_version"`
	DeviceID        string `json:"device_id"`
	CommandID       string `json:"command_id"`
	Status          string `json:"status"`
	Detail          string `json:"detail,omitempty"`
	Timestamp       string `json:"timestamp"`
}

type panicPayload struct {
	Telemetry
	Reason string `json:"reason"`
}

type restartPayload struct {
	Telemetry
	Event string `json:"event"`
}

type motorStatusPayload struct {
	Telemetry
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
	At     string `json:"at"`
	Error  string `json:"error,omitempty"`
}

type wireCommand struct {
	ID       string `json:"id"`
	Command  string `json:"command"`
	Mode     string `json:"mode,omitempty"`
	IssuedAt string `json:"issued_at,omitempty"`
}

type commandsResponse struct {
	Commands []wireCommand `json:"commands"`
}

// Client speaks the signed JSON protocol. Every call is bounded by the
// configured timeout and classified on failure as Network, Auth or
// Rejected.
type Client struct {
	base     string
	deviceID string
	apiKey   string
	secret   string
	http     *http.Client
	now      func() time.Time
}

// NewClient builds a client for the given backend base URL.
func NewClient(baseURL, deviceID, apiKey, secret string, timeout time.Duration) (*Client, error) {
	if baseURL == "" || deviceID == "" {
		return nil, fmt.Errorf("backend client needs a base URL and a device id")
	}
	return &Client{
		base:     strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		apiKey:   apiKey,
		secret:   secret,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}, nil
}

// Heartbeat posts a liveness beacon with the full telemetry field set.
func (c *Client) Heartbeat(ctx context.Context, t Telemetry) error {
	return c.post(ctx, pathHeartbeat, t)
}

// ReportSensorData posts a level report.
func (c *Client) ReportSensorData(ctx context.Context, t Telemetry) error {
	return c.post(ctx, pathSensorData, t)
}

// FetchCommands asks the backend for pending commands addressed to this
// device.
func (c *Client) FetchCommands(ctx context.Context) ([]command.Command, error) {
	var out commandsResponse
	if err := c.get(ctx, pathCommands+c.deviceID, &out); err != nil {
		return nil, err
	}
	cmds := make([]command.Command, 0, len(out.Commands))
	for _, w := range out.Commands {
		cmd := command.Command{
			ID:     w.ID,
			Kind:   command.Kind(w.Command),
			Mode:   w.Mode,
			Source: command.SourceBackend,
		}
		if at, err := time.Parse(time.RFC3339, w.IssuedAt); err == nil {
			cmd.IssuedAt = at
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// AckCommand reports the outcome of one command by id.
func (c *Client) AckCommand(ctx context.Context, res command.Result) error {
	payload := ackPayload{
		ProtocolVersion: ProtocolVersion,
		DeviceID:        c.deviceID,
		CommandID:       res.Command.ID,
		Status:          string(res.Status),
		Detail:          res.Detail,
		Timestamp:       c.now().UTC().Format(time.RFC3339),
	}
	return c.post(ctx, pathCommands+res.Command.ID+"/ack", payload)
}

// ReportPanic posts the panic reason before the supervisor restarts the
// device. Best effort; the caller bounds it with a grace deadline.
func (c *Client) ReportPanic(ctx context.Context, reason string, t Telemetry) error {
	return c.post(ctx, pathPanic, panicPayload{Telemetry: t, Reason: reason})
}

// ReportScheduledRestart announces the daily maintenance restart.
func (c *Client) ReportScheduledRestart(ctx context.Context, t Telemetry) error {
	return c.post(ctx, pathScheduledRestart, restartPayload{Telemetry: t, Event: "scheduled_restart"})
}

// ReportMotorStatus posts one motor transition.
func (c *Client) ReportMotorStatus(ctx context.Context, ev motor.Transition, t Telemetry) error {
	payload := motorStatusPayload{
		Telemetry: t,
		From:      ev.From,
		To:        ev.To,
		Reason:    string(ev.Reason),
		At:        ev.At.UTC().Format(time.RFC3339),
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	return c.post(ctx, pathMotorStatus, payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, body)
	return c.do(req, path, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	c.sign(req, nil)
	return c.do(req, path, out)
}

// sign stamps the authentication headers. An empty body (GET) signs
// device_id and timestamp alone.
func (c *Client) sign(req *http.Request, body []byte) {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set(HeaderDeviceID, c.deviceID)
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, Sign(c.secret, c.deviceID, body, ts))
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Op: path, Err: err}
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &APIError{Kind: KindAuth, Op: path, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{Kind: KindRejected, Op: path, StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return &APIError{Kind: KindRejected, Op: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// drain empties the body so the transport can reuse the connection.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
