package peer

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

	"github.com/chandud1124/aquaguard/internal/backend"
)

const (
	pathMotor  = "/motor"
	pathStatus = "/status.json"
)

// motorRequest is the wire body for POST /motor.
type motorRequest struct {
	Command         string  `json:"command"`
	DeviceID        string  `json:"device_id"`
	LevelPercentage float64 `json:"level_percentage"`
}

// Status is the slice of the peer's status page the coordinator cares
// about.
type Status struct {
	LevelPercentage float64
	MotorRunning    bool
	Panic           bool
}

// statusEnvelope mirrors just enough of the peer's /status.json.
type statusEnvelope struct {
	Status struct {
		Tank struct {
			LevelPercentage float64 `json:"level_percentage"`
		} `json:"tank"`
		Motor struct {
			Running bool `json:"running"`
		} `json:"motor"`
		Panic struct {
			Active bool `json:"active"`
		} `json:"panic"`
	} `json:"status"`
}

// Client talks to the sibling controller's local HTTP endpoint. Commands
// carry the same signed-header scheme as the backend, keyed with the
// shared peer secret; failures come back as tagged backend.APIError values
// so the coordinator can tell a dead peer from a refusing one.
type Client struct {
	base     string
	deviceID string
	secret   string
	http     *http.Client
	now      func() time.Time
}

// NewClient builds a client for the peer controller's base URL.
func NewClient(baseURL, deviceID, secret string, timeout time.Duration) (*Client, error) {
	if baseURL == "" || deviceID == "" {
		return nil, fmt.Errorf("peer client needs a base URL and a device id")
	}
	return &Client{
		base:     strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		secret:   secret,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}, nil
}

// SendMotor posts a start or stop request carrying this device's level.
func (c *Client) SendMotor(ctx context.Context, command string, levelPct float64) error {
	body, err := json.Marshal(motorRequest{
		Command:         command,
		DeviceID:        c.deviceID,
		LevelPercentage: levelPct,
	})
	if err != nil {
		return fmt.Errorf("encoding motor request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+pathMotor, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building motor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set(backend.HeaderDeviceID, c.deviceID)
	req.Header.Set(backend.HeaderTimestamp, ts)
	req.Header.Set(backend.HeaderSignature, backend.Sign(c.secret, c.deviceID, body, ts))

	resp, err := c.http.Do(req)
	if err != nil {
		return &backend.APIError{Kind: backend.KindNetwork, Op: pathMotor, Err: err}
	}
	defer drain(resp)
	return classify(resp, pathMotor)
}

// Status fetches the peer's level and motor state. It doubles as the
// liveness probe when there is no intent to send.
func (c *Client) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+pathStatus, nil)
	if err != nil {
		return Status{}, fmt.Errorf("building status request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, &backend.APIError{Kind: backend.KindNetwork, Op: pathStatus, Err: err}
	}
	defer drain(resp)
	if err := classify(resp, pathStatus); err != nil {
		return Status{}, err
	}

	var env statusEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return Status{}, &backend.APIError{Kind: backend.KindRejected, Op: pathStatus, Err: fmt.Errorf("decoding status: %w", err)}
	}
	return Status{
		LevelPercentage: env.Status.Tank.LevelPercentage,
		MotorRunning:    env.Status.Motor.Running,
		Panic:           env.Status.Panic.Active,
	}, nil
}

func classify(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &backend.APIError{Kind: backend.KindAuth, Op: op, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &backend.APIError{Kind: backend.KindRejected, Op: op, StatusCode: resp.StatusCode}
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
