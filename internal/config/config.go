// Package config loads and validates the daemon configuration from a YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
)

// Roles a controller can run as. The sump controller owns the pump relay;
// the top controller only measures and issues peer commands.
const (
	RoleSump = "sump"
	RoleTop  = "top"
)

// Config holds all configuration for the aquaguard daemon.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Tank       TankConfig       `yaml:"tank"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Motor      MotorConfig      `yaml:"motor"`
	Backend    BackendConfig    `yaml:"backend"`
	Peer       PeerConfig       `yaml:"peer"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Pins       PinConfig        `yaml:"pins"`
	Web        WebConfig        `yaml:"web"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig identifies this controller.
type DeviceConfig struct {
	ID                   string `yaml:"id" env:"DEVICE_ID" env-required:"true"`
	Role                 string `yaml:"role" env:"DEVICE_ROLE" env-default:"sump"`
	LoopIntervalMillis   int    `yaml:"loopIntervalMillis" env:"LOOP_INTERVAL_MILLIS" env-default:"100"`
	SwitchDebounceMillis int    `yaml:"switchDebounceMillis" env:"SWITCH_DEBOUNCE_MILLIS" env-default:"200"`
}

// TankConfig describes the tank geometry and the display thresholds.
// Dimensions are centimeters.
type TankConfig struct {
	Shape                string  `yaml:"shape" env:"TANK_SHAPE" env-default:"rectangular"`
	HeightCM             float64 `yaml:"heightCm" env:"TANK_HEIGHT_CM" env-default:"250"`
	LengthCM             float64 `yaml:"lengthCm" env:"TANK_LENGTH_CM" env-default:"230"`
	BreadthCM            float64 `yaml:"breadthCm" env:"TANK_BREADTH_CM" env-default:"230"`
	DiameterCM           float64 `yaml:"diameterCm" env:"TANK_DIAMETER_CM" env-default:"0"`
	SensorOffsetCM       float64 `yaml:"sensorOffsetCm" env:"SENSOR_OFFSET_CM" env-default:"0"`
	FullAbovePercent     float64 `yaml:"fullAbovePercent" env:"TANK_FULL_ABOVE_PERCENT" env-default:"90"`
	LowBelowPercent      float64 `yaml:"lowBelowPercent" env:"TANK_LOW_BELOW_PERCENT" env-default:"15"`
	CriticalBelowPercent float64 `yaml:"criticalBelowPercent" env:"TANK_CRITICAL_BELOW_PERCENT" env-default:"5"`
}

// SensorConfig tunes the ultrasonic acquisition and filtering pipeline.
type SensorConfig struct {
	ReadIntervalSeconds int     `yaml:"readIntervalSeconds" env:"SENSOR_READ_INTERVAL_SECONDS" env-default:"2"`
	PulsesPerCycle      int     `yaml:"pulsesPerCycle" env:"SENSOR_PULSES_PER_CYCLE" env-default:"5"`
	PulseGapMillis      int     `yaml:"pulseGapMillis" env:"SENSOR_PULSE_GAP_MILLIS" env-default:"30"`
	EchoTimeoutMillis   int     `yaml:"echoTimeoutMillis" env:"SENSOR_ECHO_TIMEOUT_MILLIS" env-default:"30"`
	RangeMarginCM       float64 `yaml:"rangeMarginCm" env:"SENSOR_RANGE_MARGIN_CM" env-default:"10"`
	MaxDeltaPercent     float64 `yaml:"maxDeltaPercent" env:"SENSOR_MAX_DELTA_PERCENT" env-default:"20"`
	FastDeltaPercent    float64 `yaml:"fastDeltaPercent" env:"SENSOR_FAST_DELTA_PERCENT" env-default:"10"`
	SlowAlpha           float64 `yaml:"slowAlpha" env:"SENSOR_SLOW_ALPHA" env-default:"0.3"`
	FastAlpha           float64 `yaml:"fastAlpha" env:"SENSOR_FAST_ALPHA" env-default:"0.7"`
	DistrustLimit       int     `yaml:"distrustLimit" env:"SENSOR_DISTRUST_LIMIT" env-default:"3"`
	WindowSize          int     `yaml:"windowSize" env:"SENSOR_WINDOW_SIZE" env-default:"7"`
	StaleAfterCycles    int     `yaml:"staleAfterCycles" env:"SENSOR_STALE_AFTER_CYCLES" env-default:"10"`
}

// MotorConfig tunes the pump state machine. Only used when the device role
// is sump. Bool fields default to false so an explicit YAML false is not
// clobbered by cleanenv's default handling.
type MotorConfig struct {
	MaxRuntimeMinutes int     `yaml:"maxRuntimeMinutes" env:"MOTOR_MAX_RUNTIME_MINUTES" env-default:"30"`
	CooldownMinutes   int     `yaml:"cooldownMinutes" env:"MOTOR_COOLDOWN_MINUTES" env-default:"5"`
	AutoStartPercent  float64 `yaml:"autoStartPercent" env:"MOTOR_AUTO_START_PERCENT" env-default:"75"`
	AutoStopPercent   float64 `yaml:"autoStopPercent" env:"MOTOR_AUTO_STOP_PERCENT" env-default:"90"`
	RelayActiveLow    bool    `yaml:"relayActiveLow" env:"MOTOR_RELAY_ACTIVE_LOW" env-default:"false"`
}

// BackendConfig describes the remote service connection. Disabled unless
// explicitly turned on.
type BackendConfig struct {
	Enabled              bool   `yaml:"enabled" env:"BACKEND_ENABLED" env-default:"false"`
	BaseURL              string `yaml:"baseUrl" env:"BACKEND_URL"`
	APIKey               string `yaml:"apiKey" env:"DEVICE_API_KEY"`
	HMACSecret           string `yaml:"hmacSecret" env:"DEVICE_HMAC_SECRET"`
	HeartbeatSeconds     int    `yaml:"heartbeatSeconds" env:"BACKEND_HEARTBEAT_SECONDS" env-default:"30"`
	ReportSeconds        int    `yaml:"reportSeconds" env:"BACKEND_REPORT_SECONDS" env-default:"30"`
	PollSeconds          int    `yaml:"pollSeconds" env:"BACKEND_POLL_SECONDS" env-default:"15"`
	TimeoutSeconds       int    `yaml:"timeoutSeconds" env:"BACKEND_TIMEOUT_SECONDS" env-default:"10"`
	CommandTTLMinutes    int    `yaml:"commandTtlMinutes" env:"COMMAND_TTL_MINUTES" env-default:"60"`
	LinkProbeAttempts    int    `yaml:"linkProbeAttempts" env:"LINK_PROBE_ATTEMPTS" env-default:"3"`
	WirelessInterface    string `yaml:"wirelessInterface" env:"WIRELESS_INTERFACE" env-default:"wlan0"`
	BackoffCapSeconds    int    `yaml:"backoffCapSeconds" env:"BACKEND_BACKOFF_CAP_SECONDS" env-default:"30"`
	TimestampTolerance   int    `yaml:"timestampToleranceSeconds" env:"TIMESTAMP_TOLERANCE_SECONDS" env-default:"300"`
}

// PeerConfig describes the companion controller link.
type PeerConfig struct {
	Enabled           bool    `yaml:"enabled" env:"PEER_ENABLED" env-default:"false"`
	BaseURL           string  `yaml:"baseUrl" env:"PEER_URL"`
	HMACSecret        string  `yaml:"hmacSecret" env:"PEER_HMAC_SECRET"`
	IntervalSeconds   int     `yaml:"intervalSeconds" env:"PEER_INTERVAL_SECONDS" env-default:"30"`
	StartBelowPercent float64 `yaml:"startBelowPercent" env:"PEER_START_BELOW_PERCENT" env-default:"30"`
	StopAbovePercent  float64 `yaml:"stopAbovePercent" env:"PEER_STOP_ABOVE_PERCENT" env-default:"90"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds" env:"PEER_TIMEOUT_SECONDS" env-default:"5"`
}

// SupervisorConfig tunes panic detection and the maintenance restart.
type SupervisorConfig struct {
	CheckSeconds          int    `yaml:"checkSeconds" env:"SUPERVISOR_CHECK_SECONDS" env-default:"10"`
	BackendSilenceMinutes int    `yaml:"backendSilenceMinutes" env:"BACKEND_SILENCE_MINUTES" env-default:"5"`
	SensorStaleSeconds    int    `yaml:"sensorStaleSeconds" env:"SENSOR_STALE_PANIC_SECONDS" env-default:"120"`
	MemoryFloorMB         int    `yaml:"memoryFloorMb" env:"MEMORY_FLOOR_MB" env-default:"16"`
	MaxRuntimeTripLimit   int    `yaml:"maxRuntimeTripLimit" env:"MAX_RUNTIME_TRIP_LIMIT" env-default:"3"`
	RestartSchedule       string `yaml:"restartSchedule" env:"RESTART_SCHEDULE" env-default:"0 2 * * *"`
	PanicGraceSeconds     int    `yaml:"panicGraceSeconds" env:"PANIC_GRACE_SECONDS" env-default:"5"`
	WatchdogPath          string `yaml:"watchdogPath" env:"WATCHDOG_PATH" env-default:""`
}

// PinConfig assigns GPIO lines (BCM numbering on the default chip).
type PinConfig struct {
	Chip              string `yaml:"chip" env:"GPIO_CHIP" env-default:"gpiochip0"`
	Trigger           int    `yaml:"trigger" env:"PIN_TRIGGER" env-default:"5"`
	Echo              int    `yaml:"echo" env:"PIN_ECHO" env-default:"18"`
	FloatSwitch       int    `yaml:"floatSwitch" env:"PIN_FLOAT_SWITCH" env-default:"4"`
	MotorRelay        int    `yaml:"motorRelay" env:"PIN_MOTOR_RELAY" env-default:"13"`
	Buzzer            int    `yaml:"buzzer" env:"PIN_BUZZER" env-default:"14"`
	AutoModeLED       int    `yaml:"autoModeLed" env:"PIN_AUTO_MODE_LED" env-default:"16"`
	TankFullLED       int    `yaml:"tankFullLed" env:"PIN_TANK_FULL_LED" env-default:"17"`
	TankLowLED        int    `yaml:"tankLowLed" env:"PIN_TANK_LOW_LED" env-default:"21"`
	ManualMotorSwitch int    `yaml:"manualMotorSwitch" env:"PIN_MANUAL_MOTOR_SWITCH" env-default:"25"`
	ModeSwitch        int    `yaml:"modeSwitch" env:"PIN_MODE_SWITCH" env-default:"26"`
}

// WebConfig controls the local status endpoint. Empty address disables it.
type WebConfig struct {
	ListenAddr string `yaml:"listenAddr" env:"WEB_LISTEN_ADDR" env-default:":8080"`
}

// MQTTConfig controls the optional local telemetry mirror.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" env:"MQTT_ENABLED" env-default:"false"`
	Broker      string `yaml:"broker" env:"MQTT_BROKER" env-default:"tcp://127.0.0.1:1883"`
	TopicPrefix string `yaml:"topicPrefix" env:"MQTT_TOPIC_PREFIX" env-default:"aquaguard"`
	BufferSize  int    `yaml:"bufferSize" env:"MQTT_BUFFER_SIZE" env-default:"256"`
}

// Load reads configuration from the given file and applies environment
// variable overrides.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("read config from %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// LoadEnv builds configuration from environment variables alone, for
// deployments without a config file.
func LoadEnv() (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Validate checks all configuration sections.
func (c *Config) Validate() error {
	c.Device.Role = strings.ToLower(c.Device.Role)
	if c.Device.Role != RoleSump && c.Device.Role != RoleTop {
		return fmt.Errorf("device.role must be %q or %q, got %q", RoleSump, RoleTop, c.Device.Role)
	}
	if c.Device.LoopIntervalMillis <= 0 {
		return fmt.Errorf("device.loopIntervalMillis must be positive, got %d", c.Device.LoopIntervalMillis)
	}
	if c.Device.SwitchDebounceMillis <= 0 {
		return fmt.Errorf("device.switchDebounceMillis must be positive, got %d", c.Device.SwitchDebounceMillis)
	}

	if err := c.Tank.validate(); err != nil {
		return err
	}
	if err := c.Sensor.validate(); err != nil {
		return err
	}
	if err := c.Motor.validate(); err != nil {
		return err
	}
	if err := c.Backend.validate(); err != nil {
		return err
	}
	if err := c.Peer.validate(); err != nil {
		return err
	}
	if err := c.Supervisor.validate(); err != nil {
		return err
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must be set when mqtt is enabled")
	}
	if c.MQTT.BufferSize <= 0 {
		return fmt.Errorf("mqtt.bufferSize must be positive, got %d", c.MQTT.BufferSize)
	}

	if err := ValidateLogging(&c.Logging); err != nil {
		return fmt.Errorf("logging validation: %w", err)
	}

	return nil
}

func (t *TankConfig) validate() error {
	t.Shape = strings.ToLower(t.Shape)
	switch t.Shape {
	case "rectangular":
		if t.LengthCM <= 0 || t.BreadthCM <= 0 {
			return fmt.Errorf("rectangular tank needs positive lengthCm and breadthCm, got %gx%g", t.LengthCM, t.BreadthCM)
		}
	case "cylindrical":
		if t.DiameterCM <= 0 {
			return fmt.Errorf("cylindrical tank needs positive diameterCm, got %g", t.DiameterCM)
		}
	default:
		return fmt.Errorf("tank.shape must be 'rectangular' or 'cylindrical', got %q", t.Shape)
	}
	if t.HeightCM <= 0 {
		return fmt.Errorf("tank.heightCm must be positive, got %g", t.HeightCM)
	}
	if t.SensorOffsetCM < 0 {
		return fmt.Errorf("tank.sensorOffsetCm must not be negative, got %g", t.SensorOffsetCM)
	}
	if t.SensorOffsetCM >= t.HeightCM {
		return fmt.Errorf("tank.sensorOffsetCm (%g) must be below heightCm (%g)", t.SensorOffsetCM, t.HeightCM)
	}
	if t.CriticalBelowPercent > t.LowBelowPercent {
		return fmt.Errorf("tank.criticalBelowPercent (%g) must not exceed lowBelowPercent (%g)", t.CriticalBelowPercent, t.LowBelowPercent)
	}
	return nil
}

func (s *SensorConfig) validate() error {
	if s.ReadIntervalSeconds < 2 || s.ReadIntervalSeconds > 30 {
		return fmt.Errorf("sensor.readIntervalSeconds must be between 2 and 30, got %d", s.ReadIntervalSeconds)
	}
	if s.PulsesPerCycle < 1 {
		return fmt.Errorf("sensor.pulsesPerCycle must be at least 1, got %d", s.PulsesPerCycle)
	}
	if s.EchoTimeoutMillis <= 0 {
		return fmt.Errorf("sensor.echoTimeoutMillis must be positive, got %d", s.EchoTimeoutMillis)
	}
	if s.SlowAlpha <= 0 || s.SlowAlpha > 1 || s.FastAlpha <= 0 || s.FastAlpha > 1 {
		return fmt.Errorf("sensor alphas must be in (0,1], got slow=%g fast=%g", s.SlowAlpha, s.FastAlpha)
	}
	if s.FastAlpha < s.SlowAlpha {
		return fmt.Errorf("sensor.fastAlpha (%g) must not be below slowAlpha (%g)", s.FastAlpha, s.SlowAlpha)
	}
	if s.MaxDeltaPercent <= 0 {
		return fmt.Errorf("sensor.maxDeltaPercent must be positive, got %g", s.MaxDeltaPercent)
	}
	if s.DistrustLimit < 1 {
		return fmt.Errorf("sensor.distrustLimit must be at least 1, got %d", s.DistrustLimit)
	}
	if s.WindowSize < 3 {
		return fmt.Errorf("sensor.windowSize must be at least 3, got %d", s.WindowSize)
	}
	if s.StaleAfterCycles < 1 {
		return fmt.Errorf("sensor.staleAfterCycles must be at least 1, got %d", s.StaleAfterCycles)
	}
	return nil
}

func (m *MotorConfig) validate() error {
	if m.MaxRuntimeMinutes <= 0 {
		return fmt.Errorf("motor.maxRuntimeMinutes must be positive, got %d", m.MaxRuntimeMinutes)
	}
	if m.CooldownMinutes < 0 {
		return fmt.Errorf("motor.cooldownMinutes must not be negative, got %d", m.CooldownMinutes)
	}
	if m.AutoStartPercent <= 0 || m.AutoStartPercent > 100 {
		return fmt.Errorf("motor.autoStartPercent must be in (0,100], got %g", m.AutoStartPercent)
	}
	if m.AutoStopPercent <= m.AutoStartPercent || m.AutoStopPercent > 100 {
		return fmt.Errorf("motor.autoStopPercent (%g) must be above autoStartPercent (%g) and at most 100", m.AutoStopPercent, m.AutoStartPercent)
	}
	return nil
}

func (b *BackendConfig) validate() error {
	if b.Enabled {
		if _, err := url.ParseRequestURI(b.BaseURL); err != nil {
			return fmt.Errorf("invalid backend.baseUrl: %w", err)
		}
		if b.APIKey == "" {
			return fmt.Errorf("backend.apiKey must be set when backend is enabled")
		}
		if b.HMACSecret == "" {
			return fmt.Errorf("backend.hmacSecret must be set when backend is enabled")
		}
	}
	if b.HeartbeatSeconds < 30 || b.HeartbeatSeconds > 60 {
		return fmt.Errorf("backend.heartbeatSeconds must be between 30 and 60, got %d", b.HeartbeatSeconds)
	}
	if b.ReportSeconds <= 0 {
		return fmt.Errorf("backend.reportSeconds must be positive, got %d", b.ReportSeconds)
	}
	if b.PollSeconds <= 0 {
		return fmt.Errorf("backend.pollSeconds must be positive, got %d", b.PollSeconds)
	}
	if b.TimeoutSeconds < 5 || b.TimeoutSeconds > 15 {
		return fmt.Errorf("backend.timeoutSeconds must be between 5 and 15, got %d", b.TimeoutSeconds)
	}
	if b.CommandTTLMinutes <= 0 {
		return fmt.Errorf("backend.commandTtlMinutes must be positive, got %d", b.CommandTTLMinutes)
	}
	if b.LinkProbeAttempts < 1 {
		return fmt.Errorf("backend.linkProbeAttempts must be at least 1, got %d", b.LinkProbeAttempts)
	}
	if b.BackoffCapSeconds <= 0 {
		return fmt.Errorf("backend.backoffCapSeconds must be positive, got %d", b.BackoffCapSeconds)
	}
	if b.TimestampTolerance <= 0 {
		return fmt.Errorf("backend.timestampToleranceSeconds must be positive, got %d", b.TimestampTolerance)
	}
	return nil
}

func (p *PeerConfig) validate() error {
	if !p.Enabled {
		return nil
	}
	if _, err := url.ParseRequestURI(p.BaseURL); err != nil {
		return fmt.Errorf("invalid peer.baseUrl: %w", err)
	}
	if p.HMACSecret == "" {
		return fmt.Errorf("peer.hmacSecret must be set when peer is enabled")
	}
	if p.IntervalSeconds <= 0 {
		return fmt.Errorf("peer.intervalSeconds must be positive, got %d", p.IntervalSeconds)
	}
	if p.StartBelowPercent >= p.StopAbovePercent {
		return fmt.Errorf("peer.startBelowPercent (%g) must be below stopAbovePercent (%g)", p.StartBelowPercent, p.StopAbovePercent)
	}
	if p.TimeoutSeconds <= 0 {
		return fmt.Errorf("peer.timeoutSeconds must be positive, got %d", p.TimeoutSeconds)
	}
	return nil
}

func (s *SupervisorConfig) validate() error {
	if s.CheckSeconds <= 0 {
		return fmt.Errorf("supervisor.checkSeconds must be positive, got %d", s.CheckSeconds)
	}
	if s.BackendSilenceMinutes <= 0 {
		return fmt.Errorf("supervisor.backendSilenceMinutes must be positive, got %d", s.BackendSilenceMinutes)
	}
	if s.SensorStaleSeconds <= 0 {
		return fmt.Errorf("supervisor.sensorStaleSeconds must be positive, got %d", s.SensorStaleSeconds)
	}
	if s.MemoryFloorMB < 0 {
		return fmt.Errorf("supervisor.memoryFloorMb must not be negative, got %d", s.MemoryFloorMB)
	}
	if s.MaxRuntimeTripLimit < 1 {
		return fmt.Errorf("supervisor.maxRuntimeTripLimit must be at least 1, got %d", s.MaxRuntimeTripLimit)
	}
	if _, err := cron.ParseStandard(s.RestartSchedule); err != nil {
		return fmt.Errorf("invalid supervisor.restartSchedule %q: %w", s.RestartSchedule, err)
	}
	if s.PanicGraceSeconds < 0 {
		return fmt.Errorf("supervisor.panicGraceSeconds must not be negative, got %d", s.PanicGraceSeconds)
	}
	return nil
}

// Duration accessors. Config values are stored as integer units for clean
// YAML and env parsing.

func (d DeviceConfig) LoopInterval() time.Duration {
	return time.Duration(d.LoopIntervalMillis) * time.Millisecond
}

func (d DeviceConfig) SwitchDebounce() time.Duration {
	return time.Duration(d.SwitchDebounceMillis) * time.Millisecond
}

func (s SensorConfig) ReadInterval() time.Duration {
	return time.Duration(s.ReadIntervalSeconds) * time.Second
}

func (s SensorConfig) PulseGap() time.Duration {
	return time.Duration(s.PulseGapMillis) * time.Millisecond
}

func (s SensorConfig) EchoTimeout() time.Duration {
	return time.Duration(s.EchoTimeoutMillis) * time.Millisecond
}

func (m MotorConfig) MaxRuntime() time.Duration {
	return time.Duration(m.MaxRuntimeMinutes) * time.Minute
}

func (m MotorConfig) Cooldown() time.Duration {
	return time.Duration(m.CooldownMinutes) * time.Minute
}

func (b BackendConfig) HeartbeatInterval() time.Duration {
	return time.Duration(b.HeartbeatSeconds) * time.Second
}

func (b BackendConfig) ReportInterval() time.Duration {
	return time.Duration(b.ReportSeconds) * time.Second
}

func (b BackendConfig) PollInterval() time.Duration {
	return time.Duration(b.PollSeconds) * time.Second
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (b BackendConfig) CommandTTL() time.Duration {
	return time.Duration(b.CommandTTLMinutes) * time.Minute
}

func (b BackendConfig) BackoffCap() time.Duration {
	return time.Duration(b.BackoffCapSeconds) * time.Second
}

func (b BackendConfig) TimestampWindow() time.Duration {
	return time.Duration(b.TimestampTolerance) * time.Second
}

func (p PeerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

func (p PeerConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (s SupervisorConfig) CheckInterval() time.Duration {
	return time.Duration(s.CheckSeconds) * time.Second
}

func (s SupervisorConfig) BackendSilence() time.Duration {
	return time.Duration(s.BackendSilenceMinutes) * time.Minute
}

func (s SupervisorConfig) SensorStaleWindow() time.Duration {
	return time.Duration(s.SensorStaleSeconds) * time.Second
}

func (s SupervisorConfig) PanicGrace() time.Duration {
	return time.Duration(s.PanicGraceSeconds) * time.Second
}

// Redacted returns a copy of the config with secrets masked for logging.
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"device": map[string]interface{}{
			"id":                   c.Device.ID,
			"role":                 c.Device.Role,
			"loopIntervalMillis":   c.Device.LoopIntervalMillis,
			"switchDebounceMillis": c.Device.SwitchDebounceMillis,
		},
		"tank": map[string]interface{}{
			"shape":          c.Tank.Shape,
			"heightCm":       c.Tank.HeightCM,
			"lengthCm":       c.Tank.LengthCM,
			"breadthCm":      c.Tank.BreadthCM,
			"diameterCm":     c.Tank.DiameterCM,
			"sensorOffsetCm": c.Tank.SensorOffsetCM,
		},
		"sensor": map[string]interface{}{
			"readIntervalSeconds": c.Sensor.ReadIntervalSeconds,
			"pulsesPerCycle":      c.Sensor.PulsesPerCycle,
		},
		"motor": map[string]interface{}{
			"maxRuntimeMinutes": c.Motor.MaxRuntimeMinutes,
			"cooldownMinutes":   c.Motor.CooldownMinutes,
			"autoStartPercent":  c.Motor.AutoStartPercent,
			"autoStopPercent":   c.Motor.AutoStopPercent,
			"relayActiveLow":    c.Motor.RelayActiveLow,
		},
		"backend": map[string]interface{}{
			"enabled":          c.Backend.Enabled,
			"baseUrl":          c.Backend.BaseURL,
			"apiKey":           "***",
			"hmacSecret":       "***",
			"heartbeatSeconds": c.Backend.HeartbeatSeconds,
			"pollSeconds":      c.Backend.PollSeconds,
			"timeoutSeconds":   c.Backend.TimeoutSeconds,
		},
		"peer": map[string]interface{}{
			"enabled":    c.Peer.Enabled,
			"baseUrl":    c.Peer.BaseURL,
			"hmacSecret": "***",
		},
		"supervisor": map[string]interface{}{
			"checkSeconds":          c.Supervisor.CheckSeconds,
			"backendSilenceMinutes": c.Supervisor.BackendSilenceMinutes,
			"restartSchedule":       c.Supervisor.RestartSchedule,
			"watchdogPath":          c.Supervisor.WatchdogPath,
		},
		"web": map[string]interface{}{
			"listenAddr": c.Web.ListenAddr,
		},
		"mqtt": map[string]interface{}{
			"enabled":     c.MQTT.Enabled,
			"broker":      c.MQTT.Broker,
			"topicPrefix": c.MQTT.TopicPrefix,
		},
		"logging": map[string]interface{}{
			"logFormat": c.Logging.Format,
			"logLevel":  c.Logging.Level,
		},
	}
}
