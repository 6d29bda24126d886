package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a YAML config to a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
device:
  id: sump-controller-1
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Device.ID != "sump-controller-1" {
		t.Errorf("expected device id from yaml, got %q", cfg.Device.ID)
	}
	if cfg.Device.Role != RoleSump {
		t.Errorf("expected default role sump, got %q", cfg.Device.Role)
	}
	if cfg.Tank.HeightCM != 250 {
		t.Errorf("expected default tank height 250, got %g", cfg.Tank.HeightCM)
	}
	if cfg.Sensor.ReadIntervalSeconds != 2 {
		t.Errorf("expected default sensor interval 2s, got %d", cfg.Sensor.ReadIntervalSeconds)
	}
	if cfg.Sensor.PulsesPerCycle != 5 {
		t.Errorf("expected default 5 pulses per cycle, got %d", cfg.Sensor.PulsesPerCycle)
	}
	if cfg.Motor.MaxRuntimeMinutes != 30 {
		t.Errorf("expected default max runtime 30m, got %d", cfg.Motor.MaxRuntimeMinutes)
	}
	if cfg.Motor.CooldownMinutes != 5 {
		t.Errorf("expected default cooldown 5m, got %d", cfg.Motor.CooldownMinutes)
	}
	if cfg.Motor.AutoStartPercent != 75 || cfg.Motor.AutoStopPercent != 90 {
		t.Errorf("expected default auto thresholds 75/90, got %g/%g", cfg.Motor.AutoStartPercent, cfg.Motor.AutoStopPercent)
	}
	if cfg.Supervisor.RestartSchedule != "0 2 * * *" {
		t.Errorf("expected default restart schedule, got %q", cfg.Supervisor.RestartSchedule)
	}
	if cfg.Pins.Echo != 18 || cfg.Pins.Trigger != 5 {
		t.Errorf("expected default trigger/echo pins 5/18, got %d/%d", cfg.Pins.Trigger, cfg.Pins.Echo)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Errorf("expected default logging console/info, got %s/%s", cfg.Logging.Format, cfg.Logging.Level)
	}
	if cfg.Backend.Enabled {
		t.Error("backend should be disabled by default")
	}
	if cfg.Motor.RelayActiveLow {
		t.Error("relay should default to active-high")
	}
}

func TestLoadEnabledBackendNeedsURL(t *testing.T) {
	yaml := minimalYAML + `
backend:
  enabled: true
  apiKey: key
  hmacSecret: secret
`
	_, err := Load(writeConfig(t, yaml))
	if err == nil {
		t.Fatal("expected error for enabled backend without baseUrl")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DEVICE_ROLE", "top")
	t.Setenv("MOTOR_AUTO_START_PERCENT", "60")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Device.Role != RoleTop {
		t.Errorf("expected env override role top, got %q", cfg.Device.Role)
	}
	if cfg.Motor.AutoStartPercent != 60 {
		t.Errorf("expected env override start threshold 60, got %g", cfg.Motor.AutoStartPercent)
	}
}

func TestLoadRejectsInvalidRole(t *testing.T) {
	t.Setenv("DEVICE_ROLE", "basement")

	_, err := Load(writeConfig(t, minimalYAML))
	if err == nil {
		t.Fatal("expected error for invalid role")
	}
	if !strings.Contains(err.Error(), "device.role") {
		t.Errorf("error should mention device.role, got: %v", err)
	}
}

func TestValidateCylinderNeedsDiameter(t *testing.T) {
	cfg := validConfig()
	cfg.Tank.Shape = "cylindrical"
	cfg.Tank.DiameterCM = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for cylindrical tank without diameter")
	}
}

func TestValidateSensorOffsetBelowHeight(t *testing.T) {
	cfg := validConfig()
	cfg.Tank.SensorOffsetCM = 300

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sensor offset above tank height")
	}
}

func TestValidateStopAboveStart(t *testing.T) {
	cfg := validConfig()
	cfg.Motor.AutoStartPercent = 80
	cfg.Motor.AutoStopPercent = 70

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when autoStopPercent is below autoStartPercent")
	}
}

func TestValidateSensorIntervalRange(t *testing.T) {
	cfg := validConfig()
	cfg.Sensor.ReadIntervalSeconds = 1

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sensor interval below 2s")
	}

	cfg.Sensor.ReadIntervalSeconds = 31
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sensor interval above 30s")
	}
}

func TestValidateNetworkTimeoutRange(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.TimeoutSeconds = 20

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for network timeout above 15s")
	}
}

func TestValidateBackendRequiresSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.Enabled = true
	cfg.Backend.BaseURL = "https://backend.example.com"
	cfg.Backend.APIKey = "key"
	cfg.Backend.HMACSecret = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled backend without hmac secret")
	}
}

func TestValidateRestartSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.Supervisor.RestartSchedule = "not a cron expression"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid restart schedule")
	}
}

func TestValidatePeerThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Peer.Enabled = true
	cfg.Peer.BaseURL = "http://192.168.1.51:8080"
	cfg.Peer.HMACSecret = "shared"
	cfg.Peer.StartBelowPercent = 95
	cfg.Peer.StopAbovePercent = 90

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when peer start threshold is above stop threshold")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := validConfig()

	if got := cfg.Sensor.ReadInterval(); got != 2*time.Second {
		t.Errorf("ReadInterval = %v, want 2s", got)
	}
	if got := cfg.Motor.MaxRuntime(); got != 30*time.Minute {
		t.Errorf("MaxRuntime = %v, want 30m", got)
	}
	if got := cfg.Motor.Cooldown(); got != 5*time.Minute {
		t.Errorf("Cooldown = %v, want 5m", got)
	}
	if got := cfg.Backend.HeartbeatInterval(); got != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", got)
	}
	if got := cfg.Supervisor.BackendSilence(); got != 5*time.Minute {
		t.Errorf("BackendSilence = %v, want 5m", got)
	}
	if got := cfg.Device.SwitchDebounce(); got != 200*time.Millisecond {
		t.Errorf("SwitchDebounce = %v, want 200ms", got)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.APIKey = "super-secret-key"
	cfg.Backend.HMACSecret = "super-secret-hmac"
	cfg.Peer.HMACSecret = "peer-secret"

	red := cfg.Redacted()

	backend := red["backend"].(map[string]interface{})
	if backend["apiKey"] != "***" {
		t.Errorf("apiKey not masked: %v", backend["apiKey"])
	}
	if backend["hmacSecret"] != "***" {
		t.Errorf("hmacSecret not masked: %v", backend["hmacSecret"])
	}
	peer := red["peer"].(map[string]interface{})
	if peer["hmacSecret"] != "***" {
		t.Errorf("peer hmacSecret not masked: %v", peer["hmacSecret"])
	}
}

func TestValidateLoggingFormat(t *testing.T) {
	lc := LoggingConfig{Format: "xml", Level: "info"}
	if err := ValidateLogging(&lc); err == nil {
		t.Error("expected error for unknown log format")
	}

	lc = LoggingConfig{Format: "LOGFMT", Level: "INFO"}
	if err := ValidateLogging(&lc); err != nil {
		t.Errorf("expected case-insensitive format/level to pass, got %v", err)
	}
	if lc.Format != "logfmt" || lc.Level != "info" {
		t.Errorf("expected normalized values, got %s/%s", lc.Format, lc.Level)
	}
}

func TestNewLoggerAllFormats(t *testing.T) {
	for _, format := range []string{"console", "json", "logfmt"} {
		lc := LoggingConfig{Format: format, Level: "debug"}
		logger, err := NewLogger(&lc)
		if err != nil {
			t.Errorf("NewLogger(%s): %v", format, err)
			continue
		}
		if logger == nil {
			t.Errorf("NewLogger(%s) returned nil", format)
		}
	}
}

// validConfig builds a config equivalent to loading the minimal YAML with
// all defaults applied.
func validConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:                   "sump-controller-1",
			Role:                 RoleSump,
			LoopIntervalMillis:   100,
			SwitchDebounceMillis: 200,
		},
		Tank: TankConfig{
			Shape:                "rectangular",
			HeightCM:             250,
			LengthCM:             230,
			BreadthCM:            230,
			FullAbovePercent:     90,
			LowBelowPercent:      15,
			CriticalBelowPercent: 5,
		},
		Sensor: SensorConfig{
			ReadIntervalSeconds: 2,
			PulsesPerCycle:      5,
			PulseGapMillis:      30,
			EchoTimeoutMillis:   30,
			RangeMarginCM:       10,
			MaxDeltaPercent:     20,
			FastDeltaPercent:    10,
			SlowAlpha:           0.3,
			FastAlpha:           0.7,
			DistrustLimit:       3,
			WindowSize:          7,
			StaleAfterCycles:    10,
		},
		Motor: MotorConfig{
			MaxRuntimeMinutes: 30,
			CooldownMinutes:   5,
			AutoStartPercent:  75,
			AutoStopPercent:   90,
		},
		Backend: BackendConfig{
			Enabled:            false,
			HeartbeatSeconds:   30,
			ReportSeconds:      30,
			PollSeconds:        15,
			TimeoutSeconds:     10,
			CommandTTLMinutes:  60,
			LinkProbeAttempts:  3,
			WirelessInterface:  "wlan0",
			BackoffCapSeconds:  30,
			TimestampTolerance: 300,
		},
		Peer: PeerConfig{
			IntervalSeconds:   30,
			StartBelowPercent: 30,
			StopAbovePercent:  90,
			TimeoutSeconds:    5,
		},
		Supervisor: SupervisorConfig{
			CheckSeconds:          10,
			BackendSilenceMinutes: 5,
			SensorStaleSeconds:    120,
			MemoryFloorMB:         16,
			MaxRuntimeTripLimit:   3,
			RestartSchedule:       "0 2 * * *",
			PanicGraceSeconds:     5,
		},
		Pins: PinConfig{
			Chip:              "gpiochip0",
			Trigger:           5,
			Echo:              18,
			FloatSwitch:       4,
			MotorRelay:        13,
			Buzzer:            14,
			AutoModeLED:       16,
			TankFullLED:       17,
			TankLowLED:        21,
			ManualMotorSwitch: 25,
			ModeSwitch:        26,
		},
		Web:     WebConfig{ListenAddr: ":8080"},
		MQTT:    MQTTConfig{Broker: "tcp://127.0.0.1:1883", TopicPrefix: "aquaguard", BufferSize: 256},
		Logging: LoggingConfig{Format: "console", Level: "info"},
	}
}
