// Command aquaguard runs one controller of the two-tank water system: it
// measures the tank level, drives the pump relay on the sump role, and
// reports to the backend, the status page and the MQTT mirror.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chandud1124/aquaguard/internal/alert"
	"github.com/chandud1124/aquaguard/internal/backend"
	"github.com/chandud1124/aquaguard/internal/command"
	"github.com/chandud1124/aquaguard/internal/config"
	"github.com/chandud1124/aquaguard/internal/gpio"
	"github.com/chandud1124/aquaguard/internal/input"
	"github.com/chandud1124/aquaguard/internal/motor"
	"github.com/chandud1124/aquaguard/internal/mqtt"
	"github.com/chandud1124/aquaguard/internal/peer"
	"github.com/chandud1124/aquaguard/internal/sensor"
	"github.com/chandud1124/aquaguard/internal/status"
	"github.com/chandud1124/aquaguard/internal/supervisor"
	"github.com/chandud1124/aquaguard/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file (empty: environment variables only)")
	printState := flag.Bool("print-state", false, "Print the current sensor and switch readings and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *printState {
		if err := printCurrentState(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "print-state: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadEnv()
}

func run(cfg *config.Config, log *zap.Logger) error {
	sump := cfg.Device.Role == config.RoleSump
	log.Info("configuration loaded", zap.Any("config", cfg.Redacted()))

	// Pump relay first. Requesting the line forces it de-energized, so a
	// failure anywhere in the rest of the wiring leaves the pump off.
	var (
		pump     *motor.Controller
		reader   gpio.InputReader
		debounce *input.Debouncer
	)
	if sump {
		relay, err := gpio.NewRealRelay(cfg.Pins.Chip, cfg.Pins.MotorRelay, cfg.Motor.RelayActiveLow)
		if err != nil {
			return fmt.Errorf("init relay: %w", err)
		}
		defer relay.Close()

		pump, err = motor.NewController(relay, motor.Config{
			MaxRuntime:   cfg.Motor.MaxRuntime(),
			Cooldown:     cfg.Motor.Cooldown(),
			AutoStartPct: cfg.Motor.AutoStartPercent,
			AutoStopPct:  cfg.Motor.AutoStopPercent,
		})
		if err != nil {
			return fmt.Errorf("motor controller: %w", err)
		}

		in, err := gpio.NewRealInputReader(cfg.Pins.Chip, cfg.Pins.FloatSwitch, cfg.Pins.ManualMotorSwitch, cfg.Pins.ModeSwitch)
		if err != nil {
			return fmt.Errorf("init inputs: %w", err)
		}
		defer in.Close()
		reader = in
		debounce = input.New(cfg.Device.SwitchDebounce(), chFloat, chMotorSwitch, chModeSwitch)
	}

	finder, err := gpio.NewRealRangeFinder(cfg.Pins.Chip, cfg.Pins.Trigger, cfg.Pins.Echo, cfg.Sensor.EchoTimeout())
	if err != nil {
		return fmt.Errorf("init range finder: %w", err)
	}
	defer finder.Close()

	panel, err := gpio.NewRealPanel(cfg.Pins.Chip, cfg.Pins.AutoModeLED, cfg.Pins.TankFullLED, cfg.Pins.TankLowLED, cfg.Pins.Buzzer)
	if err != nil {
		return fmt.Errorf("init panel: %w", err)
	}
	defer panel.Close()

	engine, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("sensor engine: %w", err)
	}

	// Both roles carry the queue: the sump drains peer and backend
	// commands, the top drains (and rejects) whatever the backend sends.
	queue := command.NewQueue(cfg.Backend.CommandTTL())
	tracker := status.NewTracker(cfg.Device.ID, time.Now(), displayConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		pub  mqtt.Publisher
		conn mqtt.ConnectionStatus
		mir  *mirror
	)
	if cfg.MQTT.Enabled {
		rp, err := mqtt.NewRealPublisher(mqtt.RealOptions{
			Broker:     cfg.MQTT.Broker,
			DeviceID:   cfg.Device.ID,
			Prefix:     cfg.MQTT.TopicPrefix,
			BufferSize: cfg.MQTT.BufferSize,
		}, log.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt publisher: %w", err)
		}
		defer rp.Close()
		pub, conn = rp, rp
		mir = newMirror(rp, log.Named("mqtt"))
		defer mir.Close()
	}

	if pub != nil {
		snap := tracker.Snapshot()
		ev := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "startup",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "startup", ""),
		}
		if err := pub.PublishSystem(ev); err != nil {
			log.Warn("startup event not published", zap.Error(err))
		}
	}

	telemetry := func() backend.Telemetry {
		return backend.NewTelemetry(tracker.Snapshot(), supervisor.FreeMemoryKB())
	}
	var (
		client  *backend.Client
		manager *backend.Manager
	)
	if cfg.Backend.Enabled {
		client, err = backend.NewClient(cfg.Backend.BaseURL, cfg.Device.ID, cfg.Backend.APIKey, cfg.Backend.HMACSecret, cfg.Backend.Timeout())
		if err != nil {
			return fmt.Errorf("backend client: %w", err)
		}
		prober := backend.NewLinkProber(cfg.Backend.WirelessInterface, cfg.Backend.LinkProbeAttempts)
		manager = backend.NewManager(client, queue, tracker, prober, telemetry, backend.ManagerConfig{
			HeartbeatInterval: cfg.Backend.HeartbeatInterval(),
			ReportInterval:    cfg.Backend.ReportInterval(),
			PollInterval:      cfg.Backend.PollInterval(),
			Timeout:           cfg.Backend.Timeout(),
			BackoffCap:        cfg.Backend.BackoffCap(),
		}, log.Named("backend"))
		go manager.Run(ctx)
	} else {
		// Nobody owns ConnectionHealth without a comm manager, so keep
		// at least the WiFi view fresh for the LEDs and the status page.
		prober := backend.NewLinkProber(cfg.Backend.WirelessInterface, cfg.Backend.LinkProbeAttempts)
		go probeLink(ctx, prober, tracker, cfg.Backend.HeartbeatInterval())
	}

	schedule, err := cron.ParseStandard(cfg.Supervisor.RestartSchedule)
	if err != nil {
		return fmt.Errorf("parse restart schedule: %w", err)
	}
	var watch supervisor.Watchdog = supervisor.NopWatchdog{}
	if cfg.Supervisor.WatchdogPath != "" {
		device, err := supervisor.OpenWatchdog(cfg.Supervisor.WatchdogPath)
		if err != nil {
			return fmt.Errorf("open watchdog: %w", err)
		}
		watch = device
		defer device.Close()
	}
	var restarter supervisor.Restarter = supervisor.ExitRestarter{Log: log}
	if pub != nil {
		restarter = notifyRestarter{pub: pub, tracker: tracker, next: restarter, log: log}
	}
	deps := supervisor.Deps{
		Tracker:   tracker,
		Watchdog:  watch,
		Restarter: restarter,
		Log:       log.Named("supervisor"),
	}
	if pump != nil {
		deps.Pump = pump
	}
	if client != nil {
		deps.Client = client
		deps.Telemetry = telemetry
	}
	sup := supervisor.New(supervisor.Config{
		BackendSilence: cfg.Supervisor.BackendSilence(),
		SensorStale:    cfg.Supervisor.SensorStaleWindow(),
		MemoryFloorKB:  uint64(cfg.Supervisor.MemoryFloorMB) * 1024,
		TripLimit:      cfg.Supervisor.MaxRuntimeTripLimit,
		Grace:          cfg.Supervisor.PanicGrace(),
	}, schedule, deps)

	if !sump && cfg.Peer.Enabled {
		pc, err := peer.NewClient(cfg.Peer.BaseURL, cfg.Device.ID, cfg.Peer.HMACSecret, cfg.Peer.Timeout())
		if err != nil {
			return fmt.Errorf("peer client: %w", err)
		}
		coord := peer.NewCoordinator(pc, peer.Config{
			Interval:   cfg.Peer.Interval(),
			StartBelow: cfg.Peer.StartBelowPercent,
			StopAbove:  cfg.Peer.StopAbovePercent,
		}, func() (float64, bool) {
			snap := tracker.Snapshot()
			return snap.Level.Percentage, snap.Level.Confidence != sensor.ConfidenceStale
		}, tracker, log.Named("peer"))
		go coord.Run(ctx)
	}

	if cfg.Web.ListenAddr != "" {
		var webQueue *command.Queue
		if sump && cfg.Peer.Enabled {
			webQueue = queue
		}
		srv := web.New(web.Options{
			Addr:       cfg.Web.ListenAddr,
			Tracker:    tracker,
			Queue:      webQueue,
			PeerSecret: cfg.Peer.HMACSecret,
			Log:        log.Named("web"),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("status server listening", zap.String("addr", cfg.Web.ListenAddr))
	}

	alerts := alert.NewDriver(panel, alert.Config{
		FullAbovePct:     cfg.Tank.FullAbovePercent,
		LowBelowPct:      cfg.Tank.LowBelowPercent,
		CriticalBelowPct: cfg.Tank.CriticalBelowPercent,
	})

	log.Info("started",
		zap.String("device", cfg.Device.ID),
		zap.String("role", cfg.Device.Role),
		zap.Duration("loop", cfg.Device.LoopInterval()),
		zap.Duration("sensor_read", cfg.Sensor.ReadInterval()))

	ticker := time.NewTicker(cfg.Device.LoopInterval())
	defer ticker.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{
		cfg:      cfg,
		log:      log,
		tracker:  tracker,
		finder:   finder,
		reader:   reader,
		pump:     pump,
		queue:    queue,
		engine:   engine,
		alerts:   alerts,
		sup:      sup,
		watch:    watch,
		manager:  manager,
		pub:      pub,
		conn:     conn,
		mirror:   mir,
		debounce: debounce,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	return d.runLoop(ticker.C, sigCh)
}

func buildEngine(cfg *config.Config) (*sensor.Engine, error) {
	return sensor.NewEngine(sensor.Config{
		Geometry: sensor.TankGeometry{
			Shape:          sensor.Shape(cfg.Tank.Shape),
			HeightCM:       cfg.Tank.HeightCM,
			LengthCM:       cfg.Tank.LengthCM,
			BreadthCM:      cfg.Tank.BreadthCM,
			DiameterCM:     cfg.Tank.DiameterCM,
			SensorOffsetCM: cfg.Tank.SensorOffsetCM,
		},
		RangeMarginCM: cfg.Sensor.RangeMarginCM,
		MaxDeltaPct:   cfg.Sensor.MaxDeltaPercent,
		FastDeltaPct:  cfg.Sensor.FastDeltaPercent,
		SlowAlpha:     cfg.Sensor.SlowAlpha,
		FastAlpha:     cfg.Sensor.FastAlpha,
		DistrustLimit: cfg.Sensor.DistrustLimit,
		WindowSize:    cfg.Sensor.WindowSize,
		StaleAfter:    cfg.Sensor.StaleAfterCycles,
	})
}

// displayConfig selects the config fields the status page echoes. Zero
// values hide the corresponding rows.
func displayConfig(cfg *config.Config) status.Config {
	disp := status.Config{
		Role:         cfg.Device.Role,
		LoopMs:       cfg.Device.LoopInterval().Milliseconds(),
		ReadSeconds:  int64(cfg.Sensor.ReadIntervalSeconds),
		AutoStartPct: cfg.Motor.AutoStartPercent,
		AutoStopPct:  cfg.Motor.AutoStopPercent,
		HTTPAddr:     cfg.Web.ListenAddr,
	}
	if cfg.Backend.Enabled {
		disp.HeartbeatSec = int64(cfg.Backend.HeartbeatSeconds)
		disp.BackendURL = cfg.Backend.BaseURL
	}
	if cfg.Peer.Enabled && cfg.Device.Role == config.RoleTop {
		disp.PeerURL = cfg.Peer.BaseURL
	}
	if cfg.MQTT.Enabled {
		disp.Broker = cfg.MQTT.Broker
	}
	return disp
}

// acquireSamples fires one measurement cycle: a burst of pulses with a
// settling gap in between. Failed pulses stay in the batch as invalid so
// the engine can count them.
func acquireSamples(finder gpio.RangeFinder, pulses int, gap time.Duration, sleep func(time.Duration), at time.Time) []sensor.LevelSample {
	samples := make([]sensor.LevelSample, 0, pulses)
	for i := 0; i < pulses; i++ {
		if i > 0 {
			sleep(gap)
		}
		cm, err := finder.MeasureDistance()
		samples = append(samples, sensor.LevelSample{DistanceCM: cm, Time: at, Valid: err == nil})
	}
	return samples
}

// probeLink keeps the WiFi view fresh on controllers that run without a
// backend, where no comm manager owns ConnectionHealth.
func probeLink(ctx context.Context, prober *backend.LinkProber, tracker *status.Tracker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		link := prober.Probe(ctx)
		tracker.SetConnection(status.ConnectionHealth{
			WifiUp:    link.Up,
			IP:        link.IP,
			SSID:      link.SSID,
			SignalDBm: link.SignalDBm,
		})
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// printCurrentState is the bench diagnostic behind -print-state: one
// acquisition cycle through the normal pipeline, plus the raw switch and
// relay readings on the sump role.
func printCurrentState(cfg *config.Config) error {
	engine, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("sensor engine: %w", err)
	}

	finder, err := gpio.NewRealRangeFinder(cfg.Pins.Chip, cfg.Pins.Trigger, cfg.Pins.Echo, cfg.Sensor.EchoTimeout())
	if err != nil {
		return fmt.Errorf("init range finder: %w", err)
	}
	defer finder.Close()

	samples := acquireSamples(finder, cfg.Sensor.PulsesPerCycle, cfg.Sensor.PulseGap(), time.Sleep, time.Now())
	for i, s := range samples {
		if s.Valid {
			fmt.Printf("pulse %d: %.1f cm\n", i+1, s.DistanceCM)
		} else {
			fmt.Printf("pulse %d: no echo\n", i+1)
		}
	}
	est := engine.ProcessCycle(samples, time.Now())
	fmt.Printf("level: %.1f%% (%.0f L, %s)\n", est.Percentage, est.VolumeLiters, est.Confidence)

	if cfg.Device.Role != config.RoleSump {
		return nil
	}

	reader, err := gpio.NewRealInputReader(cfg.Pins.Chip, cfg.Pins.FloatSwitch, cfg.Pins.ManualMotorSwitch, cfg.Pins.ModeSwitch)
	if err != nil {
		return fmt.Errorf("init inputs: %w", err)
	}
	defer reader.Close()
	in, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read inputs: %w", err)
	}
	fmt.Printf("float switch: %s\n", onOff(in.FloatPresent))
	fmt.Printf("motor switch: %s\n", onOff(in.MotorSwitch))
	fmt.Printf("mode switch: %s\n", onOff(in.ModeSwitch))

	// Read-only request; fails while the daemon holds the line.
	if level, err := gpio.ReadLineLevel(cfg.Pins.Chip, cfg.Pins.MotorRelay); err != nil {
		fmt.Printf("relay: unreadable (%v)\n", err)
	} else {
		energized := level == 1
		if cfg.Motor.RelayActiveLow {
			energized = level == 0
		}
		fmt.Printf("relay: %s\n", onOff(energized))
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
