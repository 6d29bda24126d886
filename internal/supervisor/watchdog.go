package supervisor

import (
	"fmt"
	"os"
)

// Watchdog is fed once per control-loop iteration. When feeds stop, the
// kernel driver reboots the board, so a hang anywhere in the process still
// ends in a restart.
type Watchdog interface {
	Feed() error
	Close() error
}

// DeviceWatchdog drives a kernel watchdog device such as /dev/watchdog.
type DeviceWatchdog struct {
	f *os.File
}

// OpenWatchdog opens the watchdog device and arms it.
func OpenWatchdog(path string) (*DeviceWatchdog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening watchdog %s: %w", path, err)
	}
	return &DeviceWatchdog{f: f}, nil
}

// Feed pushes the reboot deadline out by the driver's timeout.
func (w *DeviceWatchdog) Feed() error {
	if _, err := w.f.Write([]byte{'.'}); err != nil {
		return fmt.Errorf("feeding watchdog: %w", err)
	}
	return nil
}

// Close disarms the watchdog. The magic character tells the driver this is
// an orderly shutdown, not a hang.
func (w *DeviceWatchdog) Close() error {
	if _, err := w.f.Write([]byte{'V'}); err != nil {
		w.f.Close()
		return fmt.Errorf("disarming watchdog: %w", err)
	}
	return w.f.Close()
}

// NopWatchdog stands in when no watchdog device is configured.
type NopWatchdog struct{}

// Feed does nothing.
func (NopWatchdog) Feed() error {
	return nil
}

// Close does nothing.
func (NopWatchdog) Close() error {
	return nil
}
