package backend

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Link describes the wireless interface state as far as userspace can see
// it: carrier up, assigned address and signal strength.
type Link struct {
	Up        bool
	IP        string
	SSID      string
	SignalDBm int
}

// LinkProber checks the WiFi link with a bounded number of re-checks.
// Losing the link is never a panic condition; the prober only feeds
// ConnectionHealth and the LED patterns.
type LinkProber struct {
	iface        string
	attempts     int
	wirelessPath string
	delay        *backoff.ExponentialBackOff

	// check is swappable in tests.
	check func() Link
}

// NewLinkProber probes the named interface, re-checking a down link up to
// attempts times with a short growing delay in between.
func NewLinkProber(iface string, attempts int) *LinkProber {
	if attempts < 1 {
		attempts = 1
	}
	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = 500 * time.Millisecond
	delay.MaxInterval = 2 * time.Second

	p := &LinkProber{
		iface:        iface,
		attempts:     attempts,
		wirelessPath: "/proc/net/wireless",
		delay:        delay,
	}
	p.check = p.osCheck
	return p
}

// Probe returns the link state, re-checking a down link up to the attempt
// budget. It never escalates; a still-down link is reported as such.
func (p *LinkProber) Probe(ctx context.Context) Link {
	link := p.check()
	for attempt := 1; !link.Up && attempt < p.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return link
		case <-time.After(p.delay.NextBackOff()):
		}
		link = p.check()
	}
	if link.Up {
		p.delay.Reset()
	}
	return link
}

// osCheck reads the interface flags, its first IPv4 address and the signal
// level from /proc/net/wireless. Environment fallbacks cover platforms
// where the proc file is absent.
func (p *LinkProber) osCheck() Link {
	link := Link{SSID: os.Getenv("WIFI_SSID")}

	if v, err := strconv.Atoi(os.Getenv("WIFI_SIGNAL_DBM")); err == nil {
		link.SignalDBm = v
	}
	if f, err := os.Open(p.wirelessPath); err == nil {
		if dbm, ok := parseWireless(f, p.iface); ok {
			link.SignalDBm = dbm
		}
		f.Close()
	}

	iface, err := net.InterfaceByName(p.iface)
	if err != nil {
		return link
	}
	link.Up = iface.Flags&net.FlagUp != 0
	addrs, err := iface.Addrs()
	if err != nil {
		return link
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			link.IP = ipnet.IP.String()
			break
		}
	}
	return link
}

// parseWireless extracts the signal level (dBm) for iface from the
// /proc/net/wireless table. The level column carries a trailing dot.
func parseWireless(r io.Reader, iface string) (int, bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], iface+":") {
			continue
		}
		level := strings.TrimSuffix(fields[3], ".")
		v, err := strconv.ParseFloat(level, 64)
		if err != nil {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
