// Package input contains pure debounce logic for digital input channels.
// This package has no hardware dependencies; time is always injectable via
// time.Time parameters.
package input

import "time"

// Edge is a debounced transition on one channel.
type Edge struct {
	Channel string
	On      bool // new stable state
	At      time.Time
}

// channel tracks debounce state for a single input.
type channel struct {
	name         string
	stable       bool
	pending      bool
	hasPending   bool
	pendingSince time.Time
	baselined    bool
}

// Debouncer tracks stable states for a set of named channels.
// A raw change must hold for the debounce window before it becomes the
// stable state; shorter glitches are ignored. On startup each channel must
// hold its first value for one window before it is baselined.
type Debouncer struct {
	window    time.Duration
	channels  []channel
	baselined bool
}

// New creates a Debouncer for the given channels, in declaration order.
func New(window time.Duration, names ...string) *Debouncer {
	d := &Debouncer{window: window}
	for _, n := range names {
		d.channels = append(d.channels, channel{name: n})
	}
	return d
}

// Process takes one raw sample per channel, in declaration order, and
// returns any debounced edges. No edges are emitted until every channel
// has established its baseline.
func (d *Debouncer) Process(at time.Time, values ...bool) []Edge {
	n := len(values)
	if n > len(d.channels) {
		n = len(d.channels)
	}

	var edges []Edge
	for i := 0; i < n; i++ {
		if d.processChannel(&d.channels[i], values[i], at) && d.baselined {
			edges = append(edges, Edge{
				Channel: d.channels[i].name,
				On:      d.channels[i].stable,
				At:      at,
			})
		}
	}

	if !d.baselined {
		all := true
		for i := range d.channels {
			if !d.channels[i].baselined {
				all = false
				break
			}
		}
		d.baselined = all
		return nil
	}

	return edges
}

// processChannel handles debounce logic for a single channel.
// Returns true if the stable state changed.
func (d *Debouncer) processChannel(ch *channel, raw bool, now time.Time) bool {
	// Establishing baseline
	if !ch.baselined {
		if !ch.hasPending || ch.pending != raw {
			ch.pending = raw
			ch.hasPending = true
			ch.pendingSince = now
			return false
		}

		if now.Sub(ch.pendingSince) >= d.window {
			ch.stable = raw
			ch.baselined = true
			ch.hasPending = false
		}
		return false
	}

	// Back at the stable value, drop any pending change
	if raw == ch.stable {
		ch.hasPending = false
		return false
	}

	if !ch.hasPending || ch.pending != raw {
		ch.pending = raw
		ch.hasPending = true
		ch.pendingSince = now
		return false
	}

	if now.Sub(ch.pendingSince) >= d.window {
		ch.stable = raw
		ch.hasPending = false
		return true
	}

	return false
}

// Baselined reports whether every channel has established its baseline.
func (d *Debouncer) Baselined() bool {
	return d.baselined
}

// Stable returns the debounced state of the named channel. Before baseline
// it returns false.
func (d *Debouncer) Stable(name string) bool {
	for i := range d.channels {
		if d.channels[i].name == name {
			return d.channels[i].stable
		}
	}
	return false
}
