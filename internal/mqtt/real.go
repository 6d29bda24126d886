package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// defaultBufferSize bounds the offline replay queue when the config does
// not say otherwise.
const defaultBufferSize = 256

// wire is the slice of the paho client the publisher drives. Narrowed so
// tests can stub the broker.
type wire interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealOptions configures the broker connection.
type RealOptions struct {
	Broker     string
	DeviceID   string
	Prefix     string // topic prefix, DefaultPrefix when empty
	BufferSize int    // offline buffer capacity, 256 when zero
}

// RealPublisher publishes to an MQTT broker. While the broker is away,
// messages land in a ring buffer and are replayed on reconnect.
type RealPublisher struct {
	client      wire
	topicEvents string
	topicSystem string
	log         *zap.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher starts a connection to the given broker and returns
// immediately; a broker that is down at boot is retried in the background
// while messages collect in the offline buffer. The last-will publishes an
// "offline" system event so watchers can tell a dropped connection from a
// clean shutdown.
func NewRealPublisher(opts RealOptions, log *zap.Logger) (*RealPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Broker == "" || opts.DeviceID == "" {
		return nil, fmt.Errorf("mqtt publisher needs a broker and a device id")
	}
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	p := &RealPublisher{
		topicEvents: TopicEvents(opts.Prefix, opts.DeviceID),
		topicSystem: TopicSystem(opts.Prefix, opts.DeviceID),
		log:         log,
		buf:         newRingBuffer(size),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "offline",
		Reason:    "connection_lost",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	copts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.DeviceID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topicSystem, will, 1, false).
		SetOnConnectHandler(func(paho.Client) { p.replay() })

	client := paho.NewClient(copts)
	// The connect handler fires as soon as the session is up, so the
	// client field must be set before Connect.
	p.client = client
	client.Connect()
	return p, nil
}

// Publish sends a tank event, or buffers it while the broker is away.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0: level readings repeat, losing one is fine.
	return p.send(p.topicEvents, 0, false, payload)
}

// PublishSystem sends a system lifecycle event. QoS 1 so shutdown and
// panic reports survive a flaky link.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(p.topicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		dropped := p.buf.push(queued{topic: topic, payload: payload, qos: qos, retained: retained})
		n := p.buf.len()
		p.mu.Unlock()
		if dropped {
			p.log.Warn("offline buffer full, dropped oldest message", zap.Int("buffered", n))
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// replay drains the offline buffer after a reconnect, oldest first. A
// failure abandons the rest; anything still unsent was already lost in
// spirit when the link went down.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	p.log.Info("replaying buffered messages", zap.Int("count", len(msgs)))
	for _, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(5 * time.Second) {
			p.log.Warn("replay timed out", zap.String("topic", m.topic))
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("replay failed", zap.String("topic", m.topic), zap.Error(err))
			return
		}
	}
}

// IsConnected reports the live broker connection state.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
