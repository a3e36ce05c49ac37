// Package mqtt is the default telemetry-bus backend: each point is
// published as a JSON document on a topic derived from the point name.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tempest-gateway/internal/telemetry"
)

type Publisher struct {
	client mqtt.Client
	prefix string

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

type Options struct {
	Broker   string
	Port     int
	ClientID string
	// TopicPrefix roots every point topic, e.g. prefix "telemetry" and point
	// "tempest.wind.direction" publish on "telemetry/tempest/wind/direction".
	TopicPrefix string
}

func NewPublisher(o Options) *Publisher {
	p := &Publisher{
		prefix: o.TopicPrefix,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", o.Broker, o.Port))
	opts.SetClientID(o.ClientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		slog.Info("mqtt connected", "broker", o.Broker, "port", o.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		slog.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect establishes the connection to the broker. It waits for the
// initial connection and respects ctx and Close().
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if p.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) the token may keep retrying internally, so
	// wait in a ctx/stop-aware loop.
	token := p.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// Publish writes one telemetry point to its topic.
func (p *Publisher) Publish(ctx context.Context, pt telemetry.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := p.topicFor(pt.Name)
	data, err := json.Marshal(pt)
	if err != nil {
		return fmt.Errorf("marshal point: %w", err)
	}

	token := p.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}

	slog.Debug("published point", "topic", topic, "name", pt.Name)
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close stops the client and closes the connection. Idempotent; after
// Close, Connect returns "client stopped".
func (p *Publisher) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		// Paho quiesces in-flight work for the given ms.
		p.client.Disconnect(250)
	}

	p.setConnected(false)
	slog.Info("mqtt disconnected")
	return nil
}

func (p *Publisher) topicFor(name string) string {
	return p.prefix + "/" + strings.ReplaceAll(name, ".", "/")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
