// Package mqttout publishes events to an MQTT broker.
//
// Each event is published as JSON ({"tag", "time", "record"}) to
// TopicPrefix + the tag with dots replaced by slashes, so subscribers can
// use MQTT wildcards on tag parts.
//
// Emit only queues the batch; publishing happens on the output's own
// goroutine so a slow broker never stalls the caller.
package mqttout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/logwire/logwire/pkg/emit"
	"github.com/logwire/logwire/pkg/logging"
)

// DefaultTimeout bounds connect and publish acknowledgements.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqttout: timed out waiting for broker")

// Config describes the broker connection.
type Config struct {
	Broker      string
	TopicPrefix string
	QoS         byte
	Retained    bool
	ClientID    string
	Username    string
	Password    string
	Timeout     time.Duration
	// QueueSize is the number of batches buffered for publishing.
	QueueSize int
}

// Output is an emit.Output publishing to MQTT.
type Output struct {
	cfg    Config
	client mqtt.Client
	queue  *emit.Queue
	log    *slog.Logger
}

// Option configures an Output.
type Option func(*Output)

// WithLogger sets the output logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Output) {
		o.log = logging.OrNop(log)
	}
}

// New connects to the broker.
func New(cfg Config, opts ...Option) (*Output, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqttout: broker is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqttout: invalid qos %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "logwire-" + uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	o := &Output{cfg: cfg, log: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(cfg.Broker)
	co.SetClientID(cfg.ClientID)
	co.SetConnectTimeout(cfg.Timeout)
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)
	if cfg.Username != "" {
		co.SetUsername(cfg.Username)
		co.SetPassword(cfg.Password)
	}
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		o.log.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	o.client = mqtt.NewClient(co)
	token := o.client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		o.client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttout: connect %s: %w", cfg.Broker, err)
	}
	o.queue = emit.NewQueue("mqtt", o.publish,
		emit.WithQueueLogger(o.log),
		emit.WithQueueSize(cfg.QueueSize),
		emit.WithDrainTimeout(cfg.Timeout),
	)
	o.log.Info("connected to mqtt broker", "broker", cfg.Broker, "client_id", cfg.ClientID)
	return o, nil
}

// Topic returns the topic events with tag are published to.
func (o *Output) Topic(tag string) string {
	return o.cfg.TopicPrefix + strings.ReplaceAll(tag, ".", "/")
}

// Emit queues the batch for publishing and continues the chain. Batches
// that do not fit in the queue are dropped and counted.
func (o *Output) Emit(tag string, es emit.EventStream, chain emit.Chain) error {
	o.queue.Enqueue(tag, es)
	return chain.Next()
}

// Dropped returns the number of events dropped because the queue was full.
func (o *Output) Dropped() uint64 { return o.queue.Dropped() }

func (o *Output) publish(ctx context.Context, tag string, es emit.EventStream) error {
	topic := o.Topic(tag)
	for _, ev := range es {
		payload, err := emit.MarshalEvent(tag, ev)
		if err != nil {
			return fmt.Errorf("mqttout: encode event: %w", err)
		}
		token := o.client.Publish(topic, o.cfg.QoS, o.cfg.Retained, payload)
		timer := time.NewTimer(o.cfg.Timeout)
		select {
		case <-token.Done():
			timer.Stop()
		case <-timer.C:
			return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("mqttout: publish %s: %w", topic, ctx.Err())
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqttout: publish %s: %w", topic, err)
		}
	}
	return nil
}

// Close publishes what is still queued, then disconnects from the broker.
func (o *Output) Close() error {
	err := o.queue.Close()
	o.client.Disconnect(250)
	return err
}
