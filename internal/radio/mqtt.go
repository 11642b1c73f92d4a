package radio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roman-kulish/pingu-sat/internal/metrics"
)

const (
	DefaultTopicPrefix    = "pingusat"
	DefaultConnectTimeout = 5 * time.Second
	DefaultPublishTimeout = 2 * time.Second
)

var ErrTimeout = errors.New("mqtt operation timed out")

// MQTTConfig describes the broker used as a ground-test radio
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// WithMQTTLogger sets the logger for the MQTT link
func WithMQTTLogger(logger *slog.Logger) func(l *MQTTLink) {
	return func(l *MQTTLink) {
		l.logger = logger.With(slog.String("radio", "mqtt"))
	}
}

// WithClient replaces the paho client built from the configuration
func WithClient(client mqtt.Client) func(l *MQTTLink) {
	return func(l *MQTTLink) {
		l.client = client
	}
}

// MQTTLink publishes payload bytes to <prefix>/payload and JSON telemetry to
// <prefix>/telemetry
type MQTTLink struct {
	config MQTTConfig
	client mqtt.Client

	logger *slog.Logger
}

// NewMQTTLink creates a link for config. A random client ID is generated when none is set.
func NewMQTTLink(config MQTTConfig, options ...func(l *MQTTLink)) *MQTTLink {
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultTopicPrefix
	}
	if config.ClientID == "" {
		config.ClientID = "pingusat-" + uuid.NewString()
	}

	l := MQTTLink{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	if l.client == nil {
		l.client = mqtt.NewClient(l.clientOptions())
	}

	return &l
}

func (l *MQTTLink) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.config.Broker)
	opts.SetClientID(l.config.ClientID)
	opts.SetUsername(l.config.Username)
	opts.SetPassword(l.config.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		l.logger.Info("connected to broker", slog.String("broker", l.config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.logger.Warn(fmt.Sprintf("connection lost: %s", err.Error()))
	})

	return opts
}

// Topic returns the full topic for kind
func (l *MQTTLink) Topic(kind string) string {
	return l.config.TopicPrefix + "/" + kind
}

func (l *MQTTLink) Open(ctx context.Context) error {
	if l.client.IsConnected() {
		return nil
	}

	if err := wait(ctx, l.client.Connect(), DefaultConnectTimeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", l.config.Broker, err)
	}
	return nil
}

func (l *MQTTLink) Close() error {
	if l.client.IsConnected() {
		l.client.Disconnect(250)
		l.logger.Info("disconnected from broker")
	}
	return nil
}

func (l *MQTTLink) SendData(ctx context.Context, data []byte) error {
	if len(data) > MaxPacketSize {
		metrics.RadioPackets.WithLabelValues("payload", "failed").Inc()
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return l.publish(ctx, "payload", data)
}

func (l *MQTTLink) SendTelemetry(ctx context.Context, t *Telemetry) error {
	b, err := json.Marshal(t)
	if err != nil {
		metrics.RadioPackets.WithLabelValues("telemetry", "failed").Inc()
		return fmt.Errorf("encoding telemetry: %w", err)
	}
	return l.publish(ctx, "telemetry", b)
}

func (l *MQTTLink) publish(ctx context.Context, kind string, payload []byte) error {
	if !l.client.IsConnected() {
		metrics.RadioPackets.WithLabelValues(kind, "failed").Inc()
		return ErrNotOpen
	}

	topic := l.Topic(kind)
	if err := wait(ctx, l.client.Publish(topic, l.config.QoS, false, payload), DefaultPublishTimeout); err != nil {
		metrics.RadioPackets.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	metrics.RadioPackets.WithLabelValues(kind, "sent").Inc()
	l.logger.Debug("packet published", slog.String("topic", topic), slog.Int("size", len(payload)))
	return nil
}

// wait blocks until the token completes, the timeout expires or ctx is done
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
