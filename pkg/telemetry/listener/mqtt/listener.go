// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/anvilhq/anvil/pkg/backoff"
	loglib "github.com/anvilhq/anvil/pkg/log"
	"github.com/anvilhq/anvil/pkg/telemetry"
	"github.com/anvilhq/anvil/pkg/telemetry/processor"
)

const disconnectQuiesceMillis = 250

// Listener subscribes to the configured MQTT topics and feeds every inbound
// publish to the processor. Processing failures are logged and do not stop
// the subscription, the broker keeps delivering.
type Listener struct {
	logger          loglib.Logger
	cfg             *Config
	processor       processor.Processor
	client          pahomqtt.Client
	clock           clockwork.Clock
	backoffProvider backoff.Provider

	// newClient is swapped in tests
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

type Option func(*Listener)

func NewListener(cfg *Config, p processor.Processor, opts ...Option) (*Listener, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}

	l := &Listener{
		logger:          loglib.NewNoopLogger(),
		cfg:             cfg,
		processor:       p,
		clock:           clockwork.NewRealClock(),
		backoffProvider: backoff.NewProvider(&cfg.Retry),
		newClient:       pahomqtt.NewClient,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

func WithLogger(logger loglib.Logger) Option {
	return func(l *Listener) {
		l.logger = loglib.NewLogger(logger).WithFields(loglib.Fields{
			loglib.ModuleField: "mqtt_listener",
		})
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(l *Listener) {
		l.clock = c
	}
}

// Listen connects to the broker, subscribes and blocks until the context is
// cancelled or the initial connection attempts are exhausted.
func (l *Listener) Listen(ctx context.Context) error {
	clientID := fmt.Sprintf("%s-%s", l.cfg.clientIDPrefix(), uuid.New().String()[:8])

	pahoOpts := pahomqtt.NewClientOptions().
		AddBroker(l.cfg.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(l.cfg.connectTimeout()).
		SetKeepAlive(l.cfg.keepAlive()).
		SetMaxReconnectInterval(defaultMaxRetryBackoff).
		SetOrderMatters(false)
	if l.cfg.Username != "" {
		pahoOpts.SetUsername(l.cfg.Username)
		pahoOpts.SetPassword(l.cfg.Password)
	}
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		l.logger.Warn(err, "mqtt connection lost, reconnecting")
	})
	// subscriptions are clean session state, renew them on every (re)connect
	pahoOpts.SetOnConnectHandler(func(c pahomqtt.Client) {
		l.logger.Info("connected to mqtt broker", loglib.Fields{
			"broker":    l.cfg.Broker,
			"client_id": clientID,
		})
		l.subscribe(ctx, c)
	})

	l.client = l.newClient(pahoOpts)
	if err := l.connect(ctx); err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}

	<-ctx.Done()
	l.client.Disconnect(disconnectQuiesceMillis)
	return ctx.Err()
}

func (l *Listener) Close() error {
	if l.client != nil && l.client.IsConnected() {
		l.client.Disconnect(disconnectQuiesceMillis)
	}
	return nil
}

func (l *Listener) connect(ctx context.Context) error {
	bo := l.backoffProvider(ctx)
	return bo.RetryNotify(func() error {
		token := l.client.Connect()
		token.Wait()
		return token.Error()
	}, func(err error, d time.Duration) {
		l.logger.Warn(err, "failed to connect to mqtt broker, retrying", loglib.Fields{
			"broker":  l.cfg.Broker,
			"backoff": d,
		})
	})
}

func (l *Listener) subscribe(ctx context.Context, c pahomqtt.Client) {
	filters := make(map[string]byte, len(l.cfg.Topics))
	for _, topic := range l.cfg.Topics {
		filters[topic] = l.cfg.qos()
	}
	token := c.SubscribeMultiple(filters, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		l.handleMessage(ctx, msg)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		l.logger.Error(err, "subscribing to mqtt topics", loglib.Fields{
			"topics": l.cfg.Topics,
		})
		return
	}
	l.logger.Info("subscribed to mqtt topics", loglib.Fields{
		"topics": l.cfg.Topics,
	})
}

func (l *Listener) handleMessage(ctx context.Context, msg pahomqtt.Message) {
	err := l.processor.ProcessMessage(ctx, &telemetry.Message{
		Topic:      msg.Topic(),
		Payload:    msg.Payload(),
		ReceivedAt: l.clock.Now().UTC(),
	})
	if err != nil {
		l.logger.Error(err, "processing mqtt message", loglib.Fields{
			"topic":         msg.Topic(),
			"payload_bytes": len(msg.Payload()),
		})
	}
}
