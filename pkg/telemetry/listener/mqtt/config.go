// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"errors"
	"time"

	"github.com/anvilhq/anvil/pkg/backoff"
)

const (
	defaultClientIDPrefix       = "anvil"
	defaultQoS             byte = 1
	defaultKeepAlive            = 30 * time.Second
	defaultConnectTimeout       = 10 * time.Second
	defaultMaxRetryBackoff      = 5 * time.Minute
)

type Config struct {
	// Broker is the address of the MQTT broker, e.g. tcp://localhost:1883.
	Broker string
	// ClientID identifies this client to the broker. A random suffix is
	// appended so multiple bridge instances can share a prefix.
	ClientID string
	Username string
	Password string
	// Topics are the subscription filters, wildcards included.
	Topics []string
	// QoS applies to all subscriptions. Defaults to 1.
	QoS            *byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// Retry controls the initial connection attempts. Reconnections after a
	// lost connection are handled by the client itself.
	Retry backoff.Config
}

func (c *Config) IsValid() error {
	if c.Broker == "" {
		return errors.New("mqtt broker address is required")
	}
	if len(c.Topics) == 0 {
		return errors.New("at least one mqtt topic subscription is required")
	}
	return nil
}

func (c *Config) qos() byte {
	if c.QoS == nil {
		return defaultQoS
	}
	return *c.QoS
}

func (c *Config) clientIDPrefix() string {
	if c.ClientID == "" {
		return defaultClientIDPrefix
	}
	return c.ClientID
}

func (c *Config) keepAlive() time.Duration {
	if c.KeepAlive == 0 {
		return defaultKeepAlive
	}
	return c.KeepAlive
}

func (c *Config) connectTimeout() time.Duration {
	if c.ConnectTimeout == 0 {
		return defaultConnectTimeout
	}
	return c.ConnectTimeout
}
