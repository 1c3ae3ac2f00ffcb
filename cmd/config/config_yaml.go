// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/anvilhq/anvil/pkg/backoff"
	"github.com/anvilhq/anvil/pkg/bridge"
	"github.com/anvilhq/anvil/pkg/mapping"
	mqttlistener "github.com/anvilhq/anvil/pkg/telemetry/listener/mqtt"
	pgsink "github.com/anvilhq/anvil/pkg/telemetry/sink/postgres"
)

type YAMLConfig struct {
	Source       SourceConfig `mapstructure:"source" yaml:"source"`
	Target       TargetConfig `mapstructure:"target" yaml:"target"`
	MappingsFile string       `mapstructure:"mappings_file" yaml:"mappings_file"`
}

type SourceConfig struct {
	MQTT *MQTTConfig `mapstructure:"mqtt" yaml:"mqtt"`
}

type TargetConfig struct {
	Postgres *PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

type MQTTConfig struct {
	Broker         string        `mapstructure:"broker" yaml:"broker"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password"`
	Topics         []string      `mapstructure:"topics" yaml:"topics"`
	QoS            *byte         `mapstructure:"qos" yaml:"qos"`
	KeepAlive      time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	Retry          *RetryConfig  `mapstructure:"retry" yaml:"retry"`
}

type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	MaxRetries      uint          `mapstructure:"max_retries" yaml:"max_retries"`
}

type PostgresConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	RawTable string `mapstructure:"raw_table" yaml:"raw_table"`
}

func (c *YAMLConfig) toBridgeConfig() (*bridge.Config, error) {
	if c.Source.MQTT == nil {
		return nil, errors.New("source mqtt configuration is required")
	}
	if c.Target.Postgres == nil {
		return nil, errors.New("target postgres configuration is required")
	}

	mappings := &mapping.Config{}
	if c.MappingsFile != "" {
		var err error
		mappings, err = mapping.Load(c.MappingsFile)
		if err != nil {
			return nil, fmt.Errorf("loading mappings: %w", err)
		}
	}

	return &bridge.Config{
		Listener: mqttlistener.Config{
			Broker:         c.Source.MQTT.Broker,
			ClientID:       c.Source.MQTT.ClientID,
			Username:       c.Source.MQTT.Username,
			Password:       c.Source.MQTT.Password,
			Topics:         c.Source.MQTT.Topics,
			QoS:            c.Source.MQTT.QoS,
			KeepAlive:      c.Source.MQTT.KeepAlive,
			ConnectTimeout: c.Source.MQTT.ConnectTimeout,
			Retry:          c.Source.MQTT.Retry.toBackoffConfig(),
		},
		Sink: pgsink.Config{
			URL: c.Target.Postgres.URL,
		},
		Mappings: mappings,
		RawTable: c.Target.Postgres.RawTable,
	}, nil
}

func (c *RetryConfig) toBackoffConfig() backoff.Config {
	if c == nil || c.InitialInterval == 0 {
		return backoff.Config{}
	}
	return backoff.Config{
		Exponential: &backoff.ExponentialConfig{
			InitialInterval: c.InitialInterval,
			MaxInterval:     c.MaxInterval,
			MaxRetries:      c.MaxRetries,
		},
	}
}
