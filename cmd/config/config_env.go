// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/anvilhq/anvil/pkg/backoff"
	"github.com/anvilhq/anvil/pkg/bridge"
	"github.com/anvilhq/anvil/pkg/mapping"
	mqttlistener "github.com/anvilhq/anvil/pkg/telemetry/listener/mqtt"
	pgsink "github.com/anvilhq/anvil/pkg/telemetry/sink/postgres"
)

func envConfigToBridgeConfig() (*bridge.Config, error) {
	mappings := &mapping.Config{}
	if mappingsFile := viper.GetString("ANVIL_MAPPINGS_FILE"); mappingsFile != "" {
		var err error
		mappings, err = mapping.Load(mappingsFile)
		if err != nil {
			return nil, fmt.Errorf("loading mappings: %w", err)
		}
	}

	return &bridge.Config{
		Listener: parseMQTTListenerConfig(),
		Sink: pgsink.Config{
			URL: viper.GetString("ANVIL_POSTGRES_URL"),
		},
		Mappings: mappings,
		RawTable: viper.GetString("ANVIL_POSTGRES_RAW_TABLE"),
	}, nil
}

func parseMQTTListenerConfig() mqttlistener.Config {
	cfg := mqttlistener.Config{
		Broker:         viper.GetString("ANVIL_MQTT_BROKER"),
		ClientID:       viper.GetString("ANVIL_MQTT_CLIENT_ID"),
		Username:       viper.GetString("ANVIL_MQTT_USERNAME"),
		Password:       viper.GetString("ANVIL_MQTT_PASSWORD"),
		Topics:         viper.GetStringSlice("ANVIL_MQTT_TOPICS"),
		KeepAlive:      viper.GetDuration("ANVIL_MQTT_KEEP_ALIVE"),
		ConnectTimeout: viper.GetDuration("ANVIL_MQTT_CONNECT_TIMEOUT"),
		Retry:          parseRetryConfig(),
	}
	if viper.IsSet("ANVIL_MQTT_QOS") {
		qos := byte(viper.GetUint("ANVIL_MQTT_QOS"))
		cfg.QoS = &qos
	}
	return cfg
}

func parseRetryConfig() backoff.Config {
	initialInterval := viper.GetDuration("ANVIL_MQTT_RETRY_INITIAL_INTERVAL")
	if initialInterval == 0 {
		return backoff.Config{}
	}
	return backoff.Config{
		Exponential: &backoff.ExponentialConfig{
			InitialInterval: initialInterval,
			MaxInterval:     viper.GetDuration("ANVIL_MQTT_RETRY_MAX_INTERVAL"),
			MaxRetries:      viper.GetUint("ANVIL_MQTT_RETRY_MAX_RETRIES"),
		},
	}
}
