// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anvilhq/anvil/cmd/config"
	"github.com/anvilhq/anvil/internal/log/zerolog"
	"github.com/anvilhq/anvil/pkg/bridge"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Short:   "Start runs the MQTT to Postgres bridge",
	PreRunE: startFlagBinding,
	RunE:    withSignalWatcher(start),
	Example: `
	anvil start -c anvil.yaml
	anvil start -c anvil.env
	anvil start --mqtt-url tcp://localhost:1883 --postgres-url <postgres-url> -m mappings.yaml`,
}

func start(ctx context.Context) error {
	logger := zerolog.NewLogger(&zerolog.Config{
		LogLevel: viper.GetString("ANVIL_LOG_LEVEL"),
	})
	zerolog.SetGlobalLogger(logger)

	bridgeConfig, err := config.ParseBridgeConfig()
	if err != nil {
		return fmt.Errorf("parsing bridge config: %w", err)
	}

	return bridge.Run(ctx, bridgeConfig, zerolog.NewStdLogger(logger))
}

func startFlagBinding(cmd *cobra.Command, _ []string) error {
	// to be able to overwrite configuration with flags when yaml config file is
	// provided
	viper.BindPFlag("source.mqtt.broker", cmd.Flags().Lookup("mqtt-url"))
	viper.BindPFlag("target.postgres.url", cmd.Flags().Lookup("postgres-url"))
	viper.BindPFlag("mappings_file", cmd.Flags().Lookup("mappings"))

	// to be able to overwrite configuration with flags when env config file is
	// provided or when no configuration is provided
	viper.BindPFlag("ANVIL_MQTT_BROKER", cmd.Flags().Lookup("mqtt-url"))
	viper.BindPFlag("ANVIL_POSTGRES_URL", cmd.Flags().Lookup("postgres-url"))
	viper.BindPFlag("ANVIL_MAPPINGS_FILE", cmd.Flags().Lookup("mappings"))
	return nil
}
