// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anvilhq/anvil/cmd/config"
)

// Version is the anvil version
var (
	Version = "development"
	Env     string
)

func Prepare() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "anvil",
		Short:        "anvil bridges MQTT telemetry into Postgres tables",
		SilenceUsage: true,
		Version:      version(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return nil
		},
	}

	viper.SetEnvPrefix("ANVIL")
	viper.AutomaticEnv()

	// Flag definition

	// root cmd
	rootCmd.PersistentFlags().StringP("config", "c", "", ".env or .yaml config file to use with anvil if any")
	rootCmd.PersistentFlags().String("log-level", "debug", "log level for the application. One of trace, debug, info, warn, error, fatal, panic")

	// start cmd
	startCmd.Flags().StringP("mappings", "m", "", "Path to a YAML file containing the topic mappings")
	startCmd.Flags().String("mqtt-url", "", "MQTT broker URL the bridge will subscribe to")
	startCmd.Flags().String("postgres-url", "", "Target postgres URL the mapped rows will be written to")

	// init cmd
	initCmd.Flags().String("dir", ".", "Directory where the sample configuration files will be written")
	initCmd.Flags().Bool("force", false, "Overwrite existing sample configuration files")

	// validate cmd
	validateCmd.Flags().StringP("mappings", "m", "", "Path to a YAML file containing the topic mappings to validate")
	validateCmd.Flags().Bool("json", false, "Output the validation status in JSON format")

	// Flag binding for root cmd
	rootFlagBinding(rootCmd)

	// register subcommands
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	return rootCmd
}

// Execute executes the root command.
func Execute() error {
	cmd := Prepare()
	return cmd.Execute()
}

func withSignalWatcher(fn func(ctx context.Context) error) func(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		<-sigc
		cancel()
	}()

	return func(cmd *cobra.Command, args []string) error {
		defer cancel()
		return fn(ctx)
	}
}

func rootFlagBinding(cmd *cobra.Command) {
	viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("ANVIL_LOG_LEVEL", cmd.PersistentFlags().Lookup("log-level"))
}

func version() string {
	if Env != "" {
		return Env + " (" + Version + ")"
	}
	return Version
}
