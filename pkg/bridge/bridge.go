// SPDX-License-Identifier: Apache-2.0

// Package bridge assembles the MQTT listener, the mapping processor and the
// Postgres row sink into a running pipeline.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	loglib "github.com/anvilhq/anvil/pkg/log"
	"github.com/anvilhq/anvil/pkg/telemetry/listener/mqtt"
	"github.com/anvilhq/anvil/pkg/telemetry/processor/mapper"
	pgsink "github.com/anvilhq/anvil/pkg/telemetry/sink/postgres"
)

// Run starts the bridge and blocks until the context is cancelled or a fatal
// error occurs. Context cancellation is a clean shutdown, not an error.
func Run(ctx context.Context, cfg *Config, logger loglib.Logger) error {
	if err := cfg.IsValid(); err != nil {
		return fmt.Errorf("invalid bridge configuration: %w", err)
	}
	logger = loglib.NewLogger(logger)

	writer, err := pgsink.NewWriter(ctx, &cfg.Sink, pgsink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating postgres row writer: %w", err)
	}
	defer writer.Close()

	mapperOpts := []mapper.Option{mapper.WithLogger(logger)}
	if cfg.RawTable != "" {
		mapperOpts = append(mapperOpts, mapper.WithRawTable(cfg.RawTable))
	}
	proc := mapper.New(cfg.Mappings, writer, mapperOpts...)
	defer proc.Close()

	listener, err := mqtt.NewListener(&cfg.Listener, proc, mqtt.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating mqtt listener: %w", err)
	}
	defer listener.Close()

	logger.Info("starting bridge", loglib.Fields{
		"broker":   cfg.Listener.Broker,
		"topics":   cfg.Listener.Topics,
		"mappings": len(cfg.Mappings.Mappings),
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return listener.Listen(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
