// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"

	pglib "github.com/anvilhq/anvil/internal/postgres"
	loglib "github.com/anvilhq/anvil/pkg/log"
	"github.com/anvilhq/anvil/pkg/telemetry"
)

// Writer persists mapped rows into Postgres. Each row becomes a single
// statement in the mode the mapping requested (insert, upsert or update).
type Writer struct {
	logger loglib.Logger
	conn   pglib.Querier
}

type Option func(*Writer)

// NewWriter opens a connection pool against the configured database and
// verifies it is reachable before returning.
func NewWriter(ctx context.Context, cfg *Config, opts ...Option) (*Writer, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, err
	}

	pool, err := pglib.NewConnPool(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close(ctx)
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	w := &Writer{
		logger: loglib.NewNoopLogger(),
		conn:   pool,
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

func WithLogger(l loglib.Logger) Option {
	return func(w *Writer) {
		w.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "postgres_row_writer",
		})
	}
}

// WriteRow executes the statement for the given row. Rows without columns are
// a no-op.
func (w *Writer) WriteRow(ctx context.Context, row *telemetry.Row) error {
	if row == nil || len(row.Columns) == 0 {
		return nil
	}

	query, args, err := buildQuery(row)
	if err != nil {
		return err
	}

	w.logger.Trace("writing row", loglib.Fields{
		"table": row.Table,
		"mode":  string(row.Mode),
		"query": query,
	})

	if _, err := w.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("writing %s row to table %q: %w", row.Mode, row.Table, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.conn.Close(context.Background())
}
