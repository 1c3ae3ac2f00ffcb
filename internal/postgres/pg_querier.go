// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

type Querier interface {
	QueryRow(ctx context.Context, query string, args ...any) Row
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Row interface {
	Scan(dest ...any) error
}

type CommandTag struct {
	pgconn.CommandTag
}

type mappedRow struct {
	inner Row
}

func (mr *mappedRow) Scan(dest ...any) error {
	err := mr.inner.Scan(dest...)
	return mapError(err)
}
