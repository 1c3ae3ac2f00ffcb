// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

type RowSink struct {
	WriteRowFn func(ctx context.Context, i uint, row *telemetry.Row) error
	CloseFn    func() error

	mu         sync.Mutex
	rows       []*telemetry.Row
	writeCalls uint64
}

func (m *RowSink) WriteRow(ctx context.Context, row *telemetry.Row) error {
	i := atomic.AddUint64(&m.writeCalls, 1)
	m.mu.Lock()
	m.rows = append(m.rows, row)
	m.mu.Unlock()
	if m.WriteRowFn != nil {
		return m.WriteRowFn(ctx, uint(i), row)
	}
	return nil
}

func (m *RowSink) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

// Rows returns the rows passed to WriteRow in call order, including rows for
// which WriteRowFn returned an error.
func (m *RowSink) Rows() []*telemetry.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]*telemetry.Row, len(m.rows))
	copy(rows, m.rows)
	return rows
}

func (m *RowSink) WriteCalls() uint64 {
	return atomic.LoadUint64(&m.writeCalls)
}
