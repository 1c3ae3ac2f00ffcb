// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync/atomic"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

type Processor struct {
	ProcessMessageFn func(ctx context.Context, i uint, msg *telemetry.Message) error
	CloseFn          func() error

	processCalls uint64
}

func (m *Processor) ProcessMessage(ctx context.Context, msg *telemetry.Message) error {
	i := atomic.AddUint64(&m.processCalls, 1)
	if m.ProcessMessageFn != nil {
		return m.ProcessMessageFn(ctx, uint(i), msg)
	}
	return nil
}

func (m *Processor) Name() string { return "mock" }

func (m *Processor) Close() error {
	if m.CloseFn != nil {
		return m.CloseFn()
	}
	return nil
}

func (m *Processor) ProcessCalls() uint64 {
	return atomic.LoadUint64(&m.processCalls)
}
