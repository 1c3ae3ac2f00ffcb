// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"

	"github.com/anvilhq/anvil/pkg/backoff"
)

type Backoff struct {
	RetryNotifyFn func(backoff.Operation, backoff.Notify) error
	RetryFn       func(backoff.Operation) error
}

func (m *Backoff) RetryNotify(op backoff.Operation, n backoff.Notify) error {
	if m.RetryNotifyFn != nil {
		return m.RetryNotifyFn(op, n)
	}
	return op()
}

func (m *Backoff) Retry(op backoff.Operation) error {
	if m.RetryFn != nil {
		return m.RetryFn(op)
	}
	return op()
}

func NewProvider(b *Backoff) backoff.Provider {
	return func(ctx context.Context) backoff.Backoff {
		return b
	}
}
