// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"context"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

// Processor processes an inbound telemetry message to completion. It can be
// called concurrently for messages from independent streams.
type Processor interface {
	ProcessMessage(ctx context.Context, msg *telemetry.Message) error
	Name() string
	Close() error
}
