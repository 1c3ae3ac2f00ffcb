// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

// RowSink persists rows produced by the pipeline. Implementations own
// identifier quoting, parameter binding and statement execution, and report
// success or failure synchronously so the caller can isolate per-message
// errors.
type RowSink interface {
	WriteRow(ctx context.Context, row *telemetry.Row) error
	Close() error
}
