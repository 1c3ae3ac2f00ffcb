// SPDX-License-Identifier: Apache-2.0

package mapper

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"

	loglib "github.com/anvilhq/anvil/pkg/log"
	"github.com/anvilhq/anvil/pkg/mapping"
	"github.com/anvilhq/anvil/pkg/telemetry"
	"github.com/anvilhq/anvil/pkg/telemetry/sink"
)

const defaultRawTable = "raw_messages"

// Mapper is the processor at the centre of the bridge. For every message it
// stores a raw audit row, then maps the payload into target rows according to
// the first mapping whose topic pattern matches.
//
// Mapping failures are contained to the message that caused them. Sink
// failures are returned to the caller, they concern more than one message.
type Mapper struct {
	logger   loglib.Logger
	mappings *mapping.Config
	executor *mapping.Executor
	sink     sink.RowSink
	rawTable string
	clock    clockwork.Clock
}

type Option func(*Mapper)

func New(mappings *mapping.Config, rowSink sink.RowSink, opts ...Option) *Mapper {
	m := &Mapper{
		logger:   loglib.NewNoopLogger(),
		mappings: mappings,
		sink:     rowSink,
		rawTable: defaultRawTable,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.executor = mapping.NewExecutor(mapping.WithClock(m.clock))
	return m
}

func WithLogger(l loglib.Logger) Option {
	return func(m *Mapper) {
		m.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "mapper",
		})
	}
}

// WithRawTable overrides the table receiving the raw copy of every message.
func WithRawTable(table string) Option {
	return func(m *Mapper) {
		m.rawTable = table
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(m *Mapper) {
		m.clock = c
	}
}

func (m *Mapper) ProcessMessage(ctx context.Context, msg *telemetry.Message) error {
	if !utf8.Valid(msg.Payload) {
		m.logger.Warn(nil, "dropping message with invalid utf-8 payload", loglib.Fields{
			"topic":         msg.Topic,
			"payload_bytes": len(msg.Payload),
		})
		return nil
	}
	payload := string(msg.Payload)

	if err := m.sink.WriteRow(ctx, m.rawRow(msg, payload)); err != nil {
		return fmt.Errorf("writing raw row: %w", err)
	}

	if !gjson.Valid(payload) {
		m.logger.Debug("payload is not valid json, raw row only", loglib.Fields{
			"topic": msg.Topic,
		})
		return nil
	}

	tm := m.mappings.FindMapping(msg.Topic)
	if tm == nil {
		m.logger.Debug("no mapping for topic, raw row only", loglib.Fields{
			"topic": msg.Topic,
		})
		return nil
	}

	rows, err := m.executor.Rows(tm, msg.Topic, gjson.Parse(payload))
	if err != nil {
		// a malformed rule or unconvertible value only affects this message
		m.logger.Error(err, "mapping message", loglib.Fields{
			"topic":   msg.Topic,
			"mapping": tm.Name,
		})
		return nil
	}

	written := 0
	for _, row := range rows {
		if len(row.Columns) == 0 {
			m.logger.Warn(nil, "mapping produced an empty row, skipping write", loglib.Fields{
				"topic":   msg.Topic,
				"mapping": tm.Name,
				"table":   row.Table,
			})
			continue
		}
		if err := m.sink.WriteRow(ctx, row); err != nil {
			return fmt.Errorf("writing mapped row to table %q: %w", row.Table, err)
		}
		written++
	}

	m.logger.Trace("message mapped", loglib.Fields{
		"topic":   msg.Topic,
		"mapping": tm.Name,
		"rows":    written,
	})
	return nil
}

func (m *Mapper) Name() string {
	return "mapper"
}

func (m *Mapper) Close() error {
	return nil
}

// rawRow builds the unconditional audit copy of the message.
func (m *Mapper) rawRow(msg *telemetry.Message, payload string) *telemetry.Row {
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = m.clock.Now()
	}
	return &telemetry.Row{
		Table: m.rawTable,
		Mode:  telemetry.ModeInsert,
		Columns: []telemetry.Column{
			{Name: "timestamp", Value: telemetry.NewTimestampValue(receivedAt)},
			{Name: "topic", Value: telemetry.NewStringValue(msg.Topic)},
			{Name: "payload", Value: telemetry.NewStringValue(payload)},
		},
	}
}
