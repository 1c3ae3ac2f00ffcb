// SPDX-License-Identifier: Apache-2.0

package mapping

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

// Executor turns one matched message into its target rows. It is stateless
// apart from the clock and safe for concurrent use.
type Executor struct {
	clock clockwork.Clock
}

type ExecutorOption func(*Executor)

func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithClock(c clockwork.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = c
	}
}

// Rows produces the rows for a single message under the given mapping. In
// standard mode it produces at most one row; with numeric-field expansion
// enabled it produces one row per qualifying payload member. Any extraction
// or conversion failure aborts all rows for the message, partial rows are
// never returned.
func (e *Executor) Rows(m *TopicMapping, topic string, doc gjson.Result) ([]*telemetry.Row, error) {
	if m.ExpandNumericFields != nil && m.ExpandNumericFields.Enabled {
		return e.expandRows(m, topic, doc)
	}

	row, err := e.buildRow(m, topic, doc)
	if err != nil {
		return nil, err
	}
	return []*telemetry.Row{row}, nil
}

func (e *Executor) buildRow(m *TopicMapping, topic string, doc gjson.Result) (*telemetry.Row, error) {
	row := &telemetry.Row{
		Table: m.Table,
		Mode:  m.Mode,
		Key:   m.Key,
	}
	for _, key := range m.fieldKeys() {
		fm := m.Fields[key]
		value, found, err := e.extractField(key, &fm, topic, doc)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		row.Columns = append(row.Columns, telemetry.Column{
			Name:  m.targetColumn(key),
			Value: value,
		})
	}
	return row, nil
}

func (e *Executor) expandRows(m *TopicMapping, topic string, doc gjson.Result) ([]*telemetry.Row, error) {
	if !doc.IsObject() {
		return nil, &StructuralError{
			Details: "numeric field expansion requires a JSON object payload",
		}
	}
	expand := m.ExpandNumericFields

	// base columns shared by every expanded row
	var base []telemetry.Column
	for _, key := range m.fieldKeys() {
		if !slices.Contains(expand.IncludeFields, key) {
			continue
		}
		fm := m.Fields[key]
		value, found, err := e.extractField(key, &fm, topic, doc)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		base = append(base, telemetry.Column{
			Name:  m.targetColumn(key),
			Value: value,
		})
	}

	var rows []*telemetry.Row
	doc.ForEach(func(key, value gjson.Result) bool {
		if slices.Contains(expand.Exclude, key.Str) {
			return true
		}
		if value.Type != gjson.Number {
			return true
		}
		columns := make([]telemetry.Column, len(base), len(base)+2)
		copy(columns, base)
		columns = append(columns,
			telemetry.Column{Name: expand.SensorNameFrom, Value: telemetry.NewStringValue(key.Str)},
			telemetry.Column{Name: expand.ValueFrom, Value: telemetry.NewNumberValue(value.Num)},
		)
		rows = append(rows, &telemetry.Row{
			Table:   m.Table,
			Mode:    m.Mode,
			Key:     m.Key,
			Columns: columns,
		})
		return true
	})

	return rows, nil
}

// extractField runs extraction, default substitution and conversion for a
// single field rule. The second return value is false when the field yields
// nothing and should be omitted from the row.
func (e *Executor) extractField(key string, fm *FieldMapping, topic string, doc gjson.Result) (telemetry.Value, bool, error) {
	raw, found, err := e.rawValue(key, fm, topic, doc)
	if err != nil {
		return telemetry.Value{}, false, err
	}
	if !found {
		if fm.Default == nil {
			return telemetry.Value{}, false, nil
		}
		if *fm.Default == DefaultNow {
			raw = stringResult(e.now())
		} else {
			raw = stringResult(*fm.Default)
		}
	}

	value, err := convertValue(raw, fm.Type)
	if err != nil {
		return telemetry.Value{}, false, err
	}
	return value, true, nil
}

// rawValue interprets the field's source. The source set is closed, this
// switch is its only interpreter.
func (e *Executor) rawValue(key string, fm *FieldMapping, topic string, doc gjson.Result) (gjson.Result, bool, error) {
	switch fm.Source {
	case SourcePayload:
		if fm.Path == "" {
			return gjson.Result{}, false, &ExtractionError{Field: key, Err: errMissingPath}
		}
		if fm.Path == "." {
			return doc, true, nil
		}
		result := doc.Get(fm.Path)
		if !result.Exists() {
			return gjson.Result{}, false, nil
		}
		return result, true, nil

	case SourceTopic:
		if fm.Extract == "" {
			return stringResult(topic), true, nil
		}
		re, err := regexp.Compile(fm.Extract)
		if err != nil {
			return gjson.Result{}, false, &ExtractionError{
				Field: key,
				Err:   fmt.Errorf("invalid extract pattern: %w", err),
			}
		}
		groups := re.FindStringSubmatch(topic)
		if len(groups) < 2 {
			return gjson.Result{}, false, nil
		}
		return stringResult(groups[1]), true, nil

	case SourceCurrentTime:
		return stringResult(e.now()), true, nil

	case SourceConstant:
		if fm.Value == nil {
			return gjson.Result{}, false, &ExtractionError{Field: key, Err: errMissingValue}
		}
		return stringResult(*fm.Value), true, nil

	default:
		return gjson.Result{}, false, &ExtractionError{
			Field: key,
			Err:   fmt.Errorf("%w: %q", errUnknownSource, fm.Source),
		}
	}
}

func (e *Executor) now() string {
	return e.clock.Now().UTC().Format(time.RFC3339Nano)
}

func stringResult(s string) gjson.Result {
	return gjson.Result{Type: gjson.String, Str: s}
}
