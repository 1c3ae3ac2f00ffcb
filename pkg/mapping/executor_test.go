// SPDX-License-Identifier: Apache-2.0

package mapping

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

var testNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func newTestExecutor() *Executor {
	return NewExecutor(WithClock(clockwork.NewFakeClockAt(testNow)))
}

func strptr(s string) *string {
	return &s
}

func TestExecutor_Rows_Standard(t *testing.T) {
	t.Parallel()

	mapping := &TopicMapping{
		Name:         "telemetry",
		TopicPattern: "device/organ_bath/+",
		Table:        "telemetry",
		Mode:         telemetry.ModeInsert,
		Fields: map[string]FieldMapping{
			"device_id": {
				Source:  SourceTopic,
				Extract: `device/organ_bath/(.+)`,
				Type:    telemetry.TypeString,
				Default: strptr("unknown"),
			},
			"temperature": {
				Source: SourcePayload,
				Path:   "temperature",
				Type:   telemetry.TypeNumber,
			},
			"recorded_at": {
				Source:  SourcePayload,
				Path:    "timestamp",
				Target:  "timestamp",
				Type:    telemetry.TypeTimestamp,
				Default: strptr(DefaultNow),
			},
			"source": {
				Source: SourceConstant,
				Value:  strptr("anvil"),
				Type:   telemetry.TypeString,
			},
		},
	}

	tests := []struct {
		name    string
		topic   string
		payload string

		wantColumns []telemetry.Column
		wantErrAs   any
	}{
		{
			name:    "all fields present",
			topic:   "device/organ_bath/ob1",
			payload: `{"temperature":80,"timestamp":"2024-01-01T00:00:00Z"}`,
			// columns are built in sorted field key order
			wantColumns: []telemetry.Column{
				{Name: "device_id", Value: telemetry.NewStringValue("ob1")},
				{Name: "timestamp", Value: telemetry.NewTimestampValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
				{Name: "source", Value: telemetry.NewStringValue("anvil")},
				{Name: "temperature", Value: telemetry.NewNumberValue(80)},
			},
		},
		{
			name:    "missing field with no default is omitted",
			topic:   "device/organ_bath/ob1",
			payload: `{"timestamp":"2024-01-01T00:00:00Z"}`,
			wantColumns: []telemetry.Column{
				{Name: "device_id", Value: telemetry.NewStringValue("ob1")},
				{Name: "timestamp", Value: telemetry.NewTimestampValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
				{Name: "source", Value: telemetry.NewStringValue("anvil")},
			},
		},
		{
			name:    "missing field with now default gets a fresh timestamp",
			topic:   "device/organ_bath/ob1",
			payload: `{"temperature":80}`,
			wantColumns: []telemetry.Column{
				{Name: "device_id", Value: telemetry.NewStringValue("ob1")},
				{Name: "timestamp", Value: telemetry.NewTimestampValue(testNow)},
				{Name: "source", Value: telemetry.NewStringValue("anvil")},
				{Name: "temperature", Value: telemetry.NewNumberValue(80)},
			},
		},
		{
			name:    "topic not matching extract falls back to default",
			topic:   "device/other/ob2",
			payload: `{"temperature":80,"timestamp":"2024-01-01T00:00:00Z"}`,
			wantColumns: []telemetry.Column{
				{Name: "device_id", Value: telemetry.NewStringValue("unknown")},
				{Name: "timestamp", Value: telemetry.NewTimestampValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
				{Name: "source", Value: telemetry.NewStringValue("anvil")},
				{Name: "temperature", Value: telemetry.NewNumberValue(80)},
			},
		},
		{
			name:      "unconvertible value aborts the whole row",
			topic:     "device/organ_bath/ob1",
			payload:   `{"temperature":"hot","timestamp":"2024-01-01T00:00:00Z"}`,
			wantErrAs: new(*ConversionError),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rows, err := newTestExecutor().Rows(mapping, tc.topic, gjson.Parse(tc.payload))
			if tc.wantErrAs != nil {
				require.True(t, errors.As(err, tc.wantErrAs))
				require.Empty(t, rows)
				return
			}
			require.NoError(t, err)
			require.Len(t, rows, 1)
			require.Equal(t, "telemetry", rows[0].Table)
			requireColumnsEqual(t, tc.wantColumns, rows[0].Columns)
		})
	}
}

func TestExecutor_Rows_EmptyRow(t *testing.T) {
	t.Parallel()

	mapping := &TopicMapping{
		Table: "telemetry",
		Mode:  telemetry.ModeInsert,
		Fields: map[string]FieldMapping{
			"ph": {Source: SourcePayload, Path: "ph", Type: telemetry.TypeNumber},
		},
	}

	rows, err := newTestExecutor().Rows(mapping, "device/x", gjson.Parse(`{"other":1}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Empty(t, rows[0].Columns)
}

func TestExecutor_Rows_MalformedRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field FieldMapping
	}{
		{name: "json source without path", field: FieldMapping{Source: SourcePayload, Type: telemetry.TypeString}},
		{name: "constant source without value", field: FieldMapping{Source: SourceConstant, Type: telemetry.TypeString}},
		{name: "invalid extract pattern", field: FieldMapping{Source: SourceTopic, Extract: `device/(`, Type: telemetry.TypeString}},
		{name: "unknown source", field: FieldMapping{Source: "csv", Type: telemetry.TypeString}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mapping := &TopicMapping{
				Table:  "telemetry",
				Mode:   telemetry.ModeInsert,
				Fields: map[string]FieldMapping{"f": tc.field},
			}
			rows, err := newTestExecutor().Rows(mapping, "device/x", gjson.Parse(`{}`))
			var extractionErr *ExtractionError
			require.True(t, errors.As(err, &extractionErr))
			require.Equal(t, "f", extractionErr.Field)
			require.Empty(t, rows)
		})
	}
}

func TestExecutor_Rows_NestedPathAndWholeDocument(t *testing.T) {
	t.Parallel()

	mapping := &TopicMapping{
		Table: "telemetry",
		Mode:  telemetry.ModeInsert,
		Fields: map[string]FieldMapping{
			"location": {Source: SourcePayload, Path: "metadata.location", Type: telemetry.TypeString},
			"raw":      {Source: SourcePayload, Path: ".", Type: telemetry.TypeString},
		},
	}

	payload := `{"metadata":{"location":"lab-3"}}`
	rows, err := newTestExecutor().Rows(mapping, "device/x", gjson.Parse(payload))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	requireColumnsEqual(t, []telemetry.Column{
		{Name: "location", Value: telemetry.NewStringValue("lab-3")},
		{Name: "raw", Value: telemetry.NewStringValue(payload)},
	}, rows[0].Columns)
}

func TestExecutor_Rows_Expansion(t *testing.T) {
	t.Parallel()

	mapping := &TopicMapping{
		Name:         "expanded",
		TopicPattern: "device/organ_bath/+",
		Table:        "readings",
		Mode:         telemetry.ModeInsert,
		Fields: map[string]FieldMapping{
			"device_id": {Source: SourcePayload, Path: "device_id", Type: telemetry.TypeString},
			"timestamp": {Source: SourcePayload, Path: "timestamp", Type: telemetry.TypeTimestamp},
			"topic":     {Source: SourceTopic, Type: telemetry.TypeString},
		},
		ExpandNumericFields: &ExpandConfig{
			Enabled:        true,
			Exclude:        []string{"timestamp", "device_id"},
			SensorNameFrom: "sensor_name",
			ValueFrom:      "value",
			IncludeFields:  []string{"device_id", "timestamp"},
		},
	}

	payload := `{"temperature":80,"ph":2.4,"device_id":"x","timestamp":"2024-01-01T00:00:00Z"}`
	rows, err := newTestExecutor().Rows(mapping, "device/organ_bath/x", gjson.Parse(payload))
	require.NoError(t, err)

	base := []telemetry.Column{
		{Name: "device_id", Value: telemetry.NewStringValue("x")},
		{Name: "timestamp", Value: telemetry.NewTimestampValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
	}
	want := []*telemetry.Row{
		{Table: "readings", Mode: telemetry.ModeInsert, Columns: append(append([]telemetry.Column{}, base...),
			telemetry.Column{Name: "sensor_name", Value: telemetry.NewStringValue("ph")},
			telemetry.Column{Name: "value", Value: telemetry.NewNumberValue(2.4)},
		)},
		{Table: "readings", Mode: telemetry.ModeInsert, Columns: append(append([]telemetry.Column{}, base...),
			telemetry.Column{Name: "sensor_name", Value: telemetry.NewStringValue("temperature")},
			telemetry.Column{Name: "value", Value: telemetry.NewNumberValue(80)},
		)},
	}

	// member order is a document detail, compare as a set
	requireRowSetEqual(t, want, rows)
}

func TestExecutor_Rows_ExpansionEdgeCases(t *testing.T) {
	t.Parallel()

	mapping := &TopicMapping{
		Table: "readings",
		Mode:  telemetry.ModeInsert,
		Fields: map[string]FieldMapping{
			"device_id": {Source: SourcePayload, Path: "device_id", Type: telemetry.TypeString},
		},
		ExpandNumericFields: &ExpandConfig{
			Enabled:        true,
			Exclude:        []string{"device_id"},
			SensorNameFrom: "sensor_name",
			ValueFrom:      "value",
			IncludeFields:  []string{"device_id"},
		},
	}

	t.Run("non object payload", func(t *testing.T) {
		t.Parallel()
		rows, err := newTestExecutor().Rows(mapping, "device/x", gjson.Parse(`[1,2,3]`))
		var structuralErr *StructuralError
		require.True(t, errors.As(err, &structuralErr))
		require.Empty(t, rows)
	})

	t.Run("non numeric members are skipped", func(t *testing.T) {
		t.Parallel()
		rows, err := newTestExecutor().Rows(mapping, "device/x", gjson.Parse(`{"device_id":"x","status":"ok","count":3}`))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		requireColumnsEqual(t, []telemetry.Column{
			{Name: "device_id", Value: telemetry.NewStringValue("x")},
			{Name: "sensor_name", Value: telemetry.NewStringValue("count")},
			{Name: "value", Value: telemetry.NewNumberValue(3)},
		}, rows[0].Columns)
	})

	t.Run("no numeric members yields zero rows", func(t *testing.T) {
		t.Parallel()
		rows, err := newTestExecutor().Rows(mapping, "device/x", gjson.Parse(`{"device_id":"x","status":"ok"}`))
		require.NoError(t, err)
		require.Empty(t, rows)
	})
}

func requireColumnsEqual(t *testing.T, want, got []telemetry.Column) {
	t.Helper()
	diff := cmp.Diff(want, got, cmp.AllowUnexported(telemetry.Value{}))
	require.Empty(t, diff)
}

func requireRowSetEqual(t *testing.T, want, got []*telemetry.Row) {
	t.Helper()
	sortRows := func(rows []*telemetry.Row) {
		sort.Slice(rows, func(i, j int) bool {
			return columnString(rows[i]) < columnString(rows[j])
		})
	}
	sortRows(want)
	sortRows(got)
	diff := cmp.Diff(want, got, cmp.AllowUnexported(telemetry.Value{}))
	require.Empty(t, diff)
}

func columnString(r *telemetry.Row) string {
	s := r.Table
	for _, c := range r.Columns {
		s += "|" + c.Name + "=" + c.Value.String()
	}
	return s
}
