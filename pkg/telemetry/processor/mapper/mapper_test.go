// SPDX-License-Identifier: Apache-2.0

package mapper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/anvilhq/anvil/pkg/mapping"
	"github.com/anvilhq/anvil/pkg/telemetry"
	sinkmocks "github.com/anvilhq/anvil/pkg/telemetry/sink/mocks"
)

var testNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func testMappings() *mapping.Config {
	return &mapping.Config{
		Mappings: []mapping.TopicMapping{
			{
				Name:         "bath_telemetry",
				TopicPattern: "device/organ_bath/+",
				Table:        "telemetry",
				Mode:         telemetry.ModeInsert,
				Fields: map[string]mapping.FieldMapping{
					"device_id": {
						Source:  mapping.SourceTopic,
						Extract: "device/organ_bath/(.+)",
						Type:    telemetry.TypeString,
					},
					"temperature": {
						Source: mapping.SourcePayload,
						Path:   "temperature",
						Type:   telemetry.TypeNumber,
					},
				},
			},
		},
	}
}

func newTestMapper(t *testing.T, rowSink *sinkmocks.RowSink) *Mapper {
	t.Helper()
	return New(testMappings(), rowSink, WithClock(clockwork.NewFakeClockAt(testNow)))
}

func rawRowColumns(topic, payload string, at time.Time) []telemetry.Column {
	return []telemetry.Column{
		{Name: "timestamp", Value: telemetry.NewTimestampValue(at)},
		{Name: "topic", Value: telemetry.NewStringValue(topic)},
		{Name: "payload", Value: telemetry.NewStringValue(payload)},
	}
}

func TestMapper_ProcessMessage(t *testing.T) {
	t.Parallel()

	receivedAt := time.Date(2024, 5, 1, 12, 29, 58, 0, time.UTC)

	tests := []struct {
		name string
		msg  *telemetry.Message

		wantRows []*telemetry.Row
	}{
		{
			name: "matched message produces raw and mapped rows",
			msg: &telemetry.Message{
				Topic:      "device/organ_bath/ob-1",
				Payload:    []byte(`{"temperature":36.7}`),
				ReceivedAt: receivedAt,
			},
			wantRows: []*telemetry.Row{
				{
					Table:   "raw_messages",
					Mode:    telemetry.ModeInsert,
					Columns: rawRowColumns("device/organ_bath/ob-1", `{"temperature":36.7}`, receivedAt),
				},
				{
					Table: "telemetry",
					Mode:  telemetry.ModeInsert,
					Columns: []telemetry.Column{
						{Name: "device_id", Value: telemetry.NewStringValue("ob-1")},
						{Name: "temperature", Value: telemetry.NewNumberValue(36.7)},
					},
				},
			},
		},
		{
			name: "unmatched topic still produces the raw row",
			msg: &telemetry.Message{
				Topic:      "device/centrifuge/c-1",
				Payload:    []byte(`{"rpm":1200}`),
				ReceivedAt: receivedAt,
			},
			wantRows: []*telemetry.Row{
				{
					Table:   "raw_messages",
					Mode:    telemetry.ModeInsert,
					Columns: rawRowColumns("device/centrifuge/c-1", `{"rpm":1200}`, receivedAt),
				},
			},
		},
		{
			name: "non json payload produces the raw row only",
			msg: &telemetry.Message{
				Topic:      "device/organ_bath/ob-1",
				Payload:    []byte("temp=36.7"),
				ReceivedAt: receivedAt,
			},
			wantRows: []*telemetry.Row{
				{
					Table:   "raw_messages",
					Mode:    telemetry.ModeInsert,
					Columns: rawRowColumns("device/organ_bath/ob-1", "temp=36.7", receivedAt),
				},
			},
		},
		{
			name: "conversion failure drops the mapped rows but keeps the raw row",
			msg: &telemetry.Message{
				Topic:      "device/organ_bath/ob-1",
				Payload:    []byte(`{"temperature":"boiling"}`),
				ReceivedAt: receivedAt,
			},
			wantRows: []*telemetry.Row{
				{
					Table:   "raw_messages",
					Mode:    telemetry.ModeInsert,
					Columns: rawRowColumns("device/organ_bath/ob-1", `{"temperature":"boiling"}`, receivedAt),
				},
			},
		},
		{
			name: "missing received time falls back to the clock",
			msg: &telemetry.Message{
				Topic:   "device/centrifuge/c-1",
				Payload: []byte(`{}`),
			},
			wantRows: []*telemetry.Row{
				{
					Table:   "raw_messages",
					Mode:    telemetry.ModeInsert,
					Columns: rawRowColumns("device/centrifuge/c-1", `{}`, testNow),
				},
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rowSink := &sinkmocks.RowSink{}
			m := newTestMapper(t, rowSink)

			require.NoError(t, m.ProcessMessage(context.Background(), tc.msg))
			require.Equal(t, tc.wantRows, rowSink.Rows())
		})
	}
}

func TestMapper_ProcessMessage_InvalidUTF8(t *testing.T) {
	t.Parallel()

	rowSink := &sinkmocks.RowSink{}
	m := newTestMapper(t, rowSink)

	err := m.ProcessMessage(context.Background(), &telemetry.Message{
		Topic:   "device/organ_bath/ob-1",
		Payload: []byte{0xff, 0xfe, 0xfd},
	})
	require.NoError(t, err)
	// dropped before the audit write, no rows of any kind
	require.Zero(t, rowSink.WriteCalls())
}

func TestMapper_ProcessMessage_EmptyRowSkipped(t *testing.T) {
	t.Parallel()

	mappings := &mapping.Config{
		Mappings: []mapping.TopicMapping{
			{
				Name:         "sparse",
				TopicPattern: "device/#",
				Table:        "telemetry",
				Mode:         telemetry.ModeInsert,
				Fields: map[string]mapping.FieldMapping{
					"temperature": {
						Source: mapping.SourcePayload,
						Path:   "temperature",
						Type:   telemetry.TypeNumber,
					},
				},
			},
		},
	}
	rowSink := &sinkmocks.RowSink{}
	m := New(mappings, rowSink, WithClock(clockwork.NewFakeClockAt(testNow)))

	err := m.ProcessMessage(context.Background(), &telemetry.Message{
		Topic:      "device/organ_bath/ob-1",
		Payload:    []byte(`{"status":"ok"}`),
		ReceivedAt: testNow,
	})
	require.NoError(t, err)

	rows := rowSink.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, "raw_messages", rows[0].Table)
}

func TestMapper_ProcessMessage_SinkErrors(t *testing.T) {
	t.Parallel()

	errSink := errors.New("connection reset")

	t.Run("raw row write fails", func(t *testing.T) {
		t.Parallel()

		rowSink := &sinkmocks.RowSink{
			WriteRowFn: func(_ context.Context, _ uint, _ *telemetry.Row) error {
				return errSink
			},
		}
		m := newTestMapper(t, rowSink)

		err := m.ProcessMessage(context.Background(), &telemetry.Message{
			Topic:      "device/organ_bath/ob-1",
			Payload:    []byte(`{"temperature":36.7}`),
			ReceivedAt: testNow,
		})
		require.ErrorIs(t, err, errSink)
	})

	t.Run("mapped row write fails", func(t *testing.T) {
		t.Parallel()

		rowSink := &sinkmocks.RowSink{
			WriteRowFn: func(_ context.Context, i uint, _ *telemetry.Row) error {
				if i == 2 {
					return errSink
				}
				return nil
			},
		}
		m := newTestMapper(t, rowSink)

		err := m.ProcessMessage(context.Background(), &telemetry.Message{
			Topic:      "device/organ_bath/ob-1",
			Payload:    []byte(`{"temperature":36.7}`),
			ReceivedAt: testNow,
		})
		require.ErrorIs(t, err, errSink)
		require.ErrorContains(t, err, `table "telemetry"`)
	})
}
