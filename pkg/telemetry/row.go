// SPDX-License-Identifier: Apache-2.0

package telemetry

// InsertMode declares how a row should be persisted by the sink. The mode and
// key are routing information only, the SQL dialect is the sink's concern.
type InsertMode string

const (
	ModeInsert InsertMode = "insert"
	ModeUpsert InsertMode = "upsert"
	ModeUpdate InsertMode = "update"
)

func (m InsertMode) IsValid() bool {
	switch m {
	case ModeInsert, ModeUpsert, ModeUpdate:
		return true
	default:
		return false
	}
}

// Column is a single named value within a row.
type Column struct {
	Name  string
	Value Value
}

// Row is one relational row to be persisted. Columns keep the order they were
// built in; a row is never mutated after being handed to the sink. A row with
// zero columns is a legal no-op.
type Row struct {
	Table   string
	Mode    InsertMode
	Key     string
	Columns []Column
}

// ColumnNames returns the column names in row order.
func (r *Row) ColumnNames() []string {
	names := make([]string, 0, len(r.Columns))
	for _, c := range r.Columns {
		names = append(names, c.Name)
	}
	return names
}
