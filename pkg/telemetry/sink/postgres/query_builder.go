// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"fmt"
	"strings"

	pglib "github.com/anvilhq/anvil/internal/postgres"
	"github.com/anvilhq/anvil/pkg/telemetry"
)

// buildQuery renders a row into a single parameterised statement. All
// identifiers come from operator configuration or message payloads, so every
// one of them is quoted.
func buildQuery(row *telemetry.Row) (string, []any, error) {
	switch row.Mode {
	case telemetry.ModeInsert:
		query, args := buildInsertQuery(row, false)
		return query, args, nil
	case telemetry.ModeUpsert:
		if row.Key == "" {
			return "", nil, fmt.Errorf("table %q: %w", row.Table, ErrMissingKey)
		}
		query, args := buildInsertQuery(row, true)
		return query, args, nil
	case telemetry.ModeUpdate:
		return buildUpdateQuery(row)
	default:
		return "", nil, fmt.Errorf("table %q: unsupported write mode %q", row.Table, row.Mode)
	}
}

func buildInsertQuery(row *telemetry.Row, onConflict bool) (string, []any) {
	names := make([]string, 0, len(row.Columns))
	placeholders := make([]string, 0, len(row.Columns))
	args := make([]any, 0, len(row.Columns))
	for i, col := range row.Columns {
		names = append(names, pglib.QuoteIdentifier(col.Name))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, col.Value.Any())
	}

	var query strings.Builder
	query.WriteString("INSERT INTO ")
	query.WriteString(pglib.QuoteIdentifier(row.Table))
	query.WriteString(" (")
	query.WriteString(strings.Join(names, ", "))
	query.WriteString(") VALUES (")
	query.WriteString(strings.Join(placeholders, ", "))
	query.WriteString(")")

	if onConflict {
		query.WriteString(" ON CONFLICT (")
		query.WriteString(pglib.QuoteIdentifier(row.Key))
		query.WriteString(") DO ")

		updates := make([]string, 0, len(row.Columns))
		for _, col := range row.Columns {
			if col.Name == row.Key {
				continue
			}
			quoted := pglib.QuoteIdentifier(col.Name)
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
		}
		if len(updates) == 0 {
			query.WriteString("NOTHING")
		} else {
			query.WriteString("UPDATE SET ")
			query.WriteString(strings.Join(updates, ", "))
		}
	}

	return query.String(), args
}

func buildUpdateQuery(row *telemetry.Row) (string, []any, error) {
	if row.Key == "" {
		return "", nil, fmt.Errorf("table %q: %w", row.Table, ErrMissingKey)
	}

	var keyValue any
	keyFound := false
	assignments := make([]string, 0, len(row.Columns))
	args := make([]any, 0, len(row.Columns))
	for _, col := range row.Columns {
		if col.Name == row.Key {
			keyValue = col.Value.Any()
			keyFound = true
			continue
		}
		args = append(args, col.Value.Any())
		assignments = append(assignments, fmt.Sprintf("%s = $%d", pglib.QuoteIdentifier(col.Name), len(args)))
	}
	switch {
	case !keyFound:
		return "", nil, fmt.Errorf("table %q: key column %q not present in row: %w", row.Table, row.Key, ErrMissingKey)
	case len(assignments) == 0:
		return "", nil, fmt.Errorf("table %q: %w", row.Table, ErrNoUpdateColumns)
	}
	args = append(args, keyValue)

	var query strings.Builder
	query.WriteString("UPDATE ")
	query.WriteString(pglib.QuoteIdentifier(row.Table))
	query.WriteString(" SET ")
	query.WriteString(strings.Join(assignments, ", "))
	query.WriteString(" WHERE ")
	query.WriteString(pglib.QuoteIdentifier(row.Key))
	query.WriteString(fmt.Sprintf(" = $%d", len(args)))

	return query.String(), args, nil
}
