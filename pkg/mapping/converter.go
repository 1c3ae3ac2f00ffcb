// SPDX-License-Identifier: Apache-2.0

package mapping

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

// maxEpochSeconds is the number of seconds between the epoch and
// 2100-01-01T00:00:00Z. Integer timestamps above it are treated as
// milliseconds.
const maxEpochSeconds = 4102444800

// convertValue coerces a raw extracted value into the declared target type.
func convertValue(raw gjson.Result, targetType telemetry.ValueType) (telemetry.Value, error) {
	switch targetType {
	case telemetry.TypeString:
		return telemetry.NewStringValue(stringify(raw)), nil

	case telemetry.TypeNumber:
		switch raw.Type {
		case gjson.Number:
			return telemetry.NewNumberValue(raw.Num), nil
		case gjson.String:
			n, err := strconv.ParseFloat(raw.Str, 64)
			if err != nil {
				return telemetry.Value{}, &ConversionError{Input: raw.Str, Type: targetType}
			}
			return telemetry.NewNumberValue(n), nil
		}

	case telemetry.TypeInteger:
		switch raw.Type {
		case gjson.Number:
			// parse the literal rather than truncating the float so
			// that 2.5 fails instead of silently rounding
			i, err := strconv.ParseInt(raw.Raw, 10, 64)
			if err != nil {
				return telemetry.Value{}, &ConversionError{Input: raw.Raw, Type: targetType}
			}
			return telemetry.NewIntegerValue(i), nil
		case gjson.String:
			i, err := strconv.ParseInt(raw.Str, 10, 64)
			if err != nil {
				return telemetry.Value{}, &ConversionError{Input: raw.Str, Type: targetType}
			}
			return telemetry.NewIntegerValue(i), nil
		}

	case telemetry.TypeBoolean:
		switch raw.Type {
		case gjson.True:
			return telemetry.NewBooleanValue(true), nil
		case gjson.False:
			return telemetry.NewBooleanValue(false), nil
		case gjson.String:
			switch raw.Str {
			case "true":
				return telemetry.NewBooleanValue(true), nil
			case "false":
				return telemetry.NewBooleanValue(false), nil
			}
		}

	case telemetry.TypeTimestamp:
		if raw.Type != gjson.String {
			break
		}
		ts, err := parseTimestamp(raw.Str)
		if err != nil {
			return telemetry.Value{}, &ConversionError{Input: raw.Str, Type: targetType}
		}
		return telemetry.NewTimestampValue(ts), nil
	}

	return telemetry.Value{}, &ConversionError{Input: stringify(raw), Type: targetType}
}

// stringify renders a raw value in its natural textual form: strings as-is,
// numbers and booleans as their literals, anything else as its JSON text.
func stringify(raw gjson.Result) string {
	switch raw.Type {
	case gjson.String:
		return raw.Str
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	default:
		return raw.Raw
	}
}

// parseTimestamp accepts RFC3339 text, or an integer epoch disambiguated
// between seconds and milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > maxEpochSeconds {
		return time.Unix(n/1000, (n%1000)*int64(time.Millisecond)).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
