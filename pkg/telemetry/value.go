// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strconv"
	"time"
)

// ValueType identifies one of the five canonical column types a field can be
// converted into.
type ValueType string

const (
	TypeString    ValueType = "string"
	TypeNumber    ValueType = "number"
	TypeInteger   ValueType = "integer"
	TypeBoolean   ValueType = "boolean"
	TypeTimestamp ValueType = "timestamp"
)

func (t ValueType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeTimestamp:
		return true
	default:
		return false
	}
}

// Value is a typed column value. The type tag always matches the declared
// target type of the field rule that produced it.
type Value struct {
	typ ValueType
	str string
	num float64
	i   int64
	b   bool
	ts  time.Time
}

func NewStringValue(s string) Value {
	return Value{typ: TypeString, str: s}
}

func NewNumberValue(n float64) Value {
	return Value{typ: TypeNumber, num: n}
}

func NewIntegerValue(i int64) Value {
	return Value{typ: TypeInteger, i: i}
}

func NewBooleanValue(b bool) Value {
	return Value{typ: TypeBoolean, b: b}
}

func NewTimestampValue(ts time.Time) Value {
	return Value{typ: TypeTimestamp, ts: ts.UTC()}
}

func (v Value) Type() ValueType {
	return v.typ
}

// Any returns the native Go representation of the value, suitable for binding
// as a statement parameter.
func (v Value) Any() any {
	switch v.typ {
	case TypeNumber:
		return v.num
	case TypeInteger:
		return v.i
	case TypeBoolean:
		return v.b
	case TypeTimestamp:
		return v.ts
	default:
		return v.str
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case TypeInteger:
		return strconv.FormatInt(v.i, 10)
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	case TypeTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	default:
		return v.str
	}
}
