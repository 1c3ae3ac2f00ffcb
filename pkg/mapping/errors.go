// SPDX-License-Identifier: Apache-2.0

package mapping

import (
	"errors"
	"fmt"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

var (
	errMissingPath   = errors.New(`json source requires a "path"`)
	errMissingValue  = errors.New(`constant source requires a "value"`)
	errUnknownSource = errors.New("unknown field source")
)

// ExtractionError reports a malformed field rule: a missing payload path or
// constant literal, or an invalid topic extraction pattern.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting field %q: %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ConversionError reports a value that could not be coerced into the field's
// declared target type.
type ConversionError struct {
	Input string
	Type  telemetry.ValueType
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %q to %s", e.Input, e.Type)
}

// StructuralError reports a payload whose shape does not support the
// requested mapping, such as numeric-field expansion on a non-object payload.
type StructuralError struct {
	Details string
}

func (e *StructuralError) Error() string {
	return e.Details
}
