// SPDX-License-Identifier: Apache-2.0

package mapping

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/anvilhq/anvil/pkg/telemetry"
)

// Config is the full set of topic mappings, in declaration order. It is
// loaded once at startup and never mutated afterwards, so it can be shared by
// reference across any number of concurrent callers.
type Config struct {
	Mappings []TopicMapping `mapstructure:"mappings" yaml:"mappings"`
}

// TopicMapping binds a topic pattern to a target table and a set of field
// rules.
type TopicMapping struct {
	// human readable name for this mapping
	Name string `mapstructure:"name" yaml:"name"`
	// topic pattern, supports the + and # wildcards
	TopicPattern string `mapstructure:"topic_pattern" yaml:"topic_pattern"`
	// target database table
	Table string `mapstructure:"table" yaml:"table"`
	// insert mode, one of insert, upsert or update (defaults to insert)
	Mode telemetry.InsertMode `mapstructure:"mode" yaml:"mode,omitempty"`
	// key column for upsert/update modes
	Key string `mapstructure:"key" yaml:"key,omitempty"`
	// field rules, keyed by field name
	Fields map[string]FieldMapping `mapstructure:"fields" yaml:"fields"`
	// optional expansion of numeric payload members into separate rows
	ExpandNumericFields *ExpandConfig `mapstructure:"expand_numeric_fields" yaml:"expand_numeric_fields,omitempty"`
}

// FieldSource identifies where a field's raw value comes from. The set is
// closed: adding a source means extending these constants and the executor's
// source switch.
type FieldSource string

const (
	SourcePayload     FieldSource = "json"
	SourceTopic       FieldSource = "topic"
	SourceCurrentTime FieldSource = "current_time"
	SourceConstant    FieldSource = "constant"
)

func (s FieldSource) IsValid() bool {
	switch s {
	case SourcePayload, SourceTopic, SourceCurrentTime, SourceConstant:
		return true
	default:
		return false
	}
}

// DefaultNow is the sentinel default that substitutes the current UTC instant
// when a field has no value.
const DefaultNow = "now"

// FieldMapping is the rule for a single field.
type FieldMapping struct {
	Source FieldSource `mapstructure:"source" yaml:"source"`
	// for json source: dot separated path into the payload, "." for the
	// whole document
	Path string `mapstructure:"path" yaml:"path,omitempty"`
	// for topic source: regex whose first capture group becomes the value
	Extract string `mapstructure:"extract" yaml:"extract,omitempty"`
	// for constant source: the literal value
	Value *string `mapstructure:"value" yaml:"value,omitempty"`
	// target column name, defaults to the field name
	Target string `mapstructure:"target" yaml:"target,omitempty"`
	// target type, defaults to string
	Type telemetry.ValueType `mapstructure:"type" yaml:"type,omitempty"`
	// default value if the source yields nothing; "now" substitutes the
	// current UTC instant
	Default *string `mapstructure:"default" yaml:"default,omitempty"`
}

// ExpandConfig expands flat numeric payload members into one row each.
type ExpandConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// payload member names never expanded
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
	// column receiving the payload member name
	SensorNameFrom string `mapstructure:"sensor_name_from" yaml:"sensor_name_from"`
	// column receiving the numeric value
	ValueFrom string `mapstructure:"value_from" yaml:"value_from"`
	// field names included as shared columns in every expanded row
	IncludeFields []string `mapstructure:"include_fields" yaml:"include_fields,omitempty"`
}

// Load reads and validates a mappings file.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mappings file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("parsing mappings file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Mappings {
		m := &c.Mappings[i]
		if m.Mode == "" {
			m.Mode = telemetry.ModeInsert
		}
		for key, fm := range m.Fields {
			if fm.Type == "" {
				fm.Type = telemetry.TypeString
				m.Fields[key] = fm
			}
		}
	}
}

// Validate checks the whole mapping set and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	for i := range c.Mappings {
		if err := c.Mappings[i].validate(); err != nil {
			errs = append(errs, fmt.Errorf("mapping %q: %w", c.Mappings[i].name(i), err))
		}
	}
	return errors.Join(errs...)
}

func (m *TopicMapping) name(idx int) string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("#%d", idx)
}

func (m *TopicMapping) validate() error {
	var errs []error
	if m.TopicPattern == "" {
		errs = append(errs, errors.New("topic_pattern is required"))
	}
	if err := validatePattern(m.TopicPattern); err != nil {
		errs = append(errs, err)
	}
	if m.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}
	if !m.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("unknown mode %q", m.Mode))
	}
	if (m.Mode == telemetry.ModeUpsert || m.Mode == telemetry.ModeUpdate) && m.Key == "" {
		errs = append(errs, fmt.Errorf("mode %q requires a key", m.Mode))
	}
	for _, key := range m.fieldKeys() {
		fm := m.Fields[key]
		if err := fm.validate(); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", key, err))
		}
	}
	if expand := m.ExpandNumericFields; expand != nil && expand.Enabled {
		if expand.SensorNameFrom == "" {
			errs = append(errs, errors.New("expand_numeric_fields requires sensor_name_from"))
		}
		if expand.ValueFrom == "" {
			errs = append(errs, errors.New("expand_numeric_fields requires value_from"))
		}
	}
	return errors.Join(errs...)
}

func (fm *FieldMapping) validate() error {
	var errs []error
	switch fm.Source {
	case SourcePayload:
		if fm.Path == "" {
			errs = append(errs, errMissingPath)
		}
	case SourceTopic:
		if fm.Extract != "" {
			if _, err := regexp.Compile(fm.Extract); err != nil {
				errs = append(errs, fmt.Errorf("invalid extract pattern: %w", err))
			}
		}
	case SourceConstant:
		if fm.Value == nil {
			errs = append(errs, errMissingValue)
		}
	case SourceCurrentTime:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", errUnknownSource, fm.Source))
	}
	if !fm.Type.IsValid() {
		errs = append(errs, fmt.Errorf("unknown type %q", fm.Type))
	}
	return errors.Join(errs...)
}

func validatePattern(pattern string) error {
	segments := strings.Split(pattern, "/")
	for i, segment := range segments {
		if segment == "#" && i != len(segments)-1 {
			return fmt.Errorf("wildcard # must be the final segment in %q", pattern)
		}
	}
	return nil
}

// fieldKeys returns the field names in a stable order. Yaml mappings carry no
// order, so rows are built in sorted key order.
func (m *TopicMapping) fieldKeys() []string {
	keys := make([]string, 0, len(m.Fields))
	for key := range m.Fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// targetColumn resolves the column a field writes to.
func (m *TopicMapping) targetColumn(key string) string {
	if fm, ok := m.Fields[key]; ok && fm.Target != "" {
		return fm.Target
	}
	return key
}
