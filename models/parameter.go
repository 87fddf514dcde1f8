package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"robot-console/idgen"
)

// ParameterType is the declared type of a robot parameter value.
type ParameterType string

const (
	ParameterNumber  ParameterType = "number"
	ParameterString  ParameterType = "string"
	ParameterBoolean ParameterType = "boolean"
	ParameterSelect  ParameterType = "select"
)

// Valid reports whether t is a known parameter type.
func (t ParameterType) Valid() bool {
	switch t {
	case ParameterNumber, ParameterString, ParameterBoolean, ParameterSelect:
		return true
	}
	return false
}

// ValidationRules constrain a parameter value. Nil members are unset.
type ValidationRules struct {
	Min   *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Regex string   `json:"regex,omitempty" yaml:"regex,omitempty"`
}

// Parameter is a typed, user-editable robot setting.
//
// Optional members use nil (or the empty string for Group) to mean "unset";
// the encoder never emits unset members, which keeps "unset" distinct from
// "cleared" on partial updates.
type Parameter struct {
	ID              *int64           `json:"id,omitempty" yaml:"id,omitempty"`
	Key             string           `json:"key" yaml:"key"`
	Label           string           `json:"label" yaml:"label"`
	Type            ParameterType    `json:"type" yaml:"type"`
	Value           any              `json:"value" yaml:"value"`
	DefaultValue    any              `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Required        *bool            `json:"required,omitempty" yaml:"required,omitempty"`
	Options         []string         `json:"options,omitempty" yaml:"options,omitempty"`
	ValidationRules *ValidationRules `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
	Group           string           `json:"group,omitempty" yaml:"group,omitempty"`
	SortOrder       *int             `json:"sort_order,omitempty" yaml:"sort_order,omitempty"`
}

// NewParameter returns the default-shaped parameter appended by the edit
// buffer: an unnamed number parameter with an empty default.
func NewParameter(sortOrder int) Parameter {
	required := false
	return Parameter{
		Type:         ParameterNumber,
		Value:        "",
		DefaultValue: "",
		Required:     &required,
		SortOrder:    &sortOrder,
	}
}

// SetLabel changes the label and re-derives the key from it.
func (p *Parameter) SetLabel(label string) {
	p.Label = label
	p.Key = idgen.DeriveKey(label)
}

// Order returns the sort order, or -1 when unset.
func (p Parameter) Order() int {
	if p.SortOrder == nil {
		return -1
	}
	return *p.SortOrder
}

// Clone deep-copies the parameter.
func (p Parameter) Clone() Parameter {
	out := p
	if p.ID != nil {
		id := *p.ID
		out.ID = &id
	}
	if p.Required != nil {
		r := *p.Required
		out.Required = &r
	}
	if p.SortOrder != nil {
		s := *p.SortOrder
		out.SortOrder = &s
	}
	if p.Options != nil {
		out.Options = append([]string{}, p.Options...)
	}
	if p.ValidationRules != nil {
		rules := *p.ValidationRules
		if rules.Min != nil {
			m := *rules.Min
			rules.Min = &m
		}
		if rules.Max != nil {
			m := *rules.Max
			rules.Max = &m
		}
		out.ValidationRules = &rules
	}
	return out
}

// DerivedKey is the key the label derives. It is the only key ever sent.
func (p Parameter) DerivedKey() string {
	return idgen.DeriveKey(p.Label)
}

// Validate checks the invariants a parameter must satisfy before submission.
// An empty Key is filled from the label at encode time; a non-empty one must
// match it.
func (p Parameter) Validate() error {
	key := p.DerivedKey()
	if key == "" {
		return NewValidationError("label", p.Label, "label must contain at least one letter or digit")
	}
	if p.Key != "" && p.Key != key {
		return NewValidationError("key", p.Key, fmt.Sprintf("key must be derived from the label (%s)", key))
	}
	if !p.Type.Valid() {
		return NewValidationError("type", string(p.Type), "unknown parameter type")
	}
	if p.Type == ParameterSelect && len(p.Options) == 0 {
		return NewValidationError("options", p.Key, "select parameters require options")
	}
	if r := p.ValidationRules; r != nil && r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return NewValidationError("validation_rules", p.Key, "min must not exceed max")
	}
	return nil
}

// FormatValue stringifies a parameter value for the wire.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// FormatFloat stringifies a validation bound the same way values are.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
