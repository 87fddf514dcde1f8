package services

import (
	"encoding/json"
	"fmt"

	"robot-console/models"
)

// ParameterField names the parameter members a caller may edit. The key is
// not among them: it always follows the label.
type ParameterField string

const (
	FieldLabel           ParameterField = "label"
	FieldType            ParameterField = "type"
	FieldValue           ParameterField = "value"
	FieldDefaultValue    ParameterField = "default_value"
	FieldRequired        ParameterField = "required"
	FieldOptions         ParameterField = "options"
	FieldValidationRules ParameterField = "validation_rules"
	FieldGroup           ParameterField = "group"
)

// ParameterUpdate is one typed edit of a single parameter field. The set
// of implementations is closed; build values with the Update* constructors.
type ParameterUpdate interface {
	Field() ParameterField
	apply(p *models.Parameter) error
}

type labelUpdate struct{ label string }

func (u labelUpdate) Field() ParameterField { return FieldLabel }
func (u labelUpdate) apply(p *models.Parameter) error {
	p.SetLabel(u.label)
	return nil
}

type typeUpdate struct{ t models.ParameterType }

func (u typeUpdate) Field() ParameterField { return FieldType }
func (u typeUpdate) apply(p *models.Parameter) error {
	if !u.t.Valid() {
		return models.NewValidationError("type", string(u.t), "unknown parameter type")
	}
	p.Type = u.t
	return nil
}

type valueUpdate struct{ v any }

func (u valueUpdate) Field() ParameterField { return FieldValue }
func (u valueUpdate) apply(p *models.Parameter) error {
	p.Value = u.v
	return nil
}

type defaultValueUpdate struct{ v any }

func (u defaultValueUpdate) Field() ParameterField { return FieldDefaultValue }
func (u defaultValueUpdate) apply(p *models.Parameter) error {
	p.DefaultValue = u.v
	return nil
}

type requiredUpdate struct{ required bool }

func (u requiredUpdate) Field() ParameterField { return FieldRequired }
func (u requiredUpdate) apply(p *models.Parameter) error {
	r := u.required
	p.Required = &r
	return nil
}

type optionsUpdate struct{ options []string }

func (u optionsUpdate) Field() ParameterField { return FieldOptions }
func (u optionsUpdate) apply(p *models.Parameter) error {
	if u.options == nil {
		p.Options = nil
		return nil
	}
	p.Options = append([]string{}, u.options...)
	return nil
}

type validationRulesUpdate struct{ rules *models.ValidationRules }

func (u validationRulesUpdate) Field() ParameterField { return FieldValidationRules }
func (u validationRulesUpdate) apply(p *models.Parameter) error {
	if u.rules == nil {
		p.ValidationRules = nil
		return nil
	}
	if u.rules.Min != nil && u.rules.Max != nil && *u.rules.Min > *u.rules.Max {
		return models.NewValidationError("validation_rules", p.Key, "min must not exceed max")
	}
	clone := models.Parameter{ValidationRules: u.rules}.Clone()
	p.ValidationRules = clone.ValidationRules
	return nil
}

type groupUpdate struct{ group string }

func (u groupUpdate) Field() ParameterField { return FieldGroup }
func (u groupUpdate) apply(p *models.Parameter) error {
	p.Group = u.group
	return nil
}

func UpdateLabel(label string) ParameterUpdate          { return labelUpdate{label} }
func UpdateType(t models.ParameterType) ParameterUpdate { return typeUpdate{t} }
func UpdateValue(v any) ParameterUpdate                 { return valueUpdate{v} }
func UpdateDefaultValue(v any) ParameterUpdate          { return defaultValueUpdate{v} }
func UpdateRequired(required bool) ParameterUpdate      { return requiredUpdate{required} }
func UpdateOptions(options []string) ParameterUpdate    { return optionsUpdate{options} }
func UpdateGroup(group string) ParameterUpdate          { return groupUpdate{group} }
func UpdateValidationRules(r *models.ValidationRules) ParameterUpdate {
	return validationRulesUpdate{r}
}

// ParseParameterUpdate decodes a {field, value} pair received over the wire.
// Unknown fields, including "key", are rejected.
func ParseParameterUpdate(field string, raw json.RawMessage) (ParameterUpdate, error) {
	invalid := func(err error) error {
		return models.NewValidationError(field, string(raw), fmt.Sprintf("invalid value: %v", err))
	}

	switch ParameterField(field) {
	case FieldLabel:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid(err)
		}
		return UpdateLabel(s), nil
	case FieldType:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid(err)
		}
		return UpdateType(models.ParameterType(s)), nil
	case FieldValue, FieldDefaultValue:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, invalid(err)
		}
		if field == string(FieldValue) {
			return UpdateValue(v), nil
		}
		return UpdateDefaultValue(v), nil
	case FieldRequired:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, invalid(err)
		}
		return UpdateRequired(b), nil
	case FieldOptions:
		var opts []string
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, invalid(err)
		}
		return UpdateOptions(opts), nil
	case FieldValidationRules:
		var rules *models.ValidationRules
		if err := json.Unmarshal(raw, &rules); err != nil {
			return nil, invalid(err)
		}
		return UpdateValidationRules(rules), nil
	case FieldGroup:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalid(err)
		}
		return UpdateGroup(s), nil
	default:
		return nil, models.NewValidationError("field", field, "unknown or read-only parameter field")
	}
}
