package message

import (
	"fmt"
	"strconv"
	"strings"

	"robot-console/idgen"
	"robot-console/models"
)

// Encoder turns an edit intent into a transport payload.
type Encoder interface {
	Encode(intent *models.EditIntent) (*Payload, error)
}

// DefaultEncoder 구현체
type DefaultEncoder struct{}

func NewEncoder() Encoder {
	return &DefaultEncoder{}
}

// Encode validates intent and renders it with the default encoder.
func Encode(intent *models.EditIntent) (*Payload, error) {
	return (&DefaultEncoder{}).Encode(intent)
}

// =======================================================================
// VALIDATION
// =======================================================================

// Validate checks every contract an intent must satisfy before it may be
// encoded. The returned error is always a *models.ValidationError.
func Validate(intent *models.EditIntent) error {
	if intent == nil {
		return models.NewValidationError("intent", "", "intent is required")
	}

	switch intent.Kind {
	case models.IntentCreate:
		if err := validateCreate(intent); err != nil {
			return err
		}
	case models.IntentUpdate:
		if intent.RobotID <= 0 {
			return models.NewValidationError("robot_id", strconv.FormatInt(intent.RobotID, 10), "update requires a robot id")
		}
	default:
		return models.NewValidationError("kind", string(intent.Kind), "unknown intent kind")
	}

	if intent.Language != nil && !intent.Language.Valid() {
		return models.NewValidationError("language", string(*intent.Language), "language must be nelogica or meta_trader")
	}

	if err := validateParameters(intent.Parameters); err != nil {
		return err
	}

	for _, img := range intent.NewImages {
		if err := img.Validate(); err != nil {
			return err
		}
	}
	for _, f := range intent.NewFiles {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateCreate(intent *models.EditIntent) error {
	if intent.Name == nil || strings.TrimSpace(*intent.Name) == "" {
		return models.NewValidationError("name", "", "name is required")
	}
	if intent.Description == nil {
		return models.NewValidationError("description", "", "description is required")
	}
	if intent.Language == nil {
		return models.NewValidationError("language", "", "language is required")
	}
	if intent.Code == nil {
		return models.NewValidationError("code", "", "code is required")
	}
	if intent.IsActive == nil {
		return models.NewValidationError("is_active", "", "is_active is required")
	}
	if len(intent.DeleteImageIDs) > 0 || len(intent.DeleteFileIDs) > 0 {
		return models.NewValidationError("delete_ids", "", "a new robot has no attachments to delete")
	}
	if intent.CreateVersion {
		return models.NewValidationError("create_version", "1", "versioning applies to updates only")
	}
	return nil
}

func validateParameters(params []models.Parameter) error {
	keys := make([]string, 0, len(params))
	orders := make(map[int]bool, len(params))

	for i, p := range params {
		if err := p.Validate(); err != nil {
			return err
		}
		keys = append(keys, p.DerivedKey())

		if p.SortOrder == nil {
			continue
		}
		order := *p.SortOrder
		if order < 0 || order >= len(params) {
			return models.NewValidationError(fmt.Sprintf("parameters[%d][sort_order]", i), strconv.Itoa(order),
				fmt.Sprintf("sort_order must be between 0 and %d", len(params)-1))
		}
		if orders[order] {
			return models.NewValidationError(fmt.Sprintf("parameters[%d][sort_order]", i), strconv.Itoa(order),
				"sort_order must be unique")
		}
		orders[order] = true
	}

	if dups := idgen.DuplicateKeys(keys); len(dups) > 0 {
		return models.NewValidationError("parameters", strings.Join(dups, ","), "parameter labels must derive distinct keys")
	}
	return nil
}

// =======================================================================
// ENCODING
// =======================================================================

func (e *DefaultEncoder) Encode(intent *models.EditIntent) (*Payload, error) {
	if err := Validate(intent); err != nil {
		return nil, err
	}

	p := NewPayload()

	if intent.Name != nil {
		p.Add("name", *intent.Name)
	}
	if intent.Description != nil {
		p.Add("description", *intent.Description)
	}
	if intent.Language != nil {
		p.Add("language", string(*intent.Language))
	}
	if intent.Code != nil {
		p.Add("code", *intent.Code)
	}
	if intent.IsActive != nil {
		p.Add("is_active", models.BoolFlag(*intent.IsActive))
	}

	for _, tag := range intent.Tags {
		p.Add("tags[]", tag)
	}

	for i, param := range intent.Parameters {
		encodeParameter(p, i, param)
	}

	if intent.HasAttachmentChanges() {
		encodeAttachments(p, intent)
	}

	if intent.Kind == models.IntentUpdate && intent.CreateVersion {
		p.Add("create_version", "1")
		if intent.Changelog != "" {
			p.Add("changelog", intent.Changelog)
		}
	}

	return p, nil
}

func encodeParameter(p *Payload, i int, param models.Parameter) {
	prefix := fmt.Sprintf("parameters[%d]", i)

	p.Add(prefix+"[key]", param.DerivedKey())
	p.Add(prefix+"[label]", param.Label)
	p.Add(prefix+"[type]", string(param.Type))
	p.Add(prefix+"[value]", models.FormatValue(param.Value))

	if param.ID != nil {
		p.Add(prefix+"[id]", strconv.FormatInt(*param.ID, 10))
	}
	if param.DefaultValue != nil {
		p.Add(prefix+"[default_value]", models.FormatValue(param.DefaultValue))
	}
	if param.Required != nil {
		p.Add(prefix+"[required]", models.BoolFlag(*param.Required))
	}
	for _, opt := range param.Options {
		p.Add(prefix+"[options][]", opt)
	}
	if rules := param.ValidationRules; rules != nil {
		if rules.Min != nil {
			p.Add(prefix+"[validation_rules][min]", models.FormatFloat(*rules.Min))
		}
		if rules.Max != nil {
			p.Add(prefix+"[validation_rules][max]", models.FormatFloat(*rules.Max))
		}
		if rules.Regex != "" {
			p.Add(prefix+"[validation_rules][regex]", rules.Regex)
		}
	}
	if param.Group != "" {
		p.Add(prefix+"[group]", param.Group)
	}
	if param.SortOrder != nil {
		p.Add(prefix+"[sort_order]", strconv.Itoa(*param.SortOrder))
	}
}

// encodeAttachments emits binaries and their metadata. Metadata indices are
// positions within the pending-add list, not persisted attachment indices.
func encodeAttachments(p *Payload, intent *models.EditIntent) {
	for _, img := range intent.NewImages {
		p.AddFile("images[]", FilePart{Filename: img.Filename, ContentType: img.ContentType, Data: img.Data})
	}
	for i, img := range intent.NewImages {
		if img.Title != "" {
			p.Add(fmt.Sprintf("image_titles[%d]", i), img.Title)
		}
		if img.Caption != "" {
			p.Add(fmt.Sprintf("image_captions[%d]", i), img.Caption)
		}
	}
	for _, id := range intent.DeleteImageIDs {
		p.Add("delete_image_ids[]", strconv.FormatInt(id, 10))
	}

	for _, f := range intent.NewFiles {
		p.AddFile("files[]", FilePart{Filename: f.Filename, ContentType: f.ContentType, Data: f.Data})
	}
	for i, f := range intent.NewFiles {
		if f.Name != "" {
			p.Add(fmt.Sprintf("file_names[%d]", i), f.Name)
		}
	}
	for _, id := range intent.DeleteFileIDs {
		p.Add("delete_file_ids[]", strconv.FormatInt(id, 10))
	}
}

// attachmentFieldPrefixes are the field families that carry attachment changes.
var attachmentFieldPrefixes = []string{
	"images[]", "image_titles[", "image_captions[", "delete_image_ids[]",
	"files[]", "file_names[", "delete_file_ids[]",
}

// AttachmentFieldCount counts the attachment-related fields of a payload.
func AttachmentFieldCount(p *Payload) int {
	n := 0
	for _, f := range p.fields {
		for _, prefix := range attachmentFieldPrefixes {
			if strings.HasPrefix(f.Name, prefix) {
				n++
				break
			}
		}
	}
	return n
}
