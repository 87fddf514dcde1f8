package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"robot-console/idgen"
	"robot-console/models"
	"robot-console/services"

	"gopkg.in/yaml.v3"
)

// manifest describes a robot in YAML. Without an id it creates a robot;
// with one it updates that robot and only the listed fields are sent.
type manifest struct {
	ID          int64            `yaml:"id,omitempty"`
	Name        *string          `yaml:"name,omitempty"`
	Description *string          `yaml:"description,omitempty"`
	Language    *models.Language `yaml:"language,omitempty"`
	Code        *string          `yaml:"code,omitempty"`
	CodeFile    string           `yaml:"code_file,omitempty"`
	IsActive    *bool            `yaml:"is_active,omitempty"`

	Tags       []string `yaml:"tags,omitempty"`
	RemoveTags []string `yaml:"remove_tags,omitempty"`

	// Parameters replaces the whole parameter list when present. Entries
	// matching a persisted parameter's key update it in place.
	Parameters []manifestParameter `yaml:"parameters,omitempty"`

	Images       []manifestImage `yaml:"images,omitempty"`
	Files        []manifestFile  `yaml:"files,omitempty"`
	DeleteImages []int64         `yaml:"delete_images,omitempty"`
	DeleteFiles  []int64         `yaml:"delete_files,omitempty"`

	Version *manifestVersion `yaml:"version,omitempty"`

	dir string
}

type manifestParameter struct {
	Label           string                  `yaml:"label"`
	Type            models.ParameterType    `yaml:"type,omitempty"`
	Value           any                     `yaml:"value"`
	DefaultValue    any                     `yaml:"default_value,omitempty"`
	Required        *bool                   `yaml:"required,omitempty"`
	Options         []string                `yaml:"options,omitempty"`
	ValidationRules *models.ValidationRules `yaml:"validation_rules,omitempty"`
	Group           string                  `yaml:"group,omitempty"`
}

type manifestImage struct {
	Path    string `yaml:"path"`
	Title   string `yaml:"title,omitempty"`
	Caption string `yaml:"caption,omitempty"`
}

type manifestFile struct {
	Path string `yaml:"path"`
	Name string `yaml:"name,omitempty"`
}

type manifestVersion struct {
	Changelog string `yaml:"changelog,omitempty"`
}

// loadManifest reads a manifest file. Relative paths inside it resolve
// against the manifest's directory.
func loadManifest(path string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := parseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

func parseManifest(r io.Reader) (*manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Code != nil && m.CodeFile != "" {
		return nil, errors.New("invalid manifest: code and code_file are mutually exclusive")
	}
	if m.ID == 0 && (len(m.DeleteImages) > 0 || len(m.DeleteFiles) > 0 || m.Version != nil) {
		return nil, errors.New("invalid manifest: deletions and version apply to updates only")
	}
	return &m, nil
}

func (m *manifest) kind() models.IntentKind {
	if m.ID > 0 {
		return models.IntentUpdate
	}
	return models.IntentCreate
}

func (m *manifest) resolve(path string) string {
	if filepath.IsAbs(path) || m.dir == "" {
		return path
	}
	return filepath.Join(m.dir, path)
}

// applyTo stages the manifest on b. Files are read from disk here.
func (m *manifest) applyTo(b *services.EditBuffer) error {
	if m.Name != nil {
		if err := b.SetName(*m.Name); err != nil {
			return err
		}
	}
	if m.Description != nil {
		if err := b.SetDescription(*m.Description); err != nil {
			return err
		}
	}
	if m.Language != nil {
		if err := b.SetLanguage(*m.Language); err != nil {
			return err
		}
	}
	if m.CodeFile != "" {
		code, err := os.ReadFile(m.resolve(m.CodeFile))
		if err != nil {
			return err
		}
		if err := b.SetCode(string(code)); err != nil {
			return err
		}
	} else if m.Code != nil {
		if err := b.SetCode(*m.Code); err != nil {
			return err
		}
	}
	if m.IsActive != nil {
		if err := b.SetActive(*m.IsActive); err != nil {
			return err
		}
	}

	for _, tag := range m.Tags {
		if err := b.AddTag(tag); err != nil {
			return err
		}
	}
	for _, tag := range m.RemoveTags {
		if err := b.RemoveTag(tag); err != nil {
			return err
		}
	}

	if m.Parameters != nil {
		if err := m.replaceParameters(b); err != nil {
			return err
		}
	}

	if err := m.stageAttachments(b); err != nil {
		return err
	}
	for _, id := range m.DeleteImages {
		if err := b.MarkImageForDeletion(id); err != nil {
			return err
		}
	}
	for _, id := range m.DeleteFiles {
		if err := b.MarkFileForDeletion(id); err != nil {
			return err
		}
	}

	if m.Version != nil {
		return b.RequestVersion(m.Version.Changelog)
	}
	return nil
}

// replaceParameters makes the buffer's parameter list match the manifest.
// Persisted parameters are matched by derived key and keep their id, so the
// server updates them in place instead of recreating them.
func (m *manifest) replaceParameters(b *services.EditBuffer) error {
	wanted := make(map[string]bool, len(m.Parameters))
	for _, p := range m.Parameters {
		wanted[idgen.DeriveKey(p.Label)] = true
	}
	current := b.Parameters()
	for i := len(current) - 1; i >= 0; i-- {
		if !wanted[current[i].DerivedKey()] {
			if err := b.RemoveParameter(i); err != nil {
				return err
			}
		}
	}

	for j, p := range m.Parameters {
		i := indexOfKey(b.Parameters(), idgen.DeriveKey(p.Label), j)
		if i < 0 {
			var err error
			if i, err = b.AddParameter(); err != nil {
				return err
			}
		}
		if i != j {
			if err := b.MoveParameter(i, j); err != nil {
				return err
			}
		}
		for _, u := range p.updates() {
			if err := b.UpdateParameter(j, u); err != nil {
				return err
			}
		}
	}

	// a baseline with duplicate keys leaves unmatched rows behind
	for n := len(b.Parameters()); n > len(m.Parameters); n-- {
		if err := b.RemoveParameter(n - 1); err != nil {
			return err
		}
	}
	return nil
}

// indexOfKey finds key among params at or after from.
func indexOfKey(params []models.Parameter, key string, from int) int {
	for i := from; i < len(params); i++ {
		if params[i].DerivedKey() == key {
			return i
		}
	}
	return -1
}

func (p manifestParameter) updates() []services.ParameterUpdate {
	updates := []services.ParameterUpdate{services.UpdateLabel(p.Label)}
	if p.Type != "" {
		updates = append(updates, services.UpdateType(p.Type))
	}
	if p.Options != nil {
		updates = append(updates, services.UpdateOptions(p.Options))
	}
	updates = append(updates, services.UpdateValue(p.Value))
	if p.DefaultValue != nil {
		updates = append(updates, services.UpdateDefaultValue(p.DefaultValue))
	}
	if p.Required != nil {
		updates = append(updates, services.UpdateRequired(*p.Required))
	}
	if p.ValidationRules != nil {
		updates = append(updates, services.UpdateValidationRules(p.ValidationRules))
	}
	if p.Group != "" {
		updates = append(updates, services.UpdateGroup(p.Group))
	}
	return updates
}

func (m *manifest) stageAttachments(b *services.EditBuffer) error {
	images := make([]models.ImageUpload, 0, len(m.Images))
	for _, img := range m.Images {
		data, err := os.ReadFile(m.resolve(img.Path))
		if err != nil {
			return err
		}
		images = append(images, models.ImageUpload{
			Filename:    filepath.Base(img.Path),
			ContentType: mime.TypeByExtension(filepath.Ext(img.Path)),
			Data:        data,
			Title:       img.Title,
			Caption:     img.Caption,
		})
	}
	if len(images) > 0 {
		if err := b.AddImages(images...); err != nil {
			return err
		}
	}

	files := make([]models.FileUpload, 0, len(m.Files))
	for _, f := range m.Files {
		upload := models.FileUpload{Filename: filepath.Base(f.Path), Name: f.Name}
		// Reject the extension before reading a possibly large file.
		if err := upload.Validate(); err != nil {
			return err
		}
		data, err := os.ReadFile(m.resolve(f.Path))
		if err != nil {
			return err
		}
		upload.Data = data
		files = append(files, upload)
	}
	if len(files) > 0 {
		return b.AddFiles(files...)
	}
	return nil
}
