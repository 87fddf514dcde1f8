package message

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FilePart is the binary half of a multipart field.
type FilePart struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Field is one entry of a transport payload. Exactly one of Value and File
// is meaningful: File is nil for plain text fields.
type Field struct {
	Name  string
	Value string
	File  *FilePart
}

// Payload is a flat, ordered multipart field set. Field names may repeat
// (tags[], images[] ...); order is preserved on the wire.
type Payload struct {
	fields []Field
}

// NewPayload creates an empty payload.
func NewPayload() *Payload {
	return &Payload{}
}

// Add appends a text field.
func (p *Payload) Add(name, value string) {
	p.fields = append(p.fields, Field{Name: name, Value: value})
}

// AddFile appends a binary field.
func (p *Payload) AddFile(name string, file FilePart) {
	f := file
	p.fields = append(p.fields, Field{Name: name, File: &f})
}

// Fields returns a copy of the ordered field list.
func (p *Payload) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// Names returns the field names in emission order.
func (p *Payload) Names() []string {
	names := make([]string, len(p.fields))
	for i, f := range p.fields {
		names[i] = f.Name
	}
	return names
}

// Values returns every text value emitted under name, in order.
func (p *Payload) Values(name string) []string {
	var values []string
	for _, f := range p.fields {
		if f.Name == name && f.File == nil {
			values = append(values, f.Value)
		}
	}
	return values
}

// Get returns the first text value emitted under name.
func (p *Payload) Get(name string) (string, bool) {
	for _, f := range p.fields {
		if f.Name == name && f.File == nil {
			return f.Value, true
		}
	}
	return "", false
}

// Files returns every binary part emitted under name, in order.
func (p *Payload) Files(name string) []FilePart {
	var files []FilePart
	for _, f := range p.fields {
		if f.Name == name && f.File != nil {
			files = append(files, *f.File)
		}
	}
	return files
}

// Has reports whether any field is emitted under name.
func (p *Payload) Has(name string) bool {
	for _, f := range p.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// HasPrefix reports whether any field name starts with prefix.
func (p *Payload) HasPrefix(prefix string) bool {
	for _, f := range p.fields {
		if strings.HasPrefix(f.Name, prefix) {
			return true
		}
	}
	return false
}

// Len returns the number of fields.
func (p *Payload) Len() int {
	return len(p.fields)
}

// Multipart renders the payload as a multipart/form-data body.
func (p *Payload) Multipart() (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for _, f := range p.fields {
		if f.File == nil {
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", fmt.Errorf("failed to write field %s: %w", f.Name, err)
			}
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(f.Name), escapeQuotes(f.File.Filename)))
		contentType := f.File.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.File.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write part %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
