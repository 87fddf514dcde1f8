package models

import (
	"sort"
	"time"
)

// Language identifies the trading platform a robot's code targets.
type Language string

const (
	LanguageNelogica   Language = "nelogica"
	LanguageMetaTrader Language = "meta_trader"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	switch l {
	case LanguageNelogica, LanguageMetaTrader:
		return true
	}
	return false
}

// User is the owner summary embedded in a robot envelope.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Robot is the server-confirmed shape of a robot and its sub-records.
type Robot struct {
	ID             int64       `json:"id"`
	UserID         int64       `json:"user_id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Language       Language    `json:"language"`
	Tags           []string    `json:"tags"`
	Code           string      `json:"code"`
	IsActive       bool        `json:"is_active"`
	Version        int         `json:"version"`
	LastExecutedAt *time.Time  `json:"last_executed_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	DeletedAt      *time.Time  `json:"deleted_at"`
	User           *User       `json:"user,omitempty"`
	Parameters     []Parameter `json:"parameters"`
	Images         []Image     `json:"images"`
	Files          []File      `json:"files"`
}

// Image is a persisted gallery image. Geometry, storage and mime data are
// assigned by the server.
type Image struct {
	ID            int64     `json:"id"`
	RobotID       int64     `json:"robot_id"`
	Title         *string   `json:"title"`
	Caption       *string   `json:"caption"`
	Disk          string    `json:"disk"`
	Path          string    `json:"path"`
	URL           string    `json:"url"`
	ThumbnailPath *string   `json:"thumbnail_path"`
	MimeType      string    `json:"mime_type"`
	SizeBytes     int64     `json:"size_bytes"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	IsPrimary     bool      `json:"is_primary"`
	SortOrder     int       `json:"sort_order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// File is a persisted strategy file attachment (.psf or .mq5).
type File struct {
	ID           int64     `json:"id"`
	RobotID      int64     `json:"robot_id"`
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name"`
	Disk         string    `json:"disk"`
	Path         string    `json:"path"`
	URL          string    `json:"url"`
	FileType     string    `json:"file_type"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	SortOrder    int       `json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName falls back to the uploaded filename when no custom name was given.
func (f File) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.OriginalName
}

// PrimaryImage returns the image flagged primary, or the first image in sort
// order when none is flagged. Selection belongs to the server; this only
// reflects it.
func (r *Robot) PrimaryImage() *Image {
	if len(r.Images) == 0 {
		return nil
	}
	for i := range r.Images {
		if r.Images[i].IsPrimary {
			return &r.Images[i]
		}
	}
	first := 0
	for i := range r.Images {
		if r.Images[i].SortOrder < r.Images[first].SortOrder {
			first = i
		}
	}
	return &r.Images[first]
}

// FindFile looks up a persisted file by id.
func (r *Robot) FindFile(id int64) (*File, bool) {
	for i := range r.Files {
		if r.Files[i].ID == id {
			return &r.Files[i], true
		}
	}
	return nil, false
}

// SortedParameters returns a copy of the parameters ordered by sort_order.
func (r *Robot) SortedParameters() []Parameter {
	params := make([]Parameter, len(r.Parameters))
	for i, p := range r.Parameters {
		params[i] = p.Clone()
	}
	sort.SliceStable(params, func(i, j int) bool {
		return params[i].Order() < params[j].Order()
	})
	return params
}

// HasSameTags compares tags as a set; display order is ignored.
func (r *Robot) HasSameTags(tags []string) bool {
	return sameTagSet(r.Tags, tags)
}

func sameTagSet(a, b []string) bool {
	left := make(map[string]struct{}, len(a))
	for _, t := range a {
		left[t] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, t := range b {
		right[t] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for t := range left {
		if _, ok := right[t]; !ok {
			return false
		}
	}
	return true
}

// Clone deep-copies the robot so callers can hand it out without sharing slices.
func (r *Robot) Clone() *Robot {
	if r == nil {
		return nil
	}
	out := *r
	out.Tags = append([]string(nil), r.Tags...)
	if r.User != nil {
		u := *r.User
		out.User = &u
	}
	if r.Parameters != nil {
		out.Parameters = make([]Parameter, len(r.Parameters))
		for i, p := range r.Parameters {
			out.Parameters[i] = p.Clone()
		}
	}
	out.Images = append([]Image(nil), r.Images...)
	out.Files = append([]File(nil), r.Files...)
	return &out
}
