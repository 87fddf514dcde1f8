package models

import (
	"strconv"
)

// RobotResponse is the single-robot envelope returned by the robot API.
type RobotResponse struct {
	Data Robot `json:"data"`
}

// ListMeta is the pagination block of a robot listing.
type ListMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// RobotList is the paginated listing envelope.
type RobotList struct {
	Data []Robot  `json:"data"`
	Meta ListMeta `json:"meta"`
}

// Clone deep-copies the page.
func (l *RobotList) Clone() *RobotList {
	out := &RobotList{Meta: l.Meta}
	if l.Data != nil {
		out.Data = make([]Robot, len(l.Data))
		for i := range l.Data {
			out.Data[i] = *l.Data[i].Clone()
		}
	}
	return out
}

// ListFilter narrows a robot listing. Zero values are not sent.
type ListFilter struct {
	Language Language `json:"language,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
	Search   string   `json:"search,omitempty"`
	PerPage  int      `json:"per_page,omitempty"`
	Page     int      `json:"page,omitempty"`
}

// Query renders the filter as query parameters in a stable order.
func (f ListFilter) Query() [][2]string {
	var q [][2]string
	if f.Language != "" {
		q = append(q, [2]string{"language", string(f.Language)})
	}
	if f.IsActive != nil {
		q = append(q, [2]string{"is_active", BoolFlag(*f.IsActive)})
	}
	if f.Search != "" {
		q = append(q, [2]string{"search", f.Search})
	}
	if f.PerPage > 0 {
		q = append(q, [2]string{"per_page", strconv.Itoa(f.PerPage)})
	}
	if f.Page > 0 {
		q = append(q, [2]string{"page", strconv.Itoa(f.Page)})
	}
	return q
}

// CacheKey identifies the filter for the listing cache.
func (f ListFilter) CacheKey() string {
	key := ""
	for _, kv := range f.Query() {
		if key != "" {
			key += "&"
		}
		key += kv[0] + "=" + kv[1]
	}
	if key == "" {
		return "all"
	}
	return key
}

// BoolFlag renders a boolean the way the robot API expects it ("1"/"0").
func BoolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
