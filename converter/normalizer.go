package converter

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"robot-console/models"
)

// DefaultAPIBaseURL is used when no API base URL is configured.
const DefaultAPIBaseURL = "http://localhost:8081/api/"

// Normalizer maps robot API responses into the entity model and resolves
// relative attachment URLs against the API's origin.
type Normalizer struct {
	origin string
}

// NewNormalizer derives the resource origin from the API base URL: a trailing
// /api segment and trailing slashes are dropped, and http:// is assumed when
// the base carries no scheme.
func NewNormalizer(apiBaseURL string) *Normalizer {
	return &Normalizer{origin: originOf(apiBaseURL)}
}

// Origin returns the origin relative URLs are resolved against.
func (n *Normalizer) Origin() string {
	return n.origin
}

func originOf(apiBaseURL string) string {
	base := strings.TrimSpace(apiBaseURL)
	if base == "" {
		base = DefaultAPIBaseURL
	}

	base = strings.TrimSuffix(base, "/")
	base = strings.TrimSuffix(base, "/api")
	base = strings.TrimRight(base, "/")

	if !hasHTTPScheme(base) {
		base = "http://" + base
	}
	return base
}

func hasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ResolveURL turns a raw attachment URL into a fully-qualified one.
// Blank or unparsable input resolves to "". Already absolute URLs are
// returned unchanged, so ResolveURL(ResolveURL(u)) == ResolveURL(u).
func (n *Normalizer) ResolveURL(raw string) string {
	clean := strings.TrimSpace(strings.ReplaceAll(raw, `\/`, "/"))
	if clean == "" {
		return ""
	}

	var resolved string
	switch {
	case hasHTTPScheme(clean):
		resolved = clean
	case strings.HasPrefix(clean, "//"):
		resolved = n.scheme() + ":" + clean
	default:
		if !strings.HasPrefix(clean, "/") {
			clean = "/" + clean
		}
		resolved = n.origin + clean
	}

	u, err := url.Parse(resolved)
	if err != nil || u.Host == "" {
		return ""
	}
	return resolved
}

func (n *Normalizer) scheme() string {
	if i := strings.Index(n.origin, "://"); i > 0 {
		return strings.ToLower(n.origin[:i])
	}
	return "http"
}

// Robot returns a copy of r with every image and file URL resolved..
func (n *Normalizer) Robot(r models.Robot) models.Robot {
	out := *r.Clone()
	for i := range out.Images {
		out.Images[i].URL = n.ResolveURL(out.Images[i].URL)
	}
	for i := range out.Files {
		out.Files[i].URL = n.ResolveURL(out.Files[i].URL)
	}
	return out
}

// Robots normalizes every robot of a listing page.
func (n *Normalizer) Robots(list models.RobotList) models.RobotList {
	out := models.RobotList{Meta: list.Meta, Data: make([]models.Robot, len(list.Data))}
	for i, r := range list.Data {
		out.Data[i] = n.Robot(r)
	}
	return out
}

// DecodeRobot decodes a {data: Robot} envelope and normalizes it.
func (n *Normalizer) DecodeRobot(body []byte) (models.Robot, error) {
	var envelope models.RobotResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.Robot{}, fmt.Errorf("failed to decode robot response: %w", err)
	}
	return n.Robot(envelope.Data), nil
}

// DecodeRobotList decodes a paginated {data: Robot[], meta} envelope and normalizes it.
func (n *Normalizer) DecodeRobotList(body []byte) (models.RobotList, error) {
	var envelope models.RobotList
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.RobotList{}, fmt.Errorf("failed to decode robot list response: %w", err)
	}
	if envelope.Data == nil {
		envelope.Data = []models.Robot{}
	}
	return n.Robots(envelope), nil
}
