package fhir

import (
	"encoding/json"
	"time"
)

// Resource is a FHIR resource decoded once at the fetch boundary. The
// identifying header is typed; the full body is kept verbatim in Raw.
type Resource struct {
	ResourceType string
	ID           string
	Meta         *Meta
	Raw          json.RawMessage
}

type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Profile     []string `json:"profile,omitempty"`
}

type resourceHeader struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Meta         *Meta  `json:"meta,omitempty"`
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var h resourceHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	r.ResourceType = h.ResourceType
	r.ID = h.ID
	r.Meta = h.Meta
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (r Resource) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(resourceHeader{ResourceType: r.ResourceType, ID: r.ID, Meta: r.Meta})
}

// Key returns the "Type/id" identity used to store the resource.
func (r *Resource) Key() string {
	return r.ResourceType + "/" + r.ID
}

// VersionID returns meta.versionId, or "" when absent.
func (r *Resource) VersionID() string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta.VersionID
}

// LastUpdated parses meta.lastUpdated. ok is false when the value is absent
// or not a valid FHIR instant.
func (r *Resource) LastUpdated() (t time.Time, ok bool) {
	if r.Meta == nil || r.Meta.LastUpdated == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, r.Meta.LastUpdated)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
