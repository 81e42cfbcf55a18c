package resource

import (
	"encoding/json"
	"time"
)

// ExternalResource is one upstream FHIR resource as stored. ExternalID is
// "Type/id" and is unique across the store.
type ExternalResource struct {
	ID           int64           `json:"-"`
	ExternalID   string          `json:"externalId"`
	ResourceType string          `json:"resourceType"`
	Payload      json.RawMessage `json:"payload"`
	VersionTag   string          `json:"versionTag,omitempty"`
	LastUpdated  time.Time       `json:"lastUpdated"`
	SyncedAt     time.Time       `json:"syncedAt"`
	SourceURL    string          `json:"sourceUrl,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Outcome reports what an upsert did.
type Outcome string

const (
	Inserted Outcome = "inserted"
	Updated  Outcome = "updated"
)

type UpsertResult struct {
	ExternalID string
	Outcome    Outcome
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	ResourceType string
	SyncedSince  time.Time
}

func (r *ExternalResource) clone() *ExternalResource {
	cp := *r
	cp.Payload = append(json.RawMessage(nil), r.Payload...)
	return &cp
}
