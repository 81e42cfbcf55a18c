package bundle

import (
	"encoding/json"
	"time"
)

// BundleTypeSubjectEverything labels the result of a subject $everything
// fetch.
const BundleTypeSubjectEverything = "subject-everything"

// Snapshot is an immutable audit record of one fetched bundle.
type Snapshot struct {
	ID            string          `json:"id"`
	BundleType    string          `json:"bundleType"`
	Payload       json.RawMessage `json:"payload"`
	ResourceCount int             `json:"resourceCount"`
	QueryContext  string          `json:"queryContext"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ArchiveRequest describes a bundle to archive.
type ArchiveRequest struct {
	BundleType    string
	Payload       json.RawMessage
	ResourceCount int
	QueryContext  string
}
