package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/healthflow/fhirsync/internal/domain/resource"
	"github.com/healthflow/fhirsync/internal/platform/db"
	"github.com/healthflow/fhirsync/internal/platform/fhir"
	"github.com/healthflow/fhirsync/internal/platform/upstream"
)

// ErrListing means the subject listing fetch failed, so a bulk sync had
// nothing to iterate. It is the only batch-fatal error.
var ErrListing = errors.New("list subjects")

// Reason classifies why a subject sync failed.
type Reason string

const (
	ReasonNotFound    Reason = "not_found"
	ReasonTransport   Reason = "transport"
	ReasonMalformed   Reason = "malformed"
	ReasonPersistence Reason = "persistence"
	ReasonTimeout     Reason = "timeout"
	ReasonCancelled   Reason = "cancelled"
)

const (
	StatusSuccess   = "success"
	StatusCancelled = "cancelled"
)

// SyncFailure is a subject-level failure. A failed subject may have been
// partially written; retrying is safe because upserts are idempotent.
type SyncFailure struct {
	SubjectID string
	Reason    Reason
	Cause     error
}

func (f *SyncFailure) Error() string {
	return fmt.Sprintf("sync subject %s: %s: %v", f.SubjectID, f.Reason, f.Cause)
}

func (f *SyncFailure) Unwrap() error {
	return f.Cause
}

// SyncOutcome is the result of one subject sync.
type SyncOutcome struct {
	SubjectID       string
	ResourcesSynced int
	Inserted        int
	Updated         int
	BundleID        string
}

// FailureDetail is the JSON view of a SyncFailure.
type FailureDetail struct {
	SubjectID string `json:"subjectId"`
	Reason    Reason `json:"reason"`
	Error     string `json:"error"`
}

// BulkSyncResult aggregates a batch. Succeeded and failed ids are in
// dispatch order, which is listing order. Synced+Failed equals the number
// of subjects attempted; Skipped counts subjects never dispatched because
// the run was cancelled.
type BulkSyncResult struct {
	Status           string          `json:"status"`
	Synced           int             `json:"synced"`
	Failed           int             `json:"failed"`
	Skipped          int             `json:"skipped,omitempty"`
	TotalResources   int             `json:"totalResources"`
	SyncedSubjectIDs []string        `json:"syncedSubjectIds"`
	FailedSubjectIDs []string        `json:"failedSubjectIds"`
	Failures         []FailureDetail `json:"failures"`
}

type stage int

const (
	stageFetch stage = iota
	stageStore
)

func classify(err error, st stage) Reason {
	var te *upstream.TransportError
	var pe *db.PersistenceError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, upstream.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, upstream.ErrMalformedResponse),
		errors.Is(err, fhir.ErrUnexpectedDocument),
		errors.Is(err, resource.ErrInvalidResource):
		return ReasonMalformed
	case errors.As(err, &pe):
		return ReasonPersistence
	case errors.As(err, &te):
		return ReasonTransport
	case st == stageStore:
		return ReasonPersistence
	default:
		return ReasonTransport
	}
}
