package ingest

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/healthflow/fhirsync/internal/domain/bundle"
	"github.com/healthflow/fhirsync/internal/domain/resource"
	"github.com/healthflow/fhirsync/internal/platform/events"
	"github.com/healthflow/fhirsync/internal/platform/fhir"
)

// Fetcher reads from the upstream FHIR server.
type Fetcher interface {
	FetchSubjectEverything(ctx context.Context, subjectID string) (*fhir.Bundle, error)
	ListSubjects(ctx context.Context, limit int) ([]string, error)
}

type ResourceUpserter interface {
	Upsert(ctx context.Context, res *fhir.Resource, sourceURL string) (resource.UpsertResult, error)
}

type BundleArchiver interface {
	Archive(ctx context.Context, req bundle.ArchiveRequest) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}
