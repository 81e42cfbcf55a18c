package resource

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("resource not found")

// Repository stores ExternalResources keyed by ExternalID. Upsert must keep
// at most one record per ExternalID under concurrent writers, and writes to
// different ids must not contend.
type Repository interface {
	FindByExternalID(ctx context.Context, externalID string) (*ExternalResource, error)
	// Upsert inserts r or overwrites the record with the same ExternalID.
	// On return r carries the stored ID and CreatedAt.
	Upsert(ctx context.Context, r *ExternalResource) (inserted bool, err error)
	CountByType(ctx context.Context) (map[string]int64, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*ExternalResource, int, error)
}
