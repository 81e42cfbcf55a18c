package bundle

import "context"

// Repository appends snapshots. There is no update or delete.
type Repository interface {
	Create(ctx context.Context, s *Snapshot) error
	// List returns snapshots newest first, optionally filtered by bundle type,
	// with the total number of matches.
	List(ctx context.Context, bundleType string, limit, offset int) ([]*Snapshot, int, error)
}
