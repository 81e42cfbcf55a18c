package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthflow/fhirsync/internal/platform/db"
)

var ErrInvalidSnapshot = errors.New("invalid bundle snapshot")

// Archiver records immutable snapshots of fetched bundles. Every call
// creates a new record, even for identical content.
type Archiver struct {
	repo         Repository
	storeTimeout time.Duration
	now          func() time.Time
}

type ArchiverOption func(*Archiver)

func WithStoreTimeout(d time.Duration) ArchiverOption {
	return func(a *Archiver) { a.storeTimeout = d }
}

func WithClock(now func() time.Time) ArchiverOption {
	return func(a *Archiver) { a.now = now }
}

func NewArchiver(repo Repository, opts ...ArchiverOption) *Archiver {
	a := &Archiver{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Archiver) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.storeTimeout > 0 {
		return context.WithTimeout(ctx, a.storeTimeout)
	}
	return ctx, func() {}
}

// Archive stores the snapshot and returns its generated id. Store failures
// come back as *db.PersistenceError.
func (a *Archiver) Archive(ctx context.Context, req ArchiveRequest) (string, error) {
	if req.BundleType == "" {
		return "", fmt.Errorf("%w: bundle type is required", ErrInvalidSnapshot)
	}
	if req.ResourceCount < 0 {
		return "", fmt.Errorf("%w: negative resource count", ErrInvalidSnapshot)
	}
	if !json.Valid(req.Payload) {
		return "", fmt.Errorf("%w: payload is not a JSON document", ErrInvalidSnapshot)
	}

	s := &Snapshot{
		ID:            uuid.NewString(),
		BundleType:    req.BundleType,
		Payload:       req.Payload,
		ResourceCount: req.ResourceCount,
		QueryContext:  req.QueryContext,
		CreatedAt:     a.now().UTC(),
	}

	ctx, cancel := a.storeContext(ctx)
	defer cancel()

	if err := a.repo.Create(ctx, s); err != nil {
		return "", db.Persistence("archive "+s.BundleType, err)
	}
	return s.ID, nil
}

func (a *Archiver) List(ctx context.Context, bundleType string, limit, offset int) ([]*Snapshot, int, error) {
	ctx, cancel := a.storeContext(ctx)
	defer cancel()

	items, total, err := a.repo.List(ctx, bundleType, limit, offset)
	if err != nil {
		return nil, 0, db.Persistence("list bundles", err)
	}
	return items, total, nil
}
