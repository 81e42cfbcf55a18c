package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/healthflow/fhirsync/internal/platform/db"
	"github.com/healthflow/fhirsync/internal/platform/fhir"
)

var ErrInvalidResource = errors.New("invalid resource")

// Service is the resource upsert engine and statistics aggregator.
type Service struct {
	repo         Repository
	storeTimeout time.Duration
	now          func() time.Time
}

type ServiceOption func(*Service)

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.storeTimeout = d }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout > 0 {
		return context.WithTimeout(ctx, s.storeTimeout)
	}
	return ctx, func() {}
}

// Upsert stores one fetched resource, inserting it or overwriting the
// existing record with the same "Type/id". lastUpdated falls back to now
// when the resource carries none; syncedAt is always now. Store failures
// come back as *db.PersistenceError and are not retried.
func (s *Service) Upsert(ctx context.Context, res *fhir.Resource, sourceURL string) (UpsertResult, error) {
	if res == nil || res.ResourceType == "" {
		return UpsertResult{}, fmt.Errorf("%w: resourceType is required", ErrInvalidResource)
	}
	if res.ID == "" {
		return UpsertResult{}, fmt.Errorf("%w: %s without id", ErrInvalidResource, res.ResourceType)
	}

	payload := res.Raw
	if len(payload) == 0 {
		var err error
		if payload, err = json.Marshal(res); err != nil {
			return UpsertResult{}, fmt.Errorf("%w: %v", ErrInvalidResource, err)
		}
	}

	now := s.now().UTC()
	lastUpdated, ok := res.LastUpdated()
	if !ok {
		lastUpdated = now
	}

	rec := &ExternalResource{
		ExternalID:   res.Key(),
		ResourceType: res.ResourceType,
		Payload:      payload,
		VersionTag:   res.VersionID(),
		LastUpdated:  lastUpdated,
		SyncedAt:     now,
		SourceURL:    sourceURL,
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	inserted, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return UpsertResult{}, db.Persistence("upsert "+rec.ExternalID, err)
	}

	out := UpsertResult{ExternalID: rec.ExternalID, Outcome: Updated}
	if inserted {
		out.Outcome = Inserted
	}
	return out, nil
}

// Stats counts stored resources by type, read from the store on each call.
func (s *Service) Stats(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	counts, err := s.repo.CountByType(ctx)
	if err != nil {
		return nil, db.Persistence("count by type", err)
	}
	return counts, nil
}

func (s *Service) Get(ctx context.Context, externalID string) (*ExternalResource, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	r, err := s.repo.FindByExternalID(ctx, externalID)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, db.Persistence("find "+externalID, err)
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ExternalResource, int, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, db.Persistence("list resources", err)
	}
	return items, total, nil
}
