// Package ingest drives subject syncs: fetch the subject's record graph,
// archive it, then upsert every contained resource. Bulk syncs run subjects
// on a bounded worker pool and report per-subject outcomes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthflow/fhirsync/internal/domain/bundle"
	"github.com/healthflow/fhirsync/internal/domain/resource"
	"github.com/healthflow/fhirsync/internal/platform/events"
)

const publishTimeout = 5 * time.Second

type Config struct {
	// MaxConcurrent bounds the subjects synced at once in a bulk sync.
	MaxConcurrent int
	// SubjectTimeout bounds one whole subject sync.
	SubjectTimeout time.Duration
}

type Service struct {
	fetcher   Fetcher
	resources ResourceUpserter
	archiver  BundleArchiver
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
}

type Option func(*Service)

// WithPublisher sets where sync events go. Events are dropped by default.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(fetcher Fetcher, resources ResourceUpserter, archiver BundleArchiver, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	s := &Service{
		fetcher:   fetcher,
		resources: resources,
		archiver:  archiver,
		publisher: events.Nop{},
		cfg:       cfg,
		logger:    logger.With().Str("component", "ingest").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncSubject fetches, archives and upserts one subject. A fetch failure
// writes nothing. Any resource that fails to persist fails the whole
// subject, even though earlier resources may already be stored. The error
// is always a *SyncFailure.
func (s *Service) SyncSubject(ctx context.Context, subjectID string) (SyncOutcome, error) {
	out := SyncOutcome{SubjectID: subjectID}
	if subjectID == "" {
		return out, &SyncFailure{Reason: ReasonMalformed, Cause: fmt.Errorf("subject id is required")}
	}

	if s.cfg.SubjectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SubjectTimeout)
		defer cancel()
	}

	start := time.Now()
	log := s.logger.With().Str("subject_id", subjectID).Logger()
	log.Debug().Msg("subject sync started")

	fail := func(err error, st stage) (SyncOutcome, error) {
		f := &SyncFailure{SubjectID: subjectID, Reason: classify(err, st), Cause: err}
		log.Warn().
			Err(err).
			Str("reason", string(f.Reason)).
			Int("resources", out.Inserted+out.Updated).
			Dur("duration", time.Since(start)).
			Msg("subject sync failed")
		s.publish(events.Event{
			Type:      events.TypeSubjectFailed,
			SubjectID: subjectID,
			Reason:    string(f.Reason),
			Error:     err.Error(),
		})
		return out, f
	}

	b, err := s.fetcher.FetchSubjectEverything(ctx, subjectID)
	if err != nil {
		return fail(err, stageFetch)
	}

	payload, err := b.Document()
	if err != nil {
		return fail(fmt.Errorf("encode bundle: %w", err), stageStore)
	}
	entries := b.Entries()

	out.BundleID, err = s.archiver.Archive(ctx, bundle.ArchiveRequest{
		BundleType:    bundle.BundleTypeSubjectEverything,
		Payload:       payload,
		ResourceCount: len(entries),
		QueryContext:  "subjectId=" + subjectID,
	})
	if err != nil {
		return fail(err, stageStore)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return fail(err, stageStore)
		}
		res, err := s.resources.Upsert(ctx, e.Resource, e.FullURL)
		if err != nil {
			return fail(fmt.Errorf("resource %s: %w", e.Resource.Key(), err), stageStore)
		}
		if res.Outcome == resource.Inserted {
			out.Inserted++
		} else {
			out.Updated++
		}
	}
	out.ResourcesSynced = len(entries)

	log.Info().
		Int("resources", out.ResourcesSynced).
		Int("inserted", out.Inserted).
		Int("updated", out.Updated).
		Str("bundle_id", out.BundleID).
		Dur("duration", time.Since(start)).
		Msg("subject synced")
	s.publish(events.Event{
		Type:          events.TypeSubjectSynced,
		SubjectID:     subjectID,
		ResourceCount: out.ResourcesSynced,
	})
	return out, nil
}

type subjectResult struct {
	outcome SyncOutcome
	err     error
}

// SyncMany lists up to maxSubjects subjects and syncs each on the worker
// pool. Subject failures are recorded, never returned; only a listing
// failure (ErrListing) aborts the batch. Cancelling ctx stops dispatch, lets
// in-flight subjects finish, and yields status "cancelled".
func (s *Service) SyncMany(ctx context.Context, maxSubjects int) (*BulkSyncResult, error) {
	if maxSubjects <= 0 {
		return nil, fmt.Errorf("max subjects must be positive, got %d", maxSubjects)
	}

	start := time.Now()
	ids, err := s.fetcher.ListSubjects(ctx, maxSubjects)
	if err != nil {
		s.logger.Error().Err(err).Int("max_subjects", maxSubjects).Msg("subject listing failed")
		return nil, fmt.Errorf("%w: %w", ErrListing, err)
	}
	if len(ids) > maxSubjects {
		ids = ids[:maxSubjects]
	}
	s.logger.Info().Int("subjects", len(ids)).Int("max_concurrent", s.cfg.MaxConcurrent).Msg("bulk sync started")

	// In-flight subjects run detached from ctx so cancellation never cuts a
	// subject short; each still has its own timeout.
	work := context.WithoutCancel(ctx)

	results := make([]subjectResult, len(ids))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	dispatched := 0
dispatch:
	for i, id := range ids {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break dispatch
		}

		dispatched++
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			out, err := s.SyncSubject(work, id)
			results[i] = subjectResult{outcome: out, err: err}
		}(i, id)
	}
	wg.Wait()

	res := &BulkSyncResult{
		Status:           StatusSuccess,
		Skipped:          len(ids) - dispatched,
		SyncedSubjectIDs: []string{},
		FailedSubjectIDs: []string{},
		Failures:         []FailureDetail{},
	}
	if res.Skipped > 0 {
		res.Status = StatusCancelled
	}

	for i := 0; i < dispatched; i++ {
		r := results[i]
		if r.err != nil {
			res.FailedSubjectIDs = append(res.FailedSubjectIDs, ids[i])
			detail := FailureDetail{SubjectID: ids[i], Reason: ReasonTransport, Error: r.err.Error()}
			var f *SyncFailure
			if errors.As(r.err, &f) {
				detail.Reason = f.Reason
				detail.Error = f.Cause.Error()
			}
			res.Failures = append(res.Failures, detail)
			continue
		}
		res.SyncedSubjectIDs = append(res.SyncedSubjectIDs, ids[i])
		res.TotalResources += r.outcome.ResourcesSynced
	}
	res.Synced = len(res.SyncedSubjectIDs)
	res.Failed = len(res.FailedSubjectIDs)

	s.logger.Info().
		Str("status", res.Status).
		Int("synced", res.Synced).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int("total_resources", res.TotalResources).
		Dur("duration", time.Since(start)).
		Msg("bulk sync completed")
	s.publish(events.Event{
		Type:           events.TypeBulkCompleted,
		Status:         res.Status,
		Synced:         res.Synced,
		Failed:         res.Failed,
		TotalResources: res.TotalResources,
	})
	return res, nil
}

// publish is best-effort; a failed publish is logged and otherwise ignored.
func (s *Service) publish(e events.Event) {
	e.Timestamp = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("type", e.Type).Str("subject_id", e.SubjectID).Msg("event publish failed")
	}
}
