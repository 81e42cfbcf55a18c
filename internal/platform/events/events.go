// Package events carries sync lifecycle notifications to external
// subscribers. Publishing is best-effort: callers log failures and never let
// them change a sync result.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	TypeSubjectSynced = "subject.synced"
	TypeSubjectFailed = "subject.failed"
	TypeBulkCompleted = "bulk.completed"
)

// Event is one sync lifecycle notification. Subject events set SubjectID;
// bulk events set the aggregate counters.
type Event struct {
	Type           string    `json:"type"`
	SubjectID      string    `json:"subjectId,omitempty"`
	ResourceCount  int       `json:"resourceCount,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Error          string    `json:"error,omitempty"`
	Status         string    `json:"status,omitempty"`
	Synced         int       `json:"synced,omitempty"`
	Failed         int       `json:"failed,omitempty"`
	TotalResources int       `json:"totalResources,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
