package events

import (
	"context"
	"errors"
	"testing"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("broker down")}
	m := Multi{ok, bad, Nop{}}

	err := m.Publish(context.Background(), Event{Type: TypeSubjectSynced, SubjectID: "p1"})
	if !errors.Is(err, bad.err) {
		t.Errorf("expected joined broker error, got %v", err)
	}
	if len(ok.got) != 1 || len(bad.got) != 1 {
		t.Errorf("expected every publisher to receive the event, got %d and %d", len(ok.got), len(bad.got))
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Publish(context.Background(), Event{}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
