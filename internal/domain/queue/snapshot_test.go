package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) PublishSnapshot(context.Context) error {
	s.calls++
	return s.err
}

type fixedSubscribers int

func (n fixedSubscribers) SubscriberCount(string) int { return int(n) }

func TestSnapshotJob_SkipsWithoutSubscribers(t *testing.T) {
	src := &countingSource{}
	job, err := NewSnapshotJob(src, fixedSubscribers(0), "@every 10s", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	job.Run()
	if src.calls != 0 {
		t.Errorf("expected no snapshot without subscribers, got %d", src.calls)
	}
}

func TestSnapshotJob_PublishesWithSubscribers(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	job, err := NewSnapshotJob(src, fixedSubscribers(2), "@every 10s", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	job.Run() // errors are logged, not raised
	if src.calls != 1 {
		t.Errorf("expected one snapshot, got %d", src.calls)
	}
}

func TestSnapshotJob_InvalidSchedule(t *testing.T) {
	if _, err := NewSnapshotJob(&countingSource{}, nil, "every tuesday", zerolog.Nop()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestSnapshotJob_StartStop(t *testing.T) {
	job, err := NewSnapshotJob(&countingSource{}, fixedSubscribers(0), "@every 1h", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	job.Start()
	job.Stop(context.Background())
}
