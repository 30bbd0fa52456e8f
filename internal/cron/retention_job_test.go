package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type fakePurger struct {
	cutoff   time.Time
	called   int
	err      error
	countErr error
}

func (f *fakePurger) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff)
}

func (f *fakePurger) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return f.record(cutoff)
}

func (f *fakePurger) CountByReason(context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	if f.countErr != nil {
		return nil, f.countErr
	}
	return map[enums.OutboxDLQErrorReason]int64{enums.OutboxDLQReasonMaxAttempts: 2}, nil
}

func (f *fakePurger) record(cutoff time.Time) (int64, error) {
	f.called++
	f.cutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakePurger{}
	job, err := NewOutboxRetentionJob(testLogger(), repo, 48*time.Hour)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job.(*retentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-48 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if repo.called != 1 {
		t.Fatalf("expected one purge, got %d", repo.called)
	}
	if job.Name() != outboxRetentionJobName {
		t.Fatalf("unexpected name %q", job.Name())
	}
}

func TestDLQRetentionJobDefaultsWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakePurger{}
	job, err := NewDLQRetentionJob(testLogger(), repo, 0)
	if err != nil {
		t.Fatalf("NewDLQRetentionJob: %v", err)
	}
	job.(*retentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultDLQRetention); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
}

func TestDLQRetentionJobReportsBacklog(t *testing.T) {
	job, err := NewDLQRetentionJob(testLogger(), &fakePurger{}, time.Hour)
	if err != nil {
		t.Fatalf("NewDLQRetentionJob: %v", err)
	}
	remaining, err := job.(*retentionJob).backlog(context.Background())
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if remaining["max_attempts"] != 2 {
		t.Fatalf("unexpected backlog %v", remaining)
	}

	failing, err := NewDLQRetentionJob(testLogger(), &fakePurger{countErr: errors.New("down")}, time.Hour)
	if err != nil {
		t.Fatalf("NewDLQRetentionJob: %v", err)
	}
	if err := failing.Run(context.Background()); err != nil {
		t.Fatalf("backlog failure must not fail the purge: %v", err)
	}
}

func TestRetentionJobPropagatesError(t *testing.T) {
	job, err := NewOutboxRetentionJob(testLogger(), &fakePurger{err: errors.New("boom")}, time.Hour)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetentionJobRequiresRepository(t *testing.T) {
	if _, err := NewOutboxRetentionJob(testLogger(), nil, time.Hour); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
