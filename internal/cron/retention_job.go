package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

const (
	outboxRetentionJobName = "outbox-retention"
	dlqRetentionJobName    = "outbox-dlq-retention"

	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
)

type publishedPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

// retentionJob deletes rows older than a fixed window.
type retentionJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	backlog   func(ctx context.Context) (map[string]int64, error)
	now       func() time.Time
}

// NewOutboxRetentionJob purges published outbox rows older than retention.
func NewOutboxRetentionJob(logg *logger.Logger, repo publishedPurger, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, errors.New("outbox repository required")
	}
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return newRetentionJob(outboxRetentionJobName, logg, retention, repo.DeletePublishedBefore)
}

// NewDLQRetentionJob purges dead-lettered events older than retention.
func NewDLQRetentionJob(logg *logger.Logger, repo deadLetterPurger, retention time.Duration) (Job, error) {
	if repo == nil {
		return nil, errors.New("dlq repository required")
	}
	if retention <= 0 {
		retention = defaultDLQRetention
	}
	job, err := newRetentionJob(dlqRetentionJobName, logg, retention, repo.DeleteBefore)
	if err != nil {
		return nil, err
	}
	job.backlog = func(ctx context.Context) (map[string]int64, error) {
		counts, err := repo.CountByReason(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]int64, len(counts))
		for reason, n := range counts {
			out[string(reason)] = n
		}
		return out, nil
	}
	return job, nil
}

func newRetentionJob(name string, logg *logger.Logger, retention time.Duration, purge func(context.Context, time.Time) (int64, error)) (*retentionJob, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &retentionJob{
		name:      name,
		logg:      logg,
		retention: retention,
		purge:     purge,
		now:       time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	fields := map[string]any{
		"cutoff":  cutoff.Format(time.RFC3339),
		"deleted": deleted,
	}
	if j.backlog != nil {
		// A failed count only loses the log field; the purge already happened.
		if remaining, err := j.backlog(ctx); err != nil {
			j.logg.Warn(ctx, fmt.Sprintf("%s: count backlog: %v", j.name, err))
		} else {
			fields["remaining"] = remaining
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "retention purge complete")
	return nil
}
