package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetentionRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeRetentionRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	repo := &fakeRetentionRepo{deleted: 3}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     cronTestLogger(),
		Repository: repo,
		Retention:  7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "outbox-retention", job.Name())

	before := time.Now().UTC().Add(-7 * 24 * time.Hour)
	require.NoError(t, job.Run(context.Background()))
	after := time.Now().UTC().Add(-7 * 24 * time.Hour)

	assert.False(t, repo.cutoff.Before(before))
	assert.False(t, repo.cutoff.After(after))
}

func TestOutboxRetentionJobDefaultsRetention(t *testing.T) {
	repo := &fakeRetentionRepo{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     cronTestLogger(),
		Repository: repo,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))

	expected := time.Now().UTC().Add(-defaultOutboxRetention)
	assert.WithinDuration(t, expected, repo.cutoff, time.Minute)
}

func TestOutboxRetentionJobPropagatesErrors(t *testing.T) {
	repo := &fakeRetentionRepo{err: errors.New("db down")}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     cronTestLogger(),
		Repository: repo,
	})
	require.NoError(t, err)

	assert.Error(t, job.Run(context.Background()))
}
