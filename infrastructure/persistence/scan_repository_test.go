package persistence

import (
	"context"
	"testing"
	"time"

	"linkhealth/domain/model"
	"linkhealth/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRepository_Sessions(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository(NewMemoryStore())
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	older := model.NewScanSession("s1", "u1", model.ScanModeSync, []string{"a"}, base)
	newer := model.NewScanSession("s2", "u1", model.ScanModeAsync, []string{"b"}, base.Add(time.Minute))
	other := model.NewScanSession("s3", "u2", model.ScanModeSync, nil, base)
	for _, s := range []*model.ScanSession{older, newer, other} {
		require.NoError(t, repo.SaveSession(ctx, s))
	}

	got, err := repo.GetSession(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, model.ScanQueued, got.Status)

	list, err := repo.ListSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].SessionID)
	assert.Equal(t, "s1", list[1].SessionID)

	_, err = repo.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorContains(t, err, "scan session nope")
}

func TestScanRepository_Jobs(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository(NewMemoryStore())
	job := model.NewScanJob("j1", "u1", time.Now())
	require.NoError(t, job.Activate(time.Now()))
	require.NoError(t, repo.SaveJob(ctx, job))

	got, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobActive, got.Status)
	assert.Equal(t, 1, got.Attempts)

	_, err = repo.GetJob(ctx, "j2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestScanRepository_ReportsUpsertPerUserVideo(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository(NewMemoryStore())
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveReport(ctx, &model.VideoLinkReport{VideoID: "v2", SessionID: "s1", UserID: "u1", CheckedAt: base.Add(time.Second)}))
	require.NoError(t, repo.SaveReport(ctx, &model.VideoLinkReport{VideoID: "v1", SessionID: "s1", UserID: "u1", CheckedAt: base}))

	reports, err := repo.ListReportsBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "v1", reports[0].VideoID)

	// a later scan of the same video replaces the user's report
	require.NoError(t, repo.SaveReport(ctx, &model.VideoLinkReport{VideoID: "v1", SessionID: "s2", UserID: "u1", CheckedAt: base.Add(time.Hour)}))
	reports, err = repo.ListReportsBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "v2", reports[0].VideoID)

	reports, err = repo.ListReportsBySession(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, reports, 1)
}
