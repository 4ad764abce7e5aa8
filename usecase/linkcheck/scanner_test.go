package linkcheck

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"linkhealth/domain/apperror"
	"linkhealth/domain/model"
)

// fakeProber answers from a fixed table and records calls.
type fakeProber struct {
	mu       sync.Mutex
	verdicts map[string]model.LinkStatus
	calls    []string
	panicOn  string
}

func (f *fakeProber) Probe(_ context.Context, url string, tolerant bool) model.Link {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if url == f.panicOn {
		panic("boom")
	}
	status, ok := f.verdicts[url]
	if !ok {
		status = model.LinkWorking
	}
	return model.Link{URL: url, Status: status, StatusCode: 200}
}

type MockVideoProvider struct {
	mock.Mock
}

func (m *MockVideoProvider) GetVideoDetails(ctx context.Context, videoID string) (*model.YouTubeVideo, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.YouTubeVideo), args.Error(1)
}

func (m *MockVideoProvider) ListChannelVideoIDs(ctx context.Context, channelID string, max int) ([]string, error) {
	args := m.Called(ctx, channelID, max)
	return args.Get(0).([]string), args.Error(1)
}

var testNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestScanner_Aggregation(t *testing.T) {
	prober := &fakeProber{verdicts: map[string]model.LinkStatus{
		"https://broken.example": model.LinkBroken,
		"https://warn.example":   model.LinkWarning,
	}}
	s := NewScanner(NewClassifier(nil), prober, nil, DefaultConfig())

	refs := []model.VideoRef{
		{VideoID: "v1", Description: strPtr("a https://ok.example b https://broken.example.")},
		{VideoID: "v2", Description: strPtr("no links here")},
		{VideoID: "v3", Links: []string{"https://warn.example", " ", "https://ok.example"}},
	}

	var results []VideoResult
	counters, err := s.Scan(context.Background(), refs, ScanOptions{}, func(r VideoResult) error {
		results = append(results, r)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, counters.TotalVideos)
	assert.Equal(t, 3, counters.ProcessedVideos)
	assert.Equal(t, 2, counters.VideosWithLinks)
	stats := counters.Statistics
	assert.Equal(t, 4, stats.TotalLinks)
	assert.Equal(t, 2, stats.WorkingLinks)
	assert.Equal(t, 1, stats.WarningLinks)
	assert.Equal(t, 1, stats.BrokenLinks)
	assert.Equal(t, stats.TotalLinks, stats.WorkingLinks+stats.WarningLinks+stats.BrokenLinks)

	require.Len(t, results, 3)
	assert.NotNil(t, results[0].Report)
	assert.True(t, results[1].Skipped)
	assert.Nil(t, results[1].Report)
	assert.Equal(t, 2, results[1].Counters.ProcessedVideos)
	assert.Equal(t, "https://www.youtube.com/watch?v=v3", results[2].Report.VideoURL)
	assert.Equal(t, []string{"https://warn.example", "https://ok.example"},
		[]string{results[2].Report.Links[0].URL, results[2].Report.Links[1].URL})
}

func TestScanner_MetadataFailureIsolated(t *testing.T) {
	videos := new(MockVideoProvider)
	videos.On("GetVideoDetails", mock.Anything, "gone").Return(nil, errors.New("quota exceeded"))
	videos.On("GetVideoDetails", mock.Anything, "ok").
		Return(&model.YouTubeVideo{ID: "ok", Title: "Fetched", Description: "see https://x.example"}, nil)

	s := NewScanner(NewClassifier(nil), &fakeProber{}, videos, DefaultConfig())

	var results []VideoResult
	counters, err := s.Scan(context.Background(),
		[]model.VideoRef{{VideoID: "gone"}, {VideoID: "ok"}},
		ScanOptions{},
		func(r VideoResult) error {
			results = append(results, r)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 2, counters.ProcessedVideos)
	assert.Equal(t, 1, counters.VideosWithLinks)
	require.Len(t, results, 2)
	assert.True(t, apperror.IsKind(results[0].Err, apperror.KindUpstreamMetadata))
	assert.Equal(t, "Fetched", results[1].Report.VideoTitle)
	videos.AssertExpectations(t)
}

func TestScanner_NoProviderConfigured(t *testing.T) {
	s := NewScanner(NewClassifier(nil), &fakeProber{}, nil, DefaultConfig())
	var got VideoResult
	counters, err := s.Scan(context.Background(), []model.VideoRef{{VideoID: "v"}}, ScanOptions{}, func(r VideoResult) error {
		got = r
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.ProcessedVideos)
	assert.True(t, apperror.IsKind(got.Err, apperror.KindUpstreamMetadata))
}

func TestScanner_ProbePanicSkipsVideo(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		prober := &fakeProber{panicOn: "https://bad.example"}
		s := NewScanner(NewClassifier(nil), prober, nil, DefaultConfig())

		refs := []model.VideoRef{
			{VideoID: "v1", Links: []string{"https://bad.example"}},
			{VideoID: "v2", Links: []string{"https://good.example"}},
		}
		counters, err := s.Scan(context.Background(), refs, ScanOptions{Concurrency: concurrency}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, counters.ProcessedVideos, "concurrency %d", concurrency)
		assert.Equal(t, 1, counters.VideosWithLinks, "concurrency %d", concurrency)
		assert.Equal(t, 1, counters.Statistics.TotalLinks, "concurrency %d", concurrency)
	}
}

func TestScanner_ParallelKeepsOrder(t *testing.T) {
	links := []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example", "https://e.example"}
	cfg := DefaultConfig()
	cfg.RatePerSecond = 1000
	cfg.Burst = 5
	s := NewScanner(NewClassifier(nil), &fakeProber{}, nil, cfg)

	var report *model.VideoLinkReport
	_, err := s.Scan(context.Background(), []model.VideoRef{{VideoID: "v", Links: links}}, ScanOptions{Concurrency: 3}, func(r VideoResult) error {
		report = r.Report
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	for i, l := range report.Links {
		assert.Equal(t, links[i], l.URL)
	}
}

func TestScanner_CallbackErrorStops(t *testing.T) {
	s := NewScanner(NewClassifier(nil), &fakeProber{}, nil, DefaultConfig())
	stop := errors.New("storage down")
	refs := []model.VideoRef{
		{VideoID: "v1", Links: []string{"https://a.example"}},
		{VideoID: "v2", Links: []string{"https://b.example"}},
	}
	counters, err := s.Scan(context.Background(), refs, ScanOptions{}, func(VideoResult) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, counters.ProcessedVideos)
}

func TestScanner_CanceledContext(t *testing.T) {
	s := NewScanner(NewClassifier(nil), &fakeProber{}, nil, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, []model.VideoRef{{VideoID: "v", Links: []string{"https://a.example"}}}, ScanOptions{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_ProgressMonotonic(t *testing.T) {
	s := NewScanner(NewClassifier(nil), &fakeProber{}, nil, DefaultConfig())
	refs := make([]model.VideoRef, 7)
	for i := range refs {
		refs[i] = model.VideoRef{VideoID: string(rune('a' + i))}
		if i%2 == 0 {
			refs[i].Links = []string{"https://x.example"}
		} else {
			refs[i].Description = strPtr("")
		}
	}

	session := model.NewScanSession("s", "u", model.ScanModeSync, []string{"a", "b", "c", "d", "e", "f", "g"}, testNow)
	last := -1
	_, err := s.Scan(context.Background(), refs, ScanOptions{}, func(r VideoResult) error {
		require.NoError(t, session.Advance(r.Counters, testNow))
		assert.GreaterOrEqual(t, session.Progress, last)
		if r.Counters.ProcessedVideos < len(refs) {
			assert.Less(t, session.Progress, 100)
		}
		last = session.Progress
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 100, session.Progress)
}
