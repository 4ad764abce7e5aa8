package linkcheck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"linkhealth/domain/apperror"
	"linkhealth/domain/model"
	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"
	"linkhealth/infrastructure/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// LinkProber resolves one URL to a verdict.
type LinkProber interface {
	Probe(ctx context.Context, url string, tolerant bool) model.Link
}

// ScanOptions controls one Scan call.
type ScanOptions struct {
	// Concurrency bounds parallel probes within one video. Values <= 1 probe sequentially.
	Concurrency int
	// PauseBetweenVideos is waited before every video except the first.
	PauseBetweenVideos time.Duration
}

// VideoResult is reported after every video, whatever its outcome.
type VideoResult struct {
	Ref      model.VideoRef
	Report   *model.VideoLinkReport
	Skipped  bool
	Err      error
	Counters model.ScanCounters
}

// Scanner drives extraction and probing across a batch of videos.
type Scanner struct {
	classifier *Classifier
	prober     LinkProber
	videos     repository.IVideoProvider
	limiter    *rate.Limiter
}

// NewScanner builds a scanner. videos may be nil when every ref carries its own links or description.
func NewScanner(classifier *Classifier, prober LinkProber, videos repository.IVideoProvider, cfg Config) *Scanner {
	cfg = cfg.withDefaults()
	s := &Scanner{classifier: classifier, prober: prober, videos: videos}
	if cfg.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return s
}

// Scan processes refs in order. A failing video is logged and skipped; it
// still counts as processed. onVideo is called after each video and may stop
// the scan by returning an error. Scan also stops when ctx is done.
func (s *Scanner) Scan(ctx context.Context, refs []model.VideoRef, opts ScanOptions, onVideo func(VideoResult) error) (model.ScanCounters, error) {
	counters := model.ScanCounters{TotalVideos: len(refs)}
	log := logger.GetLogger()

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return counters, err
		}
		if i > 0 && opts.PauseBetweenVideos > 0 {
			if err := sleepContext(ctx, opts.PauseBetweenVideos); err != nil {
				return counters, err
			}
		}

		report, err := s.scanVideo(ctx, ref, opts.Concurrency)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return counters, ctxErr
		}

		counters.ProcessedVideos++
		result := VideoResult{Ref: ref}
		switch {
		case err != nil:
			result.Err = err
			metrics.VideosScanned.WithLabelValues("failed").Inc()
			log.WithFields(logrus.Fields{"videoId": ref.VideoID, "error": err}).Warn("Video skipped after failure")
		case report == nil:
			result.Skipped = true
			metrics.VideosScanned.WithLabelValues("no_links").Inc()
		default:
			counters.VideosWithLinks++
			for _, l := range report.Links {
				counters.Statistics.Record(l.Status)
			}
			result.Report = report
			metrics.VideosScanned.WithLabelValues("checked").Inc()
		}
		result.Counters = counters

		if onVideo != nil {
			if err := onVideo(result); err != nil {
				return counters, err
			}
		}
	}
	return counters, nil
}

// scanVideo returns a nil report when the video has no links.
func (s *Scanner) scanVideo(ctx context.Context, ref model.VideoRef, concurrency int) (report *model.VideoLinkReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scanning video %s: %v", ref.VideoID, r)
		}
	}()

	title := ref.Title
	links := cleanLinks(ref.Links)
	if len(links) == 0 {
		var text string
		if ref.Description != nil {
			text = *ref.Description
		} else {
			video, err := s.fetchVideo(ctx, ref.VideoID)
			if err != nil {
				return nil, err
			}
			text = video.Description
			if title == "" {
				title = video.Title
			}
		}
		links = CollectURLs(text)
	}
	if len(links) == 0 {
		return nil, nil
	}

	verdicts, err := s.probeAll(ctx, links, concurrency)
	if err != nil {
		return nil, err
	}

	videoURL := ref.URL
	if videoURL == "" {
		videoURL = model.WatchURL(ref.VideoID)
	}
	return &model.VideoLinkReport{
		VideoID:    ref.VideoID,
		VideoTitle: title,
		VideoURL:   videoURL,
		Links:      verdicts,
	}, nil
}

func (s *Scanner) fetchVideo(ctx context.Context, videoID string) (*model.YouTubeVideo, error) {
	if s.videos == nil {
		return nil, apperror.New(apperror.KindUpstreamMetadata, "no video provider configured for video %s", videoID)
	}
	video, err := s.videos.GetVideoDetails(ctx, videoID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUpstreamMetadata, err, "fetch metadata for video %s", videoID)
	}
	if video == nil {
		return nil, apperror.Wrap(apperror.KindUpstreamMetadata, repository.ErrVideoNotFound, "fetch metadata for video %s", videoID)
	}
	return video, nil
}

// probeAll keeps verdicts in the order of links.
func (s *Scanner) probeAll(ctx context.Context, links []string, concurrency int) ([]model.Link, error) {
	verdicts := make([]model.Link, len(links))
	if concurrency <= 1 {
		for i, u := range links {
			if err := s.probeOne(ctx, u, &verdicts[i]); err != nil {
				return nil, err
			}
		}
		return verdicts, nil
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range links {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic while probing %s: %v", u, r)
				}
			}()
			return s.probeOne(ctx, u, &verdicts[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

func (s *Scanner) probeOne(ctx context.Context, u string, out *model.Link) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	*out = s.prober.Probe(ctx, u, s.classifier.IsTolerant(u))
	return nil
}

func cleanLinks(links []string) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
