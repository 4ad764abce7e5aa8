package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"linkhealth/domain/model"
	"linkhealth/infrastructure/metrics"
)

const drainLimit = 64 << 10

type outcome string

const (
	outcomeResponse outcome = "response"
	outcomeTimeout  outcome = "timeout"
	outcomeNetwork  outcome = "network_error"
	outcomeInvalid  outcome = "invalid_url"
	outcomeCanceled outcome = "canceled"
)

type attemptResult struct {
	outcome outcome
	code    int
	err     error
}

// retryable reports whether a tolerant URL should be tried again after this attempt.
func (r attemptResult) retryable() bool {
	switch r.outcome {
	case outcomeTimeout, outcomeNetwork:
		return true
	case outcomeResponse:
		return r.code >= 500
	default:
		return false
	}
}

// Prober performs bounded HTTP probes. It is safe for concurrent use.
type Prober struct {
	cfg       Config
	transport http.RoundTripper
}

func NewProber(cfg Config) *Prober {
	return &Prober{cfg: cfg.withDefaults(), transport: http.DefaultTransport}
}

// WithTransport replaces the round tripper used for every probe.
func (p *Prober) WithTransport(rt http.RoundTripper) *Prober {
	p.transport = rt
	return p
}

// Probe resolves url to a verdict. Tolerant URLs get up to MaxRetries extra
// attempts on timeout, network error or 5xx, each after RetryDelay.
func (p *Prober) Probe(ctx context.Context, rawURL string, tolerant bool) model.Link {
	maxAttempts := 1
	if tolerant {
		maxAttempts += p.cfg.MaxRetries
	}

	client := p.newClient()
	var res attemptResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, p.cfg.RetryDelay); err != nil {
				break
			}
		}
		res = p.attempt(ctx, client, rawURL)
		metrics.ProbeAttempts.WithLabelValues(string(res.outcome)).Inc()
		if !res.retryable() {
			break
		}
	}

	link := p.verdict(rawURL, res, tolerant)
	metrics.LinksChecked.WithLabelValues(string(link.Status)).Inc()
	return link
}

// newClient builds a per-probe client so cookies set during a redirect chain do not leak between probes.
func (p *Prober) newClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	maxRedirects := p.cfg.MaxRedirects
	return &http.Client{
		Transport: p.transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

func (p *Prober) attempt(ctx context.Context, client *http.Client, rawURL string) attemptResult {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil {
			err = fmt.Errorf("unsupported url %q", rawURL)
		}
		return attemptResult{outcome: outcomeInvalid, err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attemptResult{outcome: outcomeInvalid, err: err}
	}
	setBrowserHeaders(req, p.cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return attemptResult{outcome: outcomeCanceled, err: ctx.Err()}
		case isTimeout(err):
			return attemptResult{outcome: outcomeTimeout, err: err}
		default:
			return attemptResult{outcome: outcomeNetwork, err: err}
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	return attemptResult{outcome: outcomeResponse, code: resp.StatusCode}
}

func (p *Prober) verdict(rawURL string, res attemptResult, tolerant bool) model.Link {
	link := model.Link{URL: rawURL}
	switch res.outcome {
	case outcomeResponse:
		link.StatusCode = res.code
		link.Status = ClassifyStatus(res.code, tolerant)
		if link.Status != model.LinkWorking {
			link.ErrorNote = responseNote(res.code)
		}
	case outcomeTimeout:
		link.StatusCode = http.StatusRequestTimeout
		link.Status = model.LinkWarning
		link.ErrorNote = fmt.Sprintf("request timed out after %s", p.cfg.Timeout)
	case outcomeCanceled:
		link.Status = model.LinkWarning
		link.ErrorNote = "probe canceled"
	default:
		link.Status = model.LinkBroken
		if tolerant {
			link.Status = model.LinkWarning
		}
		link.ErrorNote = errorNote(res)
	}
	return link
}

// ClassifyStatus maps a final HTTP status code to a verdict.
func ClassifyStatus(code int, tolerant bool) model.LinkStatus {
	switch {
	case code >= 200 && code < 300:
		return model.LinkWorking
	case code >= 300 && code < 400:
		return model.LinkWarning
	case code == http.StatusNotFound || code == http.StatusGone:
		return model.LinkBroken
	case code >= 400 && code < 500:
		if tolerant {
			return model.LinkWarning
		}
		return model.LinkBroken
	default:
		return model.LinkWarning
	}
}

func responseNote(code int) string {
	switch {
	case code >= 300 && code < 400:
		return fmt.Sprintf("HTTP %d: redirect not resolved", code)
	case code != 0:
		if text := http.StatusText(code); text != "" {
			return fmt.Sprintf("HTTP %d: %s", code, text)
		}
	}
	return fmt.Sprintf("HTTP %d", code)
}

func errorNote(res attemptResult) string {
	if res.err == nil {
		return string(res.outcome)
	}
	var dnsErr *net.DNSError
	if errors.As(res.err, &dnsErr) {
		return "dns lookup failed: " + dnsErr.Name
	}
	return fmt.Sprintf("%s: %v", res.outcome, unwrapURLError(res.err))
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func setBrowserHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
