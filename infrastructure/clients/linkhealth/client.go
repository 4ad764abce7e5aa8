package linkhealth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"linkhealth/domain/dto"
	"linkhealth/domain/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-querystring/query"
)

const (
	defaultTimeout      = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 30 * time.Minute
)

// ErrJobPending is returned by a poll that found the job still queued or active.
var ErrJobPending = errors.New("scan job still running")

// APIError is a non-2xx answer of the scan API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("linkhealth api: %d %s", e.StatusCode, e.Message)
}

// Client talks to the scan API on behalf of one bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	maxWait time.Duration
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		maxWait: DefaultMaxWait,
	}
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) WithMaxWait(d time.Duration) *Client {
	c.maxWait = d
	return c
}

type startScanResponse struct {
	dto.ScanStartResponse
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type scanStatusResponse struct {
	dto.ScanStatusResponse
	Success bool `json:"success"`
}

type sessionsResponse struct {
	Sessions []*model.ScanSession `json:"sessions"`
}

func (c *Client) StartScan(ctx context.Context, req *dto.ScanRequest) (*dto.ScanStartResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode scan request: %w", err)
	}
	var out startScanResponse
	if err := c.do(ctx, http.MethodPost, "/api/scan", nil, bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out.ScanStartResponse, nil
}

func (c *Client) ScanStatus(ctx context.Context, jobID string) (*dto.ScanStatusResponse, error) {
	var out scanStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/scan-status", dto.ScanStatusQuery{JobID: jobID}, nil, &out); err != nil {
		return nil, err
	}
	return &out.ScanStatusResponse, nil
}

func (c *Client) ListSessions(ctx context.Context, limit int) ([]*model.ScanSession, error) {
	var out sessionsResponse
	if err := c.do(ctx, http.MethodGet, "/api/scans", dto.SessionListQuery{Limit: limit}, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// WaitForCompletion polls the job until it reaches a terminal status. Client
// errors stop the wait immediately; server and network errors are retried.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, interval time.Duration) (*dto.ScanStatusResponse, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	poll := func() (*dto.ScanStatusResponse, error) {
		status, err := c.ScanStatus(ctx, jobID)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			return nil, err
		}
		if !status.Status.IsTerminal() {
			return nil, ErrJobPending
		}
		return status, nil
	}
	return backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(c.maxWait),
	)
}

func (c *Client) do(ctx context.Context, method, path string, params any, body io.Reader, out any) error {
	target := c.baseURL + path
	if params != nil {
		values, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
		if encoded := values.Encode(); encoded != "" {
			target += "?" + encoded
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var failure struct {
			Error           string `json:"error"`
			ResponseMessage string `json:"responseMessage"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &failure) == nil {
			if failure.Error != "" {
				msg = failure.Error
			} else if failure.ResponseMessage != "" {
				msg = failure.ResponseMessage
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
