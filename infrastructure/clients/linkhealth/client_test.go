package linkhealth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"linkhealth/domain/dto"
	"linkhealth/domain/model"
	"linkhealth/infrastructure/persistence"
	"linkhealth/infrastructure/queue"
	"linkhealth/infrastructure/utils"
	httpHandler "linkhealth/interfaces/http"
	"linkhealth/server"
	"linkhealth/usecase"
	"linkhealth/usecase/linkcheck"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "client-test-secret"

func token(t *testing.T, subject, plan string) string {
	t.Helper()
	signed, err := utils.GenerateToken(map[string]interface{}{"sub": subject, "plan": plan}, secret)
	require.NoError(t, err)
	return signed
}

// newService starts the full HTTP service backed by the in-memory store and queue.
func newService(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := persistence.NewScanRepository(persistence.NewMemoryStore())
	mq := queue.NewMemoryQueue(10)
	dispatcher := queue.NewDispatcher(mq, 3, time.Millisecond)

	cfg := linkcheck.Config{Timeout: 2 * time.Second, MaxRetries: -1}
	scanner := linkcheck.NewScanner(linkcheck.NewClassifier(nil), linkcheck.NewProber(cfg), nil, cfg)
	uc := usecase.NewScanUsecase(repo, scanner, nil, dispatcher, usecase.ScanConfig{
		SyncVideoLimit: 2,
		PlanLimit: func(plan string) int {
			if plan == "pro" {
				return 50
			}
			return 3
		},
		Concurrency: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dispatcher.Run(ctx, uc.ProcessJob)
	}()

	router := server.InitiateRouter(
		server.RouterConfig{SecretKey: secret, AllowedOrigins: []string{"http://localhost:4200"}},
		httpHandler.NewScanHandler(uc),
		httpHandler.NewHealthHandler(),
		nil,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		_ = mq.Close()
	})
	return srv
}

func newLinkServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/moved":
			http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AsyncScanEndToEnd(t *testing.T) {
	svc := newService(t)
	links := newLinkServer(t)
	client := NewClient(svc.URL+"/", token(t, "creator-1", "pro")).WithMaxWait(10 * time.Second)
	ctx := context.Background()

	desc := "Gear " + links.URL + "/ok and " + links.URL + "/gone."
	started, err := client.StartScan(ctx, &dto.ScanRequest{
		Videos: []dto.ScanVideoInput{
			{VideoID: "aaaaaaaaaaa", Description: &desc},
			{VideoID: "bbbbbbbbbbb", Links: []string{links.URL + "/moved"}},
			{VideoID: "ccccccccccc", Links: []string{}, Description: new(string)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ScanModeAsync, started.Mode)
	require.NotEmpty(t, started.JobID)

	status, err := client.WaitForCompletion(ctx, started.JobID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	require.NotNil(t, status.Result)
	assert.Equal(t, 3, status.Result.ProcessedVideos)
	assert.Equal(t, 2, status.Result.VideosWithLinks)
	assert.Equal(t, model.ScanStatistics{TotalLinks: 3, WorkingLinks: 2, BrokenLinks: 1}, status.Result.Statistics)

	sessions, err := client.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, status.Result.SessionID, sessions[0].SessionID)
	assert.Equal(t, model.ScanCompleted, sessions[0].Status)
}

func TestClient_Errors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	free := NewClient(svc.URL, token(t, "creator-2", "free"))
	_, err := free.StartScan(ctx, &dto.ScanRequest{VideoIDs: []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc", "ddddddddddd"}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	_, err = free.StartScan(ctx, &dto.ScanRequest{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = free.WaitForCompletion(ctx, "unknown-job", time.Millisecond)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	anonymous := NewClient(svc.URL, "")
	_, err = anonymous.ScanStatus(ctx, "any")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Unauthorized", apiErr.Message)
}

func TestClient_WaitRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "j1", r.URL.Query().Get("jobId"))
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"could not load job"}`))
		case 2:
			_, _ = w.Write([]byte(`{"success":true,"jobId":"j1","status":"active","progress":50}`))
		default:
			_, _ = w.Write([]byte(`{"success":true,"jobId":"j1","status":"failed","progress":50,"error":"scan crashed: boom"}`))
		}
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL, "tkn").WaitForCompletion(context.Background(), "j1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, status.Status)
	assert.Equal(t, "scan crashed: boom", status.Error)
	assert.Equal(t, int32(3), calls.Load())
}
