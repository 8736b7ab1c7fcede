package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/internal/aggregate"
	"github.com/eventpulse/eventpulse/internal/alerting"
	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/issueclass"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/metrics"
	"github.com/eventpulse/eventpulse/internal/notify"
	"github.com/eventpulse/eventpulse/internal/pipeline"
	"github.com/eventpulse/eventpulse/internal/rollup"
	"github.com/eventpulse/eventpulse/internal/sentiment"
	"github.com/eventpulse/eventpulse/internal/store"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := store.NewMemoryEvents()
	events.Put(&domain.Event{ID: "evt-1", Name: "Summer Fest", IsActive: true})
	feedback := store.NewMemoryFeedback()
	issues := store.NewMemoryIssues()
	alerts := store.NewMemoryAlerts()

	log := logger.NewNop()
	m := metrics.NewNop()
	rollups := rollup.New(store.NewMemoryBuckets(), feedback, log)
	dispatcher := notify.NewDispatcher(nopBroadcaster{}, nil, nil, nil, log)
	engine := alerting.NewEngine(alerts, issues, rollups, dispatcher, log, m)
	agg := aggregate.New(issues, log)

	svc := pipeline.New(events, feedback, alerts,
		sentiment.NewChain(log, sentiment.NewLexiconStage(nil), sentiment.NewKeywordStage()),
		issueclass.NewChain(log, issueclass.NewKeywordOverlapStage(), issueclass.NewBayesStage()),
		agg, engine, rollups, dispatcher, log, m)

	router := gin.New()
	SetupRoutes(router, NewHandler(svc, log), prometheus.NewRegistry())
	return router
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastAlert(ctx context.Context, a *domain.Alert) error { return nil }
func (nopBroadcaster) BroadcastFeedback(ctx context.Context, i *domain.FeedbackItem) error {
	return nil
}
func (nopBroadcaster) BroadcastAutoResolveSummary(ctx context.Context, eventID string, n int) error {
	return nil
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitFeedbackEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/feedback",
		gin.H{"text": "the sound is terrible", "location": "Main Stage"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var result pipeline.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.Item)
	assert.Equal(t, domain.SentimentNegative, result.Item.Sentiment)
	assert.Equal(t, domain.IssueAudio, result.Item.IssueType)
	assert.False(t, result.Queued)
}

func TestSubmitFeedbackBadRequests(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/feedback", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/feedback",
		gin.H{"text": "hi there", "source": "telegraph"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFeedbackUnknownEvent(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/evt-nope/feedback",
		gin.H{"text": "anyone out there"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSocialPostEndpointDedup(t *testing.T) {
	router := setupTestRouter(t)
	body := gin.H{"source": "twitter", "externalId": "tw-1", "text": "amazing show tonight"}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/social", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/social", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SocialPostResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Deduplicated)
	assert.Nil(t, resp.Item)
}

func TestManualAlertLifecycle(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/alerts",
		gin.H{"severity": "medium", "title": "Gate closed", "actor": "op-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var alert domain.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	assert.Equal(t, domain.AlertStatusNew, alert.Status)

	rec = doJSON(t, router, http.MethodPatch, "/api/v1/alerts/"+alert.ID+"/status",
		gin.H{"status": "resolved", "note": "done", "actor": "op-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Resolved is terminal.
	rec = doJSON(t, router, http.MethodPatch, "/api/v1/alerts/"+alert.ID+"/status",
		gin.H{"status": "acknowledged", "actor": "op-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, "/api/v1/alerts/missing/status",
		gin.H{"status": "acknowledged", "actor": "op-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/alerts",
		gin.H{"severity": "apocalyptic", "title": "x", "actor": "op-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertCountsEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/alerts",
		gin.H{"severity": "high", "title": "Crowding at gate", "actor": "op-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/events/evt-1/alerts/counts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var counts store.AlertCounts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 1, counts.BySeverity[domain.SeverityHigh])
}

func TestRecalculateEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/feedback",
		gin.H{"text": "what a great night"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/evt-1/recalculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary pipeline.RecalculateSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.FeedbackReplayed)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/evt-nope/recalculate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFailedJobsEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/queue/failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FailedJobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Total)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	router := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
