// Package api exposes the ingestion and alert management HTTP surface.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/pipeline"
	"github.com/eventpulse/eventpulse/internal/queue"
)

// Handler handles HTTP requests for the feedback pipeline API.
type Handler struct {
	svc *pipeline.Service
	log logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc *pipeline.Service, log logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// SubmitFeedbackRequest is the body of a direct feedback submission.
type SubmitFeedbackRequest struct {
	Text     string            `json:"text" binding:"required"`
	Source   string            `json:"source"`
	Location string            `json:"location"`
	Platform map[string]string `json:"platform"`
}

// SocialPostRequest is the body of a social media ingestion call.
type SocialPostRequest struct {
	Source     string            `json:"source" binding:"required"`
	ExternalID string            `json:"externalId" binding:"required"`
	Text       string            `json:"text" binding:"required"`
	Location   string            `json:"location"`
	Platform   map[string]string `json:"platform"`
}

// SocialPostResponse reports the outcome of a social ingestion call.
// Deduplicated posts succeed with a nil item.
type SocialPostResponse struct {
	Item         *domain.FeedbackItem `json:"item"`
	Queued       bool                 `json:"queued"`
	Deduplicated bool                 `json:"deduplicated"`
}

// UpdateAlertStatusRequest is the body of an alert status change.
type UpdateAlertStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
	Actor  string `json:"actor" binding:"required"`
}

// CreateAlertRequest is the body of a manual alert creation.
type CreateAlertRequest struct {
	Severity    string `json:"severity" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Actor       string `json:"actor" binding:"required"`
}

// FailedJobsResponse lists jobs that exhausted their retries.
type FailedJobsResponse struct {
	Jobs  []queue.FailedJob `json:"jobs"`
	Total int               `json:"total"`
}

// SubmitFeedback handles POST /api/v1/events/:id/feedback.
func (h *Handler) SubmitFeedback(c *gin.Context) {
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.SubmitFeedback(c.Request.Context(), pipeline.SubmitRequest{
		EventID:  c.Param("id"),
		Source:   domain.Source(req.Source),
		Text:     req.Text,
		Location: req.Location,
		Platform: req.Platform,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// ProcessSocialPost handles POST /api/v1/events/:id/social. Reprocessing
// an already-seen post is not an error; the response flags it instead.
func (h *Handler) ProcessSocialPost(c *gin.Context) {
	var req SocialPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.ProcessSocialPost(c.Request.Context(), pipeline.SocialRequest{
		EventID:    c.Param("id"),
		Source:     domain.Source(req.Source),
		ExternalID: req.ExternalID,
		Text:       req.Text,
		Location:   req.Location,
		Platform:   req.Platform,
	})
	if errors.Is(err, domain.ErrDuplicateSource) {
		c.JSON(http.StatusOK, SocialPostResponse{Deduplicated: true})
		return
	}
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SocialPostResponse{
		Item:   result.Item,
		Queued: result.Queued,
	})
}

// UpdateAlertStatus handles PATCH /api/v1/alerts/:id/status.
func (h *Handler) UpdateAlertStatus(c *gin.Context) {
	var req UpdateAlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.svc.UpdateAlertStatus(c.Request.Context(),
		c.Param("id"), domain.AlertStatus(req.Status), req.Note, req.Actor)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, alert)
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case errors.Is(err, domain.ErrTerminalStatus), errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("alert status update failed",
			logger.String("alert_id", c.Param("id")),
			logger.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// CreateAlert handles POST /api/v1/events/:id/alerts.
func (h *Handler) CreateAlert(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	severity := domain.Severity(req.Severity)
	if !severity.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown severity"})
		return
	}

	alert, err := h.svc.CreateManualAlert(c.Request.Context(),
		c.Param("id"), severity, req.Title, req.Description, req.Actor)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, alert)
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
	default:
		h.log.Error("manual alert creation failed",
			logger.String("event_id", c.Param("id")),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
	}
}

// GetAlertCounts handles GET /api/v1/events/:id/alerts/counts.
func (h *Handler) GetAlertCounts(c *gin.Context) {
	counts, err := h.svc.GetActiveAlertCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Error("alert count query failed",
			logger.String("event_id", c.Param("id")),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count alerts"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

// Recalculate handles POST /api/v1/events/:id/recalculate.
func (h *Handler) Recalculate(c *gin.Context) {
	summary, err := h.svc.RecalculateHistoricalData(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, summary)
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
	default:
		h.log.Error("recalculation failed",
			logger.String("event_id", c.Param("id")),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recalculation failed"})
	}
}

// ListFailedJobs handles GET /api/v1/queue/failed.
func (h *Handler) ListFailedJobs(c *gin.Context) {
	jobs := h.svc.FailedJobs()
	c.JSON(http.StatusOK, FailedJobsResponse{Jobs: jobs, Total: len(jobs)})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "eventpulse",
	})
}

// writeSubmitError maps ingestion errors to HTTP statuses. Unknown events
// surface as terminal errors from the processing path.
func (h *Handler) writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyText),
		errors.Is(err, pipeline.ErrInvalidSource),
		errors.Is(err, pipeline.ErrNotSocial),
		errors.Is(err, pipeline.ErrMissingID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, queue.ErrNoRetry):
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
	default:
		h.log.Error("feedback submission failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process feedback"})
	}
}
