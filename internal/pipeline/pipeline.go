// Package pipeline orchestrates feedback processing: intake, queueing,
// classification, persistence, aggregation, and alert evaluation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventpulse/eventpulse/internal/aggregate"
	"github.com/eventpulse/eventpulse/internal/alerting"
	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/issueclass"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/metrics"
	"github.com/eventpulse/eventpulse/internal/notify"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/rollup"
	"github.com/eventpulse/eventpulse/internal/sentiment"
	"github.com/eventpulse/eventpulse/internal/store"
	"github.com/eventpulse/eventpulse/internal/textutil"
)

// Validation errors surfaced at the intake boundary.
var (
	ErrEmptyText     = errors.New("feedback text is required")
	ErrInvalidSource = errors.New("unknown feedback source")
	ErrNotSocial     = errors.New("source is not a social feed")
	ErrMissingID     = errors.New("social post requires an external id")
)

// SubmitRequest is a direct feedback submission.
type SubmitRequest struct {
	EventID  string
	Source   domain.Source
	Text     string
	Location string
	Platform map[string]string
}

// SocialRequest is a normalized social-media post handed in by a feed
// source.
type SocialRequest struct {
	EventID    string
	Source     domain.Source
	ExternalID string
	Text       string
	Location   string
	Platform   map[string]string
}

// SubmitResult reports how an intake request was handled.
type SubmitResult struct {
	Item   *domain.FeedbackItem `json:"item"`
	Queued bool                 `json:"queued"`
}

// RecalculateSummary reports a historical rebuild.
type RecalculateSummary struct {
	EventID          string `json:"eventId"`
	FeedbackReplayed int    `json:"feedbackReplayed"`
}

// Service wires the processing stages together. One Service instance
// serves all events; per-event state lives in the stores.
type Service struct {
	events     store.EventStore
	feedback   store.FeedbackStore
	alerts     store.AlertStore
	sentiment  *sentiment.Chain
	issueClass *issueclass.Chain
	aggregator *aggregate.Aggregator
	engine     *alerting.Engine
	rollups    *rollup.Store
	dispatcher *notify.Dispatcher
	log        logger.Logger
	metrics    *metrics.Metrics

	queue *queue.Queue
	now   func() time.Time
}

// New creates the pipeline service. Attach the ingestion queue with
// UseQueue; without one every submission processes synchronously.
func New(
	events store.EventStore,
	feedback store.FeedbackStore,
	alerts store.AlertStore,
	sentimentChain *sentiment.Chain,
	issueChain *issueclass.Chain,
	aggregator *aggregate.Aggregator,
	engine *alerting.Engine,
	rollups *rollup.Store,
	dispatcher *notify.Dispatcher,
	log logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		events:     events,
		feedback:   feedback,
		alerts:     alerts,
		sentiment:  sentimentChain,
		issueClass: issueChain,
		aggregator: aggregator,
		engine:     engine,
		rollups:    rollups,
		dispatcher: dispatcher,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

// UseQueue attaches the ingestion queue. The queue's handler must be this
// service's ProcessItem.
func (s *Service) UseQueue(q *queue.Queue) { s.queue = q }

// SubmitFeedback accepts a direct submission at high priority. The call
// succeeds once the item is queued; if the queue is unavailable the item
// is processed synchronously so it is never lost.
func (s *Service) SubmitFeedback(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	source := req.Source
	if source == "" {
		source = domain.SourceDirect
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSource, req.Source)
	}

	item := &domain.FeedbackItem{
		ID:        uuid.NewString(),
		EventID:   req.EventID,
		Source:    source,
		Text:      req.Text,
		Location:  req.Location,
		Metadata:  domain.FeedbackMetadata{Platform: req.Platform},
		CreatedAt: s.now(),
	}
	return s.intake(ctx, item, queue.PriorityHigh)
}

// ProcessSocialPost accepts a normalized social post at normal priority.
// A post whose (event, source, externalID) was already seen is skipped
// and ErrDuplicateSource returned.
func (s *Service) ProcessSocialPost(ctx context.Context, req SocialRequest) (*SubmitResult, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	if !req.Source.IsSocial() {
		return nil, fmt.Errorf("%w: %s", ErrNotSocial, req.Source)
	}
	if req.ExternalID == "" {
		return nil, ErrMissingID
	}

	seen, err := s.feedback.ExistsBySource(ctx, req.EventID, req.Source, req.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if seen {
		s.metrics.SocialDeduped.Inc()
		s.log.Debug("dropping duplicate social post",
			logger.String("event_id", req.EventID),
			logger.String("source", string(req.Source)),
			logger.String("source_id", req.ExternalID))
		return nil, domain.ErrDuplicateSource
	}

	item := &domain.FeedbackItem{
		ID:        uuid.NewString(),
		EventID:   req.EventID,
		Source:    req.Source,
		SourceID:  req.ExternalID,
		Text:      req.Text,
		Location:  req.Location,
		Metadata:  domain.FeedbackMetadata{Platform: req.Platform},
		CreatedAt: s.now(),
	}
	return s.intake(ctx, item, queue.PriorityNormal)
}

// intake queues the item, falling back to synchronous processing when the
// queue cannot take it. Intake never fails because of a queue outage.
func (s *Service) intake(ctx context.Context, item *domain.FeedbackItem, priority queue.Priority) (*SubmitResult, error) {
	if s.queue != nil {
		err := s.queue.Enqueue(ctx, item, priority)
		if err == nil {
			return &SubmitResult{Item: item, Queued: true}, nil
		}
		s.metrics.QueueFallbacks.Inc()
		s.log.Warn("queue unavailable, processing synchronously",
			logger.String("feedback_id", item.ID),
			logger.Error(err))
	}

	if err := s.ProcessItem(ctx, item); err != nil {
		return nil, err
	}
	return &SubmitResult{Item: item, Queued: false}, nil
}

// ProcessItem runs one feedback item through the full pipeline. It is the
// queue's handler; errors wrapping queue.ErrNoRetry are terminal.
func (s *Service) ProcessItem(ctx context.Context, item *domain.FeedbackItem) error {
	start := time.Now()
	defer func() { s.metrics.ProcessDuration.Observe(time.Since(start).Seconds()) }()

	event, err := s.events.GetEvent(ctx, item.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: event %s not found", queue.ErrNoRetry, item.EventID)
		}
		return fmt.Errorf("load event: %w", err)
	}

	s.classify(ctx, item)

	item.Processed = true
	if err := s.feedback.Create(ctx, item); err != nil {
		if errors.Is(err, domain.ErrDuplicateSource) {
			// A concurrent job won the dedup race; this copy is dropped.
			s.metrics.SocialDeduped.Inc()
			return nil
		}
		return fmt.Errorf("persist feedback: %w", err)
	}

	// The item is durable from here on. Downstream trigger or broadcast
	// failures are logged, never bounced back to the queue, so a retry
	// cannot double-count the item in aggregates.
	s.postPersist(ctx, event, item)
	return nil
}

func (s *Service) classify(ctx context.Context, item *domain.FeedbackItem) {
	item.Metadata.Hashtags = textutil.ExtractHashtags(item.Text)
	item.Metadata.Mentions = textutil.ExtractMentions(item.Text)
	item.Metadata.Keywords = textutil.ExtractKeywords(item.Text, 10)

	res := s.sentiment.Classify(ctx, item.Text)
	item.Sentiment = res.Label
	item.SentimentScore = res.Score
	s.metrics.FeedbackProcessed.WithLabelValues(string(res.Label)).Inc()
	s.metrics.ClassifierMethod.WithLabelValues("sentiment", res.Method).Inc()

	if item.Sentiment == domain.SentimentNegative {
		issueRes := s.issueClass.Classify(ctx, item.Text)
		item.IssueType = issueRes.IssueType
		s.metrics.ClassifierMethod.WithLabelValues("issue", issueRes.Method).Inc()
	}
}

func (s *Service) postPersist(ctx context.Context, event *domain.Event, item *domain.FeedbackItem) {
	if err := s.rollups.Record(ctx, item); err != nil {
		s.log.Error("rollup update failed",
			logger.String("feedback_id", item.ID),
			logger.Error(err))
	}

	if item.Sentiment == domain.SentimentNegative && item.IssueType != "" {
		issue, err := s.aggregator.RecordNegativeFeedback(ctx, item)
		if err != nil {
			s.log.Error("issue aggregation failed",
				logger.String("feedback_id", item.ID),
				logger.Error(err))
		} else if _, err := s.engine.CheckIssueAlert(ctx, event, issue, item); err != nil {
			s.log.Error("issue alert check failed",
				logger.String("issue_id", issue.ID),
				logger.Error(err))
		}
	}

	if _, err := s.engine.CheckTrend(ctx, event); err != nil {
		s.log.Error("trend check failed",
			logger.String("event_id", event.ID),
			logger.Error(err))
	}

	s.dispatcher.FeedbackProcessed(ctx, item)
}

// UpdateAlertStatus applies an operator status change.
func (s *Service) UpdateAlertStatus(ctx context.Context, alertID string, status domain.AlertStatus, note, actor string) (*domain.Alert, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown alert status %q", status)
	}
	return s.engine.UpdateStatus(ctx, alertID, status, note, actor)
}

// GetActiveAlertCount returns the event's alert counts by status and
// severity.
func (s *Service) GetActiveAlertCount(ctx context.Context, eventID string) (*store.AlertCounts, error) {
	return s.alerts.CountsByEvent(ctx, eventID)
}

// RecalculateHistoricalData rebuilds the event's sentiment buckets from
// stored feedback. Off the hot path; used for backfill and repair.
func (s *Service) RecalculateHistoricalData(ctx context.Context, eventID string) (*RecalculateSummary, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	replayed, err := s.rollups.Recalculate(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &RecalculateSummary{EventID: eventID, FeedbackReplayed: replayed}, nil
}

// FailedJobs exposes the queue's retained failures for inspection.
func (s *Service) FailedJobs() []queue.FailedJob {
	if s.queue == nil {
		return nil
	}
	return s.queue.FailedJobs()
}

// CreateManualAlert records an operator-originated alert for an event.
func (s *Service) CreateManualAlert(ctx context.Context, eventID string, severity domain.Severity, title, description, actor string) (*domain.Alert, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.engine.CreateManualAlert(ctx, event, severity, title, description, actor)
}
