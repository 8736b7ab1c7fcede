// Package alerting evaluates threshold and trend triggers over classified
// feedback and owns the alert lifecycle, including the periodic sweeps.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/metrics"
	"github.com/eventpulse/eventpulse/internal/notify"
	"github.com/eventpulse/eventpulse/internal/rollup"
	"github.com/eventpulse/eventpulse/internal/store"
)

// Trend trigger tuning. The detector looks at the newest trendWindow
// minute buckets and compares them against the buckets fetched before
// them.
const (
	trendWindow        = 10
	trendFetch         = 20
	trendMinMessages   = 5
	trendShareFloor    = 0.60
	trendShareHigh     = 0.75
	trendShareIncrease = 0.20
	trendDedupWindow   = time.Hour
)

// autoResolveNote is the status-log note written by the sweep.
const autoResolveNote = "Automatically resolved due to time threshold"

// urgentKeywords escalate alert severity one level per match.
var urgentKeywords = []string{
	"urgent", "emergency", "dangerous", "unsafe", "evacuate",
	"fire", "medical", "injury", "injured", "police", "fight",
}

// Engine evaluates alert triggers and mutates alert state.
type Engine struct {
	alerts     store.AlertStore
	issues     store.IssueStore
	rollups    *rollup.Store
	dispatcher *notify.Dispatcher
	log        logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	defaults   domain.AlertSettings
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDefaultSettings sets service-wide alert settings used when an event
// leaves its own unset. Zero fields still fall through to the built-in
// defaults.
func WithDefaultSettings(s domain.AlertSettings) Option {
	return func(e *Engine) { e.defaults = s }
}

// settingsFor resolves an event's alert settings: per-event values win,
// then the service-wide defaults, then the built-in ones.
func (e *Engine) settingsFor(event *domain.Event) domain.AlertSettings {
	s := event.AlertSettings
	if s.NegativeSentimentThreshold == 0 {
		s.NegativeSentimentThreshold = e.defaults.NegativeSentimentThreshold
	}
	if s.IssueAlertThreshold == 0 {
		s.IssueAlertThreshold = e.defaults.IssueAlertThreshold
	}
	if s.AutoResolveAfter == 0 {
		s.AutoResolveAfter = e.defaults.AutoResolveAfter
	}
	return s.WithDefaults()
}

// NewEngine creates an alert rule engine.
func NewEngine(alerts store.AlertStore, issues store.IssueStore, rollups *rollup.Store,
	dispatcher *notify.Dispatcher, log logger.Logger, m *metrics.Metrics, opts ...Option,
) *Engine {
	e := &Engine{
		alerts:     alerts,
		issues:     issues,
		rollups:    rollups,
		dispatcher: dispatcher,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckIssueAlert runs the sentiment-threshold and issue-threshold
// triggers after a negative feedback item updated its issue. Returns the
// created alert, or nil when no trigger fired.
func (e *Engine) CheckIssueAlert(ctx context.Context, event *domain.Event, issue *domain.Issue, item *domain.FeedbackItem) (*domain.Alert, error) {
	settings := e.settingsFor(event)

	// Sentiment-threshold gate: the score must breach the event's
	// threshold (inclusive) before the issue triggers are consulted.
	if item.Sentiment != domain.SentimentNegative || item.SentimentScore > settings.NegativeSentimentThreshold {
		return nil, nil
	}

	// Critical issues alert immediately on creation, bypassing the
	// repetition threshold. High issues still accumulate to it.
	bypass := issue.FeedbackCount == 1 && issue.Severity == domain.SeverityCritical
	if !bypass && issue.FeedbackCount < settings.IssueAlertThreshold {
		return nil, nil
	}

	if _, err := e.alerts.FindActiveByIssue(ctx, issue.ID); err == nil {
		return nil, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("find active alert: %w", err)
	}

	now := e.now()
	severity := escalateForUrgency(issue.Severity, item)
	method := "issue_threshold"
	if bypass {
		method = "severity_bypass"
	}

	alert := domain.NewAlert(uuid.NewString(), event.ID, domain.AlertTypeIssue, severity,
		issueAlertTitle(issue), issueAlertDescription(issue), now)
	alert.Category = issue.Type
	alert.Location = issue.Location
	alert.IssueID = issue.ID
	alert.FeedbackIDs = append([]string(nil), issue.FeedbackIDs...)
	alert.Metadata.IssueCount = issue.FeedbackCount
	alert.Metadata.SentimentAverage = issue.SentimentAverage
	alert.Metadata.DetectionMethod = method
	alert.Metadata.Keywords = append([]string(nil), issue.Keywords...)
	alert.SetAutoResolveDue(now.Add(settings.AutoResolveAfter))

	if err := e.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	issue.LinkAlert(alert.ID)
	if err := e.issues.Update(ctx, issue); err != nil {
		e.log.Warn("failed to link alert to issue",
			logger.String("issue_id", issue.ID),
			logger.String("alert_id", alert.ID),
			logger.Error(err))
	}

	e.metrics.AlertsRaised.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	e.log.Info("issue alert raised",
		logger.String("alert_id", alert.ID),
		logger.String("event_id", event.ID),
		logger.String("issue_id", issue.ID),
		logger.String("severity", string(severity)),
		logger.String("method", method),
		logger.Int("issue_count", issue.FeedbackCount))
	e.dispatcher.AlertRaised(ctx, alert)
	return alert, nil
}

// CheckTrend runs the negative-trend detector over the event's recent
// minute buckets. A qualifying window within an hour of an open trend
// alert updates that alert instead of raising another.
func (e *Engine) CheckTrend(ctx context.Context, event *domain.Event) (*domain.Alert, error) {
	buckets, err := e.rollups.RecentMinuteBuckets(ctx, event.ID, trendFetch)
	if err != nil {
		return nil, fmt.Errorf("fetch minute buckets: %w", err)
	}
	if len(buckets) < trendWindow {
		return nil, nil
	}

	recent := buckets[len(buckets)-trendWindow:]
	prior := buckets[:len(buckets)-trendWindow]

	recentTotal, recentShare := windowShare(recent)
	triggered := recentTotal >= trendMinMessages && recentShare >= trendShareFloor

	if !triggered && len(prior) > 0 {
		priorTotal, priorShare := windowShare(prior)
		if priorTotal > 0 && recentTotal > 0 && recentShare-priorShare >= trendShareIncrease {
			triggered = true
		}
	}
	if !triggered {
		return nil, nil
	}

	severity := domain.SeverityMedium
	if recentShare >= trendShareHigh {
		severity = domain.SeverityHigh
	}
	now := e.now()
	description := fmt.Sprintf(
		"Negative sentiment at %.0f%% across the last %d minutes (%d messages)",
		recentShare*100, trendWindow, recentTotal)

	existing, err := e.alerts.FindActiveTrend(ctx, event.ID, now.Add(-trendDedupWindow))
	switch {
	case err == nil:
		existing.Description = description
		existing.Severity = existing.Severity.Max(severity)
		existing.Metadata.NegativeShare = recentShare
		if updateErr := e.alerts.Update(ctx, existing); updateErr != nil {
			return nil, fmt.Errorf("update trend alert: %w", updateErr)
		}
		e.dispatcher.AlertUpdated(ctx, existing)
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("find trend alert: %w", err)
	}

	settings := e.settingsFor(event)
	alert := domain.NewAlert(uuid.NewString(), event.ID, domain.AlertTypeTrend, severity,
		"Negative sentiment trend detected", description, now)
	alert.Metadata.NegativeShare = recentShare
	alert.Metadata.DetectionMethod = "trend_window"
	alert.SetAutoResolveDue(now.Add(settings.AutoResolveAfter))

	if err := e.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create trend alert: %w", err)
	}

	e.metrics.AlertsRaised.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	e.log.Info("trend alert raised",
		logger.String("alert_id", alert.ID),
		logger.String("event_id", event.ID),
		logger.Float64("negative_share", recentShare),
		logger.Int("messages", recentTotal))
	e.dispatcher.AlertRaised(ctx, alert)
	return alert, nil
}

// CreateManualAlert records an operator-originated alert. It bypasses the
// automatic triggers but flows through the same broadcast step.
func (e *Engine) CreateManualAlert(ctx context.Context, event *domain.Event, severity domain.Severity, title, description, actor string) (*domain.Alert, error) {
	now := e.now()
	alert := domain.NewAlert(uuid.NewString(), event.ID, domain.AlertTypeSystem, severity, title, description, now)
	alert.Metadata.DetectionMethod = "manual"
	alert.StatusLog[0].Actor = actor

	if err := e.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create manual alert: %w", err)
	}

	e.metrics.AlertsRaised.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	e.dispatcher.AlertRaised(ctx, alert)
	return alert, nil
}

// UpdateStatus transitions an alert through its state machine on behalf
// of an operator and broadcasts the change.
func (e *Engine) UpdateStatus(ctx context.Context, alertID string, status domain.AlertStatus, note, actor string) (*domain.Alert, error) {
	alert, err := e.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := alert.TransitionTo(status, note, actor, e.now()); err != nil {
		return nil, err
	}
	if err := e.alerts.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	e.dispatcher.AlertUpdated(ctx, alert)
	return alert, nil
}

func windowShare(buckets []*domain.SentimentBucket) (total int, negativeShare float64) {
	negative := 0
	for _, b := range buckets {
		total += b.Total
		negative += b.Sentiments[domain.SentimentNegative].Count
	}
	if total == 0 {
		return 0, 0
	}
	return total, float64(negative) / float64(total)
}

// escalateForUrgency bumps severity one level per urgent keyword found in
// the item's text, capped at critical.
func escalateForUrgency(severity domain.Severity, item *domain.FeedbackItem) domain.Severity {
	text := strings.ToLower(item.Text)
	for _, kw := range urgentKeywords {
		if severity == domain.SeverityCritical {
			break
		}
		if strings.Contains(text, kw) {
			severity = severity.Escalate()
		}
	}
	return severity
}

func issueAlertTitle(issue *domain.Issue) string {
	if issue.FeedbackCount == 1 {
		return fmt.Sprintf("Severe %s issue reported", issue.Type)
	}
	return fmt.Sprintf("Multiple %s issues reported", issue.Type)
}

func issueAlertDescription(issue *domain.Issue) string {
	desc := fmt.Sprintf("%d attendees reported %s problems", issue.FeedbackCount, issue.Type)
	if issue.Location != "" {
		desc += " at " + issue.Location
	}
	return desc
}
