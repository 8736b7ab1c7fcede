// Package aggregate groups repeated negative feedback into issues keyed
// by (event, issue type, location).
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/locking"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/store"
)

// Aggregator maintains open issues. Updates to one issue key are
// serialized so find-or-create never races and the running sentiment
// average stays exact under concurrent ingestion.
type Aggregator struct {
	issues store.IssueStore
	locks  *locking.KeyedMutex
	log    logger.Logger
}

// New creates an aggregator.
func New(issues store.IssueStore, log logger.Logger) *Aggregator {
	return &Aggregator{
		issues: issues,
		locks:  locking.NewKeyedMutex(),
		log:    log,
	}
}

func issueKey(eventID string, issueType domain.IssueType, location string) string {
	return eventID + "|" + string(issueType) + "|" + location
}

// RecordNegativeFeedback folds one negative classified item into the open
// issue for its (event, type, location), creating the issue on first
// mention. Returns the issue after the update.
func (a *Aggregator) RecordNegativeFeedback(ctx context.Context, item *domain.FeedbackItem) (*domain.Issue, error) {
	if item.IssueType == "" {
		return nil, fmt.Errorf("feedback %s has no issue type", item.ID)
	}

	key := issueKey(item.EventID, item.IssueType, item.Location)
	a.locks.Lock(key)
	defer a.locks.Unlock(key)

	issue, err := a.issues.FindOpen(ctx, item.EventID, item.IssueType, item.Location)
	switch {
	case err == nil:
		return a.update(ctx, issue, item)
	case errors.Is(err, domain.ErrNotFound):
		return a.create(ctx, item)
	default:
		return nil, fmt.Errorf("find open issue: %w", err)
	}
}

func (a *Aggregator) create(ctx context.Context, item *domain.FeedbackItem) (*domain.Issue, error) {
	issue := &domain.Issue{
		ID:              uuid.NewString(),
		EventID:         item.EventID,
		Type:            item.IssueType,
		Severity:        domain.SeverityForScore(item.SentimentScore),
		Status:          domain.IssueStatusDetected,
		Location:        item.Location,
		FirstDetectedAt: item.CreatedAt,
	}
	if err := issue.AddFeedback(item.ID, item.SentimentScore, item.CreatedAt); err != nil {
		return nil, err
	}
	issue.MergeKeywords(item.Metadata.Keywords)

	if err := a.issues.Create(ctx, issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}

	a.log.Info("issue detected",
		logger.String("issue_id", issue.ID),
		logger.String("event_id", issue.EventID),
		logger.String("type", string(issue.Type)),
		logger.String("location", issue.Location),
		logger.String("severity", string(issue.Severity)))
	return issue, nil
}

func (a *Aggregator) update(ctx context.Context, issue *domain.Issue, item *domain.FeedbackItem) (*domain.Issue, error) {
	if err := issue.AddFeedback(item.ID, item.SentimentScore, item.CreatedAt); err != nil {
		if errors.Is(err, domain.ErrFeedbackAlreadyLinked) {
			return issue, nil
		}
		return nil, err
	}
	issue.MergeKeywords(item.Metadata.Keywords)

	// Severity follows the running average but never steps down while the
	// issue stays open.
	issue.Severity = issue.Severity.Max(domain.SeverityForScore(issue.SentimentAverage))

	if err := a.issues.Update(ctx, issue); err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	return issue, nil
}
