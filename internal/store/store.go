// Package store defines the persistence contracts the pipeline depends on,
// with Postgres and in-memory implementations.
package store

import (
	"context"
	"time"

	"github.com/eventpulse/eventpulse/internal/domain"
)

// EventStore looks up the events that own pipeline state.
type EventStore interface {
	// GetEvent returns the event or domain.ErrNotFound.
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
}

// FeedbackStore persists classified feedback items.
type FeedbackStore interface {
	// Create persists a new feedback item.
	Create(ctx context.Context, item *domain.FeedbackItem) error

	// Get returns the item or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.FeedbackItem, error)

	// ExistsBySource reports whether the event already has an item with the
	// given (source, sourceID) pair. Used for social dedup.
	ExistsBySource(ctx context.Context, eventID string, source domain.Source, sourceID string) (bool, error)

	// ListByEvent returns all items for an event ordered by creation time.
	// Used by the historical recalculation path, not the hot path.
	ListByEvent(ctx context.Context, eventID string) ([]*domain.FeedbackItem, error)
}

// IssueStore persists aggregated issues. Writers must serialize updates to
// the same (event, type, location) issue; the aggregator holds a per-key
// lock around FindOpen/Create/Update sequences.
type IssueStore interface {
	Create(ctx context.Context, issue *domain.Issue) error
	Update(ctx context.Context, issue *domain.Issue) error

	// Get returns the issue or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Issue, error)

	// FindOpen returns the non-terminal issue for (event, type, location) or
	// domain.ErrNotFound.
	FindOpen(ctx context.Context, eventID string, issueType domain.IssueType, location string) (*domain.Issue, error)
}

// AlertStore persists operator-facing alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *domain.Alert) error
	Update(ctx context.Context, alert *domain.Alert) error

	// Get returns the alert or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Alert, error)

	// FindActiveByIssue returns a non-resolved alert referencing the issue,
	// or domain.ErrNotFound.
	FindActiveByIssue(ctx context.Context, issueID string) (*domain.Alert, error)

	// FindActiveTrend returns a non-terminal trend alert for the event
	// created at or after since, or domain.ErrNotFound.
	FindActiveTrend(ctx context.Context, eventID string, since time.Time) (*domain.Alert, error)

	// ListAutoResolveDue returns non-terminal alerts whose auto-resolve
	// deadline is at or before now.
	ListAutoResolveDue(ctx context.Context, now time.Time) ([]*domain.Alert, error)

	// ListCreatedSince returns alerts created at or after since, across all
	// events. Used by the digest sweep.
	ListCreatedSince(ctx context.Context, since time.Time) ([]*domain.Alert, error)

	// CountsByEvent returns active alert counts grouped by status and by
	// severity for one event.
	CountsByEvent(ctx context.Context, eventID string) (*AlertCounts, error)
}

// AlertCounts summarizes an event's alerts for the operator dashboard.
type AlertCounts struct {
	Total      int                        `json:"total"`
	ByStatus   map[domain.AlertStatus]int `json:"byStatus"`
	BySeverity map[domain.Severity]int    `json:"bySeverity"`
}

// BucketStore persists sentiment rollup buckets. Apply must be atomic per
// bucket: concurrent writers to the same (event, timeframe, start) bucket
// must not lose updates.
type BucketStore interface {
	// Apply folds one feedback item into the bucket owning ts at the given
	// timeframe, creating the bucket if needed.
	Apply(ctx context.Context, tf domain.Timeframe, ts time.Time, item *domain.FeedbackItem) error

	// Get returns the bucket or domain.ErrNotFound.
	Get(ctx context.Context, key domain.BucketKey) (*domain.SentimentBucket, error)

	// RecentMinuteBuckets returns up to limit of the event's most recent
	// minute buckets, ordered oldest first.
	RecentMinuteBuckets(ctx context.Context, eventID string, limit int) ([]*domain.SentimentBucket, error)

	// DeleteByEvent wipes all buckets for an event. Used only by the
	// historical recalculation.
	DeleteByEvent(ctx context.Context, eventID string) error
}
