// Package rollup maintains the per-event sentiment time buckets consumed
// by trend detection and dashboards.
package rollup

import (
	"context"
	"fmt"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/store"
)

// Store folds classified feedback into fixed-width buckets at every
// granularity and can rebuild an event's buckets from stored feedback.
type Store struct {
	buckets  store.BucketStore
	feedback store.FeedbackStore
	log      logger.Logger
}

// New creates a rollup store.
func New(buckets store.BucketStore, feedback store.FeedbackStore, log logger.Logger) *Store {
	return &Store{buckets: buckets, feedback: feedback, log: log}
}

// Record folds one feedback item into its minute, hour, and day buckets.
// The item's creation time picks the buckets.
func (s *Store) Record(ctx context.Context, item *domain.FeedbackItem) error {
	for _, tf := range domain.Timeframes {
		if err := s.buckets.Apply(ctx, tf, item.CreatedAt, item); err != nil {
			return fmt.Errorf("record %s bucket: %w", tf, err)
		}
	}
	return nil
}

// RecentMinuteBuckets returns up to limit most recent minute buckets for
// the event, oldest first.
func (s *Store) RecentMinuteBuckets(ctx context.Context, eventID string, limit int) ([]*domain.SentimentBucket, error) {
	return s.buckets.RecentMinuteBuckets(ctx, eventID, limit)
}

// Bucket returns one bucket by key.
func (s *Store) Bucket(ctx context.Context, key domain.BucketKey) (*domain.SentimentBucket, error) {
	return s.buckets.Get(ctx, key)
}

// Recalculate drops the event's buckets and replays its stored feedback.
// Used after operator corrections so aggregates match the item set again.
func (s *Store) Recalculate(ctx context.Context, eventID string) (int, error) {
	if err := s.buckets.DeleteByEvent(ctx, eventID); err != nil {
		return 0, fmt.Errorf("reset buckets: %w", err)
	}

	items, err := s.feedback.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("list feedback: %w", err)
	}

	for _, item := range items {
		if err := s.Record(ctx, item); err != nil {
			return 0, fmt.Errorf("replay feedback %s: %w", item.ID, err)
		}
	}

	s.log.Info("recalculated sentiment buckets",
		logger.String("event_id", eventID),
		logger.Int("feedback_items", len(items)))
	return len(items), nil
}
