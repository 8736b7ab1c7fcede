package rollup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/rollup"
	"github.com/eventpulse/eventpulse/internal/store"
)

func feedbackAt(id string, score float64, at time.Time) *domain.FeedbackItem {
	return &domain.FeedbackItem{
		ID:             id,
		EventID:        "evt-1",
		Source:         domain.SourceDirect,
		Sentiment:      domain.SentimentForScore(score),
		SentimentScore: score,
		CreatedAt:      at,
	}
}

func TestRecordUpdatesAllTimeframes(t *testing.T) {
	ctx := context.Background()
	buckets := store.NewMemoryBuckets()
	feedback := store.NewMemoryFeedback()
	rs := rollup.New(buckets, feedback, logger.NewNop())

	at := time.Date(2026, 6, 1, 14, 23, 40, 0, time.UTC)
	require.NoError(t, rs.Record(ctx, feedbackAt("fb-1", 0.8, at)))
	require.NoError(t, rs.Record(ctx, feedbackAt("fb-2", -0.4, at.Add(10*time.Second))))

	keys := map[domain.Timeframe]time.Time{
		domain.TimeframeMinute: time.Date(2026, 6, 1, 14, 23, 0, 0, time.UTC),
		domain.TimeframeHour:   time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC),
		domain.TimeframeDay:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	for tf, start := range keys {
		bucket, err := buckets.Get(ctx, domain.BucketKey{
			EventID: "evt-1", Timeframe: tf, Start: start.Unix(),
		})
		require.NoError(t, err, "missing %s bucket", tf)

		assert.Equal(t, 2, bucket.Total)
		assert.Equal(t, 1, bucket.Sentiments[domain.SentimentPositive].Count)
		assert.InDelta(t, 0.8, bucket.Sentiments[domain.SentimentPositive].AvgScore, 1e-9)
		assert.Equal(t, 1, bucket.Sentiments[domain.SentimentNegative].Count)
		assert.InDelta(t, -0.4, bucket.Sentiments[domain.SentimentNegative].AvgScore, 1e-9)
		assert.Equal(t, 2, bucket.Sources[domain.SourceDirect])
	}
}

func TestRecordSplitsAcrossMinutes(t *testing.T) {
	ctx := context.Background()
	buckets := store.NewMemoryBuckets()
	rs := rollup.New(buckets, store.NewMemoryFeedback(), logger.NewNop())

	at := time.Date(2026, 6, 1, 14, 23, 59, 0, time.UTC)
	require.NoError(t, rs.Record(ctx, feedbackAt("fb-1", -0.5, at)))
	require.NoError(t, rs.Record(ctx, feedbackAt("fb-2", -0.5, at.Add(2*time.Second))))

	got, err := rs.RecentMinuteBuckets(ctx, "evt-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Total)
	assert.Equal(t, 1, got[1].Total)

	// Same hour, so the hour bucket holds both.
	hour, err := buckets.Get(ctx, domain.BucketKey{
		EventID:   "evt-1",
		Timeframe: domain.TimeframeHour,
		Start:     time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC).Unix(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, hour.Total)
}

func TestRecalculateRebuildsFromFeedback(t *testing.T) {
	ctx := context.Background()
	buckets := store.NewMemoryBuckets()
	feedback := store.NewMemoryFeedback()
	rs := rollup.New(buckets, feedback, logger.NewNop())

	at := time.Date(2026, 6, 1, 10, 0, 30, 0, time.UTC)
	items := []*domain.FeedbackItem{
		feedbackAt("fb-1", 0.6, at),
		feedbackAt("fb-2", -0.7, at.Add(time.Minute)),
		feedbackAt("fb-3", -0.3, at.Add(2*time.Minute)),
	}
	for _, item := range items {
		require.NoError(t, feedback.Create(ctx, item))
	}

	// Seed a stale bucket that the rebuild must discard.
	stale := feedbackAt("fb-stale", 0.9, at)
	require.NoError(t, buckets.Apply(ctx, domain.TimeframeDay, at, stale))
	require.NoError(t, buckets.Apply(ctx, domain.TimeframeDay, at, stale))

	replayed, err := rs.Recalculate(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, replayed)

	day, err := buckets.Get(ctx, domain.BucketKey{
		EventID:   "evt-1",
		Timeframe: domain.TimeframeDay,
		Start:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Unix(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, day.Total)
	assert.Equal(t, 2, day.Sentiments[domain.SentimentNegative].Count)
	assert.InDelta(t, -0.5, day.Sentiments[domain.SentimentNegative].AvgScore, 1e-9)
}

func TestRecalculateEmptyEvent(t *testing.T) {
	ctx := context.Background()
	rs := rollup.New(store.NewMemoryBuckets(), store.NewMemoryFeedback(), logger.NewNop())

	replayed, err := rs.Recalculate(ctx, "evt-unknown")
	require.NoError(t, err)
	assert.Zero(t, replayed)
}
