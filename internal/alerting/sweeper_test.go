package alerting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/internal/alerting"
	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/metrics"
	"github.com/eventpulse/eventpulse/internal/notify"
	"github.com/eventpulse/eventpulse/internal/rollup"
	"github.com/eventpulse/eventpulse/internal/store"
)

type digestRecorder struct {
	calls map[string]map[domain.AlertType]int
}

func (d *digestRecorder) SendAlertDigest(_ context.Context, eventID string, byType map[domain.AlertType]int) error {
	if d.calls == nil {
		d.calls = make(map[string]map[domain.AlertType]int)
	}
	d.calls[eventID] = byType
	return nil
}

func newSweeperHarness(t *testing.T, digest notify.DigestSender) (*testHarness, *alerting.Sweeper) {
	t.Helper()

	h := &testHarness{
		alerts:      store.NewMemoryAlerts(),
		issues:      store.NewMemoryIssues(),
		buckets:     store.NewMemoryBuckets(),
		broadcaster: newFakeBroadcaster(),
		now:         time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	}
	h.rollups = rollup.New(h.buckets, store.NewMemoryFeedback(), logger.NewNop())
	dispatcher := notify.NewDispatcher(h.broadcaster, nil, nil, digest, logger.NewNop())
	h.engine = alerting.NewEngine(h.alerts, h.issues, h.rollups, dispatcher,
		logger.NewNop(), metrics.NewNop(),
		alerting.WithClock(func() time.Time { return h.now }))

	sweeper := alerting.NewSweeper(h.engine, alerting.SweepConfig{}, logger.NewNop())
	return h, sweeper
}

func dueAlert(id string, createdAt, due time.Time) *domain.Alert {
	alert := domain.NewAlert(id, "evt-1", domain.AlertTypeIssue,
		domain.SeverityMedium, "t", "d", createdAt)
	alert.SetAutoResolveDue(due)
	return alert
}

func TestAutoResolveSweepResolvesDueAlerts(t *testing.T) {
	h, sweeper := newSweeperHarness(t, nil)
	ctx := context.Background()

	created := h.now.Add(-3 * time.Hour)
	require.NoError(t, h.alerts.Create(ctx, dueAlert("al-due", created, h.now.Add(-time.Hour))))
	require.NoError(t, h.alerts.Create(ctx, dueAlert("al-later", h.now, h.now.Add(time.Hour))))

	require.NoError(t, sweeper.RunAutoResolve(ctx))

	resolved, err := h.alerts.Get(ctx, "al-due")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, h.now, *resolved.ResolvedAt, "resolvedAt is the sweep's execution time")

	last := resolved.StatusLog[len(resolved.StatusLog)-1]
	assert.Equal(t, domain.SystemActor, last.Actor)
	assert.Equal(t, "Automatically resolved due to time threshold", last.Note)

	untouched, err := h.alerts.Get(ctx, "al-later")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusNew, untouched.Status)

	assert.Equal(t, 1, h.broadcaster.summaries["evt-1"])
}

func TestAutoResolveSweepIsIdempotent(t *testing.T) {
	h, sweeper := newSweeperHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.alerts.Create(ctx,
		dueAlert("al-due", h.now.Add(-3*time.Hour), h.now.Add(-time.Hour))))

	require.NoError(t, sweeper.RunAutoResolve(ctx))
	require.NoError(t, sweeper.RunAutoResolve(ctx))

	resolved, err := h.alerts.Get(ctx, "al-due")
	require.NoError(t, err)

	resolvedEntries := 0
	for _, entry := range resolved.StatusLog {
		if entry.Status == domain.AlertStatusResolved {
			resolvedEntries++
		}
	}
	assert.Equal(t, 1, resolvedEntries, "second sweep must not append another resolved entry")
}

func TestDigestSweepGroupsByEventAndType(t *testing.T) {
	digest := &digestRecorder{}
	h, sweeper := newSweeperHarness(t, digest)
	ctx := context.Background()

	recent := h.now.Add(-30 * time.Minute)
	a1 := domain.NewAlert("al-1", "evt-1", domain.AlertTypeIssue, domain.SeverityHigh, "t", "d", recent)
	a2 := domain.NewAlert("al-2", "evt-1", domain.AlertTypeIssue, domain.SeverityLow, "t", "d", recent)
	a3 := domain.NewAlert("al-3", "evt-1", domain.AlertTypeTrend, domain.SeverityMedium, "t", "d", recent)
	stale := domain.NewAlert("al-4", "evt-2", domain.AlertTypeIssue, domain.SeverityLow, "t", "d", h.now.Add(-2*time.Hour))
	for _, alert := range []*domain.Alert{a1, a2, a3, stale} {
		require.NoError(t, h.alerts.Create(ctx, alert))
	}

	require.NoError(t, sweeper.RunDigest(ctx))

	require.Contains(t, digest.calls, "evt-1")
	assert.Equal(t, 2, digest.calls["evt-1"][domain.AlertTypeIssue])
	assert.Equal(t, 1, digest.calls["evt-1"][domain.AlertTypeTrend])

	// evt-2 had nothing inside the window, so no digest.
	assert.NotContains(t, digest.calls, "evt-2")
}
