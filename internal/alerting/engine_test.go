package alerting_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/internal/aggregate"
	"github.com/eventpulse/eventpulse/internal/alerting"
	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/metrics"
	"github.com/eventpulse/eventpulse/internal/notify"
	"github.com/eventpulse/eventpulse/internal/rollup"
	"github.com/eventpulse/eventpulse/internal/store"
)

type fakeBroadcaster struct {
	alerts    []*domain.Alert
	summaries map[string]int
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{summaries: make(map[string]int)}
}

func (f *fakeBroadcaster) BroadcastAlert(_ context.Context, alert *domain.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeBroadcaster) BroadcastFeedback(context.Context, *domain.FeedbackItem) error {
	return nil
}

func (f *fakeBroadcaster) BroadcastAutoResolveSummary(_ context.Context, eventID string, count int) error {
	f.summaries[eventID] += count
	return nil
}

type testHarness struct {
	alerts      *store.MemoryAlerts
	issues      *store.MemoryIssues
	buckets     *store.MemoryBuckets
	rollups     *rollup.Store
	agg         *aggregate.Aggregator
	engine      *alerting.Engine
	broadcaster *fakeBroadcaster
	now         time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		alerts:      store.NewMemoryAlerts(),
		issues:      store.NewMemoryIssues(),
		buckets:     store.NewMemoryBuckets(),
		broadcaster: newFakeBroadcaster(),
		now:         time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC),
	}
	h.rollups = rollup.New(h.buckets, store.NewMemoryFeedback(), logger.NewNop())
	h.agg = aggregate.New(h.issues, logger.NewNop())
	dispatcher := notify.NewDispatcher(h.broadcaster, nil, nil, nil, logger.NewNop())
	h.engine = alerting.NewEngine(h.alerts, h.issues, h.rollups, dispatcher,
		logger.NewNop(), metrics.NewNop(),
		alerting.WithClock(func() time.Time { return h.now }))
	return h
}

func testEvent() *domain.Event {
	return &domain.Event{ID: "evt-1", Name: "Summer Fest", IsActive: true}
}

func negItem(id string, score float64, issueType domain.IssueType, location, text string) *domain.FeedbackItem {
	return &domain.FeedbackItem{
		ID:             id,
		EventID:        "evt-1",
		Source:         domain.SourceDirect,
		Text:           text,
		Sentiment:      domain.SentimentNegative,
		SentimentScore: score,
		IssueType:      issueType,
		Location:       location,
		CreatedAt:      time.Now(),
	}
}

func TestIssueThresholdRaisesOneAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := testEvent()

	var raised *domain.Alert
	for i := 1; i <= 3; i++ {
		item := negItem(fmt.Sprintf("fb-%d", i), -0.6, domain.IssueAudio, "Hall A", "audio is terrible")
		issue, err := h.agg.RecordNegativeFeedback(ctx, item)
		require.NoError(t, err)

		alert, err := h.engine.CheckIssueAlert(ctx, event, issue, item)
		require.NoError(t, err)
		if i < 3 {
			assert.Nil(t, alert, "no alert expected before the threshold")
		} else {
			raised = alert
		}
	}

	require.NotNil(t, raised)
	assert.Equal(t, domain.AlertTypeIssue, raised.Type)
	assert.Equal(t, domain.SeverityHigh, raised.Severity)
	assert.Equal(t, domain.AlertStatusNew, raised.Status)
	assert.Equal(t, 3, raised.Metadata.IssueCount)
	assert.Equal(t, "Hall A", raised.Location)
	assert.Len(t, h.broadcaster.alerts, 1)

	// The issue carries the alert reference back.
	issue, err := h.issues.FindOpen(ctx, "evt-1", domain.IssueAudio, "Hall A")
	require.NoError(t, err)
	assert.Equal(t, []string{raised.ID}, issue.AlertIDs)
}

func TestCriticalSeverityBypassesThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item := negItem("fb-1", -0.85, domain.IssueSafety, "", "barrier collapsed")
	issue, err := h.agg.RecordNegativeFeedback(ctx, item)
	require.NoError(t, err)
	require.Equal(t, domain.SeverityCritical, issue.Severity)

	alert, err := h.engine.CheckIssueAlert(ctx, testEvent(), issue, item)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
	assert.Equal(t, 1, alert.Metadata.IssueCount)
	assert.Equal(t, "severity_bypass", alert.Metadata.DetectionMethod)
}

func TestHighSeverityFirstItemDoesNotBypass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item := negItem("fb-1", -0.6, domain.IssueAudio, "Hall A", "audio is terrible")
	issue, err := h.agg.RecordNegativeFeedback(ctx, item)
	require.NoError(t, err)
	require.Equal(t, domain.SeverityHigh, issue.Severity)

	alert, err := h.engine.CheckIssueAlert(ctx, testEvent(), issue, item)
	require.NoError(t, err)
	assert.Nil(t, alert, "high severity accumulates to the repetition threshold")
}

func TestThresholdBoundaryIsInclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := testEvent()

	// Build the issue up to the repetition threshold with breaching items.
	for i := 1; i <= 3; i++ {
		item := negItem(fmt.Sprintf("fb-%d", i), -0.5, domain.IssueQueue, "", "queue too long")
		issue, err := h.agg.RecordNegativeFeedback(ctx, item)
		require.NoError(t, err)

		alert, err := h.engine.CheckIssueAlert(ctx, event, issue, item)
		require.NoError(t, err)
		if i == 3 {
			assert.NotNil(t, alert, "score equal to the threshold counts as breaching")
		}
	}
}

func TestScoreAboveThresholdDoesNotTrigger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := testEvent()

	for i := 1; i <= 4; i++ {
		item := negItem(fmt.Sprintf("fb-%d", i), -0.45, domain.IssueQueue, "", "meh")
		issue, err := h.agg.RecordNegativeFeedback(ctx, item)
		require.NoError(t, err)

		alert, err := h.engine.CheckIssueAlert(ctx, event, issue, item)
		require.NoError(t, err)
		assert.Nil(t, alert)
	}
}

func TestActiveAlertSuppressesDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := testEvent()

	var issue *domain.Issue
	var err error
	for i := 1; i <= 4; i++ {
		item := negItem(fmt.Sprintf("fb-%d", i), -0.6, domain.IssueAudio, "Hall A", "no sound")
		issue, err = h.agg.RecordNegativeFeedback(ctx, item)
		require.NoError(t, err)
		_, err = h.engine.CheckIssueAlert(ctx, event, issue, item)
		require.NoError(t, err)
	}

	counts, err := h.alerts.CountsByEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
}

func TestUrgentKeywordEscalatesSeverity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Score -0.55 sits in the medium band before escalation.
	item := negItem("fb-1", -0.55, domain.IssueCrowding, "", "dangerous crowding near the fire exit")
	issue, err := h.agg.RecordNegativeFeedback(ctx, item)
	require.NoError(t, err)

	// Force the repetition threshold so only escalation is under test.
	event := testEvent()
	event.AlertSettings.IssueAlertThreshold = 1

	alert, err := h.engine.CheckIssueAlert(ctx, event, issue, item)
	require.NoError(t, err)
	require.NotNil(t, alert)
	// medium base (avg -0.55), escalated twice: "dangerous" and "fire".
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
}

func fillBuckets(t *testing.T, h *testHarness, start time.Time, minutes, perMinute, negativePerMinute int) {
	t.Helper()
	ctx := context.Background()
	for m := 0; m < minutes; m++ {
		at := start.Add(time.Duration(m) * time.Minute)
		for i := 0; i < perMinute; i++ {
			score := 0.5
			sentiment := domain.SentimentPositive
			if i < negativePerMinute {
				score = -0.6
				sentiment = domain.SentimentNegative
			}
			item := &domain.FeedbackItem{
				ID:             fmt.Sprintf("fb-%d-%d", m, i),
				EventID:        "evt-1",
				Source:         domain.SourceChat,
				Sentiment:      sentiment,
				SentimentScore: score,
				CreatedAt:      at,
			}
			require.NoError(t, h.rollups.Record(ctx, item))
		}
	}
}

func TestTrendRequiresEnoughHistory(t *testing.T) {
	h := newHarness(t)
	fillBuckets(t, h, h.now.Add(-9*time.Minute), 9, 2, 2)

	alert, err := h.engine.CheckTrend(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Nil(t, alert, "fewer than 10 buckets must skip the detector")
}

func TestTrendDetectsSustainedNegativeShare(t *testing.T) {
	h := newHarness(t)
	// 10 buckets, 2 messages each, all negative: share 100%, 20 messages.
	fillBuckets(t, h, h.now.Add(-10*time.Minute), 10, 2, 2)

	alert, err := h.engine.CheckTrend(context.Background(), testEvent())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, domain.AlertTypeTrend, alert.Type)
	assert.Equal(t, domain.SeverityHigh, alert.Severity, "share above 75% is high severity")
	assert.InDelta(t, 1.0, alert.Metadata.NegativeShare, 1e-9)
}

func TestTrendMediumSeverityBelowHighBand(t *testing.T) {
	h := newHarness(t)
	// 6 of 10 messages negative per bucket block: share 60%.
	fillBuckets(t, h, h.now.Add(-10*time.Minute), 10, 5, 3)

	alert, err := h.engine.CheckTrend(context.Background(), testEvent())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, domain.SeverityMedium, alert.Severity)
}

func TestTrendDetectsSharpIncrease(t *testing.T) {
	h := newHarness(t)
	// Prior 10 buckets mostly positive, recent 10 buckets 40% negative:
	// below the 60% floor but a 30-point jump over the prior share.
	fillBuckets(t, h, h.now.Add(-20*time.Minute), 10, 10, 1)
	fillBuckets(t, h, h.now.Add(-10*time.Minute), 10, 10, 4)

	alert, err := h.engine.CheckTrend(context.Background(), testEvent())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, domain.SeverityMedium, alert.Severity)
}

func TestTrendDedupUpdatesExistingAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := testEvent()

	fillBuckets(t, h, h.now.Add(-10*time.Minute), 10, 2, 2)
	first, err := h.engine.CheckTrend(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, first)

	// A second qualifying window 20 minutes later updates in place.
	h.now = h.now.Add(20 * time.Minute)
	fillBuckets(t, h, h.now.Add(-10*time.Minute), 10, 3, 3)
	second, err := h.engine.CheckTrend(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	counts, err := h.alerts.CountsByEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
}

func TestManualAlertBroadcasts(t *testing.T) {
	h := newHarness(t)

	alert, err := h.engine.CreateManualAlert(context.Background(), testEvent(),
		domain.SeverityMedium, "Gate B closed", "Operational closure", "op-7")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertTypeSystem, alert.Type)
	assert.Equal(t, "manual", alert.Metadata.DetectionMethod)
	assert.Equal(t, "op-7", alert.StatusLog[0].Actor)
	assert.Len(t, h.broadcaster.alerts, 1)
}

func TestUpdateStatusEnforcesStateMachine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alert := domain.NewAlert("al-1", "evt-1", domain.AlertTypeIssue,
		domain.SeverityHigh, "t", "d", h.now)
	require.NoError(t, h.alerts.Create(ctx, alert))

	updated, err := h.engine.UpdateStatus(ctx, "al-1", domain.AlertStatusAcknowledged, "on it", "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusAcknowledged, updated.Status)
	assert.Len(t, updated.StatusLog, 2)

	_, err = h.engine.UpdateStatus(ctx, "al-1", domain.AlertStatusNew, "", "op-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	updated, err = h.engine.UpdateStatus(ctx, "al-1", domain.AlertStatusResolved, "fixed", "op-1")
	require.NoError(t, err)
	require.NotNil(t, updated.ResolvedAt)

	_, err = h.engine.UpdateStatus(ctx, "al-1", domain.AlertStatusInProgress, "", "op-1")
	assert.ErrorIs(t, err, domain.ErrTerminalStatus)
}
