package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/internal/domain"
)

func TestSeverityForScoreBands(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  domain.Severity
	}{
		{"well below critical band", -1.0, domain.SeverityCritical},
		{"critical edge is inclusive", -0.8, domain.SeverityCritical},
		{"just above critical edge", -0.79, domain.SeverityHigh},
		{"high edge is inclusive", -0.6, domain.SeverityHigh},
		{"just above high edge", -0.59, domain.SeverityMedium},
		{"medium edge is inclusive", -0.4, domain.SeverityMedium},
		{"just above medium edge", -0.39, domain.SeverityLow},
		{"neutral", 0, domain.SeverityLow},
		{"positive", 0.7, domain.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.SeverityForScore(tt.score))
		})
	}
}

func TestSeverityEscalateCapsAtCritical(t *testing.T) {
	assert.Equal(t, domain.SeverityMedium, domain.SeverityLow.Escalate())
	assert.Equal(t, domain.SeverityHigh, domain.SeverityMedium.Escalate())
	assert.Equal(t, domain.SeverityCritical, domain.SeverityHigh.Escalate())
	assert.Equal(t, domain.SeverityCritical, domain.SeverityCritical.Escalate())
}

func TestAlertTransitionResolvedAtSetOnce(t *testing.T) {
	created := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	alert := domain.NewAlert("al-1", "evt-1", domain.AlertTypeIssue, domain.SeverityHigh,
		"Multiple audio issues reported", "", created)

	resolvedAt := created.Add(30 * time.Minute)
	require.NoError(t, alert.TransitionTo(domain.AlertStatusResolved, "fixed", "op-1", resolvedAt))

	require.NotNil(t, alert.ResolvedAt)
	assert.Equal(t, resolvedAt, *alert.ResolvedAt)
	require.Len(t, alert.StatusLog, 2)
	assert.Equal(t, domain.AlertStatusResolved, alert.StatusLog[1].Status)
	assert.Equal(t, "op-1", alert.StatusLog[1].Actor)

	// A second resolve is rejected and neither the timestamp nor the log
	// moves.
	err := alert.TransitionTo(domain.AlertStatusResolved, "again", "op-2", resolvedAt.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrTerminalStatus)
	assert.Equal(t, resolvedAt, *alert.ResolvedAt)
	assert.Len(t, alert.StatusLog, 2)
}

func TestAlertTransitionStateMachine(t *testing.T) {
	now := time.Now()

	t.Run("full operator path", func(t *testing.T) {
		alert := domain.NewAlert("al-1", "evt-1", domain.AlertTypeIssue, domain.SeverityMedium, "t", "", now)
		require.NoError(t, alert.TransitionTo(domain.AlertStatusAcknowledged, "", "op", now))
		require.NoError(t, alert.TransitionTo(domain.AlertStatusInProgress, "", "op", now))
		require.NoError(t, alert.TransitionTo(domain.AlertStatusResolved, "", "op", now))
		assert.Len(t, alert.StatusLog, 4)
	})

	t.Run("ignored is terminal", func(t *testing.T) {
		alert := domain.NewAlert("al-2", "evt-1", domain.AlertTypeIssue, domain.SeverityMedium, "t", "", now)
		require.NoError(t, alert.TransitionTo(domain.AlertStatusIgnored, "", "op", now))
		err := alert.TransitionTo(domain.AlertStatusAcknowledged, "", "op", now)
		assert.ErrorIs(t, err, domain.ErrTerminalStatus)
		assert.Nil(t, alert.ResolvedAt)
	})

	t.Run("no backward transition", func(t *testing.T) {
		alert := domain.NewAlert("al-3", "evt-1", domain.AlertTypeIssue, domain.SeverityMedium, "t", "", now)
		require.NoError(t, alert.TransitionTo(domain.AlertStatusInProgress, "", "op", now))
		err := alert.TransitionTo(domain.AlertStatusAcknowledged, "", "op", now)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestAlertAutoResolveDueImmutable(t *testing.T) {
	now := time.Now()
	alert := domain.NewAlert("al-1", "evt-1", domain.AlertTypeIssue, domain.SeverityMedium, "t", "", now)

	first := now.Add(2 * time.Hour)
	alert.SetAutoResolveDue(first)
	alert.SetAutoResolveDue(now.Add(6 * time.Hour))

	require.NotNil(t, alert.Metadata.AutoResolveDue)
	assert.Equal(t, first, *alert.Metadata.AutoResolveDue)
	assert.False(t, alert.AutoResolveDue(now))
	assert.True(t, alert.AutoResolveDue(first))
}

func TestIssueAddFeedbackKeepsCountAndMean(t *testing.T) {
	now := time.Now()
	issue := &domain.Issue{ID: "is-1", EventID: "evt-1", Type: domain.IssueAudio}

	require.NoError(t, issue.AddFeedback("fb-1", -0.6, now))
	require.NoError(t, issue.AddFeedback("fb-2", -0.8, now))
	require.ErrorIs(t, issue.AddFeedback("fb-1", -0.6, now), domain.ErrFeedbackAlreadyLinked)

	assert.Equal(t, 2, issue.FeedbackCount)
	assert.Len(t, issue.FeedbackIDs, 2)
	assert.InDelta(t, -0.7, issue.SentimentAverage, 1e-9)
}
