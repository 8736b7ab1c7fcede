package domain

import (
	"errors"
	"time"
)

// IssueType is the closed taxonomy of operational issue categories.
type IssueType string

const (
	IssueQueue       IssueType = "queue"
	IssueAudio       IssueType = "audio"
	IssueVideo       IssueType = "video"
	IssueCrowding    IssueType = "crowding"
	IssueAmenities   IssueType = "amenities"
	IssueContent     IssueType = "content"
	IssueTemperature IssueType = "temperature"
	IssueSafety      IssueType = "safety"
	IssueOther       IssueType = "other"
)

// IssueTypes lists the taxonomy in canonical order. Tie-breaking in the
// keyword-overlap classifier follows this order.
var IssueTypes = []IssueType{
	IssueQueue, IssueAudio, IssueVideo, IssueCrowding,
	IssueAmenities, IssueContent, IssueTemperature, IssueSafety, IssueOther,
}

// Valid reports whether t is in the taxonomy.
func (t IssueType) Valid() bool {
	for _, known := range IssueTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity ranks issues and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the numeric ordering of a severity, low first.
func (s Severity) Rank() int { return severityRank[s] }

// Max returns the higher-ranked of two severities.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// SeverityForScore maps a sentiment score (or running average) to a
// severity band.
func SeverityForScore(score float64) Severity {
	switch {
	case score <= -0.8:
		return SeverityCritical
	case score <= -0.6:
		return SeverityHigh
	case score <= -0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Escalate returns the severity one level up, capped at critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// IssueStatus is the lifecycle state of an aggregated issue.
type IssueStatus string

const (
	IssueStatusDetected      IssueStatus = "detected"
	IssueStatusConfirmed     IssueStatus = "confirmed"
	IssueStatusInProgress    IssueStatus = "inProgress"
	IssueStatusResolved      IssueStatus = "resolved"
	IssueStatusFalsePositive IssueStatus = "falsePositive"
)

// Terminal reports whether the status ends the issue's lifecycle.
func (s IssueStatus) Terminal() bool {
	return s == IssueStatusResolved || s == IssueStatusFalsePositive
}

// ErrFeedbackAlreadyLinked is returned when the same feedback item is added
// to an issue twice.
var ErrFeedbackAlreadyLinked = errors.New("feedback already linked to issue")

// Issue aggregates repeated negative feedback sharing (event, type, location).
type Issue struct {
	ID               string      `db:"id"                json:"id"`
	EventID          string      `db:"event_id"          json:"eventId"`
	Type             IssueType   `db:"type"              json:"type"`
	Subtype          string      `db:"subtype"           json:"subtype,omitempty"`
	Severity         Severity    `db:"severity"          json:"severity"`
	Status           IssueStatus `db:"status"            json:"status"`
	Location         string      `db:"location"          json:"location,omitempty"`
	FeedbackIDs      []string    `db:"-"                 json:"feedbackIds"`
	FeedbackCount    int         `db:"feedback_count"    json:"feedbackCount"`
	SentimentAverage float64     `db:"sentiment_average" json:"sentimentAverage"`
	Keywords         []string    `db:"-"                 json:"keywords,omitempty"`
	AlertIDs         []string    `db:"-"                 json:"alertIds,omitempty"`
	FirstDetectedAt  time.Time   `db:"first_detected_at" json:"firstDetectedAt"`
	LastMentionedAt  time.Time   `db:"last_mentioned_at" json:"lastMentionedAt"`
}

// AddFeedback folds one contributing feedback item into the issue, keeping
// feedbackCount equal to the reference-set size and the sentiment average
// maintained incrementally.
func (i *Issue) AddFeedback(feedbackID string, score float64, now time.Time) error {
	for _, id := range i.FeedbackIDs {
		if id == feedbackID {
			return ErrFeedbackAlreadyLinked
		}
	}
	i.SentimentAverage = IncrementalMean(i.SentimentAverage, i.FeedbackCount, score)
	i.FeedbackIDs = append(i.FeedbackIDs, feedbackID)
	i.FeedbackCount = len(i.FeedbackIDs)
	i.LastMentionedAt = now
	return nil
}

// MergeKeywords appends keywords not already present, preserving order.
func (i *Issue) MergeKeywords(keywords []string) {
	seen := make(map[string]bool, len(i.Keywords))
	for _, k := range i.Keywords {
		seen[k] = true
	}
	for _, k := range keywords {
		if !seen[k] {
			i.Keywords = append(i.Keywords, k)
			seen[k] = true
		}
	}
}

// LinkAlert records an alert reference on the issue, once.
func (i *Issue) LinkAlert(alertID string) {
	for _, id := range i.AlertIDs {
		if id == alertID {
			return
		}
	}
	i.AlertIDs = append(i.AlertIDs, alertID)
}
