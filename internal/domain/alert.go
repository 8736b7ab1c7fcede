package domain

import (
	"errors"
	"fmt"
	"time"
)

// AlertType describes what raised an alert.
type AlertType string

const (
	AlertTypeSentiment AlertType = "sentiment"
	AlertTypeIssue     AlertType = "issue"
	AlertTypeTrend     AlertType = "trend"
	AlertTypeSystem    AlertType = "system"
)

// AlertStatus is the operator-facing state of an alert.
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusInProgress   AlertStatus = "inProgress"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusIgnored      AlertStatus = "ignored"
)

// AlertStatuses lists every alert status.
var AlertStatuses = []AlertStatus{
	AlertStatusNew, AlertStatusAcknowledged, AlertStatusInProgress,
	AlertStatusResolved, AlertStatusIgnored,
}

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	for _, known := range AlertStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the alert's lifecycle.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusIgnored
}

// ErrTerminalStatus is returned when transitioning an alert that is already
// resolved or ignored.
var ErrTerminalStatus = errors.New("alert is in a terminal status")

// ErrInvalidTransition is returned for status transitions outside the alert
// state machine.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// validTransitions encodes new -> acknowledged -> inProgress -> resolved,
// with ignored as an alternate terminal and resolved reachable directly from
// any non-terminal state.
var validTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusNew:          {AlertStatusAcknowledged, AlertStatusInProgress, AlertStatusResolved, AlertStatusIgnored},
	AlertStatusAcknowledged: {AlertStatusInProgress, AlertStatusResolved, AlertStatusIgnored},
	AlertStatusInProgress:   {AlertStatusResolved, AlertStatusIgnored},
}

// StatusUpdate is one append-only entry in an alert's status log.
type StatusUpdate struct {
	Status    AlertStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
}

// SystemActor is the actor recorded for automatic status updates.
const SystemActor = "system"

// AlertMetadata carries detection details for an alert.
type AlertMetadata struct {
	IssueCount       int        `json:"issueCount,omitempty"`
	SentimentAverage float64    `json:"sentimentAverage,omitempty"`
	DetectionMethod  string     `json:"detectionMethod,omitempty"`
	Keywords         []string   `json:"keywords,omitempty"`
	NegativeShare    float64    `json:"negativeShare,omitempty"`
	AutoResolveDue   *time.Time `json:"autoResolveDue,omitempty"`
}

// Alert is an operator-facing notification unit derived from issues,
// thresholds, or trends.
type Alert struct {
	ID               string         `db:"id"          json:"id"`
	EventID          string         `db:"event_id"    json:"eventId"`
	Type             AlertType      `db:"type"        json:"type"`
	Severity         Severity       `db:"severity"    json:"severity"`
	Title            string         `db:"title"       json:"title"`
	Description      string         `db:"description" json:"description"`
	Category         IssueType      `db:"category"    json:"category,omitempty"`
	Location         string         `db:"location"    json:"location,omitempty"`
	IssueID          string         `db:"issue_id"    json:"issueId,omitempty"`
	FeedbackIDs      []string       `db:"-"           json:"feedbackIds,omitempty"`
	Status           AlertStatus    `db:"status"      json:"status"`
	StatusLog        []StatusUpdate `db:"-"           json:"statusLog"`
	Assignee         string         `db:"assignee"    json:"assignee,omitempty"`
	Metadata         AlertMetadata  `db:"-"           json:"metadata"`
	NotificationSent bool           `db:"notification_sent" json:"notificationSent"`
	CreatedAt        time.Time      `db:"created_at"  json:"createdAt"`
	ResolvedAt       *time.Time     `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// NewAlert initializes an alert in status new with an initial status-log
// entry authored by the given actor.
func NewAlert(id, eventID string, typ AlertType, severity Severity, title, description string, now time.Time) *Alert {
	return &Alert{
		ID:          id,
		EventID:     eventID,
		Type:        typ,
		Severity:    severity,
		Title:       title,
		Description: description,
		Status:      AlertStatusNew,
		StatusLog: []StatusUpdate{{
			Status:    AlertStatusNew,
			Actor:     SystemActor,
			Timestamp: now,
		}},
		CreatedAt: now,
	}
}

// TransitionTo moves the alert to a new status, appending to the status log.
// ResolvedAt is set exactly once, on the first transition to resolved. The
// status log is append-only; history is never rewritten.
func (a *Alert) TransitionTo(status AlertStatus, note, actor string, now time.Time) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, a.Status)
	}
	if !allowed(a.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, status)
	}

	a.Status = status
	a.StatusLog = append(a.StatusLog, StatusUpdate{
		Status:    status,
		Note:      note,
		Actor:     actor,
		Timestamp: now,
	})
	if status == AlertStatusResolved && a.ResolvedAt == nil {
		t := now
		a.ResolvedAt = &t
	}
	return nil
}

// SetAutoResolveDue sets the auto-resolve deadline. Once set it is immutable
// for the alert's life; later calls are ignored.
func (a *Alert) SetAutoResolveDue(due time.Time) {
	if a.Metadata.AutoResolveDue != nil {
		return
	}
	a.Metadata.AutoResolveDue = &due
}

// AutoResolveDue reports whether the alert's auto-resolve deadline has
// passed as of now.
func (a *Alert) AutoResolveDue(now time.Time) bool {
	return a.Metadata.AutoResolveDue != nil && !a.Metadata.AutoResolveDue.After(now)
}

// LinkFeedback records a related feedback reference, once.
func (a *Alert) LinkFeedback(feedbackID string) {
	for _, id := range a.FeedbackIDs {
		if id == feedbackID {
			return
		}
	}
	a.FeedbackIDs = append(a.FeedbackIDs, feedbackID)
}

func allowed(from, to AlertStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
