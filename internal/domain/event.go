package domain

import "time"

// Default alert settings applied when an event leaves them unset.
const (
	DefaultNegativeSentimentThreshold = -0.5
	DefaultIssueAlertThreshold        = 3
	DefaultAutoResolveAfter           = 2 * time.Hour
)

// AlertSettings are the per-event knobs consulted by the alert rule engine.
type AlertSettings struct {
	// NegativeSentimentThreshold is the inclusive score at or below which a
	// negative feedback item counts as breaching.
	NegativeSentimentThreshold float64 `json:"negativeSentimentThreshold" yaml:"negative_sentiment_threshold"`
	// IssueAlertThreshold is the feedback count at which an issue raises an
	// alert.
	IssueAlertThreshold int `json:"issueAlertThreshold" yaml:"issue_alert_threshold"`
	// AutoResolveAfter is how long an automatic alert stays open before the
	// auto-resolve sweep closes it.
	AutoResolveAfter time.Duration `json:"autoResolveAfter" yaml:"auto_resolve_after"`
}

// WithDefaults fills zero-valued settings from the service defaults.
func (s AlertSettings) WithDefaults() AlertSettings {
	if s.NegativeSentimentThreshold == 0 {
		s.NegativeSentimentThreshold = DefaultNegativeSentimentThreshold
	}
	if s.IssueAlertThreshold == 0 {
		s.IssueAlertThreshold = DefaultIssueAlertThreshold
	}
	if s.AutoResolveAfter == 0 {
		s.AutoResolveAfter = DefaultAutoResolveAfter
	}
	return s
}

// Event is the monitored live event that owns all pipeline state. The
// pipeline operates within a single event's scope per invocation.
type Event struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	AlertSettings  AlertSettings `json:"alertSettings"`
	SocialTracking bool          `json:"socialTracking"`
	IsActive       bool          `json:"isActive"`
}
