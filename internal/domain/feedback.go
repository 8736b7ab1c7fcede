// Package domain contains the core domain models for the eventpulse service.
package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an entity does not exist in the store.
var ErrNotFound = errors.New("entity not found")

// ErrDuplicateSource is returned when a social post with an already-seen
// (event, source, sourceID) pair is submitted.
var ErrDuplicateSource = errors.New("duplicate source id for event")

// Source identifies where a feedback item came from.
type Source string

const (
	SourceDirect    Source = "direct"
	SourceChat      Source = "chat"
	SourceTwitter   Source = "twitter"
	SourceInstagram Source = "instagram"
	SourceLinkedIn  Source = "linkedin"
	SourceSurvey    Source = "survey"
	SourceOther     Source = "other"
)

// Sources lists every valid feedback source.
var Sources = []Source{
	SourceDirect, SourceChat, SourceTwitter,
	SourceInstagram, SourceLinkedIn, SourceSurvey, SourceOther,
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// IsSocial reports whether the source is a social-media feed. Social items
// carry an external source ID used for deduplication and are ingested at
// normal priority.
func (s Source) IsSocial() bool {
	switch s {
	case SourceTwitter, SourceInstagram, SourceLinkedIn:
		return true
	default:
		return false
	}
}

// Sentiment is the bucketed polarity label of a feedback item.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Sentiments lists every sentiment label.
var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

// SentimentForScore maps a signed score to the label consistent with the
// classifier's sign convention. The neutral band is (-0.1, 0.1).
func SentimentForScore(score float64) Sentiment {
	switch {
	case score >= 0.1:
		return SentimentPositive
	case score <= -0.1:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// FeedbackMetadata carries derived and platform-supplied details for a
// feedback item.
type FeedbackMetadata struct {
	Keywords []string          `json:"keywords,omitempty"`
	Hashtags []string          `json:"hashtags,omitempty"`
	Mentions []string          `json:"mentions,omitempty"`
	Platform map[string]string `json:"platform,omitempty"`
}

// FeedbackItem is one normalized unit of attendee input with derived
// sentiment and issue labels. Created once by the classification stage and
// immutable afterwards except for operator corrections applied outside the
// pipeline.
type FeedbackItem struct {
	ID             string           `db:"id"              json:"id"`
	EventID        string           `db:"event_id"        json:"eventId"`
	Source         Source           `db:"source"          json:"source"`
	SourceID       string           `db:"source_id"       json:"sourceId,omitempty"`
	Text           string           `db:"text"            json:"text"`
	Sentiment      Sentiment        `db:"sentiment"       json:"sentiment"`
	SentimentScore float64          `db:"sentiment_score" json:"sentimentScore"`
	IssueType      IssueType        `db:"issue_type"      json:"issueType,omitempty"`
	Location       string           `db:"location"        json:"location,omitempty"`
	Metadata       FeedbackMetadata `db:"-"               json:"metadata"`
	Processed      bool             `db:"processed"       json:"processed"`
	CreatedAt      time.Time        `db:"created_at"      json:"createdAt"`
}

// IncrementalMean folds a new sample into a running mean without rescanning
// prior samples. oldCount is the count before the new sample.
func IncrementalMean(oldAvg float64, oldCount int, newScore float64) float64 {
	newCount := oldCount + 1
	return (oldAvg*float64(oldCount) + newScore) / float64(newCount)
}
