package domain

import "time"

// Timeframe is the width of a sentiment rollup bucket.
type Timeframe string

const (
	TimeframeMinute Timeframe = "minute"
	TimeframeHour   Timeframe = "hour"
	TimeframeDay    Timeframe = "day"
)

// Timeframes lists every rollup granularity. Each feedback item updates one
// bucket per timeframe.
var Timeframes = []Timeframe{TimeframeMinute, TimeframeHour, TimeframeDay}

// Truncate rounds ts down to the bucket boundary for the timeframe.
func (tf Timeframe) Truncate(ts time.Time) time.Time {
	switch tf {
	case TimeframeMinute:
		return ts.Truncate(time.Minute)
	case TimeframeHour:
		return ts.Truncate(time.Hour)
	case TimeframeDay:
		return ts.Truncate(24 * time.Hour)
	default:
		return ts
	}
}

// SentimentCount holds the count and running average score for one sentiment
// label within a bucket.
type SentimentCount struct {
	Count    int     `json:"count"`
	AvgScore float64 `json:"avgScore"`
}

// Add folds one score into the counter using the incremental-mean formula.
func (c *SentimentCount) Add(score float64) {
	c.AvgScore = IncrementalMean(c.AvgScore, c.Count, score)
	c.Count++
}

// SentimentBucket is one fixed-width time window's aggregate counters for an
// event. Total always equals the sum of per-label counts and the sum of
// per-source counts.
type SentimentBucket struct {
	EventID    string                       `json:"eventId"`
	Timeframe  Timeframe                    `json:"timeframe"`
	Start      time.Time                    `json:"start"`
	Total      int                          `json:"total"`
	Sentiments map[Sentiment]SentimentCount `json:"sentiments"`
	Sources    map[Source]int               `json:"sources"`
	Issues     map[IssueType]int            `json:"issues"`
}

// NewSentimentBucket creates an empty bucket for (event, timeframe, start).
func NewSentimentBucket(eventID string, tf Timeframe, start time.Time) *SentimentBucket {
	return &SentimentBucket{
		EventID:    eventID,
		Timeframe:  tf,
		Start:      start,
		Sentiments: make(map[Sentiment]SentimentCount),
		Sources:    make(map[Source]int),
		Issues:     make(map[IssueType]int),
	}
}

// Apply folds one feedback item into the bucket's counters.
func (b *SentimentBucket) Apply(f *FeedbackItem) {
	sc := b.Sentiments[f.Sentiment]
	sc.Add(f.SentimentScore)
	b.Sentiments[f.Sentiment] = sc

	b.Sources[f.Source]++
	if f.IssueType != "" {
		b.Issues[f.IssueType]++
	}
	b.Total++
}

// NegativeShare returns the fraction of bucket messages labelled negative,
// or 0 for an empty bucket.
func (b *SentimentBucket) NegativeShare() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Sentiments[SentimentNegative].Count) / float64(b.Total)
}

// Key identifies a bucket within its event.
func (b *SentimentBucket) Key() BucketKey {
	return BucketKey{EventID: b.EventID, Timeframe: b.Timeframe, Start: b.Start.Unix()}
}

// BucketKey is the lookup key for a rollup bucket.
type BucketKey struct {
	EventID   string
	Timeframe Timeframe
	Start     int64
}
