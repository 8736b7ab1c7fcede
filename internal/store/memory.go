package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventpulse/eventpulse/internal/domain"
)

// MemoryEvents is an in-memory EventStore for tests and local development.
type MemoryEvents struct {
	mu     sync.RWMutex
	events map[string]*domain.Event
}

// NewMemoryEvents creates an empty event store.
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{events: make(map[string]*domain.Event)}
}

// Put registers an event.
func (m *MemoryEvents) Put(event *domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events[event.ID] = &copied
}

// GetEvent implements EventStore.
func (m *MemoryEvents) GetEvent(_ context.Context, id string) (*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

// MemoryFeedback is an in-memory FeedbackStore.
type MemoryFeedback struct {
	mu       sync.RWMutex
	items    map[string]*domain.FeedbackItem
	bySource map[string]bool // eventID|source|sourceID
}

// NewMemoryFeedback creates an empty feedback store.
func NewMemoryFeedback() *MemoryFeedback {
	return &MemoryFeedback{
		items:    make(map[string]*domain.FeedbackItem),
		bySource: make(map[string]bool),
	}
}

func sourceKey(eventID string, source domain.Source, sourceID string) string {
	return eventID + "|" + string(source) + "|" + sourceID
}

// Create implements FeedbackStore.
func (m *MemoryFeedback) Create(_ context.Context, item *domain.FeedbackItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.SourceID != "" {
		key := sourceKey(item.EventID, item.Source, item.SourceID)
		if m.bySource[key] {
			return domain.ErrDuplicateSource
		}
		m.bySource[key] = true
	}
	m.items[item.ID] = cloneFeedback(item)
	return nil
}

// Get implements FeedbackStore.
func (m *MemoryFeedback) Get(_ context.Context, id string) (*domain.FeedbackItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneFeedback(item), nil
}

// ExistsBySource implements FeedbackStore.
func (m *MemoryFeedback) ExistsBySource(_ context.Context, eventID string, source domain.Source, sourceID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySource[sourceKey(eventID, source, sourceID)], nil
}

// ListByEvent implements FeedbackStore.
func (m *MemoryFeedback) ListByEvent(_ context.Context, eventID string) ([]*domain.FeedbackItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*domain.FeedbackItem
	for _, item := range m.items {
		if item.EventID == eventID {
			items = append(items, cloneFeedback(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// MemoryIssues is an in-memory IssueStore.
type MemoryIssues struct {
	mu     sync.RWMutex
	issues map[string]*domain.Issue
}

// NewMemoryIssues creates an empty issue store.
func NewMemoryIssues() *MemoryIssues {
	return &MemoryIssues{issues: make(map[string]*domain.Issue)}
}

// Create implements IssueStore.
func (m *MemoryIssues) Create(_ context.Context, issue *domain.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.ID] = cloneIssue(issue)
	return nil
}

// Update implements IssueStore.
func (m *MemoryIssues) Update(_ context.Context, issue *domain.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[issue.ID]; !ok {
		return domain.ErrNotFound
	}
	m.issues[issue.ID] = cloneIssue(issue)
	return nil
}

// Get implements IssueStore.
func (m *MemoryIssues) Get(_ context.Context, id string) (*domain.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneIssue(issue), nil
}

// FindOpen implements IssueStore.
func (m *MemoryIssues) FindOpen(_ context.Context, eventID string, issueType domain.IssueType, location string) (*domain.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, issue := range m.issues {
		if issue.EventID == eventID && issue.Type == issueType &&
			issue.Location == location && !issue.Status.Terminal() {
			return cloneIssue(issue), nil
		}
	}
	return nil, domain.ErrNotFound
}

// MemoryAlerts is an in-memory AlertStore.
type MemoryAlerts struct {
	mu     sync.RWMutex
	alerts map[string]*domain.Alert
}

// NewMemoryAlerts creates an empty alert store.
func NewMemoryAlerts() *MemoryAlerts {
	return &MemoryAlerts{alerts: make(map[string]*domain.Alert)}
}

// Create implements AlertStore.
func (m *MemoryAlerts) Create(_ context.Context, alert *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

// Update implements AlertStore.
func (m *MemoryAlerts) Update(_ context.Context, alert *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[alert.ID]; !ok {
		return domain.ErrNotFound
	}
	m.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

// Get implements AlertStore.
func (m *MemoryAlerts) Get(_ context.Context, id string) (*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alert, ok := m.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAlert(alert), nil
}

// FindActiveByIssue implements AlertStore.
func (m *MemoryAlerts) FindActiveByIssue(_ context.Context, issueID string) (*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, alert := range m.alerts {
		if alert.IssueID == issueID && alert.Status != domain.AlertStatusResolved {
			return cloneAlert(alert), nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindActiveTrend implements AlertStore.
func (m *MemoryAlerts) FindActiveTrend(_ context.Context, eventID string, since time.Time) (*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, alert := range m.alerts {
		if alert.EventID == eventID && alert.Type == domain.AlertTypeTrend &&
			!alert.Status.Terminal() && !alert.CreatedAt.Before(since) {
			return cloneAlert(alert), nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListAutoResolveDue implements AlertStore.
func (m *MemoryAlerts) ListAutoResolveDue(_ context.Context, now time.Time) ([]*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.Alert
	for _, alert := range m.alerts {
		if !alert.Status.Terminal() && alert.AutoResolveDue(now) {
			due = append(due, cloneAlert(alert))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due, nil
}

// ListCreatedSince implements AlertStore.
func (m *MemoryAlerts) ListCreatedSince(_ context.Context, since time.Time) ([]*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var alerts []*domain.Alert
	for _, alert := range m.alerts {
		if !alert.CreatedAt.Before(since) {
			alerts = append(alerts, cloneAlert(alert))
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.Before(alerts[j].CreatedAt) })
	return alerts, nil
}

// CountsByEvent implements AlertStore.
func (m *MemoryAlerts) CountsByEvent(_ context.Context, eventID string) (*AlertCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := &AlertCounts{
		ByStatus:   make(map[domain.AlertStatus]int),
		BySeverity: make(map[domain.Severity]int),
	}
	for _, alert := range m.alerts {
		if alert.EventID != eventID {
			continue
		}
		counts.Total++
		counts.ByStatus[alert.Status]++
		counts.BySeverity[alert.Severity]++
	}
	return counts, nil
}

// MemoryBuckets is an in-memory BucketStore. It is the concurrency
// reference: the whole get-or-create-and-increment runs under the store
// lock, so concurrent writers to the same bucket never lose updates.
type MemoryBuckets struct {
	mu      sync.RWMutex
	buckets map[domain.BucketKey]*domain.SentimentBucket
}

// NewMemoryBuckets creates an empty bucket store.
func NewMemoryBuckets() *MemoryBuckets {
	return &MemoryBuckets{buckets: make(map[domain.BucketKey]*domain.SentimentBucket)}
}

// Apply implements BucketStore.
func (m *MemoryBuckets) Apply(_ context.Context, tf domain.Timeframe, ts time.Time, item *domain.FeedbackItem) error {
	start := tf.Truncate(ts)
	key := domain.BucketKey{EventID: item.EventID, Timeframe: tf, Start: start.Unix()}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if !ok {
		bucket = domain.NewSentimentBucket(item.EventID, tf, start)
		m.buckets[key] = bucket
	}
	bucket.Apply(item)
	return nil
}

// Get implements BucketStore.
func (m *MemoryBuckets) Get(_ context.Context, key domain.BucketKey) (*domain.SentimentBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.buckets[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBucket(bucket), nil
}

// RecentMinuteBuckets implements BucketStore.
func (m *MemoryBuckets) RecentMinuteBuckets(_ context.Context, eventID string, limit int) ([]*domain.SentimentBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var buckets []*domain.SentimentBucket
	for _, bucket := range m.buckets {
		if bucket.EventID == eventID && bucket.Timeframe == domain.TimeframeMinute {
			buckets = append(buckets, cloneBucket(bucket))
		}
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	if len(buckets) > limit {
		buckets = buckets[len(buckets)-limit:]
	}
	return buckets, nil
}

// DeleteByEvent implements BucketStore.
func (m *MemoryBuckets) DeleteByEvent(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, bucket := range m.buckets {
		if bucket.EventID == eventID {
			delete(m.buckets, key)
		}
	}
	return nil
}

func cloneFeedback(item *domain.FeedbackItem) *domain.FeedbackItem {
	copied := *item
	copied.Metadata.Keywords = append([]string(nil), item.Metadata.Keywords...)
	copied.Metadata.Hashtags = append([]string(nil), item.Metadata.Hashtags...)
	copied.Metadata.Mentions = append([]string(nil), item.Metadata.Mentions...)
	if item.Metadata.Platform != nil {
		copied.Metadata.Platform = make(map[string]string, len(item.Metadata.Platform))
		for k, v := range item.Metadata.Platform {
			copied.Metadata.Platform[k] = v
		}
	}
	return &copied
}

func cloneIssue(issue *domain.Issue) *domain.Issue {
	copied := *issue
	copied.FeedbackIDs = append([]string(nil), issue.FeedbackIDs...)
	copied.Keywords = append([]string(nil), issue.Keywords...)
	copied.AlertIDs = append([]string(nil), issue.AlertIDs...)
	return &copied
}

func cloneAlert(alert *domain.Alert) *domain.Alert {
	copied := *alert
	copied.FeedbackIDs = append([]string(nil), alert.FeedbackIDs...)
	copied.StatusLog = append([]domain.StatusUpdate(nil), alert.StatusLog...)
	copied.Metadata.Keywords = append([]string(nil), alert.Metadata.Keywords...)
	if alert.Metadata.AutoResolveDue != nil {
		due := *alert.Metadata.AutoResolveDue
		copied.Metadata.AutoResolveDue = &due
	}
	if alert.ResolvedAt != nil {
		resolved := *alert.ResolvedAt
		copied.ResolvedAt = &resolved
	}
	return &copied
}

func cloneBucket(bucket *domain.SentimentBucket) *domain.SentimentBucket {
	copied := domain.NewSentimentBucket(bucket.EventID, bucket.Timeframe, bucket.Start)
	copied.Total = bucket.Total
	for label, count := range bucket.Sentiments {
		copied.Sentiments[label] = count
	}
	for source, count := range bucket.Sources {
		copied.Sources[source] = count
	}
	for issueType, count := range bucket.Issues {
		copied.Issues[issueType] = count
	}
	return copied
}
