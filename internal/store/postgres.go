// Package store defines persistence interfaces and their PostgreSQL and
// in-memory implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eventpulse/eventpulse/internal/domain"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// PostgresConfig holds database connection configuration.
type PostgresConfig struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST"`
	Port     string `yaml:"port" env:"POSTGRES_PORT"`
	User     string `yaml:"user" env:"POSTGRES_USER"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	DBName   string `yaml:"database" env:"POSTGRES_DB"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE"`
}

// NewPostgresConnection creates a new PostgreSQL database connection.
func NewPostgresConnection(cfg PostgresConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// PostgresEvents reads monitored events from PostgreSQL.
type PostgresEvents struct {
	db *sqlx.DB
}

// NewPostgresEvents creates a new repository.
func NewPostgresEvents(db *sqlx.DB) *PostgresEvents {
	return &PostgresEvents{db: db}
}

// GetEvent implements EventStore.
func (r *PostgresEvents) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, name, negative_sentiment_threshold, issue_alert_threshold,
		       auto_resolve_after_seconds, social_tracking, is_active
		FROM events
		WHERE id = $1`

	var (
		event       domain.Event
		autoResolve int64
	)
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&event.ID, &event.Name,
		&event.AlertSettings.NegativeSentimentThreshold,
		&event.AlertSettings.IssueAlertThreshold,
		&autoResolve,
		&event.SocialTracking, &event.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	event.AlertSettings.AutoResolveAfter = time.Duration(autoResolve) * time.Second
	return &event, nil
}

// PostgresFeedback persists classified feedback items.
type PostgresFeedback struct {
	db *sqlx.DB
}

// NewPostgresFeedback creates a new repository.
func NewPostgresFeedback(db *sqlx.DB) *PostgresFeedback {
	return &PostgresFeedback{db: db}
}

// Create implements FeedbackStore. Social duplicates are rejected by the
// partial unique index on (event_id, source, source_id).
func (r *PostgresFeedback) Create(ctx context.Context, item *domain.FeedbackItem) error {
	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal feedback metadata: %w", err)
	}

	query := `
		INSERT INTO feedback_items
			(id, event_id, source, source_id, text, sentiment, sentiment_score,
			 issue_type, location, metadata, processed, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)`

	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.EventID, item.Source, item.SourceID,
		item.Text, item.Sentiment, item.SentimentScore,
		string(item.IssueType), item.Location, metadata,
		item.Processed, item.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSource
	}
	if err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// Get implements FeedbackStore.
func (r *PostgresFeedback) Get(ctx context.Context, id string) (*domain.FeedbackItem, error) {
	row := r.db.QueryRowxContext(ctx, feedbackSelect+` WHERE id = $1`, id)
	item, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feedback: %w", err)
	}
	return item, nil
}

// ExistsBySource implements FeedbackStore.
func (r *PostgresFeedback) ExistsBySource(ctx context.Context, eventID string, source domain.Source, sourceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM feedback_items
			WHERE event_id = $1 AND source = $2 AND source_id = $3
		)`, eventID, source, sourceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by source: %w", err)
	}
	return exists, nil
}

// ListByEvent implements FeedbackStore.
func (r *PostgresFeedback) ListByEvent(ctx context.Context, eventID string) ([]*domain.FeedbackItem, error) {
	rows, err := r.db.QueryxContext(ctx,
		feedbackSelect+` WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var items []*domain.FeedbackItem
	for rows.Next() {
		item, scanErr := scanFeedback(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan feedback: %w", scanErr)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const feedbackSelect = `
	SELECT id, event_id, source, COALESCE(source_id, ''), text, sentiment,
	       sentiment_score, COALESCE(issue_type, ''), location, metadata,
	       processed, created_at
	FROM feedback_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedback(row rowScanner) (*domain.FeedbackItem, error) {
	var (
		item     domain.FeedbackItem
		metadata []byte
	)
	err := row.Scan(
		&item.ID, &item.EventID, &item.Source, &item.SourceID,
		&item.Text, &item.Sentiment, &item.SentimentScore,
		&item.IssueType, &item.Location, &metadata,
		&item.Processed, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal feedback metadata: %w", err)
		}
	}
	return &item, nil
}

// PostgresIssues persists aggregated issues.
type PostgresIssues struct {
	db *sqlx.DB
}

// NewPostgresIssues creates a new repository.
func NewPostgresIssues(db *sqlx.DB) *PostgresIssues {
	return &PostgresIssues{db: db}
}

// Create implements IssueStore.
func (r *PostgresIssues) Create(ctx context.Context, issue *domain.Issue) error {
	feedbackIDs, keywords, alertIDs, err := marshalIssueLists(issue)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO issues
			(id, event_id, type, subtype, severity, status, location,
			 feedback_ids, feedback_count, sentiment_average, keywords, alert_ids,
			 first_detected_at, last_mentioned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.ExecContext(ctx, query,
		issue.ID, issue.EventID, issue.Type, issue.Subtype,
		issue.Severity, issue.Status, issue.Location,
		feedbackIDs, issue.FeedbackCount, issue.SentimentAverage,
		keywords, alertIDs, issue.FirstDetectedAt, issue.LastMentionedAt,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// Update implements IssueStore.
func (r *PostgresIssues) Update(ctx context.Context, issue *domain.Issue) error {
	feedbackIDs, keywords, alertIDs, err := marshalIssueLists(issue)
	if err != nil {
		return err
	}

	query := `
		UPDATE issues
		SET severity = $2, status = $3,
		    feedback_ids = $4, feedback_count = $5, sentiment_average = $6,
		    keywords = $7, alert_ids = $8, last_mentioned_at = $9
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		issue.ID, issue.Severity, issue.Status,
		feedbackIDs, issue.FeedbackCount, issue.SentimentAverage,
		keywords, alertIDs, issue.LastMentionedAt,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get implements IssueStore.
func (r *PostgresIssues) Get(ctx context.Context, id string) (*domain.Issue, error) {
	row := r.db.QueryRowxContext(ctx, issueSelect+` WHERE id = $1`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

// FindOpen implements IssueStore. The oldest open issue wins when several
// exist, so concurrent creators converge on one.
func (r *PostgresIssues) FindOpen(ctx context.Context, eventID string, issueType domain.IssueType, location string) (*domain.Issue, error) {
	query := issueSelect + `
		WHERE event_id = $1 AND type = $2 AND location = $3
		  AND status NOT IN ('resolved', 'falsePositive')
		ORDER BY first_detected_at ASC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, eventID, issueType, location)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open issue: %w", err)
	}
	return issue, nil
}

const issueSelect = `
	SELECT id, event_id, type, subtype, severity, status, location,
	       feedback_ids, feedback_count, sentiment_average, keywords, alert_ids,
	       first_detected_at, last_mentioned_at
	FROM issues`

func marshalIssueLists(issue *domain.Issue) (feedbackIDs, keywords, alertIDs []byte, err error) {
	if feedbackIDs, err = json.Marshal(emptyIfNil(issue.FeedbackIDs)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal issue feedback ids: %w", err)
	}
	if keywords, err = json.Marshal(emptyIfNil(issue.Keywords)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal issue keywords: %w", err)
	}
	if alertIDs, err = json.Marshal(emptyIfNil(issue.AlertIDs)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal issue alert ids: %w", err)
	}
	return feedbackIDs, keywords, alertIDs, nil
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var (
		issue       domain.Issue
		feedbackIDs []byte
		keywords    []byte
		alertIDs    []byte
	)
	err := row.Scan(
		&issue.ID, &issue.EventID, &issue.Type, &issue.Subtype,
		&issue.Severity, &issue.Status, &issue.Location,
		&feedbackIDs, &issue.FeedbackCount, &issue.SentimentAverage,
		&keywords, &alertIDs, &issue.FirstDetectedAt, &issue.LastMentionedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(feedbackIDs, &issue.FeedbackIDs); err != nil {
		return nil, fmt.Errorf("unmarshal issue feedback ids: %w", err)
	}
	if err := json.Unmarshal(keywords, &issue.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal issue keywords: %w", err)
	}
	if err := json.Unmarshal(alertIDs, &issue.AlertIDs); err != nil {
		return nil, fmt.Errorf("unmarshal issue alert ids: %w", err)
	}
	return &issue, nil
}

// PostgresAlerts persists operator-facing alerts.
type PostgresAlerts struct {
	db *sqlx.DB
}

// NewPostgresAlerts creates a new repository.
func NewPostgresAlerts(db *sqlx.DB) *PostgresAlerts {
	return &PostgresAlerts{db: db}
}

// Create implements AlertStore.
func (r *PostgresAlerts) Create(ctx context.Context, alert *domain.Alert) error {
	feedbackIDs, statusLog, metadata, err := marshalAlertLists(alert)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts
			(id, event_id, type, severity, title, description, category, location,
			 issue_id, feedback_ids, status, status_log, assignee, metadata,
			 notification_sent, auto_resolve_due, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''),
		        $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = r.db.ExecContext(ctx, query,
		alert.ID, alert.EventID, alert.Type, alert.Severity,
		alert.Title, alert.Description, string(alert.Category), alert.Location,
		alert.IssueID, feedbackIDs, alert.Status, statusLog,
		alert.Assignee, metadata, alert.NotificationSent,
		alert.Metadata.AutoResolveDue, alert.CreatedAt, alert.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// Update implements AlertStore.
func (r *PostgresAlerts) Update(ctx context.Context, alert *domain.Alert) error {
	feedbackIDs, statusLog, metadata, err := marshalAlertLists(alert)
	if err != nil {
		return err
	}

	query := `
		UPDATE alerts
		SET severity = $2, title = $3, description = $4,
		    feedback_ids = $5, status = $6, status_log = $7, assignee = $8,
		    metadata = $9, notification_sent = $10, auto_resolve_due = $11,
		    resolved_at = $12
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.Severity, alert.Title, alert.Description,
		feedbackIDs, alert.Status, statusLog, alert.Assignee,
		metadata, alert.NotificationSent, alert.Metadata.AutoResolveDue,
		alert.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get implements AlertStore.
func (r *PostgresAlerts) Get(ctx context.Context, id string) (*domain.Alert, error) {
	row := r.db.QueryRowxContext(ctx, alertSelect+` WHERE id = $1`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// FindActiveByIssue implements AlertStore.
func (r *PostgresAlerts) FindActiveByIssue(ctx context.Context, issueID string) (*domain.Alert, error) {
	query := alertSelect + `
		WHERE issue_id = $1 AND status <> 'resolved'
		ORDER BY created_at ASC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, issueID)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active alert by issue: %w", err)
	}
	return alert, nil
}

// FindActiveTrend implements AlertStore.
func (r *PostgresAlerts) FindActiveTrend(ctx context.Context, eventID string, since time.Time) (*domain.Alert, error) {
	query := alertSelect + `
		WHERE event_id = $1 AND type = 'trend'
		  AND status NOT IN ('resolved', 'ignored')
		  AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, eventID, since)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active trend alert: %w", err)
	}
	return alert, nil
}

// ListAutoResolveDue implements AlertStore.
func (r *PostgresAlerts) ListAutoResolveDue(ctx context.Context, now time.Time) ([]*domain.Alert, error) {
	query := alertSelect + `
		WHERE status NOT IN ('resolved', 'ignored')
		  AND auto_resolve_due IS NOT NULL
		  AND auto_resolve_due <= $1
		ORDER BY created_at ASC`

	return r.listAlerts(ctx, query, now)
}

// ListCreatedSince implements AlertStore.
func (r *PostgresAlerts) ListCreatedSince(ctx context.Context, since time.Time) ([]*domain.Alert, error) {
	query := alertSelect + `
		WHERE created_at >= $1
		ORDER BY created_at ASC`

	return r.listAlerts(ctx, query, since)
}

func (r *PostgresAlerts) listAlerts(ctx context.Context, query string, args ...any) ([]*domain.Alert, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan alert: %w", scanErr)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// CountsByEvent implements AlertStore.
func (r *PostgresAlerts) CountsByEvent(ctx context.Context, eventID string) (*AlertCounts, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT status, severity, COUNT(*)
		FROM alerts
		WHERE event_id = $1
		GROUP BY status, severity`, eventID)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	defer rows.Close()

	counts := &AlertCounts{
		ByStatus:   make(map[domain.AlertStatus]int),
		BySeverity: make(map[domain.Severity]int),
	}
	for rows.Next() {
		var (
			status   domain.AlertStatus
			severity domain.Severity
			n        int
		)
		if scanErr := rows.Scan(&status, &severity, &n); scanErr != nil {
			return nil, fmt.Errorf("scan alert counts: %w", scanErr)
		}
		counts.Total += n
		counts.ByStatus[status] += n
		counts.BySeverity[severity] += n
	}
	return counts, rows.Err()
}

const alertSelect = `
	SELECT id, event_id, type, severity, title, description,
	       COALESCE(category, ''), location, COALESCE(issue_id, ''),
	       feedback_ids, status, status_log, assignee, metadata,
	       notification_sent, created_at, resolved_at
	FROM alerts`

func marshalAlertLists(alert *domain.Alert) (feedbackIDs, statusLog, metadata []byte, err error) {
	if feedbackIDs, err = json.Marshal(emptyIfNil(alert.FeedbackIDs)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal alert feedback ids: %w", err)
	}
	if statusLog, err = json.Marshal(alert.StatusLog); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal alert status log: %w", err)
	}
	if metadata, err = json.Marshal(alert.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal alert metadata: %w", err)
	}
	return feedbackIDs, statusLog, metadata, nil
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var (
		alert       domain.Alert
		feedbackIDs []byte
		statusLog   []byte
		metadata    []byte
		resolvedAt  sql.NullTime
	)
	err := row.Scan(
		&alert.ID, &alert.EventID, &alert.Type, &alert.Severity,
		&alert.Title, &alert.Description, &alert.Category, &alert.Location,
		&alert.IssueID, &feedbackIDs, &alert.Status, &statusLog,
		&alert.Assignee, &metadata, &alert.NotificationSent,
		&alert.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(feedbackIDs, &alert.FeedbackIDs); err != nil {
		return nil, fmt.Errorf("unmarshal alert feedback ids: %w", err)
	}
	if err := json.Unmarshal(statusLog, &alert.StatusLog); err != nil {
		return nil, fmt.Errorf("unmarshal alert status log: %w", err)
	}
	if err := json.Unmarshal(metadata, &alert.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal alert metadata: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		alert.ResolvedAt = &t
	}
	return &alert, nil
}

// PostgresBuckets persists sentiment rollup buckets. All bucket updates go
// through a single ON CONFLICT upsert so concurrent writers to the same
// bucket never lose counts and the running averages stay exact.
type PostgresBuckets struct {
	db *sqlx.DB
}

// NewPostgresBuckets creates a new repository.
func NewPostgresBuckets(db *sqlx.DB) *PostgresBuckets {
	return &PostgresBuckets{db: db}
}

// bucketColumns maps each sentiment label to its count/avg column pair.
// Column names are taken from this table, never from input.
var bucketColumns = map[domain.Sentiment]struct{ count, avg string }{
	domain.SentimentPositive: {"positive_count", "positive_avg"},
	domain.SentimentNeutral:  {"neutral_count", "neutral_avg"},
	domain.SentimentNegative: {"negative_count", "negative_avg"},
}

// Apply implements BucketStore. The incremental mean for the matching
// sentiment column is computed inside the statement, against the row's
// current values, so the fold is atomic.
func (r *PostgresBuckets) Apply(ctx context.Context, tf domain.Timeframe, ts time.Time, item *domain.FeedbackItem) error {
	cols, ok := bucketColumns[item.Sentiment]
	if !ok {
		return fmt.Errorf("apply bucket: unknown sentiment %q", item.Sentiment)
	}
	start := tf.Truncate(ts)

	query := fmt.Sprintf(`
		INSERT INTO sentiment_buckets
			(event_id, timeframe, bucket_start, total, %[1]s, %[2]s, sources, issues)
		VALUES ($1, $2, $3, 1, 1, $4,
		        jsonb_build_object($5::text, 1),
		        CASE WHEN $6 = '' THEN '{}'::jsonb ELSE jsonb_build_object($6::text, 1) END)
		ON CONFLICT (event_id, timeframe, bucket_start) DO UPDATE SET
			total = sentiment_buckets.total + 1,
			%[2]s = (sentiment_buckets.%[2]s * sentiment_buckets.%[1]s + $4)
			        / (sentiment_buckets.%[1]s + 1),
			%[1]s = sentiment_buckets.%[1]s + 1,
			sources = jsonb_set(sentiment_buckets.sources, ARRAY[$5::text],
				to_jsonb(COALESCE((sentiment_buckets.sources->>$5)::int, 0) + 1)),
			issues = CASE WHEN $6 = '' THEN sentiment_buckets.issues
				ELSE jsonb_set(sentiment_buckets.issues, ARRAY[$6::text],
					to_jsonb(COALESCE((sentiment_buckets.issues->>$6)::int, 0) + 1))
				END`, cols.count, cols.avg)

	_, err := r.db.ExecContext(ctx, query,
		item.EventID, tf, start,
		item.SentimentScore, string(item.Source), string(item.IssueType),
	)
	if err != nil {
		return fmt.Errorf("apply bucket: %w", err)
	}
	return nil
}

// Get implements BucketStore.
func (r *PostgresBuckets) Get(ctx context.Context, key domain.BucketKey) (*domain.SentimentBucket, error) {
	query := bucketSelect + `
		WHERE event_id = $1 AND timeframe = $2 AND bucket_start = $3`

	row := r.db.QueryRowxContext(ctx, query, key.EventID, key.Timeframe, time.Unix(key.Start, 0).UTC())
	bucket, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket: %w", err)
	}
	return bucket, nil
}

// RecentMinuteBuckets implements BucketStore. Buckets return oldest first.
func (r *PostgresBuckets) RecentMinuteBuckets(ctx context.Context, eventID string, limit int) ([]*domain.SentimentBucket, error) {
	query := `
		SELECT * FROM (` + bucketSelect + `
			WHERE event_id = $1 AND timeframe = 'minute'
			ORDER BY bucket_start DESC
			LIMIT $2
		) recent
		ORDER BY bucket_start ASC`

	rows, err := r.db.QueryxContext(ctx, query, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent minute buckets: %w", err)
	}
	defer rows.Close()

	var buckets []*domain.SentimentBucket
	for rows.Next() {
		bucket, scanErr := scanBucket(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan bucket: %w", scanErr)
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}

// DeleteByEvent implements BucketStore. Used by historical recalculation
// before replaying the event's feedback.
func (r *PostgresBuckets) DeleteByEvent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sentiment_buckets WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("delete buckets: %w", err)
	}
	return nil
}

const bucketSelect = `
	SELECT event_id, timeframe, bucket_start, total,
	       positive_count, positive_avg, neutral_count, neutral_avg,
	       negative_count, negative_avg, sources, issues
	FROM sentiment_buckets`

func scanBucket(row rowScanner) (*domain.SentimentBucket, error) {
	var (
		eventID string
		tf      domain.Timeframe
		start   time.Time
		total   int
		counts  [3]domain.SentimentCount
		sources []byte
		issues  []byte
	)
	err := row.Scan(
		&eventID, &tf, &start, &total,
		&counts[0].Count, &counts[0].AvgScore,
		&counts[1].Count, &counts[1].AvgScore,
		&counts[2].Count, &counts[2].AvgScore,
		&sources, &issues,
	)
	if err != nil {
		return nil, err
	}

	bucket := domain.NewSentimentBucket(eventID, tf, start)
	bucket.Total = total
	for i, label := range []domain.Sentiment{domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative} {
		if counts[i].Count > 0 {
			bucket.Sentiments[label] = counts[i]
		}
	}
	if err := json.Unmarshal(sources, &bucket.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal bucket sources: %w", err)
	}
	if err := json.Unmarshal(issues, &bucket.Issues); err != nil {
		return nil, fmt.Errorf("unmarshal bucket issues: %w", err)
	}
	return bucket, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
