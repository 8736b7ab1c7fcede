package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/store"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestPostgresFeedback_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresFeedback(db)
	ctx := context.Background()

	item := &domain.FeedbackItem{
		ID:             "fb-1",
		EventID:        "evt-1",
		Source:         domain.SourceTwitter,
		SourceID:       "tw-999",
		Text:           "sound keeps cutting out",
		Sentiment:      domain.SentimentNegative,
		SentimentScore: -0.6,
		IssueType:      domain.IssueAudio,
		CreatedAt:      time.Now(),
	}

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "inserts feedback row",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO feedback_items").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "duplicate source maps to ErrDuplicateSource",
			setupMock: func() {
				mock.ExpectExec("INSERT INTO feedback_items").
					WillReturnError(&pq.Error{Code: "23505"})
			},
			wantErr: domain.ErrDuplicateSource,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := repo.Create(ctx, item)
			if tc.wantErr == nil && err != nil {
				t.Errorf("Create() error = %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestPostgresFeedback_ExistsBySource(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresFeedback(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("evt-1", "twitter", "tw-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsBySource(ctx, "evt-1", domain.SourceTwitter, "tw-1")
	if err != nil {
		t.Fatalf("ExistsBySource() error = %v", err)
	}
	if !exists {
		t.Error("ExistsBySource() = false, want true")
	}
	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestPostgresIssues_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresIssues(db)
	ctx := context.Background()

	issue := &domain.Issue{
		ID:      "iss-1",
		EventID: "evt-1",
		Type:    domain.IssueAudio,
	}

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "updates existing issue",
			setupMock: func() {
				mock.ExpectExec("UPDATE issues").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "missing issue returns ErrNotFound",
			setupMock: func() {
				mock.ExpectExec("UPDATE issues").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "database error propagates",
			setupMock: func() {
				mock.ExpectExec("UPDATE issues").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := repo.Update(ctx, issue)
			if tc.wantErr == nil && err != nil {
				t.Errorf("Update() error = %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Update() error = %v, want %v", err, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestPostgresIssues_FindOpen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresIssues(db)
	ctx := context.Background()

	now := time.Now()
	columns := []string{
		"id", "event_id", "type", "subtype", "severity", "status", "location",
		"feedback_ids", "feedback_count", "sentiment_average", "keywords",
		"alert_ids", "first_detected_at", "last_mentioned_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM issues").
		WithArgs("evt-1", "audio", "main-stage").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"iss-1", "evt-1", "audio", "", "medium", "detected", "main-stage",
			[]byte(`["fb-1","fb-2"]`), 2, -0.55, []byte(`["sound","echo"]`),
			[]byte(`[]`), now, now,
		))

	issue, err := repo.FindOpen(ctx, "evt-1", domain.IssueAudio, "main-stage")
	if err != nil {
		t.Fatalf("FindOpen() error = %v", err)
	}
	if issue.FeedbackCount != 2 || len(issue.FeedbackIDs) != 2 {
		t.Errorf("FindOpen() feedback count = %d ids = %d, want 2 and 2",
			issue.FeedbackCount, len(issue.FeedbackIDs))
	}
	if issue.SentimentAverage != -0.55 {
		t.Errorf("FindOpen() sentiment average = %v, want -0.55", issue.SentimentAverage)
	}
	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestPostgresIssues_FindOpen_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresIssues(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM issues").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindOpen(ctx, "evt-1", domain.IssueAudio, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindOpen() error = %v, want ErrNotFound", err)
	}
}

func TestPostgresAlerts_CountsByEvent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresAlerts(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT status, severity, COUNT").
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "severity", "count"}).
			AddRow("new", "high", 2).
			AddRow("resolved", "high", 1).
			AddRow("new", "critical", 1))

	counts, err := repo.CountsByEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("CountsByEvent() error = %v", err)
	}
	if counts.Total != 4 {
		t.Errorf("total = %d, want 4", counts.Total)
	}
	if counts.ByStatus[domain.AlertStatusNew] != 3 {
		t.Errorf("new count = %d, want 3", counts.ByStatus[domain.AlertStatusNew])
	}
	if counts.BySeverity[domain.SeverityHigh] != 3 {
		t.Errorf("high count = %d, want 3", counts.BySeverity[domain.SeverityHigh])
	}
}

func TestPostgresBuckets_Apply(t *testing.T) {
	db, mock := newMockDB(t)
	repo := store.NewPostgresBuckets(db)
	ctx := context.Background()

	item := &domain.FeedbackItem{
		ID:             "fb-1",
		EventID:        "evt-1",
		Source:         domain.SourceDirect,
		Sentiment:      domain.SentimentNegative,
		SentimentScore: -0.4,
		IssueType:      domain.IssueQueue,
	}

	mock.ExpectExec("INSERT INTO sentiment_buckets").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Apply(ctx, domain.TimeframeMinute, time.Now(), item); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestPostgresBuckets_Apply_UnknownSentiment(t *testing.T) {
	db, _ := newMockDB(t)
	repo := store.NewPostgresBuckets(db)

	item := &domain.FeedbackItem{EventID: "evt-1", Sentiment: "angry"}
	if err := repo.Apply(context.Background(), domain.TimeframeMinute, time.Now(), item); err == nil {
		t.Error("Apply() expected error for unknown sentiment label")
	}
}
