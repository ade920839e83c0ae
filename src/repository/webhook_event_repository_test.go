package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"tradevault/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestWebhookEventRepositoryFindByDedupeKey(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &WebhookEventRepository{db: mockDB}

	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns existing event", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "source_id", "target_account_id", "external_event_id", "action", "status", "created_at"}).
			AddRow(7, 1, 0, "alert-42", model.SignalActionBuy, model.EventStatusJobCreated, createdAt)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook_events" WHERE source_id = $1 AND target_account_id = $2 AND external_event_id = $3 ORDER BY "webhook_events"."id" LIMIT $4`)).
			WithArgs(uint(1), uint(0), "alert-42", 1).
			WillReturnRows(rows)

		event, err := repo.FindByDedupeKey(context.Background(), 1, 0, "alert-42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event == nil {
			t.Fatal("expected event, got nil")
		}
		if event.ID != 7 || event.ExternalEventID != "alert-42" {
			t.Fatalf("unexpected event returned: %+v", event)
		}
	})

	t.Run("not found is nil, nil", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook_events" WHERE source_id = $1 AND target_account_id = $2 AND external_event_id = $3 ORDER BY "webhook_events"."id" LIMIT $4`)).
			WithArgs(uint(1), uint(0), "never-seen", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		event, err := repo.FindByDedupeKey(context.Background(), 1, 0, "never-seen")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event != nil {
			t.Fatalf("expected nil event, got %+v", event)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestWebhookEventRepositoryCountBySourceSince(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &WebhookEventRepository{db: mockDB}

	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "webhook_events" WHERE source_id = $1 AND created_at >= $2`)).
		WithArgs(uint(3), since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(14))

	count, err := repo.CountBySourceSince(context.Background(), 3, since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 14 {
		t.Fatalf("expected 14 events, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}
