package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"tradevault/src/model"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTradeJobRepositoryFindByStatus(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &TradeJobRepository{db: mockDB}

	createdAt := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	jobRows := func(jobs ...model.TradeJob) *sqlmock.Rows {
		rows := sqlmock.NewRows([]string{"id", "account_id", "symbol", "side", "status", "created_at"})
		for _, job := range jobs {
			rows.AddRow(job.ID, job.AccountID, job.Symbol, job.Side, job.Status, job.CreatedAt)
		}
		return rows
	}

	t.Run("returns pending jobs oldest first", func(t *testing.T) {
		mockRows := jobRows(
			model.TradeJob{ID: 1, AccountID: 1, Symbol: "BTCUSDT", Side: model.JobSideBuy, Status: model.JobStatusPending, CreatedAt: createdAt},
			model.TradeJob{ID: 2, AccountID: 1, Symbol: "ETHUSDT", Side: model.JobSideSell, Status: model.JobStatusPending, CreatedAt: createdAt.Add(time.Minute)},
		)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_jobs" WHERE status = $1 ORDER BY id ASC LIMIT $2`)).
			WithArgs(model.JobStatusPending, 50).
			WillReturnRows(mockRows)

		jobs, err := repo.FindByStatus(context.Background(), model.JobStatusPending, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(jobs))
		}
		if jobs[0].ID != 1 || jobs[1].ID != 2 {
			t.Fatalf("jobs not returned oldest first: %+v", jobs)
		}
	})

	t.Run("applies explicit limit", func(t *testing.T) {
		mockRows := jobRows(
			model.TradeJob{ID: 1, AccountID: 1, Symbol: "BTCUSDT", Side: model.JobSideBuy, Status: model.JobStatusFailed, CreatedAt: createdAt},
		)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_jobs" WHERE status = $1 ORDER BY id ASC LIMIT $2`)).
			WithArgs(model.JobStatusFailed, 1).
			WillReturnRows(mockRows)

		jobs, err := repo.FindByStatus(context.Background(), model.JobStatusFailed, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 1 {
			t.Fatalf("expected 1 job, got %d", len(jobs))
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestTradeJobRepositoryFindLatest(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &TradeJobRepository{db: mockDB}

	rows := sqlmock.NewRows([]string{"id", "account_id", "symbol", "side", "status"}).
		AddRow(9, 2, "BTCUSDT", model.JobSideSell, model.JobStatusFilled).
		AddRow(8, 2, "BTCUSDT", model.JobSideBuy, model.JobStatusFilled)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_jobs" ORDER BY id DESC LIMIT $1`)).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.FindLatest(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != 9 {
		t.Fatalf("jobs not returned newest first: %+v", jobs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
