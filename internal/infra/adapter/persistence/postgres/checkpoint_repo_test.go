package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"research-scrapers/internal/domain/entity"
	"research-scrapers/internal/infra/adapter/persistence/postgres"
	"research-scrapers/internal/resilience/circuitbreaker"
)

/* ──────────────────────────────── 1. Get ──────────────────────────────── */

func TestCheckpointRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	doc := []byte(`{"processed_items":{},"stats":{},"timestamp":""}`)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT document`)).
		WithArgs("nightly").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))

	repo := postgres.NewCheckpointRepo(db)
	got, err := repo.Get(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCheckpointRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM batch_checkpoints`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	repo := postgres.NewCheckpointRepo(db)
	got, err := repo.Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("Get err=%v got=%v, want nil,nil", err, got)
	}
}

func TestCheckpointRepo_Get_Error(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM batch_checkpoints`).WillReturnError(sql.ErrConnDone)

	repo := postgres.NewCheckpointRepo(db)
	if _, err := repo.Get(context.Background(), "x"); !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected ErrConnDone, got %v", err)
	}
}

/* ──────────────────────────────── 2. Upsert ──────────────────────────────── */

func TestCheckpointRepo_Upsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	doc := []byte(`{"processed_items":{"a":{}}}`)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO batch_checkpoints`)).
		WithArgs("nightly", doc, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := postgres.NewCheckpointRepo(db)
	if err := repo.Upsert(context.Background(), "nightly", doc, 1); err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ──────────────────────────────── 3. Delete ──────────────────────────────── */

func TestCheckpointRepo_Delete(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM batch_checkpoints`)).
		WithArgs("nightly").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := postgres.NewCheckpointRepo(db)
	if err := repo.Delete(context.Background(), "nightly"); err != nil {
		t.Fatalf("Delete err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ──────────────────────────────── 4. List ──────────────────────────────── */

func TestCheckpointRepo_List(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`ORDER BY updated_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "item_count", "updated_at"}).
			AddRow("nightly", 42, now).
			AddRow("weekly", 7, now.Add(-time.Hour)))

	repo := postgres.NewCheckpointRepo(db)
	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List err=%v", err)
	}

	want := []*entity.CheckpointInfo{
		{Name: "nightly", ItemCount: 42, UpdatedAt: now},
		{Name: "weekly", ItemCount: 7, UpdatedAt: now.Add(-time.Hour)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

/* ──────────────────────────────── 5. Circuit breaker ──────────────────────────────── */

func TestCheckpointRepo_ThroughDBCircuitBreaker(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	cfg := circuitbreaker.DBConfig()
	cfg.FailureThreshold = 2
	dcb := circuitbreaker.NewDBCircuitBreakerWithConfig(db, cfg)
	repo := postgres.NewCheckpointRepo(dcb)

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO batch_checkpoints`).WillReturnError(sql.ErrConnDone)
	}
	for i := 0; i < 2; i++ {
		_ = repo.Upsert(context.Background(), "nightly", []byte(`{}`), 0)
	}

	err := repo.Upsert(context.Background(), "nightly", []byte(`{}`), 0)
	if !circuitbreaker.IsOpen(err) {
		t.Fatalf("expected breaker-open error once the database keeps failing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
