package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"keyline/internal/config"
	"keyline/internal/db"
	"keyline/internal/domain"
	"keyline/internal/migrate"
)

func openMemory(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{Driver: db.DriverSQLite, DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	version, err := migrate.Migrate(conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if version != 1 {
		t.Fatalf("schema version = %d", version)
	}
	return Repo{DB: conn, Now: func() time.Time { return time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC) }}
}

func seedSnapshot() domain.Snapshot {
	seed := config.Default().Seed
	return domain.Snapshot{
		TakenAt:  "2025-01-20T09:00:00Z",
		Accounts: seed.Accounts,
		Keys:     seed.Keys,
		Tasks:    seed.Tasks,
		History:  seed.History,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := openMemory(t)
	ctx := context.Background()
	id, err := r.SaveSnapshot(ctx, seedSnapshot())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := r.LoadSnapshot(ctx, "")
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if len(got.Accounts) != 3 || len(got.Keys) != 2 || len(got.Tasks) != 1 || len(got.History) != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	for _, a := range got.Accounts {
		if a.Password != "" {
			t.Fatalf("password stored for %s", a.ID)
		}
	}
	task := got.Tasks[0]
	if len(task.TodoItems) != 3 || task.TodoItems[0].ID != "t1" || task.KeyNumber != "KEY-002" {
		t.Fatalf("task not restored: %+v", task)
	}
	if got.Keys[1].Status != domain.KeyAssigned || got.Keys[1].AssignedTo != "staff-1" {
		t.Fatalf("key not restored: %+v", got.Keys[1])
	}

	byID, err := r.LoadSnapshot(ctx, id)
	if err != nil || byID.TakenAt != got.TakenAt {
		t.Fatalf("load by id: %v %+v", err, byID)
	}
	list, err := r.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != id || list[0].Accounts != 3 || list[0].Tasks != 1 {
		t.Fatalf("list = %+v", list)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	r := openMemory(t)
	version, err := migrate.Migrate(r.DB)
	if err != nil || version != 1 {
		t.Fatalf("second migrate: %d %v", version, err)
	}
}

func TestDeleteSnapshotCascades(t *testing.T) {
	r := openMemory(t)
	ctx := context.Background()
	id, err := r.SaveSnapshot(ctx, seedSnapshot())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := r.DeleteSnapshot(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int
	if err := r.DB.Get(&n, `SELECT COUNT(*) FROM snapshot_tasks`); err != nil || n != 0 {
		t.Fatalf("tasks left = %d (%v)", n, err)
	}
	if err := r.DeleteSnapshot(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
	if _, err := r.LoadSnapshot(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load from empty db = %v", err)
	}
}

func TestSaveSnapshotRollsBackOnFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()
	r := Repo{DB: sqlx.NewDb(mockDB, "sqlmock")}

	snap := seedSnapshot()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO snapshots").WithArgs(sqlmock.AnyArg(), snap.TakenAt, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO snapshot_accounts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO snapshot_accounts").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := r.SaveSnapshot(context.Background(), snap); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
