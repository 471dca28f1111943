package archive

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"choirreport/internal/adapters/storage"
	domain "choirreport/internal/domain/email"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteStore(db)
}

func delivery(id, runID, kind string, created time.Time) domain.Delivery {
	e := domain.Email{
		Subject: "Attendance Report for 11/13/2025",
		HTML:    "<p>report</p>",
		To:      []string{"attendance@example.org", "maintainer@example.org"},
	}
	return domain.NewDelivery(id, runID, kind, e, 3, created)
}

func TestSQLiteStore_RecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, time.November, 13, 22, 0, 0, 0, time.UTC)

	d := delivery("d1", "run-1", "attendance", now)
	if err := s.Record(ctx, d); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := d.MarkAttempt(now); err != nil {
		t.Fatalf("MarkAttempt: %v", err)
	}
	d.MarkSent("msg-42", now.Add(time.Second))
	if err := s.Record(ctx, d); err != nil {
		t.Fatalf("Record update: %v", err)
	}

	got, err := s.GetByID(ctx, "d1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusSent || got.MessageID != "msg-42" || got.Attempts != 1 {
		t.Errorf("got status=%s message=%s attempts=%d, want sent msg-42 1", got.Status, got.MessageID, got.Attempts)
	}
	if len(got.To) != 2 || got.To[1] != "maintainer@example.org" {
		t.Errorf("To = %v", got.To)
	}
	if got.Cc != nil {
		t.Errorf("Cc = %v, want nil", got.Cc)
	}
	if got.HTML != "<p>report</p>" {
		t.Errorf("HTML = %q", got.HTML)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now.Add(time.Second)) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestSQLiteStore_GetByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_RecordRequiresID(t *testing.T) {
	s := newTestStore(t)
	if err := s.Record(context.Background(), domain.Delivery{}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestSQLiteStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.November, 13, 22, 0, 0, 0, time.UTC)

	for i, d := range []domain.Delivery{
		delivery("a", "run-1", "attendance", base),
		delivery("b", "run-2", "projected", base.Add(time.Hour)),
		delivery("c", "run-3", "nags", base.Add(2*time.Hour)),
		delivery("d", "run-3", "nags", base.Add(2*time.Hour+time.Second)),
	} {
		if err := s.Record(ctx, d); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	all, err := s.List(ctx, "", 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "d" || all[2].ID != "b" {
		t.Errorf("List ids = %v, want d c b", ids(all))
	}

	nags, err := s.List(ctx, "nags", 10)
	if err != nil {
		t.Fatalf("List nags: %v", err)
	}
	if len(nags) != 2 {
		t.Errorf("nags = %v, want 2", ids(nags))
	}

	run, err := s.ListByRun(ctx, "run-3")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(run) != 2 || run[0].ID != "c" {
		t.Errorf("run-3 = %v, want c d", ids(run))
	}
}

func TestSQLiteStore_ThroughTimedDB(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, ":memory:"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewSQLiteStore(storage.NewTimedDB(db, nil, 0))

	d := delivery("t1", "run-1", "consistency", time.Now())
	d.MarkSkipped("not worth sending", time.Now())
	if err := s.Record(context.Background(), d); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := s.GetByID(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusSkipped || got.Error != "not worth sending" {
		t.Errorf("got %s %q", got.Status, got.Error)
	}
}

func ids(ds []domain.Delivery) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}
