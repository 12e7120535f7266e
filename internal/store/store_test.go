package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"syncqueue/internal/store"
	"syncqueue/internal/testsupport"
)

func TestReadAllReturnsInsertionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)

	testsupport.PutRecord(t, s, "offline_requests", "b", map[string]string{"path": "/b"})
	testsupport.PutRecord(t, s, "offline_requests", "a", map[string]string{"path": "/a"})
	testsupport.PutRecord(t, s, "other", "c", map[string]string{"path": "/c"})
	testsupport.PutRecord(t, s, "offline_requests", "d", map[string]string{"path": "/d"})

	records, err := s.ReadAll(context.Background(), "offline_requests")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	var ids []string
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	if got, want := len(ids), 3; got != want {
		t.Fatalf("expected %d records, got %d (%v)", want, got, ids)
	}
	if ids[0] != "b" || ids[1] != "a" || ids[2] != "d" {
		t.Fatalf("unexpected order %v", ids)
	}
	if records[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be parsed")
	}
}

func TestPutUpsertKeepsPosition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.PutRecord(t, s, "c", "first", map[string]int{"v": 1})
	testsupport.PutRecord(t, s, "c", "second", map[string]int{"v": 1})
	updated := testsupport.PutRecord(t, s, "c", "first", map[string]int{"v": 2})

	var body map[string]int
	if err := json.Unmarshal(updated.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["v"] != 2 {
		t.Fatalf("expected updated body, got %s", updated.Body)
	}

	records, err := s.ReadAll(ctx, "c")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "first" {
		t.Fatalf("expected first to keep its position, got %+v", records)
	}
}

func TestPutRejectsInvalidInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := s.Put(ctx, "c", "", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := s.Put(ctx, "c", "x", json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected error for invalid body")
	}
}

func TestDeleteClearAndCount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		testsupport.PutRecord(t, s, "q", id, map[string]string{"id": id})
	}

	removed, err := s.Delete(ctx, "q", "b")
	if err != nil || !removed {
		t.Fatalf("Delete b = %v, %v", removed, err)
	}
	removed, err = s.Delete(ctx, "q", "missing")
	if err != nil || removed {
		t.Fatalf("Delete missing = %v, %v", removed, err)
	}
	if got, _ := s.Get(ctx, "q", "b"); got != nil {
		t.Fatalf("expected b to be gone, got %+v", got)
	}

	count, err := s.Count(ctx, "q")
	if err != nil || count != 2 {
		t.Fatalf("Count = %d, %v", count, err)
	}
	cleared, err := s.Clear(ctx, "q")
	if err != nil || cleared != 2 {
		t.Fatalf("Clear = %d, %v", cleared, err)
	}
	count, _ = s.Count(ctx, "q")
	if count != 0 {
		t.Fatalf("expected empty collection, got %d", count)
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	s, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.PutRecord(t, s, "offline_requests", "keep", map[string]string{"method": "POST"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	records, err := reopened.ReadAll(ctx, "offline_requests")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "keep" {
		t.Fatalf("expected persisted record, got %+v", records)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncqueue.db")
	ctx := context.Background()

	s, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := store.Open(ctx, path); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
