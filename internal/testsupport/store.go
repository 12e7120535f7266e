package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"syncqueue/internal/config"
	"syncqueue/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), cfg.DatabasePath())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// PutRecord writes body under id in collection, failing the test on error.
func PutRecord(t testing.TB, s *store.Store, collection, id string, body any) *store.Record {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal record body: %v", err)
	}
	record, err := s.Put(context.Background(), collection, id, data)
	if err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return record
}
