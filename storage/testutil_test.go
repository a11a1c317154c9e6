package storage

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open()
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustRecord(t *testing.T, store *Store, name string, data []byte) int {
	t.Helper()

	id, err := store.Record(name, data)
	if err != nil {
		t.Fatalf("record %q: %v", name, err)
	}
	return id
}
