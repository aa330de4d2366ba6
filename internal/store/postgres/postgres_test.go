package postgres

import (
	"os"
	"testing"

	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/store/storetest"
)

func makePGStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("CORTEX_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CORTEX_POSTGRES_DSN not set; skipping postgres store compliance test")
	}
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	// The suite assumes an empty store; reset between invocations.
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, table := range []string{"waypoints", "vectors", "embed_logs", "memories"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	return s
}

func TestPostgresStoreCompliance(t *testing.T) {
	storetest.Run(t, makePGStore)
}
