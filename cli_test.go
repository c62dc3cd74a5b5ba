package main

import (
	"path/filepath"
	"testing"

	"parley/server/internal/store"
)

func TestRunCLIPassthrough(t *testing.T) {
	if RunCLI(nil, "unused.db") {
		t.Fatal("no args should fall through to the server")
	}
	if RunCLI([]string{"9000", "60"}, "unused.db") {
		t.Fatal("positional server args should fall through")
	}
}

func TestRunCLIVersion(t *testing.T) {
	if !RunCLI([]string{"version"}, "unused.db") {
		t.Fatal("version should be handled")
	}
}

func TestRunCLIStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := st.CreateUser("alice", "digest", "alice@example.com"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if !RunCLI([]string{"status"}, dbPath) {
		t.Fatal("status should be handled")
	}
}
