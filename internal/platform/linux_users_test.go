package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUserTableLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd")
	if err := os.WriteFile(path, []byte(testPasswd), 0o644); err != nil {
		t.Fatal(err)
	}

	users := newUserTable(path, time.Minute, discardLogger())
	if err := users.refresh(); err != nil {
		t.Fatalf("refresh() failed: %v", err)
	}

	tests := []struct {
		uid  string
		want string
	}{
		{"0", "root"},
		{"1000", "alice"},
		{"4242", "4242"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := users.lookup(tt.uid); got != tt.want {
			t.Errorf("lookup(%q) = %q, want %q", tt.uid, got, tt.want)
		}
	}
}

func TestUserTablePicksUpNewAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd")
	if err := os.WriteFile(path, []byte(testPasswd), 0o644); err != nil {
		t.Fatal(err)
	}
	users := newUserTable(path, time.Minute, discardLogger())
	if err := users.refresh(); err != nil {
		t.Fatal(err)
	}

	// An account added after startup is found through the miss handler.
	if err := os.WriteFile(path, []byte(testPasswd+"bob:x:1001:1001::/home/bob:/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := users.lookup("1001"); got != "bob" {
		t.Errorf("lookup(1001) = %q, want bob", got)
	}
}

func TestUserTableMissingFile(t *testing.T) {
	users := newUserTable(filepath.Join(t.TempDir(), "missing"), time.Minute, discardLogger())
	if err := users.refresh(); err == nil {
		t.Error("refresh() should fail for a missing file")
	}
	if got := users.lookup("1000"); got != "1000" {
		t.Errorf("lookup(1000) = %q, want numeric fallback", got)
	}
}
