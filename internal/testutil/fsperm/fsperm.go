// Package fsperm holds test assertions for the permissions of persisted local state.
package fsperm

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// AssertPrivateDir fails t unless dir is a directory only its owner can enter.
func AssertPrivateDir(t testing.TB, dir string) {
	t.Helper()
	assertPerm(t, dir, true, 0o700)
}

// AssertPrivateFiles checks every regular file directly under dir is 0600.
func AssertPrivateFiles(t testing.TB, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected persisted files in %s", dir)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			assertPerm(t, filepath.Join(dir, e.Name()), false, 0o600)
		}
	}
}

func assertPerm(t testing.TB, path string, wantDir bool, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.IsDir() != wantDir {
		t.Fatalf("unexpected file type for %s: dir=%v", path, info.IsDir())
	}
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("expected perm %04o, got %04o for %s", want, perm, path)
	}
}
