package kvstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ipfs-social/go-backend/internal/testutil/fsperm"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := OpenDir(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatalf("open dir store: %v", err)
	}
	ldb, err := OpenLevelDB(filepath.Join(t.TempDir(), "ldb"))
	if err != nil {
		t.Fatalf("open leveldb store: %v", err)
	}
	memLDB, err := OpenMemLevelDB()
	if err != nil {
		t.Fatalf("open mem leveldb store: %v", err)
	}
	stores := map[string]Store{
		"memory":     NewMemory(),
		"dir":        dir,
		"leveldb":    ldb,
		"memleveldb": memLDB,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestBackendsReadWrite(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Read("identity/keypair"); !errors.Is(err, ErrAbsent) {
				t.Fatalf("expected ErrAbsent, got %v", err)
			}
			if err := s.Write("identity/keypair", []byte("v1")); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if err := s.Write("identity/keypair", []byte("v2")); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}
			got, err := s.Read("identity/keypair")
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if string(got) != "v2" {
				t.Fatalf("unexpected value: %q", got)
			}
			if err := s.Write("", []byte("x")); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("expected ErrInvalidKey for empty key, got %v", err)
			}
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	s := NewMemory()
	value := []byte("abc")
	if err := s.Write("k", value); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	value[0] = 'z'
	got, _ := s.Read("k")
	got[1] = 'z'
	again, _ := s.Read("k")
	if string(again) != "abc" {
		t.Fatalf("stored value was aliased: %q", again)
	}
}

func TestDirStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv")
	first, err := OpenDir(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := first.Write("feed/registry", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	second, err := OpenDir(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := second.Read("feed/registry")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != `{"version":1}` {
		t.Fatalf("unexpected value: %q", got)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the value file, got %d entries", len(entries))
	}
	fsperm.AssertPrivateDir(t, path)
	fsperm.AssertPrivateFiles(t, path)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ldb")
	first, err := OpenLevelDB(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := first.Write("k", []byte("v")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	second, err := OpenLevelDB(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()
	got, err := second.Read("k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected read: %q %v", got, err)
	}
}

func TestSealedRoundtripAndCiphertextAtRest(t *testing.T) {
	inner := NewMemory()
	s, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("new sealed failed: %v", err)
	}
	if err := s.Write("identity/keypair", []byte("secret")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	raw, err := inner.Read("identity/keypair")
	if err != nil {
		t.Fatalf("inner read failed: %v", err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Fatal("plaintext leaked to inner store")
	}
	got, err := s.Read("identity/keypair")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "secret" {
		t.Fatalf("unexpected plaintext: %q", got)
	}

	reopened, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got, err := reopened.Read("identity/keypair"); err != nil || string(got) != "secret" {
		t.Fatalf("reopened read: %q %v", got, err)
	}
}

func TestSealedRejectsWrongPassphraseTamperAndSwap(t *testing.T) {
	inner := NewMemory()
	s, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("new sealed failed: %v", err)
	}
	if err := s.Write("a", []byte("one")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	wrong, err := NewSealed(inner, "other")
	if err != nil {
		t.Fatalf("new sealed failed: %v", err)
	}
	if _, err := wrong.Read("a"); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("expected ErrSealBroken for wrong passphrase, got %v", err)
	}

	raw, _ := inner.Read("a")
	if err := inner.Write("b", raw); err != nil {
		t.Fatalf("inner write failed: %v", err)
	}
	if _, err := s.Read("b"); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("expected ErrSealBroken for swapped key, got %v", err)
	}

	raw[len(raw)-1] ^= 0xFF
	if err := inner.Write("a", raw); err != nil {
		t.Fatalf("inner write failed: %v", err)
	}
	if _, err := s.Read("a"); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("expected ErrSealBroken for tampered value, got %v", err)
	}

	if err := inner.Write("c", []byte("plain")); err != nil {
		t.Fatalf("inner write failed: %v", err)
	}
	if _, err := s.Read("c"); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("expected ErrSealBroken for plaintext value, got %v", err)
	}
}
