package feed

import (
	"errors"
	"reflect"
	"testing"

	"ipfs-social/go-backend/internal/kvstore"
	"ipfs-social/go-backend/pkg/models"
)

type failingWrites struct {
	kvstore.Store
	fail bool
}

func (f *failingWrites) Write(key string, value []byte) error {
	if f.fail {
		return kvstore.ErrUnavailable
	}
	return f.Store.Write(key, value)
}

func TestRegistryRecordIsIdempotentAndOrdered(t *testing.T) {
	r, err := NewRegistry(kvstore.NewMemory())
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}
	for _, addr := range []models.Address{"b", "a", "b", "c", "a"} {
		if err := r.RecordAddress("A", addr); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	want := []models.Address{"b", "a", "c"}
	if got := r.AddressesFor("A"); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected addresses: %v want %v", got, want)
	}
	if got := r.AddressesFor("unknown"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice for unknown author, got %#v", got)
	}

	got := r.AddressesFor("A")
	got[0] = "mutated"
	if r.AddressesFor("A")[0] != "b" {
		t.Fatal("caller mutation leaked into registry")
	}

	if err := r.RecordAddress("", "x"); !errors.Is(err, ErrEmptyAuthor) {
		t.Fatalf("expected ErrEmptyAuthor, got %v", err)
	}
	if err := r.RecordAddress("A", " "); !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("expected ErrEmptyAddress, got %v", err)
	}
}

func TestRegistryPersistsAcrossRestart(t *testing.T) {
	kv := kvstore.NewMemory()
	r, err := NewRegistry(kv)
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}
	_ = r.RecordAddress("A", "a1")
	_ = r.RecordAddress("A", "a2")
	_ = r.RecordAddress("B", "b1")
	if err := r.Forget("B"); err != nil {
		t.Fatalf("forget failed: %v", err)
	}

	reloaded, err := NewRegistry(kv)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := reloaded.AddressesFor("A"); !reflect.DeepEqual(got, []models.Address{"a1", "a2"}) {
		t.Fatalf("unexpected addresses after reload: %v", got)
	}
	if got := reloaded.AddressesFor("B"); len(got) != 0 {
		t.Fatalf("forgotten author came back: %v", got)
	}
	if got := reloaded.Authors(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("unexpected authors: %v", got)
	}
}

func TestRegistryFailedWriteLeavesStateUnchanged(t *testing.T) {
	kv := &failingWrites{Store: kvstore.NewMemory()}
	r, err := NewRegistry(kv)
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}
	if err := r.RecordAddress("A", "a1"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	kv.fail = true
	if err := r.RecordAddress("A", "a2"); !errors.Is(err, kvstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := r.Forget("A"); !errors.Is(err, kvstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := r.AddressesFor("A"); !reflect.DeepEqual(got, []models.Address{"a1"}) {
		t.Fatalf("memory diverged from durable state: %v", got)
	}
	kv.fail = false
	reloaded, err := NewRegistry(kv)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := reloaded.AddressesFor("A"); !reflect.DeepEqual(got, []models.Address{"a1"}) {
		t.Fatalf("unexpected durable state: %v", got)
	}
}

func TestRegistryRejectsCorruptSnapshot(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":      "{",
		"wrong version": `{"version":7,"authors":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			kv := kvstore.NewMemory()
			_ = kv.Write(registryKey, []byte(raw))
			if _, err := NewRegistry(kv); !errors.Is(err, ErrRegistryCorrupt) {
				t.Fatalf("expected ErrRegistryCorrupt, got %v", err)
			}
		})
	}
}

func TestRegistryLoadDropsDuplicates(t *testing.T) {
	kv := kvstore.NewMemory()
	_ = kv.Write(registryKey, []byte(`{"version":1,"authors":{"A":["x","y","x",""]}}`))
	r, err := NewRegistry(kv)
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}
	if got := r.AddressesFor("A"); !reflect.DeepEqual(got, []models.Address{"x", "y"}) {
		t.Fatalf("unexpected addresses: %v", got)
	}
}
