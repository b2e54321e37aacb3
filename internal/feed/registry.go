package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ipfs-social/go-backend/internal/kvstore"
	"ipfs-social/go-backend/pkg/models"
)

const (
	registryKey     = "feed/registry"
	registryVersion = 1
)

var (
	ErrRegistryCorrupt = errors.New("feed registry is corrupt")
	ErrEmptyAuthor     = errors.New("author is required")
	ErrEmptyAddress    = errors.New("address is required")
)

type registrySnapshot struct {
	Version int                         `json:"version"`
	Authors map[string][]models.Address `json:"authors"`
}

// Registry is the durable, append-only record of which addresses belong to which author.
// Every mutation persists the full structure before it becomes visible.
type Registry struct {
	mu      sync.RWMutex
	kv      kvstore.Store
	authors map[string][]models.Address
}

func NewRegistry(kv kvstore.Store) (*Registry, error) {
	r := &Registry{kv: kv, authors: make(map[string][]models.Address)}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordAddress appends addr to the author's list. Recording a known address is a no-op.
func (r *Registry) RecordAddress(author string, addr models.Address) error {
	author = strings.TrimSpace(author)
	addr = models.Address(strings.TrimSpace(string(addr)))
	if author == "" {
		return ErrEmptyAuthor
	}
	if addr == "" {
		return ErrEmptyAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.authors[author]
	for _, known := range current {
		if known == addr {
			return nil
		}
	}
	next := cloneAuthors(r.authors)
	next[author] = append(append(make([]models.Address, 0, len(current)+1), current...), addr)
	if err := r.persistLocked(next); err != nil {
		return err
	}
	r.authors = next
	return nil
}

// AddressesFor returns the author's addresses in insertion order.
func (r *Registry) AddressesFor(author string) []models.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Address{}, r.authors[strings.TrimSpace(author)]...)
}

// Forget drops the whole entry of an author.
func (r *Registry) Forget(author string) error {
	author = strings.TrimSpace(author)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.authors[author]; !ok {
		return nil
	}
	next := cloneAuthors(r.authors)
	delete(next, author)
	if err := r.persistLocked(next); err != nil {
		return err
	}
	r.authors = next
	return nil
}

func (r *Registry) Authors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.authors))
	for author := range r.authors {
		out = append(out, author)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) load() error {
	raw, err := r.kv.Read(registryKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrAbsent) {
			return nil
		}
		return fmt.Errorf("read feed registry: %w", err)
	}
	var snapshot registrySnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryCorrupt, err)
	}
	if snapshot.Version != registryVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrRegistryCorrupt, snapshot.Version)
	}
	for author, addrs := range snapshot.Authors {
		seen := make(map[models.Address]struct{}, len(addrs))
		deduped := make([]models.Address, 0, len(addrs))
		for _, addr := range addrs {
			if _, dup := seen[addr]; dup || addr == "" {
				continue
			}
			seen[addr] = struct{}{}
			deduped = append(deduped, addr)
		}
		r.authors[author] = deduped
	}
	return nil
}

func (r *Registry) persistLocked(authors map[string][]models.Address) error {
	data, err := json.Marshal(registrySnapshot{Version: registryVersion, Authors: authors})
	if err != nil {
		return err
	}
	if err := r.kv.Write(registryKey, data); err != nil {
		return fmt.Errorf("persist feed registry: %w", err)
	}
	return nil
}

// Slices are shared between snapshots; they are never appended to in place.
func cloneAuthors(in map[string][]models.Address) map[string][]models.Address {
	out := make(map[string][]models.Address, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
