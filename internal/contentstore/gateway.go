// Package contentstore is the boundary to the external content-addressed store.
package contentstore

import (
	"context"
	"errors"

	"ipfs-social/go-backend/pkg/models"
)

var (
	ErrNotFound         = errors.New("content address not found")
	ErrStoreUnavailable = errors.New("content store unavailable")
)

// Gateway stores and fetches bytes by content address. Put of identical bytes is
// idempotent and yields the same address.
type Gateway interface {
	Put(ctx context.Context, data []byte) (models.Address, error)
	Get(ctx context.Context, addr models.Address) ([]byte, error)
}
