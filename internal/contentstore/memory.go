package contentstore

import (
	"context"
	"sync"

	"ipfs-social/go-backend/pkg/models"
)

// MemoryGateway is an in-process content-addressed store.
type MemoryGateway struct {
	mu     sync.RWMutex
	blocks map[models.Address][]byte
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{blocks: make(map[models.Address][]byte)}
}

func (g *MemoryGateway) Put(ctx context.Context, data []byte) (models.Address, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr, err := RawAddress(data)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.blocks[addr]; !ok {
		g.blocks[addr] = append([]byte(nil), data...)
	}
	return addr, nil
}

func (g *MemoryGateway) Get(ctx context.Context, addr models.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	data, ok := g.blocks[models.Address(c.String())]
	g.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len reports how many distinct blocks are stored.
func (g *MemoryGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.blocks)
}
