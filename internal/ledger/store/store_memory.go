package store

import (
	"context"
	"sync"

	"credtrust/internal/ledger/models"
)

// InMemoryStore keeps blocks in process memory. Used in tests and for
// ephemeral ledgers.
type InMemoryStore struct {
	mu     sync.RWMutex
	blocks []models.Block
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Load(_ context.Context) ([]models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Block(nil), s.blocks...), nil
}

func (s *InMemoryStore) Append(ctx context.Context, block models.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, block)
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
