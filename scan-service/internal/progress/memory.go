package progress

import (
	"context"
	"sync"

	"github.com/sortit/sortit-services/scan-service/internal/reward"
)

// MemoryStore keeps encoded documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, userID string) (reward.UserProgress, bool, error) {
	if err := checkUserID(userID); err != nil {
		return reward.UserProgress{}, false, err
	}
	s.mu.RLock()
	data, ok := s.docs[userID]
	s.mu.RUnlock()
	if !ok {
		return reward.UserProgress{}, false, nil
	}
	p, err := reward.Decode(data)
	if err != nil {
		return reward.UserProgress{}, true, err
	}
	return p, true, nil
}

func (s *MemoryStore) Save(_ context.Context, userID string, p reward.UserProgress) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	data, err := reward.Encode(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[userID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
