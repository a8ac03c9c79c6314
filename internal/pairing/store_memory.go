package pairing

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

type memoryEntry struct {
	digest    string
	expiresAt time.Time
}

// MemoryStore keeps pairing digests in memory for development and tests.
// Expiry is enforced lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[id.SessionID]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[id.SessionID]memoryEntry)}
}

func (s *MemoryStore) Save(_ context.Context, sessionID id.SessionID, digest string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{digest: digest, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID id.SessionID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return "", fmt.Errorf("pairing digest for session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, sessionID)
		return "", fmt.Errorf("pairing digest for session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	return entry.digest, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
