package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

// MemoryStore is the in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu          sync.RWMutex
	refs        map[id.SessionID]string
	attachments map[id.SessionID]Attachment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refs:        make(map[id.SessionID]string),
		attachments: make(map[id.SessionID]Attachment),
	}
}

func (s *MemoryStore) Attach(_ context.Context, attachment Attachment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.refs[attachment.SessionID]; ok {
		return ref, nil
	}
	ref := uuid.New().String()
	s.refs[attachment.SessionID] = ref
	s.attachments[attachment.SessionID] = attachment
	return ref, nil
}

func (s *MemoryStore) GetBySession(_ context.Context, sessionID id.SessionID) (string, *Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refs[sessionID]
	if !ok {
		return "", nil, fmt.Errorf("profile attachment for session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	attachment := s.attachments[sessionID]
	return ref, &attachment, nil
}
