package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

// MemoryStore keeps sessions in a map. Execute holds the store lock across
// validate and mutate, which gives the same no-lost-updates guarantee the
// Postgres implementation gets from its conditional update.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[id.SessionID]*models.Session)}
}

func (s *MemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists: %w", session.ID, sentinel.ErrConflict)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found: %w", sessionID, sentinel.ErrNotFound)
	}
	return session.Clone(), nil
}

func (s *MemoryStore) Execute(_ context.Context, sessionID id.SessionID,
	validate func(*models.Session) error,
	mutate func(*models.Session)) (*models.Session, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found: %w", sessionID, sentinel.ErrNotFound)
	}

	work := current.Clone()
	if err := validate(work); err != nil {
		return nil, err
	}
	mutate(work)

	s.sessions[sessionID] = work
	return work.Clone(), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.Status, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Session
	for _, session := range s.sessions {
		if session.Status == status {
			result = append(result, session.Clone())
		}
	}
	sortByUpdatedAt(result)
	return capped(result, limit), nil
}

func (s *MemoryStore) ListExpirable(_ context.Context, now time.Time, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Session
	for _, session := range s.sessions {
		if session.Status.IsCapturePhase() && now.After(session.PairingExpiresAt) {
			result = append(result, session.Clone())
		}
	}
	sortByUpdatedAt(result)
	return capped(result, limit), nil
}

func (s *MemoryStore) ListPurgeable(_ context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Session
	for _, session := range s.sessions {
		if purgeable(session, cutoff) {
			result = append(result, session.Clone())
		}
	}
	sortByUpdatedAt(result)
	return capped(result, limit), nil
}

func purgeable(session *models.Session, cutoff time.Time) bool {
	if !session.Status.IsTerminal() || session.Status == models.StatusAccepted {
		return false
	}
	if !session.UpdatedAt.Before(cutoff) {
		return false
	}
	for _, a := range session.Artifacts {
		if a.StorageRef != "" && a.PurgedAt == nil {
			return true
		}
	}
	return false
}

func sortByUpdatedAt(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.Before(sessions[j].UpdatedAt)
	})
}

func capped(sessions []*models.Session, limit int) []*models.Session {
	if limit > 0 && len(sessions) > limit {
		return sessions[:limit]
	}
	return sessions
}
