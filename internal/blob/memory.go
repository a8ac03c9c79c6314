package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps artifact payloads in process memory. It backs local
// development and tests; engines fetch payloads through the service's own
// /internal/artifacts route since there is no object store to sign against.
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryStore creates an empty in-memory store. baseURL is the
// externally reachable address of this service, used to mint artifact URLs.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string]memoryObject),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, contentType string, payload io.Reader) error {
	data, err := io.ReadAll(payload)
	if err != nil {
		return fmt.Errorf("read payload for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("blob %q: %w", key, sentinel.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return fmt.Errorf("blob %q: %w", key, sentinel.ErrNotFound)
	}
	delete(s.objects, key)
	return nil
}

// SignedURL points engines at the service's internal artifact route. The
// route is guarded by the engine key, so unlike S3 the URL itself carries
// no expiring signature; ttl is accepted to satisfy the interface.
func (s *MemoryStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("blob %q: %w", key, sentinel.ErrNotFound)
	}
	return s.baseURL + "/internal/artifacts/" + EncodeRef(key), nil
}

// Len reports the number of stored objects. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// EncodeRef encodes a storage key into a single URL path segment.
func EncodeRef(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeRef reverses EncodeRef.
func DecodeRef(ref string) (string, error) {
	key, err := base64.RawURLEncoding.DecodeString(ref)
	if err != nil {
		return "", fmt.Errorf("decode artifact ref: %w", err)
	}
	return string(key), nil
}
