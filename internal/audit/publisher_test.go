package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

type capturingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *capturingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestPublisherEmitPersists(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher(store)

	sessionID := id.SessionID(uuid.New())
	err := pub.Emit(context.Background(), Event{
		SessionID: sessionID,
		Action:    string(EventSessionCreated),
	})
	require.NoError(t, err)

	events, err := pub.ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(EventSessionCreated), events[0].Action)
}

func TestPublisherFillsContextFields(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher(store)

	frozen := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), frozen)
	ctx = requestcontext.WithRequestID(ctx, "req-123")

	sessionID := id.SessionID(uuid.New())
	require.NoError(t, pub.Emit(ctx, Event{
		SessionID: sessionID,
		Action:    string(EventSessionDecided),
	}))

	events, err := store.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, frozen, events[0].Timestamp)
	assert.Equal(t, "req-123", events[0].RequestID)
	assert.Equal(t, CategoryCompliance, events[0].Category)
}

func TestPublisherCategoryDerivation(t *testing.T) {
	cases := map[AuditEvent]EventCategory{
		EventSessionDecided:   CategoryCompliance,
		EventArtifactPurged:   CategoryCompliance,
		EventPairingRejected:  CategorySecurity,
		EventSessionExpired:   CategorySecurity,
		EventArtifactCaptured: CategoryOperations,
		AuditEvent("unknown"): CategoryOperations,
	}
	for event, want := range cases {
		assert.Equal(t, want, event.Category(), "category for %s", event)
	}
}

func TestPublisherMirrorsToSink(t *testing.T) {
	store := NewMemoryStore()
	sink := &capturingSink{}
	pub := NewPublisher(store, WithSink(sink))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(ctx)
	}()

	require.NoError(t, pub.Emit(context.Background(), Event{
		SessionID: id.SessionID(uuid.New()),
		Action:    string(EventSessionAccepted),
	}))

	require.Eventually(t, func() bool { return sink.len() == 1 },
		time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPublisherRunWithoutSinkReturns(t *testing.T) {
	pub := NewPublisher(NewMemoryStore())
	require.NoError(t, pub.Run(context.Background()))
}

func TestPublisherDrainsBufferOnShutdown(t *testing.T) {
	store := NewMemoryStore()
	sink := &capturingSink{}
	pub := NewPublisher(store, WithSink(sink))

	// Buffered before Run ever starts; shutdown must still deliver them.
	for i := 0; i < 3; i++ {
		require.NoError(t, pub.Emit(context.Background(), Event{
			SessionID: id.SessionID(uuid.New()),
			Action:    string(EventSessionDecided),
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pub.Run(ctx), context.Canceled)
	assert.Equal(t, 3, sink.len())
}

func TestMemoryStoreListRecentNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(context.Background(), Event{
			Action:    string(EventSessionCreated),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := store.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(4*time.Minute), recent[0].Timestamp)
	assert.Equal(t, base.Add(3*time.Minute), recent[1].Timestamp)
}
