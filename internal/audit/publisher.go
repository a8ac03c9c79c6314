package audit

import (
	"context"
	"log/slog"
	"time"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Sink mirrors audit events to an external system, typically the platform
// Kafka bus. Mirroring is best-effort; the store remains the durable record.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// sinkBuffer bounds the mirror backlog. When the sink cannot keep up the
// mirror drops events rather than stalling request handling; the store has
// already persisted them.
const sinkBuffer = 256

// drainTimeout bounds the shutdown flush of buffered mirror events.
const drainTimeout = 5 * time.Second

// Publisher captures structured audit events. Writes to the store are
// synchronous so the trail cannot silently lag the action it records.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger
	inbox  chan Event
}

type PublisherOption func(*Publisher)

func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) {
		p.sink = sink
	}
}

func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink != nil {
		p.inbox = make(chan Event, sinkBuffer)
	}
	return p
}

// Emit records an event. Zero fields that the request context can supply
// (timestamp, request id) are filled in; the category derives from the
// action unless the caller set one.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	if err := p.store.Append(ctx, event); err != nil {
		return err
	}

	if p.inbox != nil {
		select {
		case p.inbox <- event:
		default:
			if p.logger != nil {
				p.logger.Warn("audit sink buffer full, dropping mirror",
					"action", event.Action, "session_id", event.SessionID)
			}
		}
	}
	return nil
}

// Run drains the sink mirror until the context is cancelled, then flushes
// whatever is still buffered. Start it in a goroutine when a sink is
// configured; without one it returns immediately.
func (p *Publisher) Run(ctx context.Context) error {
	if p.inbox == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case event := <-p.inbox:
			if err := p.sink.Publish(ctx, event); err != nil && p.logger != nil {
				p.logger.Warn("audit sink publish failed",
					"action", event.Action, "error", err)
			}
		}
	}
}

// drain flushes events buffered before shutdown began. It runs on a fresh
// context; the run context is already dead. The first publish failure
// abandons the rest, a sink that errors at shutdown is not coming back.
func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-p.inbox:
			if err := p.sink.Publish(ctx, event); err != nil {
				if p.logger != nil {
					p.logger.Warn("audit sink drain abandoned",
						"action", event.Action, "error", err)
				}
				return
			}
		default:
			return
		}
	}
}

func (p *Publisher) ListBySession(ctx context.Context, sessionID id.SessionID) ([]Event, error) {
	return p.store.ListBySession(ctx, sessionID)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return p.store.ListRecent(ctx, limit)
}
