// Package decision turns a PROCESSING session into a terminal outcome.
// Evidence comes from three external scorers (document OCR, face match,
// liveness); the rules that weigh it are pure and live in rules.go. A
// scorer outage produces no outcome at all: the session stays PROCESSING
// and the worker's next tick retries, so the state machine never needs a
// retry edge.
package decision

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/engine"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// tracerName identifies this package's spans.
const tracerName = "creditxpress-kyc/decision"

// Scorer calls the external verification engines.
type Scorer interface {
	ExtractDocument(ctx context.Context, frontURL, backURL string) (*engine.Extraction, error)
	MatchFace(ctx context.Context, icFrontURL, selfieURL string) (float64, error)
	CheckLiveness(ctx context.Context, selfieURL string) (float64, error)
}

// BlobSigner mints fetch URLs for artifact payloads.
type BlobSigner interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// DecisionApplier records the terminal outcome on the session.
type DecisionApplier interface {
	ApplyDecision(ctx context.Context, sessionID id.SessionID, decision models.Decision) (*models.Session, error)
}

// Service evaluates sessions that completed capture.
type Service struct {
	sessions     DecisionApplier
	blobs        BlobSigner
	engine       Scorer
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	signedURLTTL time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSignedURLTTL bounds how long scorers can fetch artifact bytes
// through a minted URL.
func WithSignedURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.signedURLTTL = ttl
		}
	}
}

// New constructs a Service.
func New(sessions DecisionApplier, blobs BlobSigner, scorer Scorer, opts ...Option) *Service {
	s := &Service{
		sessions:     sessions,
		blobs:        blobs,
		engine:       scorer,
		tracer:       otel.Tracer(tracerName),
		signedURLTTL: defaultSignedURLTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate gathers scorer evidence for one session and applies the
// resulting outcome. The session must be PROCESSING; callers list by that
// status. On error nothing was applied and the call is safe to repeat.
func (s *Service) Evaluate(ctx context.Context, session *models.Session) (*models.Session, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "decision.evaluate",
		trace.WithAttributes(attribute.String("session_id", session.ID.String())))
	defer span.End()

	evidence, err := s.gatherEvidence(ctx, session)
	if err != nil {
		s.metrics.IncrementFailure("evidence")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "evidence gathering failed, session stays processing",
				"session_id", session.ID,
				"error", err,
			)
		}
		return nil, err
	}

	verdict := EvaluateRules(evidence)
	decision := models.Decision{
		Outcome:       verdict.Outcome,
		FaceScore:     &evidence.FaceScore,
		LivenessScore: &evidence.LivenessScore,
		Reasons:       verdict.Reasons,
		Extracted:     verdict.Extracted,
	}

	updated, err := s.sessions.ApplyDecision(ctx, session.ID, decision)
	if err != nil {
		s.metrics.IncrementFailure("apply")
		return nil, err
	}

	s.metrics.IncrementOutcome(string(verdict.Outcome), "worker")
	s.metrics.ObserveEvaluateLatency(time.Since(start))
	span.SetAttributes(attribute.String("outcome", string(verdict.Outcome)))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "session decided",
			"session_id", session.ID,
			"outcome", verdict.Outcome,
			"reasons", verdict.Reasons,
			"request_id", requestcontext.RequestID(ctx),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return updated, nil
}

// Deliver records an outcome computed by an out-of-process engine via the
// callback endpoint. Redelivering the same outcome is a no-op; the session
// service refuses a conflicting one.
func (s *Service) Deliver(ctx context.Context, sessionID id.SessionID, decision models.Decision) (*models.Session, error) {
	updated, err := s.sessions.ApplyDecision(ctx, sessionID, decision)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementOutcome(string(decision.Outcome), "callback")
	if s.logger != nil {
		s.logger.InfoContext(ctx, "session decision delivered",
			"session_id", sessionID,
			"outcome", decision.Outcome,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return updated, nil
}
