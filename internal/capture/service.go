package capture

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/blob"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/capture/metrics"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/device"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// DefaultMaxUploadBytes caps artifact payloads when no override is configured.
const DefaultMaxUploadBytes int64 = 8 << 20

// tracerName identifies this package's spans.
const tracerName = "creditxpress-kyc/capture"

// allowedContentTypes are the capture formats phone cameras actually emit.
var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// Authorizer is the capability check for capture operations; both the
// owner credential and the pairing token satisfy it.
type Authorizer interface {
	Authorize(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*authz.Principal, error)
}

// SessionRecorder owns the session-side effects of capture: appending the
// artifact record and advancing a complete session for processing.
type SessionRecorder interface {
	RecordArtifact(ctx context.Context, sessionID id.SessionID, artifact models.Artifact) (*models.Session, error)
	Submit(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// SessionReader supplies the creating device's fingerprint for handoff
// detection.
type SessionReader interface {
	Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// Service is the artifact intake. It validates payloads, persists bytes to
// the blob store, and records the opaque reference on the session; image
// bytes never enter session state.
type Service struct {
	authorizer Authorizer
	recorder   SessionRecorder
	sessions   SessionReader
	blobs      blob.Store
	devices    *device.Service
	maxBytes   int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
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

func WithMaxUploadBytes(maxBytes int64) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxBytes = maxBytes
		}
	}
}

// New constructs a Service.
func New(authorizer Authorizer, recorder SessionRecorder, sessions SessionReader,
	blobs blob.Store, devices *device.Service, opts ...Option) *Service {

	s := &Service{
		authorizer: authorizer,
		recorder:   recorder,
		sessions:   sessions,
		blobs:      blobs,
		devices:    devices,
		maxBytes:   DefaultMaxUploadBytes,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitParams carries one upload.
type SubmitParams struct {
	SessionID   id.SessionID
	Credentials authz.Credentials
	Kind        id.ArtifactKind
	ContentType string
	Payload     io.Reader
}

// Submit validates, stores and records a captured artifact. Resubmitting a
// kind replaces the current artifact, so the whole operation is safe to
// retry after any failure.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.Session, *models.Artifact, error) {
	ctx, span := s.tracer.Start(ctx, "capture.submit",
		trace.WithAttributes(
			attribute.String("session_id", params.SessionID.String()),
			attribute.String("kind", string(params.Kind))))
	defer span.End()

	principal, err := s.authorizer.Authorize(ctx, params.SessionID, params.Credentials)
	if err != nil {
		s.metrics.IncrementRejected("unauthorized")
		return nil, nil, err
	}

	contentType, err := normalizeContentType(params.ContentType)
	if err != nil {
		s.metrics.IncrementRejected("content_type")
		return nil, nil, err
	}

	payload, err := io.ReadAll(io.LimitReader(params.Payload, s.maxBytes+1))
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeValidation, "failed to read artifact payload")
	}
	if int64(len(payload)) > s.maxBytes {
		s.metrics.IncrementRejected("size")
		return nil, nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("artifact exceeds maximum size of %d bytes", s.maxBytes))
	}
	if len(payload) == 0 {
		s.metrics.IncrementRejected("size")
		return nil, nil, dErrors.New(dErrors.CodeValidation, "artifact payload is empty")
	}

	session, err := s.sessions.Get(ctx, params.SessionID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	userAgent := requestcontext.UserAgent(ctx)
	fingerprint := s.devices.ComputeFingerprint(userAgent)
	_, drift := s.devices.CompareFingerprints(session.CreatedDeviceFingerprint, fingerprint)
	viaHandoff := !principal.IsOwner() || drift

	sum := sha256.Sum256(payload)
	artifact := models.Artifact{
		ID:            id.ArtifactID(uuid.New()),
		Kind:          params.Kind,
		ContentType:   contentType,
		SizeBytes:     int64(len(payload)),
		ContentSHA256: hex.EncodeToString(sum[:]),
		DeviceLabel:   device.ParseUserAgent(userAgent),
		ViaHandoff:    viaHandoff,
		CapturedAt:    requestcontext.Now(ctx),
	}
	artifact.StorageRef = blob.ArtifactKey(params.SessionID, params.Kind, artifact.ID)

	if err := s.blobs.Put(ctx, artifact.StorageRef, contentType, bytes.NewReader(payload)); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeDependency, "failed to store artifact")
	}

	updated, err := s.recorder.RecordArtifact(ctx, params.SessionID, artifact)
	if err != nil {
		// The session refused the artifact; drop the orphaned bytes.
		if delErr := s.blobs.Delete(ctx, artifact.StorageRef); delErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to delete orphaned artifact blob",
				"storage_ref", artifact.StorageRef, "error", delErr)
		}
		s.metrics.IncrementRejected("state")
		return nil, nil, err
	}

	channel := "owner"
	if viaHandoff {
		channel = "handoff"
	}
	s.metrics.IncrementCaptured(string(params.Kind), channel)
	s.metrics.ObserveArtifactSize(string(params.Kind), artifact.SizeBytes)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "artifact captured",
			"session_id", params.SessionID,
			"kind", params.Kind,
			"size_bytes", artifact.SizeBytes,
			"via_handoff", viaHandoff,
			"request_id", requestcontext.RequestID(ctx))
	}
	return updated, &artifact, nil
}

// Finalize moves a complete session into PROCESSING. It lives on the
// capture service because the capture device is what knows when the set
// is done; either credential may call it.
func (s *Service) Finalize(ctx context.Context, sessionID id.SessionID, creds authz.Credentials) (*models.Session, error) {
	if _, err := s.authorizer.Authorize(ctx, sessionID, creds); err != nil {
		return nil, err
	}
	return s.recorder.Submit(ctx, sessionID)
}

func normalizeContentType(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", dErrors.New(dErrors.CodeValidation, "content type is required")
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "malformed content type")
	}
	if _, ok := allowedContentTypes[mediaType]; !ok {
		return "", dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("unsupported content type %q, expected image/jpeg, image/png or image/webp", mediaType))
	}
	return mediaType, nil
}
