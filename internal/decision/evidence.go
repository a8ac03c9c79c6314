package decision

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/engine"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
)

// evidenceTimeout caps the whole gathering phase. The scorers run in
// parallel, so this rides just above the slowest single call.
const evidenceTimeout = 45 * time.Second

// defaultSignedURLTTL bounds how long a scorer can fetch artifact bytes.
// Scorers fetch immediately on receipt; anything longer is a leaked
// capability.
const defaultSignedURLTTL = 5 * time.Minute

// Evidence is everything the rules need, as returned by the scorers.
type Evidence struct {
	Extraction    *engine.Extraction
	FaceScore     float64
	LivenessScore float64
}

type artifactURLs struct {
	front  string
	back   string
	selfie string
}

// gatherEvidence signs the active artifacts and fans out to the three
// scorers with shared cancellation. Any scorer failure fails the gather;
// the caller leaves the session PROCESSING and the next tick retries.
func (s *Service) gatherEvidence(ctx context.Context, session *models.Session) (*Evidence, error) {
	ctx, span := s.tracer.Start(ctx, "decision.gather_evidence")
	defer span.End()

	urls, err := s.signArtifacts(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "artifact signing failed")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, evidenceTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	evidence := &Evidence{}

	// Each goroutine writes a distinct field; Wait orders them before the
	// reads below.
	g.Go(func() error {
		start := time.Now()
		extraction, err := s.engine.ExtractDocument(ctx, urls.front, urls.back)
		s.metrics.ObserveEvidenceLatency("ocr", time.Since(start))
		if err != nil {
			return err
		}
		evidence.Extraction = extraction
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		score, err := s.engine.MatchFace(ctx, urls.front, urls.selfie)
		s.metrics.ObserveEvidenceLatency("face_match", time.Since(start))
		if err != nil {
			return err
		}
		evidence.FaceScore = score
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		score, err := s.engine.CheckLiveness(ctx, urls.selfie)
		s.metrics.ObserveEvidenceLatency("liveness", time.Since(start))
		if err != nil {
			return err
		}
		evidence.LivenessScore = score
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scorer call failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("face_score", evidence.FaceScore),
		attribute.Float64("liveness_score", evidence.LivenessScore),
	)
	return evidence, nil
}

// signArtifacts mints short-lived fetch URLs for the active artifact of
// each required kind. A PROCESSING session always has the full set; a gap
// here is corrupted state.
func (s *Service) signArtifacts(ctx context.Context, session *models.Session) (artifactURLs, error) {
	var urls artifactURLs
	for _, kind := range id.RequiredArtifactKinds() {
		artifact := session.ActiveArtifact(kind)
		if artifact == nil {
			return urls, dErrors.New(dErrors.CodeInvariantViolation,
				"processing session is missing a required artifact")
		}
		signed, err := s.blobs.SignedURL(ctx, artifact.StorageRef, s.signedURLTTL)
		if err != nil {
			return urls, dErrors.Wrap(err, dErrors.CodeDependency, "failed to sign artifact url")
		}
		switch kind {
		case id.ArtifactKindFront:
			urls.front = signed
		case id.ArtifactKindBack:
			urls.back = signed
		case id.ArtifactKindSelfie:
			urls.selfie = signed
		}
	}
	return urls, nil
}
