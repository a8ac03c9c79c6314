package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/blob"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/engine"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/pairing"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	sessionservice "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/service"
	sessionstore "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/store"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// Justification: the callback is the trust boundary with the out-of-process
// engine. What matters over the wire is idempotent redelivery, conflict
// refusal, and that a raw NRIC in the payload never reaches storage.
type DecisionHandlerSuite struct {
	suite.Suite
	router   http.Handler
	store    *sessionstore.MemoryStore
	sessions *sessionservice.Service
	owner    id.UserID
	now      time.Time
}

func TestDecisionHandlerSuite(t *testing.T) {
	suite.Run(t, new(DecisionHandlerSuite))
}

func (s *DecisionHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = sessionstore.NewMemoryStore()
	pairingSvc := pairing.New(pairing.NewMemoryStore(), s.store, pairing.WithLogger(logger))

	s.owner = id.UserID(uuid.New())
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.sessions = sessionservice.New(s.store, pairingSvc,
		sessionservice.WithLogger(logger),
		sessionservice.WithPairingTTL(10*time.Minute),
	)

	// Deliver never touches the scorers or the blob store.
	svc := decision.New(s.sessions, blob.NewMemoryStore("http://kyc.internal"), engine.New(engine.Config{}),
		decision.WithLogger(logger))

	r := chi.NewRouter()
	New(svc, logger).Register(r)
	s.router = r
}

func (s *DecisionHandlerSuite) deliver(sessionID string, payload map[string]any) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/kyc/sessions/"+sessionID+"/decision", bytes.NewReader(body))
	req = req.WithContext(requestcontext.WithTime(context.Background(), s.now.Add(2*time.Minute)))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *DecisionHandlerSuite) processingSession() id.SessionID {
	ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
	created, err := s.sessions.Create(ctx, sessionservice.CreateParams{OwnerUserID: s.owner})
	s.Require().NoError(err)

	for _, kind := range id.RequiredArtifactKinds() {
		_, err := s.sessions.RecordArtifact(ctx, created.Session.ID, models.Artifact{
			ID:          id.NewArtifactID(),
			Kind:        kind,
			StorageRef:  "sessions/ref/" + string(kind),
			ContentType: "image/jpeg",
			SizeBytes:   1024,
			CapturedAt:  s.now,
		})
		s.Require().NoError(err)
	}
	_, err = s.sessions.Submit(ctx, created.Session.ID)
	s.Require().NoError(err)
	return created.Session.ID
}

func approvedPayload() map[string]any {
	return map[string]any{
		"outcome":        "APPROVED",
		"face_score":     0.91,
		"liveness_score": 0.95,
		"reasons":        []string{"all_checks_passed"},
		"extracted": map[string]any{
			"name":      "TAN MEI LING",
			"ic_number": "900101-14-1234",
			"dob":       "1990-01-01",
			"address":   "12, JALAN AMPANG, KUALA LUMPUR",
		},
	}
}

func (s *DecisionHandlerSuite) TestHandleDeliver() {
	s.Run("approved outcome lands with a masked identity read", func() {
		sessionID := s.processingSession()

		rec := s.deliver(sessionID.String(), approvedPayload())
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var resp DecisionResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("APPROVED", resp.Status)
		s.Equal("APPROVED", resp.Outcome)
		s.NotNil(resp.DecidedAt)

		stored, err := s.store.Get(context.Background(), sessionID)
		s.Require().NoError(err)
		s.Require().NotNil(stored.Decision)
		s.Require().NotNil(stored.Decision.Extracted)
		s.Equal("******-**-1234", stored.Decision.Extracted.NRICMasked)
		s.NotEmpty(stored.Decision.Extracted.NRICHash)
	})

	s.Run("engine hard failure lands as FAILED", func() {
		sessionID := s.processingSession()

		rec := s.deliver(sessionID.String(), map[string]any{
			"outcome": "FAILED",
			"reasons": []string{"pipeline_error"},
		})
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		stored, err := s.store.Get(context.Background(), sessionID)
		s.Require().NoError(err)
		s.Equal(models.StatusFailed, stored.Status)
	})

	s.Run("redelivery of the same outcome is acknowledged unchanged", func() {
		sessionID := s.processingSession()

		first := s.deliver(sessionID.String(), approvedPayload())
		s.Require().Equal(http.StatusOK, first.Code)
		var firstResp DecisionResponse
		s.Require().NoError(json.NewDecoder(first.Body).Decode(&firstResp))

		second := s.deliver(sessionID.String(), approvedPayload())
		s.Require().Equal(http.StatusOK, second.Code)
		var secondResp DecisionResponse
		s.Require().NoError(json.NewDecoder(second.Body).Decode(&secondResp))

		s.True(firstResp.DecidedAt.Equal(*secondResp.DecidedAt))
	})

	s.Run("conflicting outcome is refused", func() {
		sessionID := s.processingSession()

		s.Require().Equal(http.StatusOK, s.deliver(sessionID.String(), approvedPayload()).Code)

		rec := s.deliver(sessionID.String(), map[string]any{"outcome": "REJECTED"})
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("session still capturing cannot be decided", func() {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
		created, err := s.sessions.Create(ctx, sessionservice.CreateParams{OwnerUserID: s.owner})
		s.Require().NoError(err)

		rec := s.deliver(created.Session.ID.String(), approvedPayload())
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("unknown outcome is a bad request", func() {
		sessionID := s.processingSession()

		rec := s.deliver(sessionID.String(), map[string]any{"outcome": "MAYBE"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("out-of-range score is rejected", func() {
		sessionID := s.processingSession()
		payload := approvedPayload()
		payload["face_score"] = 1.5

		rec := s.deliver(sessionID.String(), payload)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("malformed nric in the payload is rejected", func() {
		sessionID := s.processingSession()
		payload := approvedPayload()
		payload["extracted"] = map[string]any{"ic_number": "12-34"}

		rec := s.deliver(sessionID.String(), payload)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown session reads not found", func() {
		rec := s.deliver(uuid.NewString(), approvedPayload())
		s.Equal(http.StatusNotFound, rec.Code)
	})
}
