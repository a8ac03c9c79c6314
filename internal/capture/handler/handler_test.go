package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/blob"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/capture"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/device"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/pairing"
	sessionservice "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/service"
	sessionstore "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/store"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

const testUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// Justification: handler tests validate HTTP concerns only: multipart
// parsing, credential extraction, size caps at the transport edge and
// status mapping. Transition rules live in the service suites.
type CaptureHandlerSuite struct {
	suite.Suite
	router   http.Handler
	sessions *sessionservice.Service
	owner    id.UserID
	now      time.Time
}

func TestCaptureHandlerSuite(t *testing.T) {
	suite.Run(t, new(CaptureHandlerSuite))
}

func (s *CaptureHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := sessionstore.NewMemoryStore()
	pairingSvc := pairing.New(pairing.NewMemoryStore(), store, pairing.WithLogger(logger))
	authzSvc := authz.New(store, pairingSvc)
	devices := device.NewService(true)

	s.owner = id.UserID(uuid.New())
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.sessions = sessionservice.New(store, pairingSvc, sessionservice.WithLogger(logger))

	svc := capture.New(authzSvc, s.sessions, store, blob.NewMemoryStore("http://blobs.local"), devices,
		capture.WithLogger(logger))

	r := chi.NewRouter()
	New(svc, logger, capture.DefaultMaxUploadBytes).Register(r)
	s.router = r
}

func (s *CaptureHandlerSuite) ctx(asOwner bool) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now.Add(time.Minute))
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7", testUA)
	if asOwner {
		ctx = requestcontext.WithUserID(ctx, s.owner)
	}
	return ctx
}

func (s *CaptureHandlerSuite) createSession() *sessionservice.CreatedSession {
	created, err := s.sessions.Create(s.ctx(true), sessionservice.CreateParams{
		OwnerUserID: s.owner,
	})
	s.Require().NoError(err)
	return created
}

// multipartBody builds a form with a kind field and one file part carrying
// an explicit part content type (CreateFormFile would pin octet-stream).
func multipartBody(kind, contentType string, payload []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if kind != "" {
		_ = mw.WriteField("kind", kind)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, "capture.jpg"))
	header.Set("Content-Type", contentType)
	part, _ := mw.CreatePart(header)
	_, _ = part.Write(payload)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func (s *CaptureHandlerSuite) upload(target string, asOwner bool, kind, contentType string, payload []byte) *httptest.ResponseRecorder {
	body, formContentType := multipartBody(kind, contentType, payload)
	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", formContentType)
	req = req.WithContext(s.ctx(asOwner))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *CaptureHandlerSuite) TestHandleUpload() {
	s.Run("valid upload returns artifact metadata", func() {
		created := s.createSession()
		payload := []byte("ic-front-bytes")

		rec := s.upload("/kyc/sessions/"+created.Session.ID.String()+"/artifacts",
			true, "front", "image/jpeg", payload)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

		var resp CaptureResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("CAPTURING", resp.Status)
		s.Equal("front", resp.Artifact.Kind)
		s.Equal("image/jpeg", resp.Artifact.ContentType)
		sum := sha256.Sum256(payload)
		s.Equal(hex.EncodeToString(sum[:]), resp.Artifact.SHA256)
		s.ElementsMatch([]string{"back", "selfie"}, resp.MissingKinds)
	})

	s.Run("pairing token in query authorizes the upload", func() {
		created := s.createSession()

		rec := s.upload("/kyc/sessions/"+created.Session.ID.String()+"/artifacts?pairing_token="+created.PairingToken,
			false, "selfie", "image/png", []byte("selfie-bytes"))
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

		var resp CaptureResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.True(resp.Artifact.ViaHandoff)
	})

	s.Run("no credential is unauthorized", func() {
		created := s.createSession()

		rec := s.upload("/kyc/sessions/"+created.Session.ID.String()+"/artifacts",
			false, "front", "image/jpeg", []byte("x"))
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("unknown kind is a bad request", func() {
		created := s.createSession()

		rec := s.upload("/kyc/sessions/"+created.Session.ID.String()+"/artifacts",
			true, "passport", "image/jpeg", []byte("x"))
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing file part is a bad request", func() {
		created := s.createSession()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("kind", "front")
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/kyc/sessions/"+created.Session.ID.String()+"/artifacts", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req = req.WithContext(s.ctx(true))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unsupported content type is unprocessable", func() {
		created := s.createSession()

		rec := s.upload("/kyc/sessions/"+created.Session.ID.String()+"/artifacts",
			true, "front", "application/pdf", []byte("%PDF-1.4"))
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("declared oversized body is rejected with 413", func() {
		created := s.createSession()

		rec := s.upload("/kyc/sessions/"+created.Session.ID.String()+"/artifacts",
			true, "front", "image/jpeg", bytes.Repeat([]byte("x"), int(capture.DefaultMaxUploadBytes)+1))
		s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
	})

	s.Run("malformed session id is a bad request", func() {
		rec := s.upload("/kyc/sessions/not-a-uuid/artifacts",
			true, "front", "image/jpeg", []byte("x"))
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *CaptureHandlerSuite) TestHandleSubmit() {
	s.Run("complete session submits to processing", func() {
		created := s.createSession()
		for _, kind := range id.RequiredArtifactKinds() {
			rec := s.upload("/kyc/sessions/"+created.Session.ID.String()+"/artifacts",
				true, string(kind), "image/jpeg", []byte("img-"+string(kind)))
			s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		}

		req := httptest.NewRequest(http.MethodPost, "/kyc/sessions/"+created.Session.ID.String()+"/submit", nil)
		req = req.WithContext(s.ctx(true))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		var resp SubmitResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("PROCESSING", resp.Status)
		s.Require().NotNil(resp.SubmittedAt)
	})

	s.Run("incomplete session is unprocessable", func() {
		created := s.createSession()

		req := httptest.NewRequest(http.MethodPost, "/kyc/sessions/"+created.Session.ID.String()+"/submit", nil)
		req = req.WithContext(s.ctx(true))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})
}
