// Package engine holds the HTTP clients for the external verification
// scorers: document OCR, face match and liveness. All three speak the same
// JSON-over-POST dialect and fetch artifact bytes themselves through
// short-lived signed URLs; image bytes never ride through this service
// twice.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
)

// DefaultTimeout bounds a single scorer call. OCR on a two-sided document
// is the slow path and sets the ceiling.
const DefaultTimeout = 30 * time.Second

// errBodyLimit caps how much of a scorer error body is carried into logs.
const errBodyLimit = 512

// Config points the client at the three scorer services.
type Config struct {
	OCRURL       string
	FaceMatchURL string
	LivenessURL  string
	Timeout      time.Duration
}

// Client calls the verification scorers.
type Client struct {
	ocrURL      string
	faceURL     string
	livenessURL string
	http        *http.Client
}

// New constructs a Client. Outbound calls are traced.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		ocrURL:      strings.TrimSuffix(cfg.OCRURL, "/"),
		faceURL:     strings.TrimSuffix(cfg.FaceMatchURL, "/"),
		livenessURL: strings.TrimSuffix(cfg.LivenessURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Extraction is the OCR read of an identity document. ICNumber is the raw
// scanner output; callers must parse and mask it before anything is
// persisted.
type Extraction struct {
	Name     string `json:"name"`
	ICNumber string `json:"ic_number"`
	DOB      string `json:"dob"`
	Address  string `json:"address"`
}

type ocrRequest struct {
	FrontURL string `json:"frontUrl"`
	BackURL  string `json:"backUrl,omitempty"`
}

type faceMatchRequest struct {
	ICFrontURL string `json:"icFrontUrl"`
	SelfieURL  string `json:"selfieUrl"`
}

type livenessRequest struct {
	SelfieURL string `json:"selfieUrl"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// ExtractDocument runs OCR over the document images.
func (c *Client) ExtractDocument(ctx context.Context, frontURL, backURL string) (*Extraction, error) {
	var out Extraction
	if err := c.post(ctx, c.ocrURL+"/ocr", ocrRequest{FrontURL: frontURL, BackURL: backURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MatchFace scores how well the selfie matches the document portrait.
func (c *Client) MatchFace(ctx context.Context, icFrontURL, selfieURL string) (float64, error) {
	var out scoreResponse
	if err := c.post(ctx, c.faceURL+"/face-match", faceMatchRequest{ICFrontURL: icFrontURL, SelfieURL: selfieURL}, &out); err != nil {
		return 0, err
	}
	return out.Score, nil
}

// CheckLiveness scores whether the selfie came from a live subject.
func (c *Client) CheckLiveness(ctx context.Context, selfieURL string) (float64, error) {
	var out scoreResponse
	if err := c.post(ctx, c.livenessURL+"/liveness", livenessRequest{SelfieURL: selfieURL}, &out); err != nil {
		return 0, err
	}
	return out.Score, nil
}

func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode scorer request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build scorer request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "scorer call timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeDependency, "scorer call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return dErrors.New(dErrors.CodeDependency,
			fmt.Sprintf("scorer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependency, "failed to decode scorer response")
	}
	return nil
}
