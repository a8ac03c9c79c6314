// Package e2e drives a running KYC service over HTTP. The harness owns no
// server: start one (with the scorer stubs from mocks/verification-engines,
// so submitted sessions actually reach a decision) and point
// KYC_E2E_BASE_URL at it.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// The service validates owner tokens against these values; see the server's
// JWT configuration.
const (
	jwtIssuer   = "creditxpress"
	jwtAudience = "kyc"
)

// TestContext carries the state one scenario accumulates: the session under
// test, the credentials in play and the last response seen.
type TestContext struct {
	baseURL    string
	signingKey []byte
	client     *http.Client

	ownerToken   string
	sessionID    string
	pairingToken string

	lastStatus int
	lastBody   []byte
}

// NewTestContext builds a context for baseURL. signingKey must match the
// server's JWT_SIGNING_KEY so minted owner tokens validate.
func NewTestContext(baseURL, signingKey string) *TestContext {
	return &TestContext{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		signingKey: []byte(signingKey),
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Reset wipes scenario state and mints a fresh owner identity, so scenarios
// never see each other's sessions.
func (tc *TestContext) Reset() error {
	tc.sessionID = ""
	tc.pairingToken = ""
	tc.lastStatus = 0
	tc.lastBody = nil

	token, err := tc.mintOwnerToken(uuid.NewString())
	if err != nil {
		return fmt.Errorf("mint owner token: %w", err)
	}
	tc.ownerToken = token
	return nil
}

func (tc *TestContext) mintOwnerToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iss":     jwtIssuer,
		"aud":     jwtAudience,
		"iat":     jwt.NewNumericDate(now),
		"exp":     jwt.NewNumericDate(now.Add(time.Hour)),
		"jti":     uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
}

// StartSession opens a session as the owner and stashes the session ID and
// pairing token for the rest of the scenario.
func (tc *TestContext) StartSession() error {
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+"/kyc/sessions", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tc.ownerToken)
	if err := tc.do(req); err != nil {
		return err
	}

	if tc.lastStatus == http.StatusCreated {
		var resp struct {
			SessionID    string `json:"session_id"`
			PairingToken string `json:"pairing_token"`
		}
		if err := json.Unmarshal(tc.lastBody, &resp); err != nil {
			return fmt.Errorf("decode start response: %w", err)
		}
		tc.sessionID = resp.SessionID
		tc.pairingToken = resp.PairingToken
	}
	return nil
}

// UploadArtifact sends a tiny image for the given kind using the pairing
// token, the way a handed-off phone does.
func (tc *TestContext) UploadArtifact(kind string) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("kind", kind); err != nil {
		return err
	}

	// CreateFormFile would label the part application/octet-stream, which
	// the server rejects; build the part header by hand.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="capture.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte("e2e-" + kind + "-bytes")); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost,
		tc.baseURL+"/kyc/sessions/"+tc.sessionID+"/artifacts", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-Pairing-Token", tc.pairingToken)
	return tc.do(req)
}

// SubmitCapture asks the service to close the capture set and start
// processing.
func (tc *TestContext) SubmitCapture() error {
	req, err := http.NewRequest(http.MethodPost,
		tc.baseURL+"/kyc/sessions/"+tc.sessionID+"/submit", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Pairing-Token", tc.pairingToken)
	return tc.do(req)
}

// AcceptSession commits the approved session as the owner.
func (tc *TestContext) AcceptSession() error {
	req, err := http.NewRequest(http.MethodPost,
		tc.baseURL+"/kyc/sessions/"+tc.sessionID+"/accept", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tc.ownerToken)
	return tc.do(req)
}

// FetchStatus polls the summary endpoint and returns the session status.
func (tc *TestContext) FetchStatus() (string, error) {
	req, err := http.NewRequest(http.MethodGet,
		tc.baseURL+"/kyc/sessions/"+tc.sessionID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Pairing-Token", tc.pairingToken)
	if err := tc.do(req); err != nil {
		return "", err
	}
	if tc.lastStatus != http.StatusOK {
		return "", fmt.Errorf("status endpoint returned %d: %s", tc.lastStatus, tc.lastBody)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(tc.lastBody, &resp); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	return resp.Status, nil
}

// UsePairingToken swaps the capture credential, for scenarios probing what a
// wrong token can reach.
func (tc *TestContext) UsePairingToken(token string) {
	tc.pairingToken = token
}

// LastResponse returns the status code and body of the most recent call.
func (tc *TestContext) LastResponse() (int, []byte) {
	return tc.lastStatus, tc.lastBody
}

// LastResponseField extracts a top-level string field from the last body.
func (tc *TestContext) LastResponseField(name string) (string, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return "", fmt.Errorf("decode response body: %w", err)
	}
	value, ok := body[name]
	if !ok {
		return "", fmt.Errorf("field %q not present in response", name)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string", name, value)
	}
	return s, nil
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	return nil
}
