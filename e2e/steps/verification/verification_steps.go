// Package verification holds the step definitions for the identity
// verification flow: session start, handed-off capture, submission,
// decision and acceptance.
package verification

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the harness these steps need.
type TestContext interface {
	StartSession() error
	UploadArtifact(kind string) error
	SubmitCapture() error
	AcceptSession() error
	FetchStatus() (string, error)
	UsePairingToken(token string)
	LastResponse() (int, []byte)
	LastResponseField(name string) (string, error)
}

// RegisterSteps wires the verification step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^a fresh verification session$`, steps.freshSession)
	ctx.Step(`^the device uploads a "([^"]*)" image$`, steps.uploadImage)
	ctx.Step(`^the device submits the capture set$`, steps.submitCaptureSet)
	ctx.Step(`^the owner accepts the session$`, steps.ownerAccepts)
	ctx.Step(`^the session reaches "([^"]*)" within (\d+) seconds$`, steps.sessionReachesWithin)
	ctx.Step(`^the session status is "([^"]*)"$`, steps.sessionStatusIs)
	ctx.Step(`^the response carries a profile reference$`, steps.responseCarriesProfileRef)

	// Probing steps record the response without asserting, so scenarios can
	// check the rejection explicitly.
	ctx.Step(`^the device presents a forged pairing token$`, steps.forgedPairingToken)
	ctx.Step(`^the device attempts a "([^"]*)" upload$`, steps.attemptUpload)
	ctx.Step(`^the device attempts to submit the capture set$`, steps.attemptSubmit)
	ctx.Step(`^the request is rejected with status (\d+)$`, steps.requestRejectedWith)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) freshSession() error {
	if err := s.tc.StartSession(); err != nil {
		return err
	}
	return s.expectStatus(http.StatusCreated)
}

func (s *verificationSteps) uploadImage(kind string) error {
	if err := s.tc.UploadArtifact(kind); err != nil {
		return err
	}
	return s.expectStatus(http.StatusCreated)
}

func (s *verificationSteps) submitCaptureSet() error {
	if err := s.tc.SubmitCapture(); err != nil {
		return err
	}
	return s.expectStatus(http.StatusOK)
}

func (s *verificationSteps) ownerAccepts() error {
	if err := s.tc.AcceptSession(); err != nil {
		return err
	}
	return s.expectStatus(http.StatusOK)
}

// sessionReachesWithin polls until the session shows the wanted status. Any
// other settled status fails immediately; there is no point waiting out the
// clock on a session that already went elsewhere.
func (s *verificationSteps) sessionReachesWithin(want string, seconds int) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	var last string
	for time.Now().Before(deadline) {
		status, err := s.tc.FetchStatus()
		if err != nil {
			return err
		}
		if status == want {
			return nil
		}
		if settled(status) {
			return fmt.Errorf("session settled at %q while waiting for %q", status, want)
		}
		last = status
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("session still %q after %d seconds, wanted %q", last, seconds, want)
}

func (s *verificationSteps) sessionStatusIs(want string) error {
	status, err := s.tc.FetchStatus()
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("session status is %q, wanted %q", status, want)
	}
	return nil
}

func (s *verificationSteps) responseCarriesProfileRef() error {
	ref, err := s.tc.LastResponseField("profile_ref")
	if err != nil {
		return err
	}
	if ref == "" {
		return fmt.Errorf("profile_ref is empty")
	}
	return nil
}

func (s *verificationSteps) forgedPairingToken() error {
	s.tc.UsePairingToken("e2e-forged-pairing-token")
	return nil
}

func (s *verificationSteps) attemptUpload(kind string) error {
	return s.tc.UploadArtifact(kind)
}

func (s *verificationSteps) attemptSubmit() error {
	return s.tc.SubmitCapture()
}

func (s *verificationSteps) requestRejectedWith(want int) error {
	return s.expectStatus(want)
}

func (s *verificationSteps) expectStatus(want int) error {
	got, body := s.tc.LastResponse()
	if got != want {
		return fmt.Errorf("got status %d, wanted %d: %s", got, want, body)
	}
	return nil
}

// settled reports whether a status is past the point of changing on its own.
func settled(status string) bool {
	switch status {
	case "CREATED", "CAPTURING", "PROCESSING":
		return false
	}
	return true
}
