package handler

import (
	"strings"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// StartRequest is the HTTP request body for POST /kyc/sessions. The whole
// body is optional; an application link is attached when present.
type StartRequest struct {
	ApplicationID string `json:"application_id,omitempty"`

	parsedApplicationID id.ApplicationID
}

// Validate validates and parses the request.
func (r *StartRequest) Validate() error {
	r.ApplicationID = strings.TrimSpace(r.ApplicationID)
	if r.ApplicationID == "" {
		return nil
	}
	applicationID, err := id.ParseApplicationID(r.ApplicationID)
	if err != nil {
		return err
	}
	r.parsedApplicationID = applicationID
	return nil
}

// ParsedApplicationID returns the validated application ID, nil-valued when
// the request carried none.
func (r *StartRequest) ParsedApplicationID() id.ApplicationID {
	return r.parsedApplicationID
}
