// Package authz reduces the two capture-phase credentials, the owner's
// bearer session and the device pairing token, to a single capability
// check. Downstream verticals depend on the Principal it yields, never on
// which concrete credential was presented.
package authz

import (
	"net/http"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

// PairingTokenHeader carries the capture credential. The query parameter
// form exists for the QR handoff URL, where headers are not an option.
const (
	PairingTokenHeader = "X-Pairing-Token"
	PairingTokenQuery  = "pairing_token"
)

// PrincipalKind distinguishes the two capabilities.
type PrincipalKind string

const (
	// KindOwner is the authenticated account that opened the session.
	// Owner access is not subject to the pairing deadline.
	KindOwner PrincipalKind = "owner"

	// KindDevice is a paired capture device. It holds no identity, only
	// a scope on one session, and dies with the pairing deadline.
	KindDevice PrincipalKind = "device"
)

// Principal is the yes-result of a capability check.
type Principal struct {
	Kind      PrincipalKind
	UserID    id.UserID // set only for KindOwner
	SessionID id.SessionID
}

// IsOwner reports whether the principal carries the owner capability.
func (p *Principal) IsOwner() bool {
	return p != nil && p.Kind == KindOwner
}

// Credentials are the raw credentials extracted from a request.
type Credentials struct {
	OwnerUserID  id.UserID
	PairingToken string
}

// CredentialsFromRequest pulls the owner identity (placed in the context
// by the auth middleware) and the pairing token off the request.
func CredentialsFromRequest(r *http.Request) Credentials {
	token := r.Header.Get(PairingTokenHeader)
	if token == "" {
		token = r.URL.Query().Get(PairingTokenQuery)
	}
	return Credentials{
		OwnerUserID:  requestcontext.UserID(r.Context()),
		PairingToken: token,
	}
}
