// Package device derives human-readable labels and stable fingerprints from
// User-Agent strings. Labels show up in session details ("captured on
// Safari on iPhone"); fingerprints let the capture flow notice when
// artifacts arrive from a different device than the one that opened the
// session, which is exactly what a QR handoff looks like.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// Service computes device fingerprints. Fingerprinting can be disabled
// wholesale, in which case every fingerprint is empty and comparisons never
// report drift.
type Service struct {
	enabled bool
}

func NewService(enabled bool) *Service {
	return &Service{enabled: enabled}
}

// ParseUserAgent turns a raw User-Agent into a short display label.
func ParseUserAgent(rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return "Unknown Device"
	}

	parsed := useragent.New(rawUA)
	browser, _ := parsed.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	// Mobile platforms read better than their OS strings ("iPhone" vs
	// "CPU iPhone OS 17_0 like Mac OS X").
	osName := parsed.OSInfo().Name
	if parsed.Mobile() && parsed.Platform() != "" {
		osName = parsed.Platform()
	}
	if osName == "" {
		osName = parsed.Platform()
	}
	if osName == "" {
		osName = "Unknown OS"
	}

	return strings.TrimSpace(browser + " on " + osName)
}

// ComputeFingerprint hashes the browser family, its major version and the
// platform into a stable hex digest. Minor and patch version bumps keep the
// same fingerprint so routine auto-updates do not read as device changes.
func (s *Service) ComputeFingerprint(rawUA string) string {
	if !s.enabled {
		return ""
	}

	parsed := useragent.New(rawUA)
	browser, version := parsed.Browser()
	major := version
	if idx := strings.Index(version, "."); idx != -1 {
		major = version[:idx]
	}

	seed := strings.Join([]string{browser, major, parsed.OSInfo().Name, parsed.Platform()}, "|")
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// CompareFingerprints reports whether two fingerprints match and whether
// the difference counts as drift. Empty fingerprints (fingerprinting
// disabled, or a client that sent no User-Agent) carry no signal either way.
func (s *Service) CompareFingerprints(a, b string) (matched bool, drift bool) {
	if a == "" || b == "" {
		return false, false
	}
	if a == b {
		return true, false
	}
	return false, true
}
