// Package visitors derives anonymous visitor fingerprints for tracked visits.
package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint returns a salted SHA-256 signature of the client address and
// user agent, scoped to one campaign. The IP address is never stored, only
// hashed. An empty string is returned when neither input is known, since a
// fingerprint of nothing would merge every anonymous visitor.
func Fingerprint(campaignID uint, ipAddress, userAgent, salt string) string {
	ipAddress = strings.TrimSpace(ipAddress)
	userAgent = strings.TrimSpace(userAgent)
	if ipAddress == "" && userAgent == "" {
		return ""
	}

	data := fmt.Sprintf("%s.%d.%s.%s", salt, campaignID, ipAddress, userAgent)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Resolve prefers the tracker's own visitor ID and falls back to the
// fingerprint.
func Resolve(visitorID string, campaignID uint, ipAddress, userAgent, salt string) string {
	if id := strings.TrimSpace(visitorID); id != "" {
		return id
	}
	return Fingerprint(campaignID, ipAddress, userAgent, salt)
}
