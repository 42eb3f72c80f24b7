package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"accountpulse/internal/visitors"
)

func TestFingerprint(t *testing.T) {
	ipAddress := "203.0.113.7"
	userAgent := "Mozilla/5.0"
	salt := "test-salt"

	t.Run("generates consistent ID for same inputs", func(t *testing.T) {
		id1 := visitors.Fingerprint(1, ipAddress, userAgent, salt)
		id2 := visitors.Fingerprint(1, ipAddress, userAgent, salt)

		assert.Equal(t, id1, id2, "Same inputs should generate same ID")
		assert.Len(t, id1, 64, "SHA-256 hash should be 64 characters (hex encoded)")
		assert.NotContains(t, id1, ipAddress)
	})

	t.Run("generates different IDs for different IPs", func(t *testing.T) {
		assert.NotEqual(t,
			visitors.Fingerprint(1, ipAddress, userAgent, salt),
			visitors.Fingerprint(1, "203.0.113.8", userAgent, salt))
	})

	t.Run("generates different IDs for different user agents", func(t *testing.T) {
		assert.NotEqual(t,
			visitors.Fingerprint(1, ipAddress, userAgent, salt),
			visitors.Fingerprint(1, ipAddress, "Different Agent", salt))
	})

	t.Run("is scoped to the campaign", func(t *testing.T) {
		assert.NotEqual(t,
			visitors.Fingerprint(1, ipAddress, userAgent, salt),
			visitors.Fingerprint(2, ipAddress, userAgent, salt))
	})

	t.Run("generates different IDs for different salts", func(t *testing.T) {
		assert.NotEqual(t,
			visitors.Fingerprint(1, ipAddress, userAgent, "salt1"),
			visitors.Fingerprint(1, ipAddress, userAgent, "salt2"))
	})

	t.Run("empty without any client signal", func(t *testing.T) {
		assert.Empty(t, visitors.Fingerprint(1, "", "  ", salt))
	})
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "tracker-42", visitors.Resolve(" tracker-42 ", 1, "203.0.113.7", "UA", "salt"))
	assert.Equal(t,
		visitors.Fingerprint(1, "203.0.113.7", "UA", "salt"),
		visitors.Resolve("", 1, "203.0.113.7", "UA", "salt"))
	assert.Empty(t, visitors.Resolve("", 1, "", "", "salt"))
}
