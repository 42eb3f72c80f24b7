package v1

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"accountpulse/internal/attribution"
)

// countryHintHeader is set by Cloudflare with the visitor's ISO country.
const countryHintHeader = "CF-IPCountry"

var utmKeys = []string{
	attribution.UTMSource,
	attribution.UTMMedium,
	attribution.UTMCampaign,
	attribution.UTMTerm,
	attribution.UTMContent,
}

// requestContext captures the attribution inputs of a tracking request. The
// tracker script forwards the landing page's UTM parameters on its own query
// string, so they are read from there.
func requestContext(c *fiber.Ctx) attribution.RequestContext {
	userAgent := c.Get(fiber.HeaderUserAgent)
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}

	utm := make(map[string]string)
	for _, key := range utmKeys {
		if value := c.Query(key); value != "" {
			utm[key] = value
		}
	}

	return attribution.RequestContext{
		UserAgent: userAgent,
		Referrer:  externalReferrer(c),
		IP:        clientIP(c),
		Country:   c.Get(countryHintHeader),
		UTM:       utm,
	}
}

// externalReferrer returns the Referer header unless it points at the page
// that issued the call, which is the landing page itself rather than where
// the visitor came from.
func externalReferrer(c *fiber.Ctx) string {
	referrer := c.Get(fiber.HeaderReferer)
	origin := c.Get(fiber.HeaderOrigin)
	if referrer == "" || origin == "" {
		return referrer
	}

	referrerURL, err := url.Parse(referrer)
	if err != nil {
		return referrer
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return referrer
	}
	if strings.EqualFold(referrerURL.Host, originURL.Host) {
		return ""
	}
	return referrer
}
