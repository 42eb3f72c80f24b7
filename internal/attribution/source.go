package attribution

import "strings"

// TrafficSource is how a visitor arrived at a campaign page.
type TrafficSource string

const (
	SourceDirect   TrafficSource = "direct"
	SourceEmail    TrafficSource = "email"
	SourceLinkedIn TrafficSource = "linkedin"
	SourceOrganic  TrafficSource = "organic"
	SourcePaid     TrafficSource = "paid"
	SourceReferral TrafficSource = "referral"
)

var paidMediums = map[string]bool{"cpc": true, "paid": true, "ppc": true}

var organicMediums = map[string]bool{"organic": true, "search": true}

var searchEngines = []string{"google", "bing", "yahoo"}

// ClassifyTrafficSource attributes a visit from its persisted UTM source,
// UTM medium and referrer. UTM data always takes priority over the referrer;
// with neither present the visit is direct. Empty strings count as absent.
func ClassifyTrafficSource(utmSource, utmMedium, referrer string) TrafficSource {
	source := strings.ToLower(strings.TrimSpace(utmSource))
	medium := strings.ToLower(strings.TrimSpace(utmMedium))
	ref := strings.ToLower(strings.TrimSpace(referrer))

	if source != "" {
		switch {
		case strings.Contains(source, "email"):
			return SourceEmail
		case strings.Contains(source, "linkedin"):
			return SourceLinkedIn
		case paidMediums[medium]:
			return SourcePaid
		case organicMediums[medium]:
			return SourceOrganic
		default:
			return SourceReferral
		}
	}

	if ref != "" {
		if strings.Contains(ref, "linkedin.com") {
			return SourceLinkedIn
		}
		for _, engine := range searchEngines {
			if strings.Contains(ref, engine) {
				return SourceOrganic
			}
		}
		return SourceReferral
	}

	return SourceDirect
}
