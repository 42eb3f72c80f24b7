package attribution

import "strings"

// UTM parameter names recognised on landing URLs.
const (
	UTMSource   = "utm_source"
	UTMMedium   = "utm_medium"
	UTMCampaign = "utm_campaign"
	UTMTerm     = "utm_term"
	UTMContent  = "utm_content"
)

// RequestContext carries everything the pipeline needs from an inbound
// request. The transport layer builds it; nothing downstream reads headers.
type RequestContext struct {
	UserAgent string
	Referrer  string
	IP        string
	// Country is an upstream country hint (for example a CDN header).
	Country string
	UTM     map[string]string
}

// Attribution holds optional acquisition fields. A nil field means "not
// supplied" and is never written over an existing value.
type Attribution struct {
	UTMSource   *string
	UTMMedium   *string
	UTMCampaign *string
	UTMTerm     *string
	UTMContent  *string
	Referrer    *string
}

// Attribution extracts the acquisition fields present on the request.
func (r RequestContext) Attribution() Attribution {
	return Attribution{
		UTMSource:   r.utm(UTMSource),
		UTMMedium:   r.utm(UTMMedium),
		UTMCampaign: r.utm(UTMCampaign),
		UTMTerm:     r.utm(UTMTerm),
		UTMContent:  r.utm(UTMContent),
		Referrer:    nonEmpty(r.Referrer),
	}
}

func (r RequestContext) utm(key string) *string {
	if r.UTM == nil {
		return nil
	}
	return nonEmpty(r.UTM[key])
}

// Or fills every field missing from a with the value from fallback.
func (a Attribution) Or(fallback Attribution) Attribution {
	pick := func(primary, secondary *string) *string {
		if primary != nil {
			return primary
		}
		return secondary
	}
	return Attribution{
		UTMSource:   pick(a.UTMSource, fallback.UTMSource),
		UTMMedium:   pick(a.UTMMedium, fallback.UTMMedium),
		UTMCampaign: pick(a.UTMCampaign, fallback.UTMCampaign),
		UTMTerm:     pick(a.UTMTerm, fallback.UTMTerm),
		UTMContent:  pick(a.UTMContent, fallback.UTMContent),
		Referrer:    pick(a.Referrer, fallback.Referrer),
	}
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
