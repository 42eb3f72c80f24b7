package attribution

import "accountpulse/internal/pkg/user_agent"

// DeviceInfo is the device, browser and OS tagging stored on a visit.
type DeviceInfo struct {
	DeviceType string
	Browser    string
	OS         string
}

// ClassifyDevice tags a user agent. Crawlers and tablets are recognised
// before generic mobile patterns.
func ClassifyDevice(userAgent string) DeviceInfo {
	parsed := user_agent.ParseUserAgent(userAgent)
	return DeviceInfo{
		DeviceType: parsed.DeviceType,
		Browser:    parsed.Browser,
		OS:         parsed.OS,
	}
}
