package user_agent_test

import (
	"testing"

	"accountpulse/internal/pkg/user_agent"
)

func TestParseUserAgent(t *testing.T) {
	testCases := []struct {
		name            string
		userAgent       string
		expectedDevice  string
		expectedBrowser string
		expectedOS      string
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedBrowser: "chrome",
			expectedOS:      "windows",
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedDevice:  user_agent.DeviceMobile,
			expectedBrowser: "safari",
			expectedOS:      "ios",
		},
		{
			name:            "Chrome on Android phone",
			userAgent:       "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expectedDevice:  user_agent.DeviceMobile,
			expectedBrowser: "chrome",
			expectedOS:      "android",
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedDevice:  user_agent.DeviceTablet,
			expectedBrowser: "safari",
			expectedOS:      "ios",
		},
		{
			name:            "Android tablet without mobile token",
			userAgent:       "Mozilla/5.0 (Linux; Android 12; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
			expectedDevice:  user_agent.DeviceTablet,
			expectedBrowser: "chrome",
			expectedOS:      "android",
		},
		{
			name:            "Firefox on macOS",
			userAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/115.0",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedBrowser: "firefox",
			expectedOS:      "macos",
		},
		{
			name:            "Edge on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedBrowser: "edge",
			expectedOS:      "windows",
		},
		{
			name:            "Googlebot smartphone is a bot, not mobile",
			userAgent:       "Mozilla/5.0 (Linux; Android 6.0.1; Nexus 5X Build/MMB29P) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Mobile Safari/537.36 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			expectedDevice:  user_agent.DeviceBot,
			expectedBrowser: user_agent.Other,
			expectedOS:      user_agent.Other,
		},
		{
			name:            "curl",
			userAgent:       "curl/8.4.0",
			expectedDevice:  user_agent.DeviceBot,
			expectedBrowser: user_agent.Other,
			expectedOS:      user_agent.Other,
		},
		{
			name:            "Unrecognised client",
			userAgent:       "AcmeReader/2.1 (custom build)",
			expectedDevice:  user_agent.DeviceUnknown,
			expectedBrowser: user_agent.Other,
			expectedOS:      user_agent.Other,
		},
		{
			name:            "Known OS with unknown browser stays desktop",
			userAgent:       "AcmeReader/2.1 (Windows NT 10.0; Win64; x64)",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedBrowser: user_agent.Other,
			expectedOS:      "windows",
		},
		{
			name:            "Empty user agent",
			userAgent:       "",
			expectedDevice:  user_agent.DeviceUnknown,
			expectedBrowser: user_agent.Other,
			expectedOS:      user_agent.Other,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.ParseUserAgent(tc.userAgent)

			t.Logf("Parsed - Device: %s, Browser: %s, OS: %s", result.DeviceType, result.Browser, result.OS)

			if result.DeviceType != tc.expectedDevice {
				t.Errorf("Expected device %s, got %s", tc.expectedDevice, result.DeviceType)
			}
			if result.Browser != tc.expectedBrowser {
				t.Errorf("Expected browser %s, got %s", tc.expectedBrowser, result.Browser)
			}
			if result.OS != tc.expectedOS {
				t.Errorf("Expected OS %s, got %s", tc.expectedOS, result.OS)
			}
		})
	}
}

func TestParseUserAgentIsMemoised(t *testing.T) {
	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	first := user_agent.ParseUserAgent(ua)
	second := user_agent.ParseUserAgent(ua)

	if first != second {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
	if first.OS != "linux" {
		t.Errorf("Expected OS linux, got %s", first.OS)
	}
}
