package user_agent

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Other is reported for browsers and operating systems no rule recognises.
const Other = "other"

type UserAgent struct {
	UserAgent  string
	DeviceType string
	Browser    string
	OS         string
	Mobile     bool
	Tablet     bool
	Desktop    bool
	Bot        bool
}

//go:embed database/rules.yml
var databaseFiles embed.FS

// Rule is a named pattern; patterns are matched case-insensitively.
type Rule struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

type ruleSet struct {
	Bots     []Rule `yaml:"bots"`
	Tablets  []Rule `yaml:"tablets"`
	Mobiles  []Rule `yaml:"mobiles"`
	Browsers []Rule `yaml:"browsers"`
	OSs      []Rule `yaml:"oss"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var (
	parser *Parser
	once   sync.Once

	resultTTL = 30 * time.Minute
)

// SetResultTTL changes how long parsed results are memoised. It must be
// called before the first ParseUserAgent call to take effect.
func SetResultTTL(ttl time.Duration) {
	if ttl > 0 {
		resultTTL = ttl
	}
}

type Parser struct {
	rules      ruleSet
	regexCache *RegexCache
	results    *gocache.Cache
}

func getParser() *Parser {
	once.Do(func() {
		parser = &Parser{
			regexCache: newRegexCache(),
			results:    gocache.New(resultTTL, 2*resultTTL),
		}

		data, err := databaseFiles.ReadFile("database/rules.yml")
		if err != nil {
			fmt.Printf("Error reading rules.yml: %v\n", err)
			return
		}
		if err := yaml.Unmarshal(data, &parser.rules); err != nil {
			fmt.Printf("Error parsing rules.yml: %v\n", err)
		}
	})
	return parser
}

func (p *Parser) match(rules []Rule, userAgent string) (string, bool) {
	for _, rule := range rules {
		regex, err := p.regexCache.get(rule.Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(userAgent) {
			return rule.Name, true
		}
	}
	return "", false
}

func (p *Parser) parseDeviceType(userAgent string) string {
	// Bots first, then tablets: tablet UAs frequently contain "mobile" too.
	if _, ok := p.match(p.rules.Bots, userAgent); ok {
		return DeviceBot
	}
	if _, ok := p.match(p.rules.Tablets, userAgent); ok {
		return DeviceTablet
	}
	if _, ok := p.match(p.rules.Mobiles, userAgent); ok {
		return DeviceMobile
	}
	return DeviceDesktop
}

func (p *Parser) parse(userAgent string) UserAgent {
	deviceType := p.parseDeviceType(userAgent)

	browser, knownBrowser := p.match(p.rules.Browsers, userAgent)
	if !knownBrowser || deviceType == DeviceBot {
		browser = Other
	}
	os, knownOS := p.match(p.rules.OSs, userAgent)
	if !knownOS || deviceType == DeviceBot {
		os = Other
	}

	// Desktop is only inferred for agents we otherwise recognise.
	if deviceType == DeviceDesktop && !knownBrowser && !knownOS {
		deviceType = DeviceUnknown
	}

	return UserAgent{
		UserAgent:  userAgent,
		DeviceType: deviceType,
		Browser:    browser,
		OS:         os,
		Mobile:     deviceType == DeviceMobile,
		Tablet:     deviceType == DeviceTablet,
		Desktop:    deviceType == DeviceDesktop,
		Bot:        deviceType == DeviceBot,
	}
}

// ParseUserAgent classifies a raw User-Agent header. An empty header, or one
// no rule recognises, yields an unknown device with browser and OS "other".
func ParseUserAgent(userAgent string) UserAgent {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return UserAgent{DeviceType: DeviceUnknown, Browser: Other, OS: Other}
	}

	p := getParser()
	if cached, found := p.results.Get(userAgent); found {
		return cached.(UserAgent)
	}

	result := p.parse(userAgent)
	p.results.Set(userAgent, result, gocache.DefaultExpiration)
	return result
}
