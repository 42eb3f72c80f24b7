package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"

	"accountpulse/internal/config"
)

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger

	countries = gountries.New()
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// InitGeoDB opens the GeoLite2 database. GeoIP is optional: nil is returned
// when the path is unset, missing, or unreadable.
func InitGeoDB() *geoip2.Reader {
	cfg := config.GetConfig()
	if cfg.GeoDBPath == "" {
		if logger != nil {
			logger.Debug("GeoIP database path not configured - country tagging disabled")
		}
		return nil
	}

	if _, err := os.Stat(cfg.GeoDBPath); err != nil {
		if logger != nil {
			logger.Info("GeoLite2 database not available - country tagging disabled",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(cfg.GeoDBPath)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	if logger != nil {
		logger.Info("GeoLite2 database initialized successfully", slog.String("path", cfg.GeoDBPath))
	}
	return db
}

// GetGeoDB returns the GeoLite2 database reader, initializing it if necessary.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = InitGeoDB()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// NormalizeCountryCode returns the upper-case ISO 3166 alpha-2 code for an
// alpha-2 or alpha-3 code, or "" when the code is not a known country.
func NormalizeCountryCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	country, err := countries.FindCountryByAlpha(code)
	if err != nil {
		return ""
	}
	return country.Codes.Alpha2
}

// CountryName returns the common English name for an ISO code, or "".
func CountryName(code string) string {
	country, err := countries.FindCountryByAlpha(strings.TrimSpace(code))
	if err != nil {
		return ""
	}
	return country.Name.Common
}

// ResolveCountry prefers a trusted upstream hint (for example a CDN country
// header) and falls back to a GeoIP lookup of the client address.
func ResolveCountry(hint, ipAddress string) string {
	if code := NormalizeCountryCode(hint); code != "" {
		return code
	}

	reader := GetGeoDB()
	if reader == nil {
		return ""
	}

	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil {
		return ""
	}

	record, err := reader.Country(ip)
	if err != nil {
		if logger != nil {
			logger.Debug("GeoIP lookup failed", slog.String("ip_address", ipAddress), slog.Any("error", err))
		}
		return ""
	}
	return NormalizeCountryCode(record.Country.IsoCode)
}
