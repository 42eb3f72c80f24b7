// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`
	AdminToken  string   `mapstructure:"admintoken"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Visit tracking
	VisitWindowHours      int `mapstructure:"visitwindowhours"`
	UserAgentCacheMinutes int `mapstructure:"useragentcacheminutes"`

	// Job scheduling settings
	AggregationIntervalSeconds int `mapstructure:"aggregationintervalseconds"`
	AggregationWorkers         int `mapstructure:"aggregationworkers"`
	ScoringIntervalSeconds     int `mapstructure:"scoringintervalseconds"`
	TouchScanIntervalSeconds   int `mapstructure:"touchscanintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "accountpulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("admintoken", "")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "")
		v.SetDefault("publicdir", "web/dist/assets")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("visitwindowhours", 24)
		v.SetDefault("useragentcacheminutes", 30)
		v.SetDefault("aggregationintervalseconds", 3600)
		v.SetDefault("aggregationworkers", 4)
		v.SetDefault("scoringintervalseconds", 21600)
		v.SetDefault("touchscanintervalseconds", 300)

		v.BindEnv("appname", "ACCOUNTPULSE_APP_NAME")
		v.BindEnv("appport", "ACCOUNTPULSE_APP_PORT")
		v.BindEnv("environment", "ACCOUNTPULSE_ENV")
		v.BindEnv("loglevel", "ACCOUNTPULSE_LOG_LEVEL")
		v.BindEnv("privatekey", "ACCOUNTPULSE_PRIVATE_KEY")
		v.BindEnv("admintoken", "ACCOUNTPULSE_ADMIN_TOKEN")
		v.BindEnv("storagepath", "ACCOUNTPULSE_STORAGE_PATH")
		v.BindEnv("geodbpath", "ACCOUNTPULSE_GEO_DB_PATH")
		v.BindEnv("publicdir", "ACCOUNTPULSE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "ACCOUNTPULSE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "ACCOUNTPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "ACCOUNTPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "ACCOUNTPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "ACCOUNTPULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "ACCOUNTPULSE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "ACCOUNTPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "ACCOUNTPULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("visitwindowhours", "ACCOUNTPULSE_VISIT_WINDOW_HOURS")
		v.BindEnv("useragentcacheminutes", "ACCOUNTPULSE_USER_AGENT_CACHE_MINUTES")
		v.BindEnv("aggregationintervalseconds", "ACCOUNTPULSE_AGGREGATION_INTERVAL_SECONDS")
		v.BindEnv("aggregationworkers", "ACCOUNTPULSE_AGGREGATION_WORKERS")
		v.BindEnv("scoringintervalseconds", "ACCOUNTPULSE_SCORING_INTERVAL_SECONDS")
		v.BindEnv("touchscanintervalseconds", "ACCOUNTPULSE_TOUCH_SCAN_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique ACCOUNTPULSE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.VisitWindowHours <= 0 {
		return fmt.Errorf("visit window must be positive, got %d hours", c.VisitWindowHours)
	}
	if c.AggregationIntervalSeconds <= 0 || c.ScoringIntervalSeconds <= 0 || c.TouchScanIntervalSeconds <= 0 {
		return fmt.Errorf("job intervals must be positive")
	}
	if c.AggregationWorkers < 0 {
		return fmt.Errorf("aggregation workers cannot be negative, got %d", c.AggregationWorkers)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// Test runs with a single connection; everything else allows concurrent readers.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetAggregationWorkers returns the number of concurrent aggregation units.
// Zero falls back to a single worker.
func (c *Config) GetAggregationWorkers() int {
	if c.AggregationWorkers <= 0 {
		return 1
	}
	return c.AggregationWorkers
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
