// Package config loads application configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Sink    SinkConfig    `yaml:"sink" mapstructure:"sink"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Pager   PagerConfig   `yaml:"pager" mapstructure:"pager"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	PlanIt  PlanItConfig  `yaml:"planit" mapstructure:"planit"`
	Peering PeeringConfig `yaml:"peeringdb" mapstructure:"peeringdb"`
	WestLin WestLinConfig `yaml:"west_lindsey" mapstructure:"west_lindsey"`
	RTPI    RTPIConfig    `yaml:"rtpi" mapstructure:"rtpi"`
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SinkConfig selects and configures the persistence backend.
type SinkConfig struct {
	// Driver is one of "csv", "sqlite", "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DataDir     string `yaml:"data_dir" mapstructure:"data_dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RunLogPath  string `yaml:"runlog_path" mapstructure:"runlog_path"`
}

// SessionConfig configures the outbound HTTP client.
type SessionConfig struct {
	UserAgent   string             `yaml:"user_agent" mapstructure:"user_agent"`
	Referer     string             `yaml:"referer" mapstructure:"referer"`
	TimeoutSecs int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int                `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimits  map[string]float64 `yaml:"rate_limits" mapstructure:"rate_limits"`
}

// PagerConfig configures paginated fetching.
type PagerConfig struct {
	PageSize          int `yaml:"page_size" mapstructure:"page_size"`
	PolitenessDelayMS int `yaml:"politeness_delay_ms" mapstructure:"politeness_delay_ms"`
	// DefaultRetryAfterSecs applies when a 429 carries no Retry-After header.
	DefaultRetryAfterSecs int `yaml:"default_retry_after_secs" mapstructure:"default_retry_after_secs"`
}

// GeocodeConfig configures the postcode lookup service.
type GeocodeConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
}

// SourceFilter holds the post-normalization row filters for one source.
// Empty allowlists disable the corresponding filter.
type SourceFilter struct {
	TypeAllowlist []string `yaml:"type_allowlist" mapstructure:"type_allowlist"`
	SizeAllowlist []string `yaml:"size_allowlist" mapstructure:"size_allowlist"`
	MinSiteAreaHa float64  `yaml:"min_site_area_ha" mapstructure:"min_site_area_ha"`
}

// PlanItConfig configures the PlanIt planning-application sources.
type PlanItConfig struct {
	BaseURL          string       `yaml:"base_url" mapstructure:"base_url"`
	RenewablesSearch string       `yaml:"renewables_search" mapstructure:"renewables_search"`
	DatacentreSearch string       `yaml:"datacentre_search" mapstructure:"datacentre_search"`
	MonthsBack       int          `yaml:"months_back" mapstructure:"months_back"`
	Filter           SourceFilter `yaml:"filter" mapstructure:"filter"`
	// MergePolicy is "existing_wins" (default) or "incoming_wins".
	MergePolicy string `yaml:"merge_policy" mapstructure:"merge_policy"`
}

// PeeringConfig configures the PeeringDB sources.
type PeeringConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Country string `yaml:"country" mapstructure:"country"`
}

// WestLinConfig configures the West Lindsey public-portal sources.
type WestLinConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	ApplicationID int    `yaml:"application_id" mapstructure:"application_id"`
}

// RTPIConfig configures the RTPI events source.
type RTPIConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MaxEvents int    `yaml:"max_events" mapstructure:"max_events"`
}

// ScrapeConfig configures driver invocation behavior.
type ScrapeConfig struct {
	TimeoutSecs   int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Timeout returns the session timeout as a duration.
func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout returns the geocode request timeout as a duration.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PolitenessDelay returns the inter-page pause as a duration.
func (c PagerConfig) PolitenessDelay() time.Duration {
	return time.Duration(c.PolitenessDelayMS) * time.Millisecond
}

// DefaultRetryAfter returns the fallback 429 wait as a duration.
func (c PagerConfig) DefaultRetryAfter() time.Duration {
	return time.Duration(c.DefaultRetryAfterSecs) * time.Second
}

// ScrapeTimeout returns the per-run wall-clock limit as a duration.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sink.driver", "csv")
	v.SetDefault("sink.data_dir", "data")
	v.SetDefault("sink.sqlite_path", "data/collector.db")
	v.SetDefault("sink.runlog_path", "data/runlog.db")
	v.SetDefault("session.user_agent", "collector-cli/1.0 (planning data research dashboard)")
	v.SetDefault("session.referer", "https://www.planit.org.uk/")
	v.SetDefault("session.timeout_secs", 30)
	v.SetDefault("session.max_retries", 3)
	v.SetDefault("pager.page_size", 300)
	v.SetDefault("pager.politeness_delay_ms", 500)
	v.SetDefault("pager.default_retry_after_secs", 60)
	v.SetDefault("geocode.base_url", "https://api.postcodes.io")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("planit.base_url", "https://www.planit.org.uk")
	v.SetDefault("planit.renewables_search",
		`"solar" or "solar farm" or photovoltaic or "battery energy storage" or bess -roof -domestic -householder`)
	v.SetDefault("planit.datacentre_search",
		`"data centre" or "data center" or datacenter or datacentre or "server farm" or "hosting facility" or "data storage" or "server hall"`)
	v.SetDefault("planit.months_back", 3)
	v.SetDefault("planit.filter.type_allowlist", []string{"full", "outline"})
	v.SetDefault("planit.filter.size_allowlist", []string{"large", "very large"})
	v.SetDefault("planit.filter.min_site_area_ha", 20.0)
	v.SetDefault("planit.merge_policy", "existing_wins")
	v.SetDefault("peeringdb.base_url", "https://www.peeringdb.com/api")
	v.SetDefault("peeringdb.country", "GB")
	v.SetDefault("west_lindsey.base_url", "https://westlindsey-publicportal.statmap.co.uk/horizoNext/api/publicportal")
	v.SetDefault("west_lindsey.application_id", 0)
	v.SetDefault("rtpi.base_url", "https://www.rtpi.org.uk")
	v.SetDefault("rtpi.max_events", 40)
	v.SetDefault("scrape.timeout_secs", 600)
	v.SetDefault("scrape.max_concurrent", 3)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
