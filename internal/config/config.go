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
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	DataForSEO    DataForSEOConfig    `yaml:"dataforseo" mapstructure:"dataforseo"`
	SearchConsole SearchConsoleConfig `yaml:"search_console" mapstructure:"search_console"`
	Exports       ExportsConfig       `yaml:"exports" mapstructure:"exports"`
	Discovery     DiscoveryConfig     `yaml:"discovery" mapstructure:"discovery"`
	Retry         RetryConfig         `yaml:"retry" mapstructure:"retry"`
	Circuit       CircuitConfig       `yaml:"circuit" mapstructure:"circuit"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DataForSEOConfig holds DataForSEO Labs API credentials. The API serves
// keyword suggestions, competitor rankings and bulk keyword metadata.
type DataForSEOConfig struct {
	Login        string  `yaml:"login" mapstructure:"login"`
	Password     string  `yaml:"password" mapstructure:"password"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	LocationCode int     `yaml:"location_code" mapstructure:"location_code"`
	LanguageCode string  `yaml:"language_code" mapstructure:"language_code"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SearchConsoleConfig holds Google Search Console settings for the client's
// performance data.
type SearchConsoleConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	PropertyID      string `yaml:"property_id" mapstructure:"property_id"`
	SearchType      string `yaml:"search_type" mapstructure:"search_type"`
}

// ExportsConfig points at exported ranking/performance files used instead of
// (or alongside) live APIs.
type ExportsConfig struct {
	CompetitorDir   string `yaml:"competitor_dir" mapstructure:"competitor_dir"`
	PerformanceFile string `yaml:"performance_file" mapstructure:"performance_file"`
}

// DiscoveryConfig configures the keyword discovery pipeline.
type DiscoveryConfig struct {
	SuggestionLimit   int     `yaml:"suggestion_limit" mapstructure:"suggestion_limit"`
	CompetitorLimit   int     `yaml:"competitor_limit" mapstructure:"competitor_limit"`
	NarrowRowLimit    int     `yaml:"narrow_row_limit" mapstructure:"narrow_row_limit"`
	WideRowLimit      int     `yaml:"wide_row_limit" mapstructure:"wide_row_limit"`
	WindowDays        int     `yaml:"window_days" mapstructure:"window_days"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	ProviderRateLimit float64 `yaml:"provider_rate_limit" mapstructure:"provider_rate_limit"`
	NarrowTimeoutSecs int     `yaml:"narrow_timeout_secs" mapstructure:"narrow_timeout_secs"`
	WideTimeoutSecs   int     `yaml:"wide_timeout_secs" mapstructure:"wide_timeout_secs"`
	EnrichTimeoutSecs int     `yaml:"enrich_timeout_secs" mapstructure:"enrich_timeout_secs"`
}

// NarrowTimeout is the timeout for the collection-phase performance fetch.
func (d DiscoveryConfig) NarrowTimeout() time.Duration {
	return time.Duration(d.NarrowTimeoutSecs) * time.Second
}

// WideTimeout is the timeout for the cross-reference performance fetch.
func (d DiscoveryConfig) WideTimeout() time.Duration {
	return time.Duration(d.WideTimeoutSecs) * time.Second
}

// EnrichTimeout is the timeout for the bulk metadata call.
func (d DiscoveryConfig) EnrichTimeout() time.Duration {
	return time.Duration(d.EnrichTimeoutSecs) * time.Second
}

// RetryConfig configures bounded retries of provider calls. MaxAttempts of 1
// disables retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-provider circuit breakers. A zero threshold
// disables them.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RunTimeoutSecs int      `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KEYWORDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "keywords.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.run_timeout_secs", 300)
	v.SetDefault("dataforseo.base_url", "https://api.dataforseo.com/v3")
	v.SetDefault("dataforseo.location_code", 2840)
	v.SetDefault("dataforseo.language_code", "en")
	v.SetDefault("dataforseo.rate_limit", 10)
	v.SetDefault("dataforseo.timeout_secs", 60)
	v.SetDefault("search_console.search_type", "web")

	// Empty defaults so AutomaticEnv picks these up during Unmarshal.
	for _, key := range []string{
		"dataforseo.login",
		"dataforseo.password",
		"search_console.credentials_file",
		"search_console.property_id",
		"exports.competitor_dir",
		"exports.performance_file",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("discovery.suggestion_limit", 10)
	v.SetDefault("discovery.competitor_limit", 50)
	v.SetDefault("discovery.narrow_row_limit", 100)
	v.SetDefault("discovery.wide_row_limit", 2000)
	v.SetDefault("discovery.window_days", 28)
	v.SetDefault("discovery.concurrency", 5)
	v.SetDefault("discovery.provider_rate_limit", 10)
	v.SetDefault("discovery.narrow_timeout_secs", 30)
	v.SetDefault("discovery.wide_timeout_secs", 60)
	v.SetDefault("discovery.enrich_timeout_secs", 90)
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

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

// Validate checks the settings required by a command mode: "discover",
// "store" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "discover":
		errs = append(errs, c.validateDiscovery()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateDiscovery()...)
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateDiscovery() []string {
	var errs []string
	d := c.Discovery
	if d.Concurrency < 1 || d.Concurrency > 50 {
		errs = append(errs, "discovery.concurrency must be between 1 and 50")
	}
	if d.SuggestionLimit < 0 {
		errs = append(errs, "discovery.suggestion_limit must be >= 0")
	}
	if d.CompetitorLimit < 0 {
		errs = append(errs, "discovery.competitor_limit must be >= 0")
	}
	if d.NarrowRowLimit < 0 || d.WideRowLimit < 0 {
		errs = append(errs, "discovery row limits must be >= 0")
	}
	if d.WideRowLimit > 0 && d.NarrowRowLimit > d.WideRowLimit {
		errs = append(errs, "discovery.narrow_row_limit must not exceed discovery.wide_row_limit")
	}
	if (c.DataForSEO.Login == "") != (c.DataForSEO.Password == "") {
		errs = append(errs, "dataforseo.login and dataforseo.password must be set together (KEYWORDS_DATAFORSEO_LOGIN, KEYWORDS_DATAFORSEO_PASSWORD)")
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 10 {
		errs = append(errs, "retry.max_attempts must be between 0 and 10")
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required (KEYWORDS_STORE_DATABASE_URL)")
	}
	return errs
}

// HasDataForSEO reports whether DataForSEO credentials are configured.
func (c *Config) HasDataForSEO() bool {
	return c.DataForSEO.Login != "" && c.DataForSEO.Password != ""
}

// HasSearchConsole reports whether Search Console credentials are configured.
func (c *Config) HasSearchConsole() bool {
	return c.SearchConsole.CredentialsFile != ""
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
