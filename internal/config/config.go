package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"retail-bi/internal/errors"
)

const envPrefix = "RETAILBI"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Data     DataConfig     `mapstructure:"data"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Security SecurityConfig `mapstructure:"security"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DataConfig locates the transaction source and the directory that receives
// the derived tables.
type DataConfig struct {
	Source    string   `mapstructure:"source" validate:"required"`
	OutputDir string   `mapstructure:"output_dir" validate:"required"`
	Formats   []string `mapstructure:"formats" validate:"min=1,dive,oneof=csv xlsx"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `mapstructure:"rate_limit_enabled"`
	RateLimitRPS    int      `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int      `mapstructure:"rate_limit_burst"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	TrustedProxies  []string `mapstructure:"trusted_proxies"`
}

type PipelineConfig struct {
	// ForecastHorizon is the number of future months projected.
	ForecastHorizon int `mapstructure:"forecast_horizon" validate:"min=1,max=36"`

	// SingleMonthPolicy decides what the forecast does with one observed
	// month: "fail" raises insufficient data, "flat" repeats the observation.
	SingleMonthPolicy string `mapstructure:"single_month_policy" validate:"oneof=fail flat"`

	// TopAssociations is the default page size for association listings.
	// The full table is always computed.
	TopAssociations int `mapstructure:"top_associations" validate:"min=1"`

	RFM RFMConfig `mapstructure:"rfm"`
}

type RFMConfig struct {
	DefaultScore    int                 `mapstructure:"default_score" validate:"min=1,max=5"`
	FallbackSegment string              `mapstructure:"fallback_segment" validate:"required"`
	Rules           []SegmentRuleConfig `mapstructure:"rules" validate:"dive"`
}

// SegmentRuleConfig assigns Segment when every threshold is met. A threshold
// of zero is unconstrained. FMAny ORs the frequency and monetary checks.
type SegmentRuleConfig struct {
	Segment   string `mapstructure:"segment" validate:"required"`
	Recency   int    `mapstructure:"recency" validate:"min=0,max=5"`
	Frequency int    `mapstructure:"frequency" validate:"min=0,max=5"`
	Monetary  int    `mapstructure:"monetary" validate:"min=0,max=5"`
	FMAny     bool   `mapstructure:"fm_any"`
}

// DefaultConfig returns the configuration used when no file or environment
// override is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8084,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Data: DataConfig{
			Source:    "retail_sales_data.csv",
			OutputDir: "out",
			Formats:   []string{"csv"},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    100,
			RateLimitBurst:  10,
			AllowedOrigins:  []string{"http://localhost:8084"},
			TrustedProxies:  []string{"127.0.0.1"},
		},
		Pipeline: PipelineConfig{
			ForecastHorizon:   3,
			SingleMonthPolicy: "fail",
			TopAssociations:   15,
			RFM: RFMConfig{
				DefaultScore:    3,
				FallbackSegment: "At Risk",
				Rules:           DefaultSegmentRules(),
			},
		},
	}
}

// DefaultSegmentRules is the stock rule table, evaluated top to bottom.
func DefaultSegmentRules() []SegmentRuleConfig {
	return []SegmentRuleConfig{
		{Segment: "Champions", Recency: 4, Frequency: 4, Monetary: 4},
		{Segment: "Loyal", Recency: 3, Frequency: 3},
		{Segment: "Potential", Recency: 2, Frequency: 2, Monetary: 2, FMAny: true},
	}
}

// envKeys are the scalar keys that may be overridden from the environment,
// e.g. RETAILBI_SERVER_PORT or RETAILBI_PIPELINE_FORECAST_HORIZON.
var envKeys = []string{
	"server.host",
	"server.port",
	"server.read_timeout",
	"server.write_timeout",
	"server.idle_timeout",
	"server.shutdown_timeout",
	"data.source",
	"data.output_dir",
	"data.formats",
	"logger.level",
	"logger.format",
	"security.rate_limit_enabled",
	"security.rate_limit_rps",
	"security.rate_limit_burst",
	"security.allowed_origins",
	"security.trusted_proxies",
	"pipeline.forecast_horizon",
	"pipeline.single_month_policy",
	"pipeline.top_associations",
	"pipeline.rfm.default_score",
	"pipeline.rfm.fallback_segment",
}

// Load reads configuration with the following precedence, highest first:
// environment (RETAILBI_*), the config file, DefaultConfig. The config file
// is configFile when set, otherwise ./retailbi.yaml or
// ~/.config/retailbi/retailbi.yaml if present.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("retailbi")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "retailbi"))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.ValidationWrap(err, "configuration violates field constraints")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, strings.ToLower(c.Logger.Level)) {
		return errors.Validation(fmt.Sprintf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, strings.ToLower(c.Logger.Format)) {
		return errors.Validation(fmt.Sprintf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", ")))
	}

	if c.Security.EnableRateLimit {
		if c.Security.RateLimitRPS <= 0 {
			return errors.Validation("rate limit RPS must be positive")
		}
		if c.Security.RateLimitBurst <= 0 {
			return errors.Validation("rate limit burst must be positive")
		}
	}

	seen := make(map[string]bool, len(c.Pipeline.RFM.Rules))
	for _, rule := range c.Pipeline.RFM.Rules {
		if seen[rule.Segment] {
			return errors.Validation(fmt.Sprintf("segment rule %q defined more than once", rule.Segment))
		}
		if rule.Segment == c.Pipeline.RFM.FallbackSegment {
			return errors.Validation(fmt.Sprintf("segment rule %q shadows the fallback segment", rule.Segment))
		}
		seen[rule.Segment] = true
	}

	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// HasFormat reports whether the derived tables should be written as format.
func (c *Config) HasFormat(format string) bool {
	return slices.Contains(c.Data.Formats, format)
}
