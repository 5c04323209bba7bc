package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	GeoNet  GeoNetConfig  `yaml:"geonet" mapstructure:"geonet"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Profile ProfileConfig `yaml:"profile" mapstructure:"profile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeoNetConfig configures the GeoNet catalog and FTP archive clients.
type GeoNetConfig struct {
	CatalogURL        string `yaml:"catalog_url" mapstructure:"catalog_url"`
	ArchiveURL        string `yaml:"archive_url" mapstructure:"archive_url"`
	CatalogWindowSecs int    `yaml:"catalog_window_secs" mapstructure:"catalog_window_secs"`
	VolumePrefix      string `yaml:"volume_prefix" mapstructure:"volume_prefix"`
	FileExtension     string `yaml:"file_extension" mapstructure:"file_extension"`
	RawDir            string `yaml:"raw_dir" mapstructure:"raw_dir"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPTimeoutSecs   int    `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
	FTPTimeoutSecs    int    `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	ParseWorkers      int    `yaml:"parse_workers" mapstructure:"parse_workers"`
}

// SearchConfig holds the default event search tolerances.
type SearchConfig struct {
	RadiusKM        float64 `yaml:"radius_km" mapstructure:"radius_km"`
	TimeWindowSecs  float64 `yaml:"time_window_secs" mapstructure:"time_window_secs"`
	DepthWindowKM   float64 `yaml:"depth_window_km" mapstructure:"depth_window_km"`
	MagnitudeWindow float64 `yaml:"magnitude_window" mapstructure:"magnitude_window"`
}

// StoreConfig configures the retrieval log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ProfileConfig locates the processing profile files read by GetProfile.
type ProfileConfig struct {
	DataDir     string `yaml:"data_dir" mapstructure:"data_dir"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GMPROCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geonet.catalog_url", "https://quakesearch.geonet.org.nz/csv?bbox=163.95996,-49.18170,182.63672,-32.28713&startdate=%s&enddate=%s")
	v.SetDefault("geonet.archive_url", "ftp://ftp.geonet.org.nz/strong/processed/Proc/[YEAR]/[MONTH]/")
	v.SetDefault("geonet.catalog_window_secs", 3600)
	v.SetDefault("geonet.volume_prefix", "Vol1")
	v.SetDefault("geonet.file_extension", "V1A")
	v.SetDefault("geonet.raw_dir", "")
	v.SetDefault("geonet.user_agent", "gmprocess-cli/1.0")
	v.SetDefault("geonet.http_timeout_secs", 30)
	v.SetDefault("geonet.ftp_timeout_secs", 30)
	v.SetDefault("geonet.max_attempts", 1)
	v.SetDefault("geonet.parse_workers", 1)
	v.SetDefault("search.radius_km", 100.0)
	v.SetDefault("search.time_window_secs", 16.0)
	v.SetDefault("search.depth_window_km", 30.0)
	v.SetDefault("search.magnitude_window", 0.3)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "gmprocess.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("profile.data_dir", "data")
	v.SetDefault("profile.environment", string(EnvProduction))

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

// Validate checks the settings required by the given command mode
// ("fetch", "serve" or "store").
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "fetch":
		problems = append(problems, c.validateGeoNet()...)
		problems = append(problems, c.validateSearch()...)
	case "serve":
		problems = append(problems, c.validateGeoNet()...)
		problems = append(problems, c.validateSearch()...)
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "store":
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateGeoNet() []string {
	var problems []string
	if c.GeoNet.CatalogURL == "" {
		problems = append(problems, "geonet.catalog_url is required")
	}
	if c.GeoNet.ArchiveURL == "" {
		problems = append(problems, "geonet.archive_url is required")
	}
	if c.GeoNet.MaxAttempts < 1 {
		problems = append(problems, "geonet.max_attempts must be >= 1")
	}
	if c.GeoNet.ParseWorkers < 1 || c.GeoNet.ParseWorkers > 32 {
		problems = append(problems, "geonet.parse_workers must be between 1 and 32")
	}
	return problems
}

func (c *Config) validateSearch() []string {
	var problems []string
	if c.Search.RadiusKM <= 0 {
		problems = append(problems, "search.radius_km must be > 0")
	}
	if c.Search.TimeWindowSecs <= 0 {
		problems = append(problems, "search.time_window_secs must be > 0")
	}
	if c.Search.DepthWindowKM <= 0 || c.Search.MagnitudeWindow <= 0 {
		problems = append(problems, "search depth and magnitude windows must be > 0")
	}
	return problems
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver)}
	}
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
	}
	return nil
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
