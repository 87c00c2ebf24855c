// Package config loads lossdiff settings from a YAML file, the environment and
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
)

const (
	configName      = ".lossdiff"
	configType      = "yaml"
	envPrefix       = "LOSSDIFF"
	envKeySeparator = "_"
	maxPort         = 65535
)

// Sentinel validation errors.
var (
	ErrInvalidEpsilon     = errors.New("engine.epsilon must be a positive finite number")
	ErrInvalidPort        = errors.New("server.port must be between 1 and 65535")
	ErrInvalidTheme       = errors.New("plot.theme must be dark or light")
	ErrInvalidUploadSize  = errors.New("server.max_upload_size must be a positive size")
	ErrInvalidLogLevel    = errors.New("logging.level must be debug, info, warn or error")
	ErrInvalidLogFormat   = errors.New("logging.format must be text or json")
	ErrInvalidSampleRatio = errors.New("observability.sample_ratio must be between 0 and 1")
)

// Config holds every lossdiff setting.
type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Server        ServerConfig        `mapstructure:"server"`
	Plot          PlotConfig          `mapstructure:"plot"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// EngineConfig controls difference computation and series naming.
type EngineConfig struct {
	Epsilon float64 `mapstructure:"epsilon"`
	SeriesA string  `mapstructure:"series_a"`
	SeriesB string  `mapstructure:"series_b"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	MaxUploadSize string        `mapstructure:"max_upload_size"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	Port          int           `mapstructure:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UploadLimit returns MaxUploadSize in bytes. It is only meaningful after Validate.
func (s ServerConfig) UploadLimit() int64 {
	n, err := humanize.ParseBytes(s.MaxUploadSize)
	if err != nil || n > math.MaxInt64 {
		return 0
	}

	return int64(n)
}

// PlotConfig holds chart rendering settings.
type PlotConfig struct {
	Theme  string `mapstructure:"theme"`
	Height string `mapstructure:"height"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds telemetry export settings.
type ObservabilityConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// LoadConfig loads configuration from file, environment and defaults.
// If configPath is empty, .lossdiff.yaml is searched in the working directory
// and then $HOME. A missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{Epsilon: DefaultEpsilon, SeriesA: DefaultSeriesA, SeriesB: DefaultSeriesB},
		Server: ServerConfig{
			Host:          DefaultHost,
			Port:          DefaultPort,
			ReadTimeout:   DefaultReadTimeout,
			WriteTimeout:  DefaultWriteTimeout,
			IdleTimeout:   DefaultIdleTimeout,
			MaxUploadSize: DefaultMaxUploadSize,
		},
		Plot:          PlotConfig{Theme: DefaultTheme, Height: DefaultHeight},
		Logging:       LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Observability: ObservabilityConfig{SampleRatio: DefaultSampleRatio},
	}
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("engine.epsilon", DefaultEpsilon)
	viperCfg.SetDefault("engine.series_a", DefaultSeriesA)
	viperCfg.SetDefault("engine.series_b", DefaultSeriesB)

	viperCfg.SetDefault("server.host", DefaultHost)
	viperCfg.SetDefault("server.port", DefaultPort)
	viperCfg.SetDefault("server.read_timeout", DefaultReadTimeout)
	viperCfg.SetDefault("server.write_timeout", DefaultWriteTimeout)
	viperCfg.SetDefault("server.idle_timeout", DefaultIdleTimeout)
	viperCfg.SetDefault("server.max_upload_size", DefaultMaxUploadSize)

	viperCfg.SetDefault("plot.theme", DefaultTheme)
	viperCfg.SetDefault("plot.height", DefaultHeight)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.sample_ratio", DefaultSampleRatio)
}

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	eps := c.Engine.Epsilon
	if eps <= 0 || math.IsInf(eps, 0) || math.IsNaN(eps) {
		return fmt.Errorf("%w: %v", ErrInvalidEpsilon, eps)
	}

	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	if c.Server.UploadLimit() <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidUploadSize, c.Server.MaxUploadSize)
	}

	if c.Plot.Theme != ThemeDark && c.Plot.Theme != ThemeLight {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, c.Plot.Theme)
	}

	_, levelErr := observability.ParseLevel(c.Logging.Level)
	if levelErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Logging.Format != LogFormatText && c.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	ratio := c.Observability.SampleRatio
	if ratio < 0 || ratio > 1 || math.IsNaN(ratio) {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, ratio)
	}

	return nil
}

// Telemetry builds the observability settings for a run in the given mode.
// Call only after Validate.
func (c *Config) Telemetry(mode observability.AppMode, version string) observability.Config {
	level, _ := observability.ParseLevel(c.Logging.Level)

	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Environment = c.Observability.Environment
	cfg.Mode = mode
	cfg.OTLPEndpoint = c.Observability.OTLPEndpoint
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Observability.OTLPHeaders)
	cfg.OTLPInsecure = c.Observability.OTLPInsecure
	cfg.SampleRatio = c.Observability.SampleRatio
	cfg.LogLevel = level
	cfg.LogJSON = c.Logging.Format == LogFormatJSON
	cfg.Prometheus = mode == observability.ModeServe

	return cfg
}

// LogLevel returns the parsed logging level, or info when unset.
func (c *Config) LogLevel() slog.Level {
	level, _ := observability.ParseLevel(c.Logging.Level)

	return level
}
