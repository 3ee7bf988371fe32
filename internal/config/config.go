// Package config loads the forensics YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/blockstat/forensics/internal/generator"
	"github.com/blockstat/forensics/internal/mixer"
	"github.com/blockstat/forensics/internal/store"
)

// Config is the root configuration document.
type Config struct {
	General   GeneralConfig    `yaml:"general"`
	Backend   BackendConfig    `yaml:"backend"`
	Generator generator.Config `yaml:"generator"`
	Mixer     mixer.Options    `yaml:"mixer"`
	Cache     store.Config     `yaml:"cache"`
	Server    ServerConfig     `yaml:"server"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id" validate:"required"`
	Environment string `yaml:"environment" validate:"oneof=production staging development"`
	LogLevel    string `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat   string `yaml:"log_format" validate:"oneof=json text"`
	Seed        int64  `yaml:"seed"` // synthetic dataset seed; 0 means generator.DefaultSeed
}

// BackendConfig points at the analysis service. With Enabled false every
// analysis is synthetic.
type BackendConfig struct {
	Enabled             bool          `yaml:"enabled"`
	BaseURL             string        `yaml:"base_url" validate:"required_if=Enabled true,omitempty,url"`
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`
	PollInterval        time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxPollAttempts     int           `yaml:"max_poll_attempts" validate:"min=1"`
	DaysBack            int           `yaml:"days_back" validate:"min=1,max=365"`
	SampleSize          int           `yaml:"sample_size" validate:"min=1"`
	SyntheticRetryAfter time.Duration `yaml:"synthetic_retry_after" validate:"gt=0"` // cached fallback lifetime
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	Mode         string        `yaml:"mode" validate:"oneof=debug release test"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type MetricsConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Path                string        `yaml:"path"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Default returns a configuration that runs fully offline.
func Default() *Config {
	cfg := &Config{
		Generator: generator.DefaultConfig(),
		Mixer:     mixer.DefaultOptions(),
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads path, expands ${VAR} references from the environment, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Generator: generator.DefaultConfig(),
		Mixer:     mixer.DefaultOptions(),
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "forensics-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.General.Seed == 0 {
		cfg.General.Seed = generator.DefaultSeed
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Backend.PollInterval == 0 {
		cfg.Backend.PollInterval = 2 * time.Second
	}
	if cfg.Backend.MaxPollAttempts == 0 {
		cfg.Backend.MaxPollAttempts = 60
	}
	if cfg.Backend.DaysBack == 0 {
		cfg.Backend.DaysBack = 30
	}
	if cfg.Backend.SampleSize == 0 {
		cfg.Backend.SampleSize = 1000
	}
	if cfg.Backend.SyntheticRetryAfter == 0 {
		cfg.Backend.SyntheticRetryAfter = 30 * time.Second
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = store.DriverMemory
	}
	if cfg.Cache.Driver == store.DriverFile && cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "data/cache"
	}
	if cfg.Cache.Driver == store.DriverRedis && cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.HealthCheckInterval == 0 {
		cfg.Metrics.HealthCheckInterval = 30 * time.Second
	}
}

var validate = validator.New()

// Validate checks struct constraints plus the generator and mixer sections.
func (c *Config) Validate() error {
	var errs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	switch c.Cache.Driver {
	case store.DriverFile, store.DriverRedis, store.DriverMemory, store.DriverNone:
	default:
		errs = append(errs, fmt.Sprintf("cache.driver: unknown driver %q", c.Cache.Driver))
	}
	if err := c.Generator.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Mixer.MaxDepth < 1 {
		errs = append(errs, "mixer.max_depth: must be at least 1")
	}
	if !(c.Mixer.Decay > 0 && c.Mixer.Decay <= 1) {
		errs = append(errs, "mixer.decay: must be in (0, 1]")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
