// Package config loads daemon and worker configuration layered the way
// the teacher project layers its own: defaults, an optional
// notebook-local config.yaml overlay, then environment variables,
// wired through viper so callers can bind cobra flags on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables for notebookd and notebook-worker.
type Config struct {
	BindAddress string `mapstructure:"bind-address" yaml:"bind-address"`
	BearerToken string `mapstructure:"bearer-token" yaml:"bearer-token"`

	LeaseTTL    time.Duration `mapstructure:"lease-ttl" yaml:"lease-ttl"`
	MaxAttempts int           `mapstructure:"max-attempts" yaml:"max-attempts"`

	ReviewThreshold     float64 `mapstructure:"review-threshold" yaml:"review-threshold"`
	ContestedThreshold  float64 `mapstructure:"contested-threshold" yaml:"contested-threshold"`
	IntegratedThreshold float64 `mapstructure:"integrated-threshold" yaml:"integrated-threshold"`
	MinComparisons      int     `mapstructure:"min-comparisons" yaml:"min-comparisons"`

	CompareFanOut int `mapstructure:"compare-fan-out" yaml:"compare-fan-out"`
	HybridRRFK    int `mapstructure:"hybrid-rrf-k" yaml:"hybrid-rrf-k"`

	EmbeddingURL     string        `mapstructure:"embedding-url" yaml:"embedding-url"`
	EmbeddingTimeout time.Duration `mapstructure:"embedding-timeout" yaml:"embedding-timeout"`

	StoreBackend string `mapstructure:"store-backend" yaml:"store-backend"` // "memory" or "dolt"
	DoltPath     string `mapstructure:"dolt-path" yaml:"dolt-path"`
}

// Defaults returns the spec-mandated defaults: 60s lease TTL, 5
// max_attempts, review/contested/integrated thresholds of
// 0.2/0.5/0.2, M=20 compare fan-out, RRF k=60, 30s embedding deadline.
func Defaults() Config {
	return Config{
		BindAddress:         ":8080",
		LeaseTTL:            60 * time.Second,
		MaxAttempts:         5,
		ReviewThreshold:     0.2,
		ContestedThreshold:  0.5,
		IntegratedThreshold: 0.2,
		MinComparisons:      1,
		CompareFanOut:       20,
		HybridRRFK:          60,
		EmbeddingTimeout:    30 * time.Second,
		StoreBackend:        "memory",
		DoltPath:            ".notebook/dolt",
	}
}

// Load builds a Config from defaults, an optional YAML file at path (if
// it exists), and environment variables prefixed NOTEBOOK_, via viper.
// Env vars win over the file; the file wins over defaults. Only
// bind-address, bearer-token, store-backend, dolt-path and embedding-url
// are read from the environment; the other keys come from defaults and
// the file alone.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("NOTEBOOK")
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if v.IsSet("bind-address") {
		cfg.BindAddress = v.GetString("bind-address")
	}
	if v.IsSet("bearer-token") {
		cfg.BearerToken = v.GetString("bearer-token")
	}
	if v.IsSet("store-backend") {
		cfg.StoreBackend = v.GetString("store-backend")
	}
	if v.IsSet("dolt-path") {
		cfg.DoltPath = v.GetString("dolt-path")
	}
	if v.IsSet("embedding-url") {
		cfg.EmbeddingURL = v.GetString("embedding-url")
	}

	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("bind-address", cfg.BindAddress)
	v.SetDefault("bearer-token", cfg.BearerToken)
	v.SetDefault("store-backend", cfg.StoreBackend)
	v.SetDefault("dolt-path", cfg.DoltPath)
	v.SetDefault("embedding-url", cfg.EmbeddingURL)
}
