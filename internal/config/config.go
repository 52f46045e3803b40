// Package config handles configuration loading for the simulator: an
// optional YAML file plus TANKERSIM_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tankersim/internal/store"
)

// Config holds all configuration values for the simulator.
type Config struct {
	// Database connection string.
	DatabaseURL string

	// Simulation cadence.
	TickInterval time.Duration

	// Minimum time a tanker remains in each status before it may transition.
	Dwell map[store.Status]time.Duration

	// Probability that a due InTransit tanker is delayed instead of arriving.
	DelayProbability float64

	// RNG seed for reproducible runs; 0 seeds from the wall clock.
	Seed int64

	// Bounded per-tanker concurrency within a pass.
	WorkerPoolSize int

	// Per-tanker commit timeout.
	CommitTimeout time.Duration

	// Tankers not updated for this long are skipped; 0 disables.
	DormantAfter time.Duration

	// Plausible speed band for the telemetry random walk.
	SpeedMinKmh float64
	SpeedMaxKmh float64

	// MQTT event publishing; empty broker disables it.
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Retrain trigger policy.
	RetrainInterval     time.Duration
	RetrainMinSamples   int
	RetrainInitialDelay time.Duration

	// Admin HTTP server (health, metrics).
	AdminPort int

	// OTLP trace collector endpoint.
	OTELEndpoint string
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables win over the file; DATABASE_URL is accepted both
// bare and as TANKERSIM_DATABASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tankersim")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TANKERSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("database_url", "TANKERSIM_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("tick_interval", 30*time.Second)
	v.SetDefault("dwell.at_source", 60*time.Minute)
	v.SetDefault("dwell.loading", 15*time.Minute)
	v.SetDefault("dwell.in_transit", 5*time.Hour)
	v.SetDefault("dwell.reached_destination", 45*time.Minute)
	v.SetDefault("dwell.unloading", 45*time.Minute)
	v.SetDefault("dwell.delayed", 60*time.Minute)
	v.SetDefault("delay_probability", 0.05)
	v.SetDefault("rng_seed", 0)
	v.SetDefault("worker_pool_size", 8)
	v.SetDefault("commit_timeout", 5*time.Second)
	v.SetDefault("dormant_after", time.Duration(0))
	v.SetDefault("speed_min_kmh", 60.0)
	v.SetDefault("speed_max_kmh", 80.0)
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_client_id", "tankersim")
	v.SetDefault("mqtt_username", "")
	v.SetDefault("mqtt_password", "")
	v.SetDefault("retrain_interval", time.Hour)
	v.SetDefault("retrain_min_samples", 50)
	v.SetDefault("retrain_initial_delay", 2*time.Minute)
	v.SetDefault("admin_port", 6161)
	v.SetDefault("otel_endpoint", "localhost:4317")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults plus env still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:  v.GetString("database_url"),
		TickInterval: v.GetDuration("tick_interval"),
		Dwell: map[store.Status]time.Duration{
			store.StatusAtSource:           v.GetDuration("dwell.at_source"),
			store.StatusLoading:            v.GetDuration("dwell.loading"),
			store.StatusInTransit:          v.GetDuration("dwell.in_transit"),
			store.StatusReachedDestination: v.GetDuration("dwell.reached_destination"),
			store.StatusUnloading:          v.GetDuration("dwell.unloading"),
			store.StatusDelayed:            v.GetDuration("dwell.delayed"),
		},
		DelayProbability:    v.GetFloat64("delay_probability"),
		Seed:                v.GetInt64("rng_seed"),
		WorkerPoolSize:      v.GetInt("worker_pool_size"),
		CommitTimeout:       v.GetDuration("commit_timeout"),
		DormantAfter:        v.GetDuration("dormant_after"),
		SpeedMinKmh:         v.GetFloat64("speed_min_kmh"),
		SpeedMaxKmh:         v.GetFloat64("speed_max_kmh"),
		MQTTBroker:          v.GetString("mqtt_broker"),
		MQTTClientID:        v.GetString("mqtt_client_id"),
		MQTTUsername:        v.GetString("mqtt_username"),
		MQTTPassword:        v.GetString("mqtt_password"),
		RetrainInterval:     v.GetDuration("retrain_interval"),
		RetrainMinSamples:   v.GetInt("retrain_min_samples"),
		RetrainInitialDelay: v.GetDuration("retrain_initial_delay"),
		AdminPort:           v.GetInt("admin_port"),
		OTELEndpoint:        v.GetString("otel_endpoint"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}
	if c.DelayProbability < 0 || c.DelayProbability > 1 {
		return fmt.Errorf("delay_probability must be within [0, 1], got %v", c.DelayProbability)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be at least 1, got %d", c.WorkerPoolSize)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.SpeedMinKmh <= 0 || c.SpeedMaxKmh <= c.SpeedMinKmh {
		return fmt.Errorf("speed band invalid: min %v, max %v", c.SpeedMinKmh, c.SpeedMaxKmh)
	}
	for status, d := range c.Dwell {
		if d <= 0 {
			return fmt.Errorf("dwell for %q must be positive, got %v", status, d)
		}
	}
	return nil
}
