// Package config provides the configuration structure for the voiceclone-service.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// AudioConfig holds the reference-audio ingestion settings.
type AudioConfig struct {
	TargetSampleRate    int     `toml:"target_sample_rate"`
	SilenceThresholdDB  float64 `toml:"silence_threshold_db"`
	PeakTarget          float64 `toml:"peak_target"`
	MinReferenceSeconds float64 `toml:"min_reference_seconds"`
	MaxReferenceSeconds float64 `toml:"max_reference_seconds"`
	MaxUploadBytes      int64   `toml:"max_upload_bytes"`
}

// SynthesisConfig holds the synthesis request policy and engine settings.
type SynthesisConfig struct {
	Languages      []string `toml:"languages"`
	MaxTextLength  int      `toml:"max_text_length"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	EngineBinary   string   `toml:"engine_binary"`
	ModelPath      string   `toml:"model_path"`
}

// StoreConfig holds the artifact store settings.
type StoreConfig struct {
	ArtifactDir  string `toml:"artifact_dir"`
	TTLSeconds   int    `toml:"ttl_seconds"`
	SweepSeconds int    `toml:"sweep_seconds"`
}

// CatalogConfig holds the curated voice sample settings.
type CatalogConfig struct {
	SamplesDir string `toml:"samples_dir"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                       string `toml:"url"`
	SynthesisRequestSubject   string `toml:"synthesis_request_subject"`
	UploadObjectStoreBucket   string `toml:"upload_object_store_bucket"`
	ArtifactObjectStoreBucket string `toml:"artifact_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Audio     AudioConfig     `toml:"audio"`
	Synthesis SynthesisConfig `toml:"synthesis"`
	Store     StoreConfig     `toml:"store"`
	Catalog   CatalogConfig   `toml:"catalog"`
	NATS      NATSConfig      `toml:"nats"`
	Paths     PathsConfig     `toml:"paths"`
}

// RequestTimeout returns the per-request synthesis deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Synthesis.TimeoutSeconds) * time.Second
}

// ArtifactTTL returns how long a stored artifact remains retrievable.
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Store.TTLSeconds) * time.Second
}

// SweepInterval returns how often expired artifacts are removed.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Store.SweepSeconds) * time.Second
}

// Load loads the configuration for the voiceclone-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
