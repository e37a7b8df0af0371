package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth for the HTTP surface.
	APIKey string

	// Detection defaults.
	Strategy            string
	Sensitivity         string
	HierarchyLevel      int
	MinFrontMatterUnits int

	// Split defaults.
	OutputDir        string
	FilenamePattern  string
	SplitWorkers     int
	PreserveMetadata bool

	// Upload limits.
	MaxUploadBytes int64

	// Server request handling.
	RequestTimeout time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("CHAPSPLIT_API_KEY"),

		Strategy:            envOr("DEFAULT_STRATEGY", "hybrid"),
		Sensitivity:         envOr("DEFAULT_SENSITIVITY", "medium"),
		HierarchyLevel:      envInt("DEFAULT_HIERARCHY_LEVEL", 1),
		MinFrontMatterUnits: envInt("MIN_FRONT_MATTER_UNITS", 2),

		OutputDir:        envOr("OUTPUT_DIR", "out"),
		FilenamePattern:  envOr("FILENAME_PATTERN", "{index:02d}_{title}"),
		SplitWorkers:     envInt("SPLIT_WORKERS", 4),
		PreserveMetadata: envBool("PRESERVE_METADATA", true),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		RequestTimeout: envDuration("REQUEST_TIMEOUT", 2*time.Minute),
	}

	if cfg.HierarchyLevel <= 0 {
		cfg.HierarchyLevel = 1
	}
	if cfg.MinFrontMatterUnits < 0 {
		cfg.MinFrontMatterUnits = 2
	}
	if cfg.SplitWorkers <= 0 {
		cfg.SplitWorkers = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("CHAPSPLIT_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
