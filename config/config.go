package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Package config provides configuration management for the face crop service

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config struct to hold all configuration data
type Config struct {
	ListenAddr string `json:"listen_addr"`
	ModelPath  string `json:"model_path"`

	TargetFacePercent float64 `json:"target_face_percent"`
	PaddingPercent    float64 `json:"padding_percent"`
	EdgePolicy        string  `json:"edge_policy"` // pin, negative or shrink

	OutputSize    int    `json:"output_size"`   // 0 keeps the crop's native size
	OutputFormat  string `json:"output_format"` // png or jpeg
	Background    string `json:"background"`    // #rrggbb, #rrggbbaa or "transparent"
	Debug         bool   `json:"debug"`
	SmartFallback bool   `json:"smart_fallback"`

	MaxUploadBytes int64   `json:"max_upload_bytes"`
	RateLimit      float64 `json:"rate_limit"` // Requests per second per server, 0 disables
	RateBurst      int     `json:"rate_burst"`
	MaxConnections int     `json:"max_connections"`

	ModelLoadTimeout Duration `json:"model_load_timeout"`
	DetectTimeout    Duration `json:"detect_timeout"`

	Tuning TuningConfig `json:"tuning"`
}

// Duration is a time.Duration that reads and writes as "30s" in JSON.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a config with every value set to its default.
func Default() *Config {
	c := &Config{}
	c.setDefaultValues()
	return c
}

// Load reads the config file at filename over the defaults. A missing file is not an error.
func Load(filename string) (*Config, error) {
	c := Default()
	if err := c.loadFromFile(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("loading config %s: %w", filename, err)
	}
	return c, nil
}

// GetFilename returns the path to the user's config file
func GetFilename() string {
	return filepath.Join(GetPath(), "config.json")
}

// GetPath returns the path to the user's config directory
func GetPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Error getting user home directory: %v", err)
	}
	return filepath.Join(homeDir, "."+strings.ToLower(AppName))
}

// ResolvedModelPath returns ModelPath, or the cascade in the config directory when unset.
func (c *Config) ResolvedModelPath() string {
	if c.ModelPath != "" {
		return c.ModelPath
	}
	return filepath.Join(GetPath(), ModelFileName)
}

// loadFromFile loads configuration from the specified file
func (c *Config) loadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// setDefaultValues sets default values for the configuration
func (c *Config) setDefaultValues() {
	c.ListenAddr = "127.0.0.1:49453"
	c.ModelPath = ""
	c.TargetFacePercent = 0.6
	c.PaddingPercent = 0.1
	c.EdgePolicy = "pin"
	c.OutputSize = 0
	c.OutputFormat = "png"
	c.Background = "transparent"
	c.MaxUploadBytes = 20 << 20
	c.RateLimit = 5
	c.RateBurst = 10
	c.MaxConnections = 64
	c.ModelLoadTimeout = Duration{30 * time.Second}
	c.DetectTimeout = Duration{20 * time.Second}
	c.Tuning = DefaultTuningConfig()
}

// Validate rejects values the pipeline cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.TargetFacePercent <= 0 || c.TargetFacePercent > 1 {
		errs = append(errs, fmt.Errorf("target_face_percent must be in (0, 1], got %v", c.TargetFacePercent))
	}
	if c.PaddingPercent < 0 {
		errs = append(errs, fmt.Errorf("padding_percent must not be negative, got %v", c.PaddingPercent))
	}
	switch strings.ToLower(c.EdgePolicy) {
	case "", "pin", "negative", "shrink":
	default:
		errs = append(errs, fmt.Errorf("unknown edge_policy %q", c.EdgePolicy))
	}
	switch strings.ToLower(c.OutputFormat) {
	case "", "png", "jpeg", "jpg":
	default:
		errs = append(errs, fmt.Errorf("unknown output_format %q", c.OutputFormat))
	}
	if c.OutputSize < 0 {
		errs = append(errs, fmt.Errorf("output_size must not be negative, got %d", c.OutputSize))
	}
	if _, err := ParseColor(c.Background); err != nil {
		errs = append(errs, err)
	}
	if q := c.Tuning.EncodingQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("tuning.encoding_quality must be in [1, 100], got %d", q))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive"))
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst < 1) {
		errs = append(errs, fmt.Errorf("rate_limit must be >= 0 with a positive rate_burst"))
	}
	if c.ModelLoadTimeout.Duration <= 0 || c.DetectTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("timeouts must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Save saves the current configuration to filename, creating its directory.
func (c *Config) Save(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config data: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
