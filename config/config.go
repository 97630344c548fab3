// Package config loads the process-wide settings: the embed-server endpoint,
// indexing defaults and logging. Values come from built-in defaults, an
// optional YAML file and EMBED_* environment variables, in that order of
// precedence. A Config is read once at start-up and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvAPIURL          = "EMBED_API_URL"
	EnvAPIKey          = "EMBED_API_KEY"
	EnvAPITimeout      = "EMBED_API_TIMEOUT"
	EnvDefaultProject  = "EMBED_DEFAULT_PROJECT"
	EnvIndexExtensions = "EMBED_INDEX_EXTENSIONS"
	EnvIndexBatchSize  = "EMBED_INDEX_BATCH_SIZE"
	EnvLogLevel        = "EMBED_LOG_LEVEL"
)

// Defaults.
const (
	DefaultAPIURL           = "http://localhost:8100"
	DefaultTimeout          = 10 * time.Minute
	DefaultMaxFileSizeBytes = 1024 * 1024
	DefaultIndexWorkers     = 8
	DefaultLogLevel         = "info"
)

// DefaultExtensions are indexed when a call does not name any.
var DefaultExtensions = []string{".go", ".py", ".js", ".ts", ".md"}

// Config holds every setting of the server.
type Config struct {
	APIURL         string        `yaml:"api_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	DefaultProject string        `yaml:"default_project"`
	Index          IndexConfig   `yaml:"index"`
	Log            LogConfig     `yaml:"log"`
}

// IndexConfig controls how index_project enumerates and uploads files.
type IndexConfig struct {
	Extensions       []string `yaml:"extensions"`
	BatchSize        int      `yaml:"batch_size"` // 0 = one request per call
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes"`
	Workers          int      `yaml:"workers"`
	Exclude          []string `yaml:"exclude"`
}

// LogConfig controls slog output. An empty File means stderr.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:  DefaultAPIURL,
		Timeout: DefaultTimeout,
		Index: IndexConfig{
			Extensions:       append([]string(nil), DefaultExtensions...),
			MaxFileSizeBytes: DefaultMaxFileSizeBytes,
			Workers:          DefaultIndexWorkers,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadYAML overlays non-zero values from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.mergeWith(parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other Config) {
	if other.APIURL != "" {
		c.APIURL = other.APIURL
	}
	if other.APIKey != "" {
		c.APIKey = other.APIKey
	}
	if other.Timeout != 0 {
		c.Timeout = other.Timeout
	}
	if other.DefaultProject != "" {
		c.DefaultProject = other.DefaultProject
	}
	if len(other.Index.Extensions) > 0 {
		c.Index.Extensions = other.Index.Extensions
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}
	if other.Index.MaxFileSizeBytes != 0 {
		c.Index.MaxFileSizeBytes = other.Index.MaxFileSizeBytes
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if len(other.Index.Exclude) > 0 {
		c.Index.Exclude = other.Index.Exclude
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}

// applyEnv overlays EMBED_* variables. Unset or empty variables are ignored.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := getenv(EnvAPITimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAPITimeout, err)
		}
		c.Timeout = d
	}
	if v := getenv(EnvDefaultProject); v != "" {
		c.DefaultProject = v
	}
	if v := getenv(EnvIndexExtensions); v != "" {
		c.Index.Extensions = SplitList(v)
	}
	if v := getenv(EnvIndexBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvIndexBatchSize, err)
		}
		c.Index.BatchSize = n
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api url %q: %w", c.APIURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api url %q must be an absolute http(s) URL", c.APIURL)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Index.BatchSize < 0 {
		return errors.New("index batch size must not be negative")
	}
	if c.Index.Workers <= 0 {
		return errors.New("index workers must be positive")
	}
	if c.Index.MaxFileSizeBytes <= 0 {
		return errors.New("index max file size must be positive")
	}
	if len(c.Index.Extensions) == 0 {
		return errors.New("at least one index extension is required")
	}
	return nil
}

// SplitList splits a comma-separated list, trimming blanks and dropping empties.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
