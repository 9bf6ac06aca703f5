package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Matching   MatchingConfig   `yaml:"matching"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Web        WebConfig        `yaml:"web"`
	Log        LogConfig        `yaml:"log"`

	// loadErrs holds environment values Load could not parse.
	loadErrs []error
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL, empty = in-memory store
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type MatchingConfig struct {
	Threshold      float64 `yaml:"threshold"`       // similarity must be strictly greater
	EmbeddingDim   int     `yaml:"embedding_dim"`   // defaults to 512
	Workers        int     `yaml:"workers"`         // sharded scan goroutines, 0 = GOMAXPROCS
	ParallelCutoff int     `yaml:"parallel_cutoff"` // snapshot size from which the scan is sharded
	HNSW           bool    `yaml:"hnsw"`            // approximate candidate search
	HNSWCandidates int     `yaml:"hnsw_candidates"`
}

type AttendanceConfig struct {
	Method   string `yaml:"method"`   // recorded as verified_by
	Timezone string `yaml:"timezone"` // IANA name used to derive the calendar date
}

// Location returns the configured time zone.
func (c *AttendanceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type ExtractorConfig struct {
	URL           string        `yaml:"url"` // defaults to http://localhost:8000
	Timeout       time.Duration `yaml:"timeout"`
	MaxImageBytes int64         `yaml:"max_image_bytes"` // larger images are downscaled first
	MaxImageSize  int           `yaml:"max_image_size"`  // max width or height in pixels
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // "*" allows any origin; localhost is always allowed
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float. An unset or empty
// variable yields the default; a value that does not parse is an error.
func envFloat(key string, defaultVal float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: invalid number %q", key, s)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated list, dropping empty items.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the configuration embedded in defaults.yaml.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the defaults overridden by environment variables.
func Load() *Config {
	d := Defaults()

	threshold, thresholdErr := envFloat("MATCH_THRESHOLD", d.Matching.Threshold)

	cfg := &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		Matching: MatchingConfig{
			Threshold:      threshold,
			EmbeddingDim:   envInt("EMBEDDING_DIM", d.Matching.EmbeddingDim),
			Workers:        envInt("MATCH_WORKERS", d.Matching.Workers),
			ParallelCutoff: envInt("MATCH_PARALLEL_CUTOFF", d.Matching.ParallelCutoff),
			HNSW:           envBool("MATCH_HNSW", d.Matching.HNSW),
			HNSWCandidates: envInt("MATCH_HNSW_CANDIDATES", d.Matching.HNSWCandidates),
		},
		Attendance: AttendanceConfig{
			Method:   envString("VERIFICATION_METHOD", d.Attendance.Method),
			Timezone: envString("ATTENDANCE_TIMEZONE", d.Attendance.Timezone),
		},
		Extractor: ExtractorConfig{
			URL:           envString("EXTRACTOR_URL", d.Extractor.URL),
			Timeout:       envDuration("EXTRACTOR_TIMEOUT", d.Extractor.Timeout),
			MaxImageBytes: int64(envInt("EXTRACTOR_MAX_IMAGE_BYTES", int(d.Extractor.MaxImageBytes))),
			MaxImageSize:  envInt("EXTRACTOR_MAX_IMAGE_SIZE", d.Extractor.MaxImageSize),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", d.Log.Level)),
			Format: strings.ToLower(envString("LOG_FORMAT", d.Log.Format)),
		},
	}
	if thresholdErr != nil {
		cfg.loadErrs = append(cfg.loadErrs, thresholdErr)
	}
	return cfg
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.loadErrs...)

	if math.IsNaN(c.Matching.Threshold) || c.Matching.Threshold < -1 || c.Matching.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be in [-1, 1), got %v", c.Matching.Threshold))
	}
	if c.Matching.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Matching.EmbeddingDim))
	}
	if c.Attendance.Method == "" {
		errs = append(errs, errors.New("VERIFICATION_METHOD must not be empty"))
	}
	if _, err := c.Attendance.Location(); err != nil {
		errs = append(errs, fmt.Errorf("ATTENDANCE_TIMEZONE: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
