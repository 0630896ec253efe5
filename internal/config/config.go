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

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Inference InferenceConfig `yaml:"inference"`
	Models    ModelsConfig    `yaml:"models"`
	Paths     PathsConfig     `yaml:"paths"`
	Matching  MatchingConfig  `yaml:"matching"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Annotate  AnnotateConfig  `yaml:"annotate"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
}

type InferenceConfig struct {
	URL     string        `yaml:"url"`     // inference server base URL
	Timeout time.Duration `yaml:"timeout"` // per-request HTTP timeout
}

// ModelsConfig holds the model files the inference server is asked to use.
// ShapePredictor and Recognition are required; MMOD is optional and selects
// the CNN detector when present.
type ModelsConfig struct {
	ShapePredictor string `yaml:"shape_predictor"`
	Recognition    string `yaml:"recognition"`
	MMOD           string `yaml:"mmod"`
}

type PathsConfig struct {
	Dataset    string `yaml:"dataset"`
	Embeddings string `yaml:"embeddings"`
}

type MatchingConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type DatasetConfig struct {
	Extensions []string `yaml:"extensions"`
	Progress   bool     `yaml:"progress"`
}

type AnnotateConfig struct {
	MaxSize int `yaml:"max_size"` // longest edge of the annotated output, 0 keeps the original size
	Quality int `yaml:"quality"`  // JPEG quality
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS whitelist, loopback origins are always allowed
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

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
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

// envList reads a comma separated list, e.g. ".jpg,.png".
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration from the embedded defaults, the optional
// YAML file at path (skipped when path is empty) and FACE_* environment variables,
// in that order of precedence from lowest to highest.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Inference.URL = envString("FACE_ENGINE_URL", c.Inference.URL)
	c.Inference.Timeout = envDuration("FACE_HTTP_TIMEOUT", c.Inference.Timeout)
	c.Models.ShapePredictor = envString("FACE_SHAPE_MODEL", c.Models.ShapePredictor)
	c.Models.Recognition = envString("FACE_RECOGNITION_MODEL", c.Models.Recognition)
	c.Models.MMOD = envString("FACE_MMOD_MODEL", c.Models.MMOD)
	c.Paths.Dataset = envString("FACE_DATASET_PATH", c.Paths.Dataset)
	c.Paths.Embeddings = envString("FACE_EMBEDDINGS_PATH", c.Paths.Embeddings)
	c.Matching.Threshold = envFloat("FACE_THRESHOLD", c.Matching.Threshold)
	c.Dataset.Extensions = envList("FACE_IMAGE_EXTENSIONS", c.Dataset.Extensions)
	c.Log.Level = envString("FACE_LOG_LEVEL", c.Log.Level)
	c.Log.JSON = envBool("FACE_LOG_JSON", c.Log.JSON)
	c.Server.Port = envInt("FACE_SERVER_PORT", c.Server.Port)
	c.Server.AllowedOrigins = envList("FACE_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
}

// Validate checks values that would otherwise fail far from where they were set.
func (c *Config) Validate() error {
	var errs []error
	if math.IsNaN(c.Matching.Threshold) || c.Matching.Threshold <= 0 || c.Matching.Threshold > 1 {
		errs = append(errs, fmt.Errorf("%w: threshold must be in (0, 1], got %v", ErrInvalid, c.Matching.Threshold))
	}
	if c.Inference.URL == "" {
		errs = append(errs, fmt.Errorf("%w: inference URL is empty", ErrInvalid))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: inference timeout must be positive", ErrInvalid))
	}
	if c.Annotate.Quality < 1 || c.Annotate.Quality > 100 {
		errs = append(errs, fmt.Errorf("%w: JPEG quality must be in [1, 100], got %d", ErrInvalid, c.Annotate.Quality))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: server port out of range: %d", ErrInvalid, c.Server.Port))
	}
	return errors.Join(errs...)
}
