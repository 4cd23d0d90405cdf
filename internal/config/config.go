package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kozaktomas/face-enroll/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Match      MatchConfig      `yaml:"match"`
	Database   DatabaseConfig   `yaml:"database"`
	Web        WebConfig        `yaml:"web"`
}

type EnrollmentConfig struct {
	Root        string `yaml:"root"`
	RawDir      string `yaml:"raw_dir"`     // enrollment folders (default <root>/database/raw)
	EncodedDir  string `yaml:"encoded_dir"` // index document and users dir (default <root>/database/encoded)
	ProfileFile string `yaml:"profile_file"`
	ImageFile   string `yaml:"image_file"`
}

// RawPath returns the raw enrollment directory.
func (c *EnrollmentConfig) RawPath() string {
	if c.RawDir != "" {
		return c.RawDir
	}
	return filepath.Join(c.Root, constants.DatabaseDir, constants.RawDir)
}

// EncodedPath returns the directory holding the index document and the users directory.
func (c *EnrollmentConfig) EncodedPath() string {
	if c.EncodedDir != "" {
		return c.EncodedDir
	}
	return filepath.Join(c.Root, constants.DatabaseDir, constants.EncodedDir)
}

// UsersPath returns the directory holding one encoded entry per id.
func (c *EnrollmentConfig) UsersPath() string {
	return filepath.Join(c.EncodedPath(), constants.UsersDir)
}

// IndexPath returns the index document location.
func (c *EnrollmentConfig) IndexPath() string {
	return filepath.Join(c.EncodedPath(), constants.IndexFile)
}

type EmbeddingConfig struct {
	URL          string `yaml:"url"`            // defaults to http://localhost:8000
	Model        string `yaml:"model"`          // reported model name, informational
	Dim          int    `yaml:"dim"`            // defaults to 512
	MaxImageSize int    `yaml:"max_image_size"` // longest side before upload, 0 disables resizing
}

type MatchConfig struct {
	Tolerance float64 `yaml:"tolerance"` // max cosine distance judged a match
	Nearest   int     `yaml:"nearest"`   // nearest users reported per face
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port the web server listens on.
func (c *WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
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

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString returns the environment variable, or defaultVal if it is unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the built-in defaults overridden by environment variables.
func Load() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile overlays the YAML file at path on the built-in defaults, then applies
// environment variables. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // user supplied config path
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Enrollment.Root = envString("FACE_ENROLL_ROOT", c.Enrollment.Root)
	c.Enrollment.RawDir = envString("FACE_ENROLL_RAW_DIR", c.Enrollment.RawDir)
	c.Enrollment.EncodedDir = envString("FACE_ENROLL_ENCODED_DIR", c.Enrollment.EncodedDir)
	c.Enrollment.ProfileFile = envString("FACE_ENROLL_PROFILE_FILE", c.Enrollment.ProfileFile)
	c.Enrollment.ImageFile = envString("FACE_ENROLL_IMAGE_FILE", c.Enrollment.ImageFile)

	c.Embedding.URL = envString("EMBEDDING_URL", c.Embedding.URL)
	c.Embedding.Model = envString("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dim = envInt("EMBEDDING_DIM", c.Embedding.Dim)
	c.Embedding.MaxImageSize = envInt("EMBEDDING_MAX_IMAGE_SIZE", c.Embedding.MaxImageSize)

	c.Match.Tolerance = envFloat("MATCH_TOLERANCE", c.Match.Tolerance)
	c.Match.Nearest = envInt("MATCH_NEAREST", c.Match.Nearest)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
}

// Validate rejects settings the enrollment cache cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Enrollment.ProfileFile == "" || c.Enrollment.ImageFile == "" {
		errs = append(errs, errors.New("enrollment profile_file and image_file must be set"))
	} else if c.Enrollment.ProfileFile == c.Enrollment.ImageFile {
		errs = append(errs, errors.New("enrollment profile_file and image_file must differ"))
	}
	if c.Match.Tolerance <= 0 || c.Match.Tolerance > 2 {
		errs = append(errs, fmt.Errorf("match tolerance %v out of range (0, 2]", c.Match.Tolerance))
	}
	if c.Match.Nearest < 0 || c.Match.Nearest > constants.MaxNearestLimit {
		errs = append(errs, fmt.Errorf("match nearest %d out of range [0, %d]", c.Match.Nearest, constants.MaxNearestLimit))
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web port %d out of range", c.Web.Port))
	}
	return errors.Join(errs...)
}
