package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/javanhut/vers/internal/cas"
	"github.com/javanhut/vers/internal/verr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Repository layout.
const (
	DefaultRoot = ".versions"
	LogFile     = "versions.db"
	IndexFile   = "index.db"
	LockFile    = "lock"
	ConfigFile  = "config.yaml"
)

// Environment overrides.
const (
	EnvRoot     = "VERS_ROOT"
	EnvLogLevel = "VERS_LOG_LEVEL"
)

// Dedup modes decide when add reports AlreadyExists.
const (
	// DedupPair: the same content was already added under the same filename.
	DedupPair = "pair"
	// DedupContent: the same content was already added under any filename.
	DedupContent = "content"
)

// Config represents the repository configuration. Everything except Root
// is stored in <root>/config.yaml.
type Config struct {
	Root        string `yaml:"-"`
	Hash        string `yaml:"hash"`
	Dedup       string `yaml:"dedup"`
	LogLevel    string `yaml:"log_level,omitempty"`
	LockTimeout string `yaml:"lock_timeout,omitempty"`
	Color       *bool  `yaml:"color,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	color := true
	return &Config{
		Root:        DefaultRoot,
		Hash:        cas.SHA256.Name(),
		Dedup:       DedupPair,
		LogLevel:    logrus.WarnLevel.String(),
		LockTimeout: "10s",
		Color:       &color,
	}
}

// ResolveRoot picks the repository root: flag value, then $VERS_ROOT,
// then the default.
func ResolveRoot(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvRoot); env != "" {
		return env
	}
	return DefaultRoot
}

// Load reads <root>/config.yaml over the defaults. A missing file is not an
// error. $VERS_LOG_LEVEL overrides the stored log level.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Root = root

	path := filepath.Join(root, ConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, verr.E(verr.ErrInvalidInput, "load config", path, errors.Wrap(err, "parsing yaml"))
		}
		mergeConfig(cfg, &fileCfg)
	case os.IsNotExist(err):
	default:
		return nil, verr.E(verr.ErrStorage, "load config", path, err)
	}

	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to <root>/config.yaml.
func (c *Config) Save() error {
	path := c.Path(ConfigFile)
	data, err := yaml.Marshal(c)
	if err != nil {
		return verr.E(verr.ErrInvalidInput, "save config", path, errors.Wrap(err, "marshal config"))
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return verr.E(verr.ErrStorage, "save config", path, err)
	}
	return nil
}

// Validate checks every field has a usable value.
func (c *Config) Validate() error {
	if c.Root == "" {
		return verr.Errorf(verr.ErrInvalidInput, "config", "", "empty repository root")
	}
	if _, err := cas.HasherByName(c.Hash); err != nil {
		return err
	}
	switch c.Dedup {
	case DedupPair, DedupContent:
	default:
		return verr.Errorf(verr.ErrInvalidInput, "config", c.Root, "unknown dedup mode %q", c.Dedup)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return verr.E(verr.ErrInvalidInput, "config", c.Root, err)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

// Hasher returns the configured digest function.
func (c *Config) Hasher() (cas.Hasher, error) {
	return cas.HasherByName(c.Hash)
}

// Timeout returns how long to wait for the repository lock.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.LockTimeout)
	if err != nil {
		return 0, verr.E(verr.ErrInvalidInput, "config", c.Root, errors.Wrap(err, "lock_timeout"))
	}
	if d <= 0 {
		return 0, verr.Errorf(verr.ErrInvalidInput, "config", c.Root, "lock_timeout must be positive, got %s", d)
	}
	return d, nil
}

// ColorEnabled reports the color setting.
func (c *Config) ColorEnabled() bool {
	return c.Color == nil || *c.Color
}

// Path joins name onto the repository root.
func (c *Config) Path(name string) string {
	return filepath.Join(c.Root, name)
}

// mergeConfig merges source config into destination config
// Only non-empty values from source override destination
func mergeConfig(dst, src *Config) {
	if src.Hash != "" {
		dst.Hash = src.Hash
	}
	if src.Dedup != "" {
		dst.Dedup = src.Dedup
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LockTimeout != "" {
		dst.LockTimeout = src.LockTimeout
	}
	if src.Color != nil {
		dst.Color = src.Color
	}
}
