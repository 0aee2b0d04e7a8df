package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"avatarmig/internal/fileutil"
	"avatarmig/internal/profile"
	"avatarmig/internal/signing"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir" validate:"required"`
	StateDir  string `toml:"state_dir" validate:"required"`
	LogDir    string `toml:"log_dir"`
}

// Auth contains the client-credentials settings for the identity provider.
type Auth struct {
	TokenURL     string   `toml:"token_url" validate:"required,url"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Audience     string   `toml:"audience"`
	Scopes       []string `toml:"scopes"`
}

// API contains the location of one remote directory endpoint.
type API struct {
	BaseURL string `toml:"base_url" validate:"required,url"`
}

// HTTP contains transport settings shared by every remote call.
type HTTP struct {
	RequestTimeoutSeconds int `toml:"request_timeout_seconds" validate:"min=1,max=600"`
}

// Migration contains the avatar migration rules.
type Migration struct {
	LegacyPrefixes   []string `toml:"legacy_prefixes" validate:"min=1,dive,required"`
	Display          string   `toml:"display" validate:"required"`
	Publisher        string   `toml:"publisher" validate:"required"`
	AvatarPathPrefix string   `toml:"avatar_path_prefix" validate:"required"`
	Workers          int      `toml:"workers" validate:"min=1,max=64"`
	Source           string   `toml:"source" validate:"oneof=dir s3"`
	SourceExtension  string   `toml:"source_extension"`
}

// Naming contains the external filename key.
type Naming struct {
	Secret string `toml:"secret"`
}

// S3 contains object storage access used by the s3 image source and the s3
// signing key backend.
type S3 struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	MaxRetries      int    `toml:"max_retries" validate:"min=0,max=20"`
}

// Signing contains publisher key identifiers.
type Signing struct {
	Backend string            `toml:"backend" validate:"oneof=file s3"`
	Keys    map[string]string `toml:"keys"`
}

// Ledger contains the local run history database settings.
type Ledger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications contains the optional ntfy endpoint for run summaries.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic" validate:"omitempty,url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" validate:"min=0,max=120"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" validate:"oneof=console json"`
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
}

// Config encapsulates all configuration values for avatarmig.
//
// Configuration sections by subsystem:
//   - Paths: input images, output tree, lock/ledger state, and logs
//   - Auth: client-credentials exchange for the bearer token
//   - PersonAPI, ChangeAPI: directory service endpoints
//   - HTTP: per-request timeout
//   - Migration: legacy detection and picture rewrite rules
//   - Naming: key for external avatar names
//   - S3: object storage for legacy images and signing keys
//   - Signing: publisher key identifiers
//   - Ledger: optional sqlite run history
//   - Notifications: optional ntfy run summaries
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Auth          Auth          `toml:"auth"`
	PersonAPI     API           `toml:"person_api"`
	ChangeAPI     API           `toml:"change_api"`
	HTTP          HTTP          `toml:"http"`
	Migration     Migration     `toml:"migration"`
	Naming        Naming        `toml:"naming"`
	S3            S3            `toml:"s3"`
	Signing       Signing       `toml:"signing"`
	Ledger        Ledger        `toml:"ledger"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a migration run writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// NotificationTimeout returns the ntfy request timeout.
func (c *Config) NotificationTimeout() time.Duration {
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request timeout for remote calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeoutSeconds) * time.Second
}

// LockPath returns the single-run lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "avatarmig.lock")
}

// LedgerPath returns the sqlite run history location.
func (c *Config) LedgerPath() string {
	if strings.TrimSpace(c.Ledger.Path) != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// PictureDisplay returns the configured display level for picture names.
func (c *Config) PictureDisplay() profile.Display {
	return profile.Display(c.Migration.Display)
}

// PicturePublisher returns the authority the rewritten picture is signed by.
func (c *Config) PicturePublisher() profile.PublisherAuthority {
	return profile.PublisherAuthority(c.Migration.Publisher)
}

// SigningKeys returns the key configuration for the secret store. The
// picture publisher is always required.
func (c *Config) SigningKeys() signing.KeyConfig {
	keys := make(map[profile.PublisherAuthority]string, len(c.Signing.Keys))
	for name, identifier := range c.Signing.Keys {
		keys[profile.PublisherAuthority(name)] = identifier
	}
	return signing.KeyConfig{
		Backend:  signing.Backend(c.Signing.Backend),
		Keys:     keys,
		Required: []profile.PublisherAuthority{c.PicturePublisher()},
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := fileutil.WriteFileAtomic(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
