package config

import (
	"fmt"
	"os"
	"strings"

	"avatarmig/internal/profile"
)

const (
	envClientID     = "AVATARMIG_CLIENT_ID"
	envClientSecret = "AVATARMIG_CLIENT_SECRET"
	envNamingSecret = "AVATARMIG_NAMING_SECRET"
	envKeyPrefix    = "CIS_SSM_"
	envKeySuffix    = "_KEY"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAuth()
	c.normalizeAPIs()
	c.normalizeMigration()
	c.normalizeNaming()
	c.normalizeS3()
	if err := c.normalizeSigning(); err != nil {
		return err
	}
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAuth() {
	c.Auth.TokenURL = strings.TrimSpace(c.Auth.TokenURL)
	c.Auth.Audience = strings.TrimSpace(c.Auth.Audience)
	c.Auth.ClientID = strings.TrimSpace(c.Auth.ClientID)
	if c.Auth.ClientID == "" {
		c.Auth.ClientID = strings.TrimSpace(os.Getenv(envClientID))
	}
	c.Auth.ClientSecret = strings.TrimSpace(c.Auth.ClientSecret)
	if c.Auth.ClientSecret == "" {
		c.Auth.ClientSecret = strings.TrimSpace(os.Getenv(envClientSecret))
	}
	c.Auth.Scopes = trimList(c.Auth.Scopes)
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = append([]string(nil), defaultScopes...)
	}
}

func (c *Config) normalizeAPIs() {
	c.PersonAPI.BaseURL = strings.TrimRight(strings.TrimSpace(c.PersonAPI.BaseURL), "/")
	c.ChangeAPI.BaseURL = strings.TrimRight(strings.TrimSpace(c.ChangeAPI.BaseURL), "/")
}

func (c *Config) normalizeMigration() {
	c.Migration.LegacyPrefixes = trimList(c.Migration.LegacyPrefixes)
	c.Migration.Display = strings.ToLower(strings.TrimSpace(c.Migration.Display))
	c.Migration.Publisher = strings.ToLower(strings.TrimSpace(c.Migration.Publisher))
	c.Migration.AvatarPathPrefix = strings.TrimSpace(c.Migration.AvatarPathPrefix)
	c.Migration.Source = strings.ToLower(strings.TrimSpace(c.Migration.Source))
	if c.Migration.Source == "" {
		c.Migration.Source = defaultSource
	}
	ext := strings.TrimSpace(c.Migration.SourceExtension)
	if ext == "" {
		ext = defaultSourceExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Migration.SourceExtension = ext
}

func (c *Config) normalizeNaming() {
	if strings.TrimSpace(c.Naming.Secret) == "" {
		c.Naming.Secret = os.Getenv(envNamingSecret)
	}
}

func (c *Config) normalizeS3() {
	c.S3.Region = strings.TrimSpace(c.S3.Region)
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.S3.AccessKeyID = strings.TrimSpace(c.S3.AccessKeyID)
	c.S3.SecretAccessKey = strings.TrimSpace(c.S3.SecretAccessKey)
}

func (c *Config) normalizeSigning() error {
	c.Signing.Backend = strings.ToLower(strings.TrimSpace(c.Signing.Backend))
	if c.Signing.Backend == "" {
		c.Signing.Backend = "file"
	}
	keys := make(map[string]string, len(c.Signing.Keys))
	for name, identifier := range c.Signing.Keys {
		name = strings.ToLower(strings.TrimSpace(name))
		identifier = strings.TrimSpace(identifier)
		if identifier == "" {
			continue
		}
		keys[name] = identifier
	}
	for _, publisher := range profile.Publishers() {
		if _, ok := keys[string(publisher)]; ok {
			continue
		}
		if value := strings.TrimSpace(os.Getenv(KeyEnvVar(publisher))); value != "" {
			keys[string(publisher)] = value
		}
	}
	if c.Signing.Backend == "file" {
		for name, identifier := range keys {
			expanded, err := expandPath(identifier)
			if err != nil {
				return fmt.Errorf("signing.keys.%s: %w", name, err)
			}
			keys[name] = expanded
		}
	}
	c.Signing.Keys = keys
	return nil
}

func (c *Config) normalizeLedger() error {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = ""
		return nil
	}
	expanded, err := expandPath(c.Ledger.Path)
	if err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	c.Ledger.Path = expanded
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// KeyEnvVar returns the environment variable consulted for a publisher key
// identifier when the config file leaves it unset.
func KeyEnvVar(publisher profile.PublisherAuthority) string {
	return envKeyPrefix + strings.ToUpper(string(publisher)) + envKeySuffix
}

func trimList(values []string) []string {
	out := values[:0:0]
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
