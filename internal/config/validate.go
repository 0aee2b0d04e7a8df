package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"avatarmig/internal/naming"
	"avatarmig/internal/profile"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if err := c.validateMigration(); err != nil {
		return err
	}
	if err := c.validateSigning(); err != nil {
		return err
	}
	if err := c.validateS3(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMigration() error {
	if _, err := profile.ParseDisplay(c.Migration.Display); err != nil {
		return fmt.Errorf("migration.display: %w", err)
	}
	if _, err := profile.ParsePublisher(c.Migration.Publisher); err != nil {
		return fmt.Errorf("migration.publisher: %w", err)
	}
	for _, prefix := range c.Migration.LegacyPrefixes {
		parsed, err := url.Parse(prefix)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("migration.legacy_prefixes: %q is not an absolute URL", prefix)
		}
	}
	if strings.ContainsAny(c.Migration.SourceExtension, `/\`) {
		return fmt.Errorf("migration.source_extension: must not contain path separators")
	}
	return nil
}

func (c *Config) validateSigning() error {
	for name := range c.Signing.Keys {
		if _, err := profile.ParsePublisher(name); err != nil {
			return fmt.Errorf("signing.keys: %w", err)
		}
	}
	return nil
}

func (c *Config) validateS3() error {
	if c.Migration.Source != "s3" && c.Signing.Backend != "s3" {
		return nil
	}
	if c.S3.Region == "" {
		return errors.New("s3.region must be set when an s3 backend is selected")
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		return errors.New("s3.access_key_id and s3.secret_access_key must be set together")
	}
	return nil
}

// ValidateRun checks the settings only a migrating run needs: credentials,
// the naming key, and the picture publisher's signing key. Listing and
// config inspection do not call it.
func (c *Config) ValidateRun() error {
	if c.Auth.ClientID == "" {
		return fmt.Errorf("auth.client_id must be set (or %s)", envClientID)
	}
	if c.Auth.ClientSecret == "" {
		return fmt.Errorf("auth.client_secret must be set (or %s)", envClientSecret)
	}
	if len(c.Naming.Secret) < naming.MinSecretLength {
		return fmt.Errorf("naming.secret must be at least %d bytes (or %s)", naming.MinSecretLength, envNamingSecret)
	}
	if c.Migration.Source == "dir" && c.Paths.InputDir == "" {
		return errors.New("paths.input_dir must be set for the dir source")
	}
	publisher := c.PicturePublisher()
	if c.Signing.Keys[string(publisher)] == "" {
		return fmt.Errorf("signing.keys.%s must be set (or %s)", publisher, KeyEnvVar(publisher))
	}
	return nil
}

// ValidateAuth checks that a token exchange can be attempted.
func (c *Config) ValidateAuth() error {
	if c.Auth.ClientID == "" {
		return fmt.Errorf("auth.client_id must be set (or %s)", envClientID)
	}
	if c.Auth.ClientSecret == "" {
		return fmt.Errorf("auth.client_secret must be set (or %s)", envClientSecret)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		e := validationErrors[0]
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", field, e.Tag(), e.Value())
	}
	return err
}
