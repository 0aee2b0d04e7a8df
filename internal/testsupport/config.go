package testsupport

import (
	"path/filepath"
	"testing"

	"avatarmig/internal/config"
)

// TestNamingSecret is the naming key placed in generated configs.
const TestNamingSecret = "testsupport-naming-secret-0123456789"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputDir = filepath.Join(base, "input")
	cfgVal.Paths.OutputDir = filepath.Join(base, "avatars")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Auth.ClientID = "test-client"
	cfgVal.Auth.ClientSecret = "test-secret"
	cfgVal.Naming.Secret = TestNamingSecret
	cfgVal.Signing.Keys = map[string]string{}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIs points the token, person, and change endpoints at baseURL.
func WithAPIs(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Auth.TokenURL = baseURL + "/oauth/token"
		b.cfg.PersonAPI.BaseURL = baseURL
		b.cfg.ChangeAPI.BaseURL = baseURL
	}
}

// WithSigningKey generates an RSA key for the picture publisher and
// registers its path in the signing configuration.
func WithSigningKey() ConfigOption {
	return func(b *configBuilder) {
		publisher := b.cfg.Migration.Publisher
		path := filepath.Join(b.baseDir, "keys", publisher+".pem")
		RSAKey(b.t, path)
		b.cfg.Signing.Keys[publisher] = path
	}
}

// WithLedger enables the run ledger.
func WithLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
