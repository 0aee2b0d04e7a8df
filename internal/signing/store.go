package signing

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"avatarmig/internal/objectstore"
	"avatarmig/internal/profile"
	"avatarmig/internal/services"
)

// Backend selects where key identifiers are resolved.
type Backend string

const (
	BackendFile Backend = "file"
	BackendS3   Backend = "s3"
)

// KeyConfig maps publishers to key identifiers.
type KeyConfig struct {
	Backend  Backend
	Keys     map[profile.PublisherAuthority]string
	Required []profile.PublisherAuthority
}

// KeyProvider returns the private key for a publisher.
type KeyProvider interface {
	PrivateKey(publisher profile.PublisherAuthority) (*rsa.PrivateKey, error)
}

// SecretStore holds loaded publisher keys. It is read-only after
// construction and safe for concurrent use.
type SecretStore struct {
	keys map[profile.PublisherAuthority]*rsa.PrivateKey
}

// StoreOption customises SecretStore construction.
type StoreOption func(*storeOptions)

type storeOptions struct {
	objects objectstore.GetObjectAPI
}

// WithObjectClient supplies the S3 client for the s3 backend.
func WithObjectClient(client objectstore.GetObjectAPI) StoreOption {
	return func(o *storeOptions) {
		o.objects = client
	}
}

// NewSecretStore loads every configured key. Construction fails when a
// required publisher has no identifier or any key cannot be loaded.
func NewSecretStore(ctx context.Context, cfg KeyConfig, opts ...StoreOption) (*SecretStore, error) {
	var options storeOptions
	for _, opt := range opts {
		opt(&options)
	}

	backend := cfg.Backend
	if backend == "" {
		backend = BackendFile
	}
	if backend != BackendFile && backend != BackendS3 {
		return nil, services.Wrap(services.ErrConfiguration, "signing", "secret store", fmt.Sprintf("unknown backend %q", backend), nil)
	}
	if backend == BackendS3 && options.objects == nil {
		return nil, services.Wrap(services.ErrConfiguration, "signing", "secret store", "s3 backend requires an object client", nil)
	}

	var missing []string
	for _, publisher := range cfg.Required {
		if strings.TrimSpace(cfg.Keys[publisher]) == "" {
			missing = append(missing, string(publisher))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, services.Wrap(services.ErrConfiguration, "signing", "secret store", "missing key identifiers for "+strings.Join(missing, ", "), nil)
	}

	store := &SecretStore{keys: make(map[profile.PublisherAuthority]*rsa.PrivateKey, len(cfg.Keys))}
	for publisher, identifier := range cfg.Keys {
		identifier = strings.TrimSpace(identifier)
		if identifier == "" {
			continue
		}
		pemBytes, err := loadKeyMaterial(ctx, backend, identifier, options.objects)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "signing", "load key", string(publisher), err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "signing", "parse key", string(publisher), err)
		}
		store.keys[publisher] = key
	}
	return store, nil
}

func loadKeyMaterial(ctx context.Context, backend Backend, identifier string, objects objectstore.GetObjectAPI) ([]byte, error) {
	switch backend {
	case BackendS3:
		bucket, key, ok := objectstore.ParseURI(identifier)
		if !ok {
			return nil, fmt.Errorf("identifier %q is not an s3:// uri", identifier)
		}
		return objectstore.Get(ctx, objects, bucket, key, 64<<10)
	default:
		return os.ReadFile(identifier)
	}
}

// PrivateKey implements KeyProvider.
func (s *SecretStore) PrivateKey(publisher profile.PublisherAuthority) (*rsa.PrivateKey, error) {
	key, ok := s.keys[publisher]
	if !ok {
		return nil, services.Wrap(services.ErrSigning, "signing", "lookup key", "no key for publisher "+string(publisher), nil)
	}
	return key, nil
}

// Publishers lists the publishers with a loaded key.
func (s *SecretStore) Publishers() []profile.PublisherAuthority {
	out := make([]profile.PublisherAuthority, 0, len(s.keys))
	for p := range s.keys {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
