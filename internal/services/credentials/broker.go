// Package credentials obtains and caches the bearer token used against the
// person and change APIs.
package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"avatarmig/internal/services"
)

const tokenRefreshLeeway = time.Minute

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{"read:fullprofile", "display:all"}

// Config describes the client-credentials exchange.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Scopes       []string
	Timeout      time.Duration
}

// TokenSource yields bearer tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Option customises Broker construction.
type Option func(*Broker)

// WithHTTPClient overrides the HTTP client used for token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Broker) {
		b.httpClient = client
	}
}

// WithClock overrides the time source used for expiry checks (tests).
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

// Broker exchanges client credentials for an access token and caches it
// until shortly before it expires.
type Broker struct {
	oauth      clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// NewBroker validates cfg and builds a Broker.
func NewBroker(cfg Config, opts ...Option) (*Broker, error) {
	var missing []string
	if strings.TrimSpace(cfg.TokenURL) == "" {
		missing = append(missing, "token_url")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		missing = append(missing, "client_id")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "credentials", "new broker", "missing "+strings.Join(missing, ", "), nil)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	params := url.Values{}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		params.Set("audience", aud)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := &Broker{
		oauth: clientcredentials.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			Scopes:         append([]string(nil), scopes...),
			EndpointParams: params,
			AuthStyle:      oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: timeout}
	}
	return b, nil
}

// Token returns a cached token or fetches a new one.
func (b *Broker) Token(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.valid() {
		return b.token.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	token, err := b.oauth.Token(ctx)
	if err != nil {
		var retrieve *oauth2.RetrieveError
		msg := "token request failed"
		if errors.As(err, &retrieve) && retrieve.Response != nil {
			msg = "token endpoint returned " + retrieve.Response.Status
		}
		return "", services.Wrap(services.ErrAuth, "credentials", "token", msg, err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return "", services.Wrap(services.ErrAuth, "credentials", "token", "empty access token", nil)
	}
	b.token = token
	return token.AccessToken, nil
}

// Invalidate drops the cached token so the next call refreshes.
func (b *Broker) Invalidate() {
	b.mu.Lock()
	b.token = nil
	b.mu.Unlock()
}

func (b *Broker) valid() bool {
	if b.token == nil || b.token.AccessToken == "" {
		return false
	}
	if b.token.Expiry.IsZero() {
		return true
	}
	return b.token.Expiry.Sub(b.now()) > tokenRefreshLeeway
}

// Static is a TokenSource returning a fixed token.
type Static string

// Token implements TokenSource.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", services.Wrap(services.ErrAuth, "credentials", "token", "empty static token", nil)
	}
	return string(s), nil
}
