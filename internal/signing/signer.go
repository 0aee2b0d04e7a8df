package signing

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/golang-jwt/jwt/v5"

	"avatarmig/internal/profile"
	"avatarmig/internal/services"
)

const (
	// Algorithm is the only signature algorithm produced.
	Algorithm = "RS256"
	// TokenType is the JOSE typ header value.
	TokenType = "JWS"
)

// AttributeSigner signs a single attribute in place.
type AttributeSigner interface {
	Sign(attr profile.Signable) error
}

// Signer produces compact RS256 JWS signatures over attribute payloads.
type Signer struct {
	keys KeyProvider
}

// NewSigner builds a Signer drawing keys from provider.
func NewSigner(provider KeyProvider) *Signer {
	return &Signer{keys: provider}
}

// Sign replaces the publisher signature of attr.
func (s *Signer) Sign(attr profile.Signable) error {
	publisher := attr.PublisherName()
	if publisher == "" {
		return services.Wrap(services.ErrSigning, "signing", "sign", "attribute has no publisher", nil)
	}
	key, err := s.keys.PrivateKey(publisher)
	if err != nil {
		return err
	}
	payload, err := attr.SigningPayload()
	if err != nil {
		return services.Wrap(services.ErrSigning, "signing", "sign", "encode payload", err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return services.Wrap(services.ErrSigning, "signing", "sign", "decode payload", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["typ"] = TokenType
	signed, err := token.SignedString(key)
	if err != nil {
		return services.Wrap(services.ErrSigning, "signing", "sign", string(publisher), err)
	}

	attr.SetPublisherSignature(profile.PublisherSignature{
		Alg:   Algorithm,
		Typ:   TokenType,
		Name:  publisher,
		Value: signed,
	})
	return nil
}

// Check signs a sample attribute as publisher and verifies the result with
// the public half of the same key.
func (s *Signer) Check(publisher profile.PublisherAuthority) error {
	key, err := s.keys.PrivateKey(publisher)
	if err != nil {
		return err
	}
	var attr profile.StandardAttribute
	attr.Set("signing check")
	attr.Signature.Publisher.Name = publisher
	if err := s.Sign(&attr); err != nil {
		return err
	}
	return Verify(&attr, attr.Signature.Publisher.Value, &key.PublicKey)
}

// ErrSignatureMismatch is returned when a valid token covers other content.
var ErrSignatureMismatch = errors.New("signature does not cover attribute")

// Verify checks that signature is a valid RS256 token from pub covering the
// current payload of attr.
func Verify(attr profile.Signable, signature string, pub *rsa.PublicKey) error {
	token, err := jwt.Parse(signature, func(*jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{Algorithm}))
	if err != nil {
		return services.Wrap(services.ErrSigning, "signing", "verify", "", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Wrap(services.ErrSigning, "signing", "verify", "unexpected claims type", nil)
	}
	payload, err := attr.SigningPayload()
	if err != nil {
		return services.Wrap(services.ErrSigning, "signing", "verify", "encode payload", err)
	}
	want := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &want); err != nil {
		return services.Wrap(services.ErrSigning, "signing", "verify", "decode payload", err)
	}
	if !reflect.DeepEqual(map[string]any(claims), map[string]any(want)) {
		return services.Wrap(services.ErrSigning, "signing", "verify", "", ErrSignatureMismatch)
	}
	return nil
}
