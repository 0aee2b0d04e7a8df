package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIO            = errors.New("io error")
	ErrFormat        = errors.New("format error")
	ErrNetwork       = errors.New("network error")
	ErrAuth          = errors.New("auth error")
	ErrSigning       = errors.New("signing error")
	ErrSerialization = errors.New("serialization error")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ProfileScoped reports whether err only affects the profile being processed.
// Anything else (network, auth, configuration, unknown) ends the run.
func ProfileScoped(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrAuth), errors.Is(err, ErrConfiguration):
		return false
	case errors.Is(err, ErrIO), errors.Is(err, ErrFormat), errors.Is(err, ErrSigning), errors.Is(err, ErrSerialization):
		return true
	default:
		return false
	}
}

// Kind returns a stable short label for err suitable for logs and the ledger.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrSigning):
		return "signing"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
