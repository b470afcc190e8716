package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	secretScheme       = "secret://"
	legacySecretScheme = "sm://"
)

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secrets that resolved to an empty value.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed secret identifiers, safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// secretField binds a config field that may hold a secret reference to its public name.
type secretField struct {
	name  string
	value *string
}

// resolveSecrets replaces references in place and reports resolved values by field name.
func resolveSecrets(ctx context.Context, resolver SecretResolver, fields []secretField) (map[string]string, error) {
	resolved := make(map[string]string, len(fields))
	for _, field := range fields {
		raw := strings.TrimSpace(*field.value)
		if isSecretReference(raw) {
			ref := normalizeSecretReference(raw)
			if resolver == nil {
				return nil, &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
			}
			value, err := resolver.ResolveSecret(ctx, ref)
			if err != nil {
				return nil, &SecretError{Ref: ref, Err: err}
			}
			raw = strings.TrimSpace(value)
		}
		*field.value = raw
		resolved[field.name] = raw
	}
	return resolved, nil
}

func missingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var names []string
	seen := make(map[string]struct{}, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(value, secretScheme) || strings.HasPrefix(value, legacySecretScheme)
}

func normalizeSecretReference(value string) string {
	if rest, ok := strings.CutPrefix(value, legacySecretScheme); ok {
		return secretScheme + rest
	}
	return value
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
