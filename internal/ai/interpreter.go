// Package ai defines the contract to the external AI providers that turn a
// score profile into a human-readable interpretation.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talentroute/assessd/internal/scoring"
)

// Interpretation is the parsed provider output.
type Interpretation struct {
	Summary     string
	Strengths   []string
	Suggestions []string
	Raw         string
	Provider    string
	GeneratedAt time.Time
}

// Interpreter produces an interpretation for a score profile. Calls may be
// slow and may fail transiently; callers decide the retry policy.
type Interpreter interface {
	Interpret(ctx context.Context, profile *scoring.Profile) (*Interpretation, error)
}

// ProviderError wraps a provider failure and records whether retrying could
// help.
type ProviderError struct {
	Provider  string
	Err       error
	Transient bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether the error is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// ErrUnknownProvider is returned when a provider/model key resolves to no
// configured interpreter.
var ErrUnknownProvider = errors.New("unknown ai provider")

// Providers resolves provider/model keys such as "gemini/gemini-2.5-flash"
// to configured interpreters. A bare provider name falls back to that
// provider's configured default model.
type Providers struct {
	byKey      map[string]Interpreter
	defaultKey string
}

// NewProviders creates an empty resolver with the given default key.
func NewProviders(defaultKey string) *Providers {
	return &Providers{byKey: make(map[string]Interpreter), defaultKey: defaultKey}
}

// Register binds an interpreter to both its full provider/model key and its
// bare provider alias. The first registration becomes the default when no
// default key was configured.
func (p *Providers) Register(provider, model string, interpreter Interpreter) {
	p.byKey[provider] = interpreter
	key := provider
	if model != "" {
		key = provider + "/" + model
		p.byKey[key] = interpreter
	}
	if p.defaultKey == "" {
		p.defaultKey = key
	}
}

// Resolve returns the interpreter for the key; an empty key resolves the
// default.
func (p *Providers) Resolve(key string) (Interpreter, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = p.defaultKey
	}
	if interpreter, ok := p.byKey[key]; ok {
		return interpreter, nil
	}
	// fall back to the bare provider when the model part is unconfigured
	if provider, _, found := strings.Cut(key, "/"); found {
		if interpreter, ok := p.byKey[provider]; ok {
			return interpreter, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
}

// DefaultKey returns the configured default provider/model key.
func (p *Providers) DefaultKey() string { return p.defaultKey }

// Keys lists the registered full provider/model keys.
func (p *Providers) Keys() []string {
	keys := make([]string, 0, len(p.byKey))
	for key := range p.byKey {
		if strings.Contains(key, "/") {
			keys = append(keys, key)
		}
	}
	return keys
}
