package schema

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Names of the built-in default providers.
const (
	DefaultFuncUUID = "uuid"
	DefaultFuncNow  = "now"
)

// DefaultValueProvider generates a field's default at entity creation.
// The result is coerced to the field's declared type like any input.
type DefaultValueProvider interface {
	Name() string
	DefaultValue() (any, error)
}

// UUIDProvider generates UUIDv7 strings.
type UUIDProvider struct{}

func (UUIDProvider) Name() string { return DefaultFuncUUID }

func (UUIDProvider) DefaultValue() (any, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}

// NowProvider returns the current time. Now defaults to time.Now.
type NowProvider struct {
	Now func() time.Time
}

func (NowProvider) Name() string { return DefaultFuncNow }

func (p NowProvider) DefaultValue() (any, error) {
	if p.Now != nil {
		return p.Now(), nil
	}
	return time.Now().UTC(), nil
}

// DefaultRegistry resolves default function names to providers.
type DefaultRegistry struct {
	providers map[string]DefaultValueProvider
}

// NewDefaultRegistry creates a registry holding providers. A later provider
// replaces an earlier one with the same name.
func NewDefaultRegistry(providers ...DefaultValueProvider) *DefaultRegistry {
	r := &DefaultRegistry{providers: make(map[string]DefaultValueProvider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *DefaultRegistry) Register(p DefaultValueProvider) {
	r.providers[p.Name()] = p
}

// Lookup returns the provider registered under name.
func (r *DefaultRegistry) Lookup(name string) (DefaultValueProvider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered names in sorted order.
func (r *DefaultRegistry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.providers))
}

// Config carries the settings schema operations depend on.
type Config struct {
	// DateFormat is the time layout date registers are stored in.
	DateFormat string
	// Defaults resolves named default functions.
	Defaults *DefaultRegistry
}

// DefaultConfig returns RFC 3339 dates with the uuid and now providers.
func DefaultConfig() Config {
	return Config{
		DateFormat: time.RFC3339Nano,
		Defaults:   NewDefaultRegistry(UUIDProvider{}, NowProvider{}),
	}
}

func (c Config) dateFormat() string {
	if c.DateFormat == "" {
		return time.RFC3339Nano
	}
	return c.DateFormat
}
