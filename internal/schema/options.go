package schema

import (
	"slices"

	"github.com/roach88/lattice/internal/ir"
)

// Default is a field's creation-time value: either a static Value or the
// name of a registered DefaultValueProvider. Exactly one is set.
type Default struct {
	Value ir.Value
	Func  string
}

// IsFunc reports whether the default is produced by a named provider.
func (d *Default) IsFunc() bool {
	return d != nil && d.Func != ""
}

// Options are the declared constraints of a field.
type Options struct {
	Optional bool     // field may be entirely absent
	Nullable bool     // value may be explicit null
	Default  *Default // applied at entity creation when no value is given
	Enum     []string // allowed values of a string register
}

// IsZero reports whether no option is set.
func (o Options) IsZero() bool {
	return !o.Optional && !o.Nullable && o.Default == nil && len(o.Enum) == 0
}

// Equal compares two option sets.
func (o Options) Equal(other Options) bool {
	if o.Optional != other.Optional || o.Nullable != other.Nullable {
		return false
	}
	if !slices.Equal(o.Enum, other.Enum) {
		return false
	}
	switch {
	case o.Default == nil || other.Default == nil:
		return o.Default == nil && other.Default == nil
	default:
		return o.Default.Func == other.Default.Func &&
			ir.EqualValues(o.Default.Value, other.Default.Value)
	}
}

// Option configures field Options.
type Option func(*Options)

// Optional allows the field to be absent.
func Optional() Option {
	return func(o *Options) { o.Optional = true }
}

// Nullable allows an explicit null value.
func Nullable() Option {
	return func(o *Options) { o.Nullable = true }
}

// WithDefault sets a static default. Values that cannot be represented as
// a scalar are ignored and reported by Validate.
func WithDefault(v any) Option {
	return func(o *Options) {
		val, err := ir.FromAny(v)
		if err != nil {
			val = nil
		}
		o.Default = &Default{Value: val}
	}
}

// WithDefaultFunc sets a default produced by the provider registered
// under name.
func WithDefaultFunc(name string) Option {
	return func(o *Options) { o.Default = &Default{Func: name} }
}

// WithEnum restricts a string register to values.
func WithEnum(values ...string) Option {
	return func(o *Options) { o.Enum = slices.Clone(values) }
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
