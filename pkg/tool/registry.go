package tool

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/adrianliechti/wingman-pilot/pkg", "tool")

// Entry binds a tool to the provider that serves it.
type Entry struct {
	Tool     Tool
	Provider Provider
}

// Registry is the merged namespace of tools from all providers.
//
// Registration happens before any lookup; the registry is not safe for
// concurrent registration.
type Registry struct {
	strict  bool
	entries *orderedmap.OrderedMap[string, Entry]
}

type Option func(*Registry)

// WithStrict makes a name collision between providers an ErrToolConflict
// instead of letting the later registration shadow the earlier one.
func WithStrict(strict bool) Option {
	return func(r *Registry) {
		r.strict = strict
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: orderedmap.New[string, Entry](),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds tools under provider. A name that is already registered is
// taken over by the new registration and moves to the end of the list.
// In strict mode nothing from provider is registered if any name collides.
func (r *Registry) Register(provider Provider, tools []Tool) error {
	if r.strict {
		if conflicts := r.conflicts(provider, tools); len(conflicts) > 0 {
			return errors.Mark(errors.Newf("provider %s: tools already registered: %s", provider.Name(), strings.Join(conflicts, ", ")), ErrToolConflict)
		}
	}

	for _, t := range tools {
		if prev, ok := r.entries.Get(t.Name); ok {
			logger.KV(xlog.WARNING,
				"status", "tool_shadowed",
				"tool", t.Name,
				"previous", prev.Provider.Name(),
				"provider", provider.Name(),
			)

			r.entries.Delete(t.Name)
		}

		r.entries.Set(t.Name, Entry{
			Tool:     t,
			Provider: provider,
		})
	}

	return nil
}

func (r *Registry) conflicts(provider Provider, tools []Tool) []string {
	var result []string

	seen := map[string]bool{}

	for _, t := range tools {
		_, exists := r.entries.Get(t.Name)

		if exists || seen[t.Name] {
			result = append(result, t.Name)
		}

		seen[t.Name] = true
	}

	return result
}

// Resolve returns the provider serving name.
func (r *Registry) Resolve(name string) (Provider, error) {
	e, ok := r.entries.Get(name)

	if !ok {
		return nil, errors.Mark(errors.Newf("unknown tool: %s", name), ErrUnknownTool)
	}

	return e.Provider, nil
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	result := make([]Tool, 0, r.entries.Len())

	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value.Tool)
	}

	return result
}

// Entries returns the registered tools with their providers in registration order.
func (r *Registry) Entries() []Entry {
	result := make([]Entry, 0, r.entries.Len())

	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}

	return result
}

func (r *Registry) Len() int {
	return r.entries.Len()
}
