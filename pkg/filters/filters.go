// Package filters implements the filter collaborator of the nut compiler:
// a registry of macros that rewrite compiled host code, such as wrapping
// it in an escaping call.
package filters

import (
	"fmt"
	"slices"
	"sync"
)

// Macro rewrites one compiled host expression.
type Macro func(expr string) (string, error)

type UnknownFilterError struct {
	Name string
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("unknown filter %q", e.Name)
}

// Registry maps filter names to macros. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	macros  map[string]Macro
	aliases map[string]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		macros:  make(map[string]Macro),
		aliases: make(map[string]string),
	}
}

// call builds a macro that wraps the expression in a host function call
// with optional trailing arguments.
func call(fn string, extra ...string) Macro {
	return func(expr string) (string, error) {
		args := expr
		for _, a := range extra {
			args += ", " + a
		}
		return fn + "(" + args + ")", nil
	}
}

var builtins = map[string]Macro{
	"upper":      call("strtoupper"),
	"lower":      call("strtolower"),
	"trim":       call("trim"),
	"escape":     call("htmlspecialchars", "ENT_QUOTES", "'UTF-8'"),
	"capitalize": call("ucfirst"),
	"title":      call("ucwords"),
	"length":     call("count"),
	"json":       call("json_encode"),
	"nl2br":      call("nl2br"),
	"striptags":  call("strip_tags"),
	"url":        call("urlencode"),
	"raw":        func(expr string) (string, error) { return expr, nil },
}

// Default returns a registry holding the built-in filters.
func Default() *Registry {
	r := New()
	for name, m := range builtins {
		r.macros[name] = m
	}
	return r
}

// Register adds or replaces a macro.
func (r *Registry) Register(name string, m Macro) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros[name] = m
}

// Alias makes name resolve to target. The target does not have to exist
// yet; it is looked up when the alias is applied.
func (r *Registry) Alias(name, target string) error {
	if name == target {
		return fmt.Errorf("filter alias %q refers to itself", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[name] = target
	return nil
}

// Names returns registered macro and alias names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.macros)+len(r.aliases))
	for name := range r.macros {
		names = append(names, name)
	}
	for name := range r.aliases {
		if _, ok := r.macros[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Lookup resolves aliases and returns the macro for name.
func (r *Registry) Lookup(name string) (Macro, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(name)
}

func (r *Registry) lookup(name string) (Macro, bool) {
	seen := map[string]bool{}
	for {
		if m, ok := r.macros[name]; ok {
			return m, true
		}
		target, ok := r.aliases[name]
		if !ok || seen[name] {
			return nil, false
		}
		seen[name] = true
		name = target
	}
}

// Apply runs the named macros left to right, so the first name ends up
// innermost. It satisfies nut.Filter.
func (r *Registry) Apply(names []string, expr string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		m, ok := r.lookup(name)
		if !ok {
			return "", &UnknownFilterError{Name: name}
		}
		out, err := m(expr)
		if err != nil {
			return "", fmt.Errorf("filter %s: %w", name, err)
		}
		expr = out
	}
	return expr, nil
}
