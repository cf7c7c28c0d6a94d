package nut

import "fmt"

// Filter transforms compiled host code with an ordered list of filter
// names. It is implemented outside this package (see pkg/filters).
type Filter interface {
	Apply(names []string, expr string) (string, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(names []string, expr string) (string, error)

func (f FilterFunc) Apply(names []string, expr string) (string, error) { return f(names, expr) }

// applyFilters forwards to the filter collaborator. An empty name list
// leaves expr untouched.
func applyFilters(f Filter, names []string, expr string) (string, error) {
	if len(names) == 0 {
		return expr, nil
	}
	if f == nil {
		return "", fmt.Errorf("applying %v to %s: %w", names, expr, ErrNoFilter)
	}
	out, err := f.Apply(names, expr)
	if err != nil {
		return "", fmt.Errorf("applying filters %v: %w", names, err)
	}
	return out, nil
}
