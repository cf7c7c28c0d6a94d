package validator

import (
	"fmt"
	"slices"
	"strings"
)

// All returns the first non-nil error.
func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

func Map[T any](items []T, f func(T, string) error, description string) error {
	for i, item := range items {
		if err := f(item, fmt.Sprintf("%s[%d]", description, i)); err != nil {
			return err
		}
	}
	return nil
}

func MapDict[T any](items map[string]T, f func(string, T) error, description string) error {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := f(key, items[key]); err != nil {
			return fmt.Errorf("%s[%q]: %w", description, key, err)
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func NoWhitespace(field, description string) error {
	if strings.ContainsAny(field, " \t\r\n") {
		return fmt.Errorf("%s must not contain whitespace, got %q", description, field)
	}
	return nil
}

func NoDuplicates[T comparable](slice []T, description string) error {
	seen := make(map[T]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

// Delimiters checks an (open, close) tag pair.
func Delimiters(pair []string, description string) error {
	if len(pair) != 2 {
		return fmt.Errorf("%s must have exactly two entries (open, close), got %d", description, len(pair))
	}
	return All(
		NotEmpty(pair[0], description+" open"),
		NotEmpty(pair[1], description+" close"),
		NoWhitespace(pair[0], description+" open"),
		NoWhitespace(pair[1], description+" close"),
	)
}
