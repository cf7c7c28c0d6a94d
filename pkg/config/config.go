// Package config loads nut.yaml, the project file of the nutc tool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/nut/pkg/nut"
	v "github.com/neurodesk/nut/pkg/validator"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no --config is
// given.
const DefaultFile = "nut.yaml"

type Tags struct {
	Content   []string `yaml:"content,omitempty"`
	Directive []string `yaml:"directive,omitempty"`
	Comment   []string `yaml:"comment,omitempty"`
}

// ScriptExtensions are the file extensions accepted for filter scripts.
var ScriptExtensions = []string{".star", ".sky", ".bzl"}

type Filters struct {
	// Scripts are Starlark files whose functions become filters.
	Scripts []string          `yaml:"scripts,omitempty"`
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

type Config struct {
	Tags      Tags     `yaml:"tags,omitempty"`
	Strict    bool     `yaml:"strict"`
	Extension string   `yaml:"extension,omitempty"`
	Roots     []string `yaml:"roots,omitempty"`
	Filters   Filters  `yaml:"filters,omitempty"`
}

func Default() Config {
	d := nut.DefaultTags()
	return Config{
		Tags: Tags{
			Content:   []string{d.Content.Open, d.Content.Close},
			Directive: []string{d.Directive.Open, d.Directive.Close},
			Comment:   []string{d.Comment.Open, d.Comment.Close},
		},
		Extension: ".nut",
		Roots:     []string{"."},
	}
}

// Decode reads YAML on top of the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load decodes the file at path. Relative roots and script paths are taken
// relative to the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i, root := range cfg.Roots {
		cfg.Roots[i] = resolve(dir, root)
	}
	for i, script := range cfg.Filters.Scripts {
		cfg.Filters.Scripts[i] = resolve(dir, script)
	}
	return cfg, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (c Config) Validate() error {
	return v.All(
		v.Delimiters(c.Tags.Content, "tags.content"),
		v.Delimiters(c.Tags.Directive, "tags.directive"),
		v.Delimiters(c.Tags.Comment, "tags.comment"),
		v.NotEmpty(c.Extension, "extension"),
		func() error {
			if !strings.HasPrefix(c.Extension, ".") {
				return fmt.Errorf("extension must start with a dot, got %q", c.Extension)
			}
			return nil
		}(),
		v.Map(c.Roots, v.NotEmpty, "roots"),
		v.NoDuplicates(c.Roots, "roots"),
		v.Map(c.Filters.Scripts, func(script, description string) error {
			return v.All(
				v.NotEmpty(script, description),
				v.MatchesAllowed(filepath.Ext(script), ScriptExtensions, description+" extension"),
			)
		}, "filters.scripts"),
		v.MapDict(c.Filters.Aliases, func(name, target string) error {
			return v.All(
				v.NoWhitespace(name, "alias name"),
				v.NotEmpty(target, "alias target"),
				v.NoWhitespace(target, "alias target"),
			)
		}, "filters.aliases"),
		c.TagSet().Validate(),
	)
}

// TagSet converts the delimiter pairs. It assumes Validate has passed the
// pair lengths.
func (c Config) TagSet() nut.TagSet {
	pair := func(p []string) nut.Delims {
		if len(p) != 2 {
			return nut.Delims{}
		}
		return nut.Delims{Open: p[0], Close: p[1]}
	}
	return nut.TagSet{
		Content:   pair(c.Tags.Content),
		Directive: pair(c.Tags.Directive),
		Comment:   pair(c.Tags.Comment),
	}
}
