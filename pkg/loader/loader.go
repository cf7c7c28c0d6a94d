// Package loader resolves template names such as "layouts.main" to their
// source text.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type ErrTemplateNotFound struct{ Name string }

func (e ErrTemplateNotFound) Error() string { return "template not found: " + e.Name }

// DirLoader looks names up below each root in turn. Dots in a name are
// directory separators and Ext is appended, so "layouts.main" with Ext
// ".nut" is layouts/main.nut.
type DirLoader struct {
	Roots []string
	Ext   string
}

// Path returns the file a name resolves to.
func (d DirLoader) Path(name string) (string, error) {
	rel, err := d.relPath(name)
	if err != nil {
		return "", err
	}
	for _, root := range d.Roots {
		p := filepath.Join(root, rel)
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrTemplateNotFound{name}
}

func (d DirLoader) Load(name string) (string, error) {
	p, err := d.Path(name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", name, err)
	}
	return string(b), nil
}

func (d DirLoader) relPath(name string) (string, error) {
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, `/\`) {
			return "", fmt.Errorf("invalid template name %q", name)
		}
	}
	return filepath.Join(parts...) + d.Ext, nil
}

// Name is the inverse of Path: it turns a file below root into a template
// name, or reports false when the file does not carry Ext.
func (d DirLoader) Name(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") || !strings.HasSuffix(rel, d.Ext) {
		return "", false
	}
	rel = strings.TrimSuffix(rel, d.Ext)
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "."), true
}
