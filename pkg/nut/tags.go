package nut

import (
	"fmt"
	"regexp"

	v "github.com/neurodesk/nut/pkg/validator"
)

// Delims is an opening and closing tag delimiter pair.
type Delims struct {
	Open  string
	Close string
}

func (d Delims) validate(description string) error {
	return v.Delimiters([]string{d.Open, d.Close}, description)
}

// TagSet declares the three kinds of tags the compiler recognizes:
// content interpolation, directive invocation and comments.
type TagSet struct {
	Content   Delims
	Directive Delims
	Comment   Delims
}

// DefaultTags returns {{ }}, {@ } and {{-- --}}.
func DefaultTags() TagSet {
	return TagSet{
		Content:   Delims{Open: "{{", Close: "}}"},
		Directive: Delims{Open: "{@", Close: "}"},
		Comment:   Delims{Open: "{{--", Close: "--}}"},
	}
}

func (t TagSet) isZero() bool {
	return t == TagSet{}
}

// Validate rejects empty delimiters and tag sets whose passes would see the
// same regions. The comment opener may extend the content opener since
// comments are stripped first.
func (t TagSet) Validate() error {
	return v.All(
		t.Content.validate("content tag"),
		t.Directive.validate("directive tag"),
		t.Comment.validate("comment tag"),
		v.NoDuplicates([]string{t.Content.Open, t.Directive.Open}, "content and directive openers"),
		v.NoDuplicates([]string{t.Comment.Open, t.Directive.Open}, "comment and directive openers"),
		func() error {
			if t.Content == t.Comment {
				return fmt.Errorf("content and comment tags must differ, both are %s %s", t.Content.Open, t.Content.Close)
			}
			return nil
		}(),
	)
}

func (t TagSet) commentPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?s)` + regexp.QuoteMeta(t.Comment.Open) + `(.*?)` + regexp.QuoteMeta(t.Comment.Close))
}

func (t TagSet) directivePattern() *regexp.Regexp {
	return regexp.MustCompile(`(?s)` + regexp.QuoteMeta(t.Directive.Open) + `(.+?)(?::(.+?))?` + regexp.QuoteMeta(t.Directive.Close))
}

func (t TagSet) contentPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?s)` + regexp.QuoteMeta(t.Content.Open) + `\s*(.+?)\s*` + regexp.QuoteMeta(t.Content.Close))
}
