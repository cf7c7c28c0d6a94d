package nut

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const layoutTrailer = "\n\n<?php $this->renderLayout($this->data); ?>"

// commentMarks swaps comments for placeholders during the directive and
// content passes so that tags inside them are never compiled. Placeholders
// are built around a marker that does not occur in the source, so literal
// text is never taken for one.
type commentMarks struct {
	marker   string
	re       *regexp.Regexp
	comments []string
}

func newCommentMarks(src string) *commentMarks {
	marker := "\x1a"
	for n := 0; strings.Contains(src, marker); n++ {
		marker = "\x1a" + strconv.Itoa(n) + "~"
	}
	q := regexp.QuoteMeta(marker)
	return &commentMarks{marker: marker, re: regexp.MustCompile(q + `(\d+)\n*` + q)}
}

// add records a comment and returns its placeholder. The placeholder keeps
// the comment's newlines so line structure survives the later passes.
func (cm *commentMarks) add(body, raw string) string {
	cm.comments = append(cm.comments, body)
	return cm.marker + strconv.Itoa(len(cm.comments)-1) + strings.Repeat("\n", strings.Count(raw, "\n")) + cm.marker
}

func (cm *commentMarks) strip(s string) string {
	return cm.re.ReplaceAllString(s, "")
}

func (cm *commentMarks) restore(doc string) string {
	return cm.re.ReplaceAllStringFunc(doc, func(p string) string {
		i, err := strconv.Atoi(cm.re.FindStringSubmatch(p)[1])
		if err != nil || i >= len(cm.comments) {
			return p
		}
		return hostComment(cm.comments[i])
	})
}

// edit is one replacement made by a pass: the output span starting at out
// stands for the input span starting at in.
type edit struct {
	in, inLen   int
	out, outLen int
}

// offsetMap maps offsets in a pass's output back to its input.
type offsetMap []edit

func (m offsetMap) origin(off int) int {
	i := sort.Search(len(m), func(i int) bool { return m[i].out > off }) - 1
	if i < 0 {
		return off
	}
	e := m[i]
	if off < e.out+e.outLen {
		return e.in
	}
	return e.in + e.inLen + off - (e.out + e.outLen)
}

// sourcePosition walks off back through maps, latest pass first, and
// reports where it lies in src.
func sourcePosition(src string, off int, maps ...offsetMap) Position {
	for _, m := range maps {
		off = m.origin(off)
	}
	return positionAt(src, off)
}

// Options configure a Compiler. The zero value compiles with DefaultTags,
// no filters, best-effort handling of malformed directives and
// slog.Default().
type Options struct {
	Tags   TagSet
	Filter Filter
	// Strict turns malformed directives into errors instead of inert
	// host comments.
	Strict bool
	Logger *slog.Logger
}

// Compiler turns nut templates into host code. It keeps no state between
// calls and may be shared by goroutines.
type Compiler struct {
	filter Filter
	strict bool
	log    *slog.Logger

	commentRe   *regexp.Regexp
	directiveRe *regexp.Regexp
	contentRe   *regexp.Regexp
}

func New(opts Options) (*Compiler, error) {
	tags := opts.Tags
	if tags.isZero() {
		tags = DefaultTags()
	}
	if err := tags.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tag set: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Compiler{
		filter:      opts.Filter,
		strict:      opts.Strict,
		log:         log,
		commentRe:   tags.commentPattern(),
		directiveRe: tags.directivePattern(),
		contentRe:   tags.contentPattern(),
	}, nil
}

// Result is a compiled template plus what it refers to.
type Result struct {
	Code     string
	Layout   string
	Includes []string
	Sections []string
}

// Compile rewrites src into host code.
func (c *Compiler) Compile(src string) (string, error) {
	res, err := c.CompileTemplate(src)
	if err != nil {
		return "", err
	}
	return res.Code, nil
}

// CompileTemplate runs the comment, directive and content passes in that
// order, then appends the layout render call if a layout was declared.
func (c *Compiler) CompileTemplate(src string) (*Result, error) {
	s := &compilation{c: c}

	marks := newCommentMarks(src)
	doc, comments := c.stripComments(src, marks)

	doc, directives, err := replaceMatches(c.directiveRe, doc, func(doc string, m []int) (string, error) {
		return s.dispatch(Invocation{
			Name: strings.TrimSpace(marks.strip(group(doc, m, 1))),
			Args: strings.TrimSpace(marks.strip(group(doc, m, 2))),
			Pos:  sourcePosition(src, m[0], comments),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("compiling directives: %w", err)
	}

	doc, _, err = replaceMatches(c.contentRe, doc, func(doc string, m []int) (string, error) {
		out, err := c.CompileContent(marks.strip(group(doc, m, 1)))
		if err != nil {
			return "", fmt.Errorf("%s: %w", sourcePosition(src, m[0], directives, comments), err)
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("compiling content: %w", err)
	}

	doc = marks.restore(doc)

	if n := len(s.switches); n > 0 {
		c.log.Warn("template ends inside a switch", "open", n)
	}
	if s.layout != "" {
		doc += layoutTrailer
	}

	return &Result{
		Code:     doc,
		Layout:   s.layout,
		Includes: s.includes,
		Sections: s.sections,
	}, nil
}

// CompileContent compiles the body of one content tag into an echo
// statement, applying any filters named after a '|'.
func (c *Compiler) CompileContent(expr string) (string, error) {
	shape, names := Analyze(expr)
	code, err := applyFilters(c.filter, names, compileShape(shape))
	if err != nil {
		return "", err
	}
	return "<?php echo " + code + " ?>", nil
}

func (c *Compiler) stripComments(src string, marks *commentMarks) (string, offsetMap) {
	doc, edits, _ := replaceMatches(c.commentRe, src, func(src string, m []int) (string, error) {
		return marks.add(strings.TrimSpace(group(src, m, 1)), src[m[0]:m[1]]), nil
	})
	return doc, edits
}

// replaceMatches rebuilds src with every match of re replaced by fn's
// result, stopping at the first error. The returned map locates each
// replacement in src.
func replaceMatches(re *regexp.Regexp, src string, fn func(src string, m []int) (string, error)) (string, offsetMap, error) {
	matches := re.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src, nil, nil
	}
	var b strings.Builder
	edits := make(offsetMap, 0, len(matches))
	last := 0
	for _, m := range matches {
		b.WriteString(src[last:m[0]])
		out, err := fn(src, m)
		if err != nil {
			return "", nil, err
		}
		edits = append(edits, edit{in: m[0], inLen: m[1] - m[0], out: b.Len(), outLen: len(out)})
		b.WriteString(out)
		last = m[1]
	}
	b.WriteString(src[last:])
	return b.String(), edits, nil
}

func group(src string, m []int, i int) string {
	if 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return src[m[2*i]:m[2*i+1]]
}
