package nut

import (
	"regexp"
	"slices"
	"strings"
)

// ShapeKind identifies which matcher classified an expression.
type ShapeKind int

const (
	KindNone ShapeKind = iota
	KindFunctionCall
	KindTernary
	KindPath
	KindArithmetic
)

func (k ShapeKind) String() string {
	switch k {
	case KindFunctionCall:
		return "FunctionCall"
	case KindTernary:
		return "Ternary"
	case KindPath:
		return "Path"
	case KindArithmetic:
		return "Arithmetic"
	default:
		return "None"
	}
}

// Shape is the result of classifying an expression string.
type Shape interface {
	Kind() ShapeKind
}

// FunctionCall is name(arg, ...). Args are raw, unanalyzed strings.
type FunctionCall struct {
	Name string
	Args []string
}

func (*FunctionCall) Kind() ShapeKind { return KindFunctionCall }

// Ternary is an operand, one of ?, and, or, &&, ||, and up to two branches.
type Ternary struct {
	Operand  string
	Operator string
	True     string
	False    string
}

func (*Ternary) Kind() ShapeKind { return KindTernary }

// PathExpression is a chain of property steps joined by '.'.
type PathExpression struct {
	Steps []PathStep
}

func (*PathExpression) Kind() ShapeKind { return KindPath }

// ArithmeticExpression is a chain of operands joined by - + * / %.
type ArithmeticExpression struct {
	Steps []PathStep
}

func (*ArithmeticExpression) Kind() ShapeKind { return KindArithmetic }

// None means the expression matched no pattern; it compiles to ''.
type None struct{}

func (None) Kind() ShapeKind { return KindNone }

// PathStep is one (operator, token) pair of a path or arithmetic chain.
// Token keeps any wrapping brackets, Inner has them removed.
type PathStep struct {
	Match string
	Op    string
	Token string
	Inner string
}

func newStep(match, op, token string) PathStep {
	token = strings.TrimSpace(token)
	inner := token
	if len(token) >= 2 && token[0] == '[' && token[len(token)-1] == ']' {
		inner = token[1 : len(token)-1]
	}
	return PathStep{Match: strings.TrimSpace(match), Op: op, Token: token, Inner: inner}
}

const (
	quotedToken  = `'[^']*'|"[^"]*"`
	bracketToken = `\[[^\[\]]*\]`
	numberToken  = `\d+(?:\.\d+)?\b`
	pathToken    = quotedToken + `|` + bracketToken + `|` + numberToken + `|[^.\s\[\]'"+\-*/%()?:|&=<>!,]+`
	arithToken   = quotedToken + `|` + bracketToken + `|[^-+*/%'"\[\]]+`
)

var (
	functionRe  = regexp.MustCompile(`(?s)^(\w+)\((.*)\)$`)
	ternaryRe   = regexp.MustCompile(`(?s)^([^?]*)(\?| or | and |\|\||&&)(.*)$`)
	pathRe      = regexp.MustCompile(`^(?:\.?(?:` + pathToken + `))+$`)
	pathStepRe  = regexp.MustCompile(`(\.?)(` + pathToken + `)`)
	arithRe     = regexp.MustCompile(`(?s)^\s*(?:[-+*/%]?\s*(?:` + arithToken + `))+\s*$`)
	arithStepRe = regexp.MustCompile(`(?s)([-+*/%]?)\s*(` + arithToken + `)`)
)

// Matcher classifies an expression into one shape. Matchers are tried in
// order and the first that accepts wins.
type Matcher struct {
	Kind  ShapeKind
	Match func(expr string) (Shape, bool)
}

var matchers = []Matcher{
	{Kind: KindFunctionCall, Match: matchFunctionCall},
	{Kind: KindTernary, Match: matchTernary},
	{Kind: KindPath, Match: matchPath},
	{Kind: KindArithmetic, Match: matchArithmetic},
}

// Matchers returns the classification order: function call, ternary,
// path, arithmetic. Anything else is None.
func Matchers() []Matcher {
	return slices.Clone(matchers)
}

// Classify returns the shape of expr without looking for filters.
func Classify(expr string) Shape {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return None{}
	}
	for _, m := range matchers {
		if shape, ok := m.Match(expr); ok {
			return shape
		}
	}
	return None{}
}

// Analyze splits the trailing filter list off raw and classifies the rest.
// Filter names are returned in the order they are written.
func Analyze(raw string) (Shape, []string) {
	expr, filters := splitFilters(raw)
	return Classify(expr), filters
}

func matchFunctionCall(expr string) (Shape, bool) {
	m := functionRe.FindStringSubmatch(expr)
	if m == nil || !balanced(m[2]) {
		return nil, false
	}
	return &FunctionCall{Name: m[1], Args: splitTopLevel(m[2], ',')}, true
}

func matchTernary(expr string) (Shape, bool) {
	m := ternaryRe.FindStringSubmatch(expr)
	if m == nil || !balanced(m[1]) {
		return nil, false
	}
	// Branches split at the first ':' outside quotes and brackets.
	yes, no := m[3], ""
	if i := indexTopLevel(yes, func(s string, i int) bool { return s[i] == ':' }); i >= 0 {
		yes, no = yes[:i], yes[i+1:]
	}
	return &Ternary{
		Operand:  strings.TrimSpace(m[1]),
		Operator: strings.TrimSpace(m[2]),
		True:     strings.TrimSpace(yes),
		False:    strings.TrimSpace(no),
	}, true
}

func matchPath(expr string) (Shape, bool) {
	if !pathRe.MatchString(expr) {
		return nil, false
	}
	var steps []PathStep
	for _, m := range pathStepRe.FindAllStringSubmatch(expr, -1) {
		steps = append(steps, newStep(m[0], m[1], m[2]))
	}
	return &PathExpression{Steps: steps}, true
}

func matchArithmetic(expr string) (Shape, bool) {
	if !arithRe.MatchString(expr) {
		return nil, false
	}
	var steps []PathStep
	for _, m := range arithStepRe.FindAllStringSubmatch(expr, -1) {
		if strings.TrimSpace(m[0]) == "" {
			continue
		}
		steps = append(steps, newStep(m[0], m[1], m[2]))
	}
	if len(steps) == 0 {
		return nil, false
	}
	return &ArithmeticExpression{Steps: steps}, true
}

// splitFilters splits at the first top-level '|' that is not part of '||'.
func splitFilters(s string) (string, []string) {
	i := indexTopLevel(s, func(s string, i int) bool {
		if s[i] != '|' {
			return false
		}
		return (i == 0 || s[i-1] != '|') && (i+1 >= len(s) || s[i+1] != '|')
	})
	if i <= 0 {
		return s, nil
	}
	names := strings.FieldsFunc(s[i+1:], func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '|'
	})
	return s[:i], names
}

// indexTopLevel returns the first index outside quotes, parentheses and
// brackets at which at reports true, or -1.
func indexTopLevel(s string, at func(s string, i int) bool) int {
	depth := 0
	inStr := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr != 0 {
			if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inStr = c
			continue
		case '(', '[':
			depth++
			continue
		case ')', ']':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 && at(s, i) {
			return i
		}
	}
	return -1
}

// splitTopLevel splits s on sep outside quotes, parentheses and brackets.
// Parts are trimmed; an all-blank input yields no parts.
func splitTopLevel(s string, sep byte) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var parts []string
	for {
		i := indexTopLevel(s, func(s string, i int) bool { return s[i] == sep })
		if i < 0 {
			break
		}
		parts = append(parts, strings.TrimSpace(s[:i]))
		s = s[i+1:]
	}
	return append(parts, strings.TrimSpace(s))
}

// balanced reports whether quotes are closed and parentheses never go
// negative and end at zero.
func balanced(s string) bool {
	depth := 0
	inStr := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr != 0 {
			if c == inStr {
				inStr = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inStr = c
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && inStr == 0
}
