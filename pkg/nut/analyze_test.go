package nut

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		expr string
		want Shape
	}{
		{
			name: "function call",
			expr: "format(a, b)",
			want: &FunctionCall{Name: "format", Args: []string{"a", "b"}},
		},
		{
			name: "function call with no arguments",
			expr: "now()",
			want: &FunctionCall{Name: "now"},
		},
		{
			name: "function call wins over ternary",
			expr: "f(a ? b : c)",
			want: &FunctionCall{Name: "f", Args: []string{"a ? b : c"}},
		},
		{
			name: "question mark ternary",
			expr: "a ? b : c",
			want: &Ternary{Operand: "a", Operator: "?", True: "b", False: "c"},
		},
		{
			name: "or ternary over a path",
			expr: "user.name or 'Guest'",
			want: &Ternary{Operand: "user.name", Operator: "or", True: "'Guest'"},
		},
		{
			name: "colons inside quotes and calls stay in the branch",
			expr: "a ? 'x:y' : f(b ?: c)",
			want: &Ternary{Operand: "a", Operator: "?", True: "'x:y'", False: "f(b ?: c)"},
		},
		{
			name: "path",
			expr: "user.name",
			want: &PathExpression{Steps: []PathStep{
				{Match: "user", Token: "user", Inner: "user"},
				{Match: ".name", Op: ".", Token: "name", Inner: "name"},
			}},
		},
		{
			name: "bracket index",
			expr: "items[0]",
			want: &PathExpression{Steps: []PathStep{
				{Match: "items", Token: "items", Inner: "items"},
				{Match: "[0]", Token: "[0]", Inner: "0"},
			}},
		},
		{
			name: "decimal is one token",
			expr: "3.14",
			want: &PathExpression{Steps: []PathStep{
				{Match: "3.14", Token: "3.14", Inner: "3.14"},
			}},
		},
		{
			name: "question mark inside quotes is not a ternary",
			expr: "'what?'",
			want: &PathExpression{Steps: []PathStep{
				{Match: "'what?'", Token: "'what?'", Inner: "'what?'"},
			}},
		},
		{
			name: "arithmetic",
			expr: "a + b",
			want: &ArithmeticExpression{Steps: []PathStep{
				{Match: "a", Token: "a", Inner: "a"},
				{Match: "+ b", Op: "+", Token: "b", Inner: "b"},
			}},
		},
		{name: "empty", expr: "   ", want: None{}},
		{name: "unterminated string", expr: "'open", want: None{}},
		{name: "dangling operator", expr: "a +", want: None{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Classify(tc.expr)); diff != "" {
				t.Errorf("Classify(%q) mismatch (-want +got):\n%s", tc.expr, diff)
			}
		})
	}
}

func TestMatchersOrder(t *testing.T) {
	var kinds []ShapeKind
	for _, m := range Matchers() {
		kinds = append(kinds, m.Kind)
	}
	want := []ShapeKind{KindFunctionCall, KindTernary, KindPath, KindArithmetic}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("matcher order mismatch (-want +got):\n%s", diff)
	}

	// Each matcher works on its own, regardless of priority.
	if _, ok := Matchers()[2].Match("a.b"); !ok {
		t.Fatalf("path matcher rejected a.b")
	}
	if _, ok := Matchers()[3].Match("a.b"); !ok {
		t.Fatalf("arithmetic matcher rejected a.b")
	}
	if _, ok := Matchers()[0].Match("a.b"); ok {
		t.Fatalf("function matcher accepted a.b")
	}
}

func TestAnalyzeFilters(t *testing.T) {
	cases := []struct {
		raw     string
		kind    ShapeKind
		filters []string
	}{
		{"name", KindPath, nil},
		{"name|upper", KindPath, []string{"upper"}},
		{"name|upper trim", KindPath, []string{"upper", "trim"}},
		{"name | upper | trim", KindPath, []string{"upper", "trim"}},
		{"a || b", KindTernary, nil},
		{"'a|b'", KindPath, nil},
		{"join(items, '|')|escape", KindFunctionCall, []string{"escape"}},
	}
	for _, tc := range cases {
		shape, filters := Analyze(tc.raw)
		if shape.Kind() != tc.kind {
			t.Errorf("Analyze(%q) kind = %s, want %s", tc.raw, shape.Kind(), tc.kind)
		}
		if diff := cmp.Diff(tc.filters, filters); diff != "" {
			t.Errorf("Analyze(%q) filters mismatch (-want +got):\n%s", tc.raw, diff)
		}
	}
}

func TestSplitTopLevel(t *testing.T) {
	got := splitTopLevel(`a, f(b, c), "d,e", [1, 2]`, ',')
	want := []string{"a", "f(b, c)", `"d,e"`, "[1, 2]"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("splitTopLevel mismatch (-want +got):\n%s", diff)
	}
	if parts := splitTopLevel("  ", ','); parts != nil {
		t.Fatalf("blank input gave %q", parts)
	}
}

func TestPretty(t *testing.T) {
	shape, filters := Analyze("a ? user.name : 'x'|upper")
	want := "Ternary(?)\n" +
		"  Path\n" +
		"    Step(\"\" \"a\") => $a\n" +
		"  Path\n" +
		"    Step(\"\" \"user\") => $user\n" +
		"    Step(\".\" \"name\") => ->name\n" +
		"  Path\n" +
		"    Step(\"\" \"'x'\") => 'x'\n" +
		"Filter(upper)\n"
	if diff := cmp.Diff(want, Pretty(shape, filters)); diff != "" {
		t.Fatalf("Pretty mismatch (-want +got):\n%s", diff)
	}
}
