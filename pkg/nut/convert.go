package nut

import (
	"fmt"
	"regexp"
	"strings"
)

// emptyLiteral is what an expression with no recognizable shape compiles to.
const emptyLiteral = "''"

var (
	numericRe = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)
	quotedRe  = regexp.MustCompile(`^['"]|['"]$`)
	bracketRe = regexp.MustCompile(`(?s)^\[.*\]$`)
)

func isArithmeticOp(op string) bool {
	switch op {
	case "-", "+", "*", "/", "%":
		return true
	}
	return false
}

// ConvertStep turns one path or arithmetic step into host code: a literal,
// a variable reference, a property access or an operator with its
// compiled right-hand side.
func ConvertStep(step PathStep) string {
	token := strings.TrimSpace(step.Token)

	if token == "" || numericRe.MatchString(token) || strings.HasPrefix(token, "$") {
		if step.Op != "" && step.Op != "." {
			return step.Match
		}
		return token
	}

	if step.Op == "" && bracketRe.MatchString(token) {
		return "[" + compileList(step.Inner) + "]"
	}

	quoted := quotedRe.MatchString(token)
	if step.Op == "." && !quoted {
		return "->" + token
	}

	if isArithmeticOp(step.Op) {
		return step.Op + " " + CompileExpression(token)
	}

	if quoted {
		return step.Match
	}

	if step.Op == "" {
		if code, ok := compileOperand(token); ok {
			return code
		}
	}
	return "$" + token
}

// compileOperand compiles a leading operand that is a call, a ternary or a
// path of more than one step. A single-step token is left to the caller.
func compileOperand(token string) (string, bool) {
	switch s := Classify(token).(type) {
	case *FunctionCall, *Ternary:
		return compileShape(s), true
	case *PathExpression:
		if len(s.Steps) > 1 {
			return compileShape(s), true
		}
	}
	return "", false
}

// CompileExpression classifies expr and compiles it to host code. Filters
// are not applied; an unrecognized expression compiles to ''.
func CompileExpression(expr string) string {
	return compileShape(Classify(expr))
}

func compileShape(shape Shape) string {
	switch s := shape.(type) {
	case *FunctionCall:
		args := make([]string, 0, len(s.Args))
		for _, arg := range s.Args {
			args = append(args, CompileExpression(arg))
		}
		return s.Name + "(" + strings.Join(args, ", ") + ")"
	case *Ternary:
		return compileTernary(s)
	case *PathExpression:
		var b strings.Builder
		for _, step := range s.Steps {
			b.WriteString(ConvertStep(step))
		}
		return b.String()
	case *ArithmeticExpression:
		parts := make([]string, 0, len(s.Steps))
		for _, step := range s.Steps {
			parts = append(parts, ConvertStep(step))
		}
		return strings.Join(parts, " ")
	default:
		return emptyLiteral
	}
}

// compileTernary: and/&& test the operand's value and or/|| test whether
// it is set. ? behaves like and unless its true branch is empty; then the
// branches swap and it behaves like or.
func compileTernary(t *Ternary) string {
	operand := CompileExpression(t.Operand)
	yes := CompileExpression(t.True)
	no := CompileExpression(t.False)

	switch t.Operator {
	case "?":
		if yes != emptyLiteral {
			return fmt.Sprintf("%s ? %s : %s", operand, yes, no)
		}
		yes, no = no, yes
		fallthrough
	case "or", "||":
		return fmt.Sprintf("isset(%s) ? %s : %s", operand, yes, no)
	default:
		return fmt.Sprintf("%s ? %s : %s", operand, yes, no)
	}
}

func compileList(inner string) string {
	items := splitTopLevel(inner, ',')
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, CompileExpression(item))
	}
	return strings.Join(out, ", ")
}
