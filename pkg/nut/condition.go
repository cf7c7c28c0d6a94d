package nut

import (
	"strings"
)

// conditionOps are tried longest first so that "===" is not read as "==".
var conditionOps = []string{"===", "!==", "==", "!=", ">=", "<=", "&&", "||", " and ", " or ", ">", "<"}

// CompileCondition compiles the boolean expression of an if or elseif
// directive. Comparison and logical operators split the text into
// operands, each compiled with CompileExpression; a leading ! or "not"
// negates an operand and parenthesized groups are compiled recursively.
func CompileCondition(raw string) string {
	operands, ops := splitCondition(strings.TrimSpace(raw))
	var b strings.Builder
	for i, operand := range operands {
		if i > 0 {
			b.WriteString(" ")
			b.WriteString(hostOperator(ops[i-1]))
			b.WriteString(" ")
		}
		b.WriteString(compileConditionOperand(operand))
	}
	return b.String()
}

func hostOperator(op string) string {
	switch strings.TrimSpace(op) {
	case "and":
		return "&&"
	case "or":
		return "||"
	}
	return op
}

func splitCondition(s string) (operands []string, ops []string) {
	for {
		var found string
		i := indexTopLevel(s, func(s string, i int) bool {
			for _, op := range conditionOps {
				if !strings.HasPrefix(s[i:], op) {
					continue
				}
				// "->" is a property access, not a comparison.
				if (op == ">" || op == ">=") && i > 0 && s[i-1] == '-' {
					return false
				}
				found = op
				return true
			}
			return false
		})
		if i < 0 {
			break
		}
		operands = append(operands, strings.TrimSpace(s[:i]))
		ops = append(ops, strings.TrimSpace(found))
		s = s[i+len(found):]
	}
	return append(operands, strings.TrimSpace(s)), ops
}

func compileConditionOperand(s string) string {
	neg := ""
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "!"):
			neg += "!"
			s = s[1:]
			continue
		case strings.HasPrefix(s, "not "):
			neg += "!"
			s = s[4:]
			continue
		}
		break
	}
	if inner, ok := unwrapParens(s); ok {
		return neg + "(" + CompileCondition(inner) + ")"
	}
	return neg + CompileExpression(s)
}

// unwrapParens strips one pair of parentheses enclosing all of s.
func unwrapParens(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", false
	}
	inner := s[1 : len(s)-1]
	if !balanced(inner) {
		return "", false
	}
	return inner, true
}
