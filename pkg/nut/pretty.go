package nut

import (
	"bytes"
	"fmt"
)

// Pretty returns a line-oriented description of a classified expression,
// nested shapes indented under their parent, followed by its filters.
func Pretty(shape Shape, filters []string) string {
	var buf bytes.Buffer
	ppShape(&buf, 0, shape)
	for _, name := range filters {
		fmt.Fprintf(&buf, "Filter(%s)\n", name)
	}
	return buf.String()
}

func ppShape(buf *bytes.Buffer, indent int, shape Shape) {
	ind := func() {
		for i := 0; i < indent; i++ {
			buf.WriteByte(' ')
		}
	}
	switch s := shape.(type) {
	case *FunctionCall:
		ind()
		fmt.Fprintf(buf, "FunctionCall(%s)\n", s.Name)
		for _, arg := range s.Args {
			ppShape(buf, indent+2, Classify(arg))
		}
	case *Ternary:
		ind()
		fmt.Fprintf(buf, "Ternary(%s)\n", s.Operator)
		ppShape(buf, indent+2, Classify(s.Operand))
		ppShape(buf, indent+2, Classify(s.True))
		ppShape(buf, indent+2, Classify(s.False))
	case *PathExpression:
		ind()
		buf.WriteString("Path\n")
		ppSteps(buf, indent+2, s.Steps)
	case *ArithmeticExpression:
		ind()
		buf.WriteString("Arithmetic\n")
		ppSteps(buf, indent+2, s.Steps)
	default:
		ind()
		buf.WriteString("None\n")
	}
}

func ppSteps(buf *bytes.Buffer, indent int, steps []PathStep) {
	for _, step := range steps {
		for i := 0; i < indent; i++ {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(buf, "Step(%q %q) => %s\n", step.Op, step.Token, ConvertStep(step))
	}
}
