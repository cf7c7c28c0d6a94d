package nut

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDirective   = errors.New("unknown directive")
	ErrMalformedDirective = errors.New("malformed directive")
	ErrMisplacedDirective = errors.New("misplaced directive")
	ErrNoFilter           = errors.New("no filter configured")
)

// Position is a 1-based line and column in the template.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

func positionAt(src string, offset int) Position {
	line, col := 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return Position{Line: line, Column: col}
}

type UnknownDirectiveError struct {
	Name string
	Pos  Position
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("%s: unknown directive %q", e.Pos, e.Name)
}

func (e *UnknownDirectiveError) Is(target error) bool { return target == ErrUnknownDirective }

type MalformedDirectiveError struct {
	Directive string
	Raw       string
	Pos       Position
}

func (e *MalformedDirectiveError) Error() string {
	return fmt.Sprintf("%s: cannot compile %s directive: %q", e.Pos, e.Directive, e.Raw)
}

func (e *MalformedDirectiveError) Is(target error) bool { return target == ErrMalformedDirective }

type MisplacedDirectiveError struct {
	Name string
	Pos  Position
}

func (e *MisplacedDirectiveError) Error() string {
	return fmt.Sprintf("%s: %s directive outside of a switch", e.Pos, e.Name)
}

func (e *MisplacedDirectiveError) Is(target error) bool { return target == ErrMisplacedDirective }
