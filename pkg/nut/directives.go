package nut

import (
	"fmt"
	"slices"
	"strings"
)

// Invocation is one directive tag: its name, the raw text after the first
// colon, and where the tag starts.
type Invocation struct {
	Name string
	Args string
	Pos  Position
}

type directiveFunc func(s *compilation, inv Invocation) (string, error)

var directives = map[string]directiveFunc{
	"layout":     compileLayout,
	"section":    compileSection,
	"endsection": compileEndSection,
	"show":       compileShow,
	"set":        compileSet,
	"reset":      compileReset,
	"if":         compileIf,
	"elseif":     compileElseIf,
	"else":       compileElse,
	"endif":      compileClose,
	"for":        compileFor,
	"endfor":     compileClose,
	"switch":     compileSwitch,
	"case":       compileCase,
	"endswitch":  compileEndSwitch,
	"include":    compileInclude,
	"end":        compileClose,
}

// Directives returns the names of all known directives, sorted.
func Directives() []string {
	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type switchFrame struct {
	subject string
	opened  bool
}

// compilation holds the state of a single Compile call.
type compilation struct {
	c        *Compiler
	layout   string
	switches []switchFrame
	includes []string
	sections []string
}

func (s *compilation) dispatch(inv Invocation) (string, error) {
	fn, ok := directives[inv.Name]
	if !ok {
		return "", &UnknownDirectiveError{Name: inv.Name, Pos: inv.Pos}
	}
	s.c.log.Debug("compiling directive", "name", inv.Name, "args", inv.Args, "pos", inv.Pos.String())
	return fn(s, inv)
}

// malformed either fails or emits an inert host comment, depending on the
// compiler's policy.
func (s *compilation) malformed(inv Invocation) (string, error) {
	if s.c.strict {
		return "", &MalformedDirectiveError{Directive: inv.Name, Raw: inv.Args, Pos: inv.Pos}
	}
	s.c.log.Warn("cannot compile directive", "directive", inv.Name, "args", inv.Args, "pos", inv.Pos.String())
	return hostComment(fmt.Sprintf("cannot compile %s: %s", inv.Name, inv.Args)), nil
}

func block(code string) string {
	return "<?php " + code + " ?>"
}

func hostComment(text string) string {
	text = strings.NewReplacer("*/", "* /", "?>", "? >").Replace(text)
	if text == "" {
		return block("/**/")
	}
	return block("/* " + text + " */")
}

func phpString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

// templateName accepts a bare or quoted template name.
func templateName(args string) (string, bool) {
	s := strings.TrimSpace(args)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s, s != ""
}

func compileLayout(s *compilation, inv Invocation) (string, error) {
	name, ok := templateName(inv.Args)
	if !ok {
		return s.malformed(inv)
	}
	s.layout = name
	return block("$this->layout(" + phpString(name) + ");"), nil
}

func compileSection(s *compilation, inv Invocation) (string, error) {
	name, ok := templateName(inv.Args)
	if !ok {
		return s.malformed(inv)
	}
	s.sections = append(s.sections, name)
	return block("$this->sectionStart(" + phpString(name) + ");"), nil
}

func compileEndSection(*compilation, Invocation) (string, error) {
	return block("$this->sectionEnd();"), nil
}

func compileShow(*compilation, Invocation) (string, error) {
	return block("$this->showSection();"), nil
}

func compileInclude(s *compilation, inv Invocation) (string, error) {
	name, ok := templateName(inv.Args)
	if !ok {
		return s.malformed(inv)
	}
	s.includes = append(s.includes, name)
	return block("echo $this->factory->make(" + phpString(name) + ")->render();"), nil
}

func splitAssignment(args string) (target, value string, ok bool) {
	target, value, ok = strings.Cut(args, " = ")
	target, value = strings.TrimSpace(target), strings.TrimSpace(value)
	return target, value, ok && target != "" && value != ""
}

func compileSet(s *compilation, inv Invocation) (string, error) {
	target, value, ok := splitAssignment(inv.Args)
	if !ok {
		return s.malformed(inv)
	}
	t, val := CompileExpression(target), CompileExpression(value)
	return block(fmt.Sprintf("if(!isset(%s)) { %s = %s; }", t, t, val)), nil
}

func compileReset(s *compilation, inv Invocation) (string, error) {
	target, value, ok := splitAssignment(inv.Args)
	if !ok {
		return s.malformed(inv)
	}
	return block(fmt.Sprintf("%s = %s;", CompileExpression(target), CompileExpression(value))), nil
}

func compileIf(s *compilation, inv Invocation) (string, error) {
	if inv.Args == "" {
		return s.malformed(inv)
	}
	return block("if(" + CompileCondition(inv.Args) + ") {"), nil
}

func compileElseIf(s *compilation, inv Invocation) (string, error) {
	if inv.Args == "" {
		return s.malformed(inv)
	}
	return block("} elseif(" + CompileCondition(inv.Args) + ") {"), nil
}

func compileElse(*compilation, Invocation) (string, error) {
	return block("} else {"), nil
}

func compileClose(*compilation, Invocation) (string, error) {
	return block("}"), nil
}

// compileFor handles "item in items" and "key,value in items". The loop is
// guarded so that an unset or empty collection renders nothing.
func compileFor(s *compilation, inv Invocation) (string, error) {
	vars, collection, ok := strings.Cut(inv.Args, " in ")
	vars, collection = strings.TrimSpace(vars), strings.TrimSpace(collection)
	if !ok || vars == "" || collection == "" {
		return s.malformed(inv)
	}

	target := CompileExpression(collection)
	loop := target + " as "
	if key, value, found := strings.Cut(vars, ","); found {
		loop += CompileExpression(key) + " => " + CompileExpression(value)
	} else {
		loop += CompileExpression(vars)
	}
	return block(fmt.Sprintf("if(%s && !empty(%s)) foreach(%s) {", target, target, loop)), nil
}

func compileSwitch(s *compilation, inv Invocation) (string, error) {
	if inv.Args == "" {
		return s.malformed(inv)
	}
	s.switches = append(s.switches, switchFrame{subject: CompileExpression(inv.Args)})
	return "", nil
}

// compileCase opens one independent if block per case. Every case after
// the first closes the previous block; cases are not chained with else.
func compileCase(s *compilation, inv Invocation) (string, error) {
	if len(s.switches) == 0 {
		return "", &MisplacedDirectiveError{Name: inv.Name, Pos: inv.Pos}
	}
	if inv.Args == "" {
		return s.malformed(inv)
	}
	frame := &s.switches[len(s.switches)-1]
	cond := fmt.Sprintf("if(%s == %s) {", frame.subject, CompileExpression(inv.Args))
	if !frame.opened {
		frame.opened = true
		return block(cond), nil
	}
	return block("} " + cond), nil
}

func compileEndSwitch(s *compilation, inv Invocation) (string, error) {
	if len(s.switches) == 0 {
		return "", &MisplacedDirectiveError{Name: inv.Name, Pos: inv.Pos}
	}
	s.switches = s.switches[:len(s.switches)-1]
	return block("}"), nil
}
