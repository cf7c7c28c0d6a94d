package filters

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.starlark.net/starlark"
)

// maxSteps bounds a single macro call so a looping script cannot hang a
// compilation.
const maxSteps = 1 << 20

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			slog.Debug("filter script", "thread", thread.Name, "msg", msg)
		},
	}
}

// scriptBuiltins are predeclared in every filter script.
//
//	call("number_format", x, "2")     -> number_format(x, 2)
//	method(x, "format", quote("Y"))   -> x->format('Y')
//	quote("it's")                     -> 'it\'s'
func scriptBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"call": starlark.NewBuiltin("call", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) == 0 {
				return starlark.None, fmt.Errorf("call requires a function name")
			}
			strs, err := stringArgs(fn.Name(), args)
			if err != nil {
				return starlark.None, err
			}
			return starlark.String(strs[0] + "(" + strings.Join(strs[1:], ", ") + ")"), nil
		}),

		"method": starlark.NewBuiltin("method", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) < 2 {
				return starlark.None, fmt.Errorf("method requires an expression and a method name")
			}
			strs, err := stringArgs(fn.Name(), args)
			if err != nil {
				return starlark.None, err
			}
			return starlark.String(strs[0] + "->" + strs[1] + "(" + strings.Join(strs[2:], ", ") + ")"), nil
		}),

		"quote": starlark.NewBuiltin("quote", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &s); err != nil {
				return starlark.None, err
			}
			return starlark.String("'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"), nil
		}),
	}
}

// stringArgs accepts strings as they are and renders numbers and other
// values with their Starlark representation.
func stringArgs(name string, args starlark.Tuple) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case starlark.String:
			out = append(out, string(v))
		case starlark.Int, starlark.Float, starlark.Bool:
			out = append(out, v.String())
		default:
			return nil, fmt.Errorf("%s: argument %d must be a string or number, got %s", name, i+1, arg.Type())
		}
	}
	return out, nil
}

// LoadScriptFile reads a Starlark file and registers its filters.
func (r *Registry) LoadScriptFile(path string) ([]string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading filter script: %w", err)
	}
	return r.LoadScript(path, src)
}

// LoadScript executes a Starlark script and registers every top-level
// function taking exactly one parameter as a filter of the same name.
// Names starting with an underscore are private to the script. It returns
// the registered names, sorted.
func (r *Registry) LoadScript(filename string, src any) ([]string, error) {
	globals, err := starlark.ExecFile(newThread(filename), filename, src, scriptBuiltins())
	if err != nil {
		return nil, fmt.Errorf("starlark execution error: %w", err)
	}
	globals.Freeze()

	var names []string
	macros := make(map[string]Macro)
	for _, name := range globals.Keys() {
		fn, ok := globals[name].(*starlark.Function)
		if !ok || strings.HasPrefix(name, "_") {
			continue
		}
		if fn.NumParams() != 1 {
			return nil, fmt.Errorf("%s: filter %s must take exactly one parameter, takes %d", filename, name, fn.NumParams())
		}
		macros[name] = scriptMacro(filename, name, fn)
		names = append(names, name)
	}
	for _, name := range names {
		r.Register(name, macros[name])
	}
	slog.Debug("loaded filter script", "file", filename, "filters", names)
	return names, nil
}

func scriptMacro(filename, name string, fn *starlark.Function) Macro {
	return func(expr string) (string, error) {
		thread := newThread(filename + ":" + name)
		thread.SetMaxExecutionSteps(maxSteps)
		v, err := starlark.Call(thread, fn, starlark.Tuple{starlark.String(expr)}, nil)
		if err != nil {
			return "", fmt.Errorf("starlark evaluation error: %w", err)
		}
		s, ok := starlark.AsString(v)
		if !ok {
			return "", fmt.Errorf("%s must return a string, got %s", name, v.Type())
		}
		return s, nil
	}
}
