package main

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed golden.yaml
var builtinCases []byte

var testCmd = cobra.Command{
	Use:   "test [selector ...]",
	Short: "Run golden compile cases against the configured compiler",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("cases")
		data := builtinCases
		if path != "" {
			if data, err = os.ReadFile(path); err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
		}
		cases, err := loadGoldenCases(data)
		if err != nil {
			return err
		}
		selected := filterGoldenCases(cases, args)
		if len(selected) == 0 {
			return fmt.Errorf("no golden cases matched the provided selectors")
		}

		failed := 0
		for _, c := range selected {
			if err := p.runGolden(c); err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n%s\n", c.Name, indent(err.Error()))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", c.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d golden cases failed", failed, len(selected))
		}
		return nil
	},
}

// goldenCase compiles Source, or the named Template through the project
// loader, and compares the output with Want. When Error is set the
// compilation must fail with a message containing it.
type goldenCase struct {
	Name     string `yaml:"name"`
	Source   string `yaml:"source"`
	Template string `yaml:"template"`
	Want     string `yaml:"want"`
	Error    string `yaml:"error"`
	Strict   *bool  `yaml:"strict"`
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// A bare string is a source that only has to compile.
func (c *goldenCase) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(value.Value) == "" {
			return fmt.Errorf("line %d: golden source must not be empty", value.Line)
		}
		c.Source = value.Value
		c.Name = deriveCaseName(value.Value)
		return nil
	case yaml.MappingNode:
		type alias goldenCase
		var tmp alias
		if err := value.Decode(&tmp); err != nil {
			return err
		}
		if (tmp.Source == "") == (tmp.Template == "") {
			return fmt.Errorf("line %d: exactly one of source and template is required", value.Line)
		}
		tmp.Name = strings.TrimSpace(tmp.Name)
		if tmp.Name == "" {
			tmp.Name = deriveCaseName(tmp.Source + tmp.Template)
		}
		*c = goldenCase(tmp)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported golden case type: %v", value.Line, value.Kind)
	}
}

func deriveCaseName(src string) string {
	name := strings.ToLower(strings.TrimSpace(src))
	if len(name) > 32 {
		name = name[:32]
	}
	name = invalidNameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "case"
	}
	return name
}

func loadGoldenCases(data []byte) ([]goldenCase, error) {
	var cases []goldenCase
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cases); err != nil {
		return nil, fmt.Errorf("decoding golden cases: %w", err)
	}
	counter := map[string]int{}
	for i := range cases {
		base := cases[i].Name
		if n := counter[base]; n > 0 {
			cases[i].Name = fmt.Sprintf("%s-%d", base, n+1)
		}
		counter[base]++
	}
	return cases, nil
}

// helper: keep cases whose name contains any selector
func filterGoldenCases(cases []goldenCase, selectors []string) []goldenCase {
	if len(selectors) == 0 {
		return cases
	}
	var out []goldenCase
	for _, c := range cases {
		for _, sel := range selectors {
			if strings.Contains(strings.ToLower(c.Name), strings.ToLower(sel)) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (p *project) runGolden(c goldenCase) error {
	compiler := p.compiler
	if c.Strict != nil && *c.Strict != p.cfg.Strict {
		var err error
		if compiler, err = p.newCompiler(*c.Strict); err != nil {
			return err
		}
	}

	src := c.Source
	if c.Template != "" {
		var err error
		if src, err = p.loader.Load(c.Template); err != nil {
			return err
		}
	}

	got, err := compiler.Compile(src)
	switch {
	case c.Error != "" && err == nil:
		return fmt.Errorf("compiled without error, want error containing %q", c.Error)
	case c.Error != "" && !strings.Contains(err.Error(), c.Error):
		return fmt.Errorf("error %q does not contain %q", err, c.Error)
	case c.Error != "":
		return nil
	case err != nil:
		return err
	case c.Want != "" && got != c.Want:
		return errors.New("got:  " + got + "\nwant: " + c.Want)
	}
	return nil
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}
