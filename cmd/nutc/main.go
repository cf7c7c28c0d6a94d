package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/neurodesk/nut/pkg/config"
	"github.com/neurodesk/nut/pkg/filters"
	"github.com/neurodesk/nut/pkg/loader"
	"github.com/neurodesk/nut/pkg/nut"
	"github.com/spf13/cobra"
)

var configPath string
var verbose bool

var rootCmd = cobra.Command{
	Use:           "nutc",
	Short:         "Compile nut templates to PHP",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

// project is everything a command needs after reading the config file.
type project struct {
	cfg      config.Config
	filters  *filters.Registry
	loader   loader.DirLoader
	compiler *nut.Compiler
}

// helper: load config, filter scripts and build the compiler. A missing
// nut.yaml is fine unless --config named it explicitly.
func loadProject(cmd *cobra.Command) (*project, error) {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil || cmd.Flags().Changed("config") {
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	} else {
		slog.Debug("no config file, using defaults", "path", configPath)
	}
	if f := cmd.Flags().Lookup("strict"); f != nil && f.Changed {
		cfg.Strict, _ = cmd.Flags().GetBool("strict")
	}
	return newProject(cfg)
}

func newProject(cfg config.Config) (*project, error) {
	reg := filters.Default()
	for _, script := range cfg.Filters.Scripts {
		names, err := reg.LoadScriptFile(script)
		if err != nil {
			return nil, err
		}
		slog.Debug("registered script filters", "script", script, "filters", names)
	}
	aliases := make([]string, 0, len(cfg.Filters.Aliases))
	for name := range cfg.Filters.Aliases {
		aliases = append(aliases, name)
	}
	slices.Sort(aliases)
	for _, name := range aliases {
		if err := reg.Alias(name, cfg.Filters.Aliases[name]); err != nil {
			return nil, err
		}
	}

	p := &project{
		cfg:     cfg,
		filters: reg,
		loader:  loader.DirLoader{Roots: cfg.Roots, Ext: cfg.Extension},
	}
	c, err := p.newCompiler(cfg.Strict)
	if err != nil {
		return nil, err
	}
	p.compiler = c
	return p, nil
}

func (p *project) newCompiler(strict bool) (*nut.Compiler, error) {
	return nut.New(nut.Options{
		Tags:   p.cfg.TagSet(),
		Filter: p.filters,
		Strict: strict,
		Logger: slog.Default(),
	})
}

// template is one input file and the name it is known by.
type template struct {
	name string
	path string
}

// helper: expand files and directories into templates. Directories are
// walked for the configured extension; with no arguments the configured
// roots are walked.
func (p *project) collect(args []string) ([]template, error) {
	if len(args) == 0 {
		args = p.cfg.Roots
	}
	var out []template
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			name := strings.TrimSuffix(filepath.Base(arg), p.cfg.Extension)
			out = append(out, template{name: name, path: arg})
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if name, ok := p.loader.Name(arg, path); ok {
				out = append(out, template{name: name, path: path})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return out, nil
}

func (p *project) compileFile(t template) (*nut.Result, error) {
	src, err := os.ReadFile(t.path)
	if err != nil {
		return nil, err
	}
	res, err := p.compiler.CompileTemplate(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.path, err)
	}
	return res, nil
}

var compileCmd = cobra.Command{
	Use:   "compile [path ...]",
	Short: "Compile templates; '-' reads standard input",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")

		if len(args) == 1 && args[0] == "-" {
			src, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			code, err := p.compiler.Compile(string(src))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), code)
			return nil
		}

		tpls, err := p.collect(args)
		if err != nil {
			return err
		}
		for _, t := range tpls {
			res, err := p.compileFile(t)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprint(cmd.OutOrStdout(), res.Code)
				continue
			}
			dst := filepath.Join(out, filepath.FromSlash(strings.ReplaceAll(t.name, ".", "/"))+".php")
			if err := writeFromReader(dst, strings.NewReader(res.Code)); err != nil {
				return fmt.Errorf("writing %s: %w", dst, err)
			}
			slog.Info("compiled", "template", t.name, "out", dst)
		}
		return nil
	},
}

var checkCmd = cobra.Command{
	Use:   "check [path ...]",
	Short: "Compile templates and verify that layouts and includes exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		tpls, err := p.collect(args)
		if err != nil {
			return err
		}

		var failed []string
		for _, t := range tpls {
			if err := p.check(t); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", t.name, err)
				failed = append(failed, t.name)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", t.name)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d templates failed: %s", len(failed), len(tpls), strings.Join(failed, ", "))
		}
		return nil
	},
}

func (p *project) check(t template) error {
	res, err := p.compileFile(t)
	if err != nil {
		return err
	}
	refs := res.Includes
	if res.Layout != "" {
		refs = append([]string{res.Layout}, refs...)
	}
	var errs []error
	for _, ref := range refs {
		if _, err := p.loader.Path(ref); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var explainCmd = cobra.Command{
	Use:   "explain <expression>",
	Short: "Show how a content expression is classified and compiled",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		expr := strings.Join(args, " ")
		shape, names := nut.Analyze(expr)
		fmt.Fprint(cmd.OutOrStdout(), nut.Pretty(shape, names))
		code, err := p.compiler.CompileContent(expr)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	},
}

var directivesCmd = cobra.Command{
	Use:   "directives",
	Short: "List the directives the compiler understands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range nut.Directives() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var filtersCmd = cobra.Command{
	Use:   "filters",
	Short: "List built-in, scripted and aliased filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		for _, name := range p.filters.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

// helper: write a reader to a file path via a temporary file
func writeFromReader(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFile, "Path to nut configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	compileCmd.Flags().String("out", "", "Write <name>.php files below this directory instead of printing")
	compileCmd.Flags().Bool("strict", false, "Fail on malformed directives")
	rootCmd.AddCommand(&compileCmd)

	checkCmd.Flags().Bool("strict", false, "Fail on malformed directives")
	rootCmd.AddCommand(&checkCmd)

	rootCmd.AddCommand(&explainCmd)
	rootCmd.AddCommand(&directivesCmd)
	rootCmd.AddCommand(&filtersCmd)

	testCmd.Flags().String("cases", "", "YAML file of golden cases (default: built-in cases)")
	rootCmd.AddCommand(&testCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
