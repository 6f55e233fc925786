package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/specialistvlad/ciforge/internal/app"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/pipeline"
	"github.com/specialistvlad/ciforge/internal/variables"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type lintFlags struct {
	merged  bool
	noColor bool
	inputs  []string
	vars    []string
}

func newLintCommand(outW io.Writer, configFile *string) *cobra.Command {
	f := &lintFlags{}
	cmd := &cobra.Command{
		Use:   "lint [PATH]",
		Short: "Validates a configuration without creating a pipeline.",
		Long: `Compiles PATH, the root configuration relative to --dir
(default .gitlab-ci.yml), and prints its errors and warnings.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 1 {
				return &ExitError{Code: ExitUsage, Message: fmt.Sprintf("accepts at most 1 arg, received %d", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runLint(cmd.Context(), cmd, outW, *configFile, path, f)
		},
	}
	cmd.Flags().BoolVar(&f.merged, "merged", false, "Print the merged configuration.")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output.")
	cmd.Flags().StringArrayVar(&f.inputs, "input", nil, "Root input as key=value; the value is parsed as YAML. Repeatable.")
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Pipeline variable as key=value. Repeatable.")
	return cmd
}

func runLint(ctx context.Context, cmd *cobra.Command, outW io.Writer, configFile, path string, f *lintFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := loadSettings(cmd.Flags(), configFile)
	if err != nil {
		return usageError(err)
	}
	inputs, err := parseInputs(f.inputs)
	if err != nil {
		return usageError(err)
	}
	vars, err := parseVariables(f.vars)
	if err != nil {
		return usageError(err)
	}

	a, err := app.New(cmd.ErrOrStderr(), settings)
	if err != nil {
		return usageError(err)
	}
	defer func() { _ = a.Close() }()

	res := a.Lint(ctx, path, pipeline.Request{Inputs: inputs, Variables: vars})
	if err := newPalette(f.noColor).report(outW, res, f.merged); err != nil {
		return &ExitError{Code: ExitFailure, Message: err.Error()}
	}
	if !res.Success() {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("configuration is invalid (%s)", res.FailureReason)}
	}
	return nil
}

type palette struct {
	bad, warn, ok, stage *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		bad:   color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow),
		ok:    color.New(color.FgGreen, color.Bold),
		stage: color.New(color.FgCyan),
	}
	if noColor {
		for _, c := range []*color.Color{p.bad, p.warn, p.ok, p.stage} {
			c.DisableColor()
		}
	}
	return p
}

// report prints the messages of res, then either the merged document or
// the jobs per stage.
func (p palette) report(w io.Writer, res *pipeline.Result, merged bool) error {
	for _, m := range res.Errors {
		p.bad.Fprint(w, "error: ")
		fmt.Fprintln(w, m.Content)
	}
	for _, m := range res.Warnings {
		p.warn.Fprint(w, "warning: ")
		fmt.Fprintln(w, m.Content)
	}

	if merged && res.Document != nil {
		data, err := document.Marshal(res.Document)
		if err != nil {
			return fmt.Errorf("rendering merged configuration: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	if !res.Success() {
		return nil
	}

	p.ok.Fprintln(w, "configuration is valid")
	for _, st := range res.Graph.Stages {
		p.stage.Fprintf(w, "%s:", st.Name)
		names := make([]string, 0, len(st.Jobs))
		for _, j := range st.Jobs {
			names = append(names, j.Name)
		}
		fmt.Fprintf(w, " %s\n", strings.Join(names, ", "))
	}
	return nil
}

func splitPair(flag, raw string) (string, string, error) {
	k, v, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", fmt.Errorf("invalid --%s %q: expected key=value", flag, raw)
	}
	return strings.TrimSpace(k), v, nil
}

// parseInputs decodes every value as YAML so numbers, booleans and lists
// keep their type.
func parseInputs(raw []string) (*document.Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, err := splitPair("input", kv)
		if err != nil {
			return nil, err
		}
		var val any
		if err := yaml.Unmarshal([]byte(v), &val); err != nil || val == nil {
			val = v
		}
		values[k] = val
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encoding inputs: %w", err)
	}
	f, err := document.Parse(data, "--input")
	if err != nil {
		return nil, err
	}
	return f.Body, nil
}

func parseVariables(raw []string) ([]variables.Variable, error) {
	out := make([]variables.Variable, 0, len(raw))
	seen := map[string]int{}
	for _, kv := range raw {
		k, v, err := splitPair("var", kv)
		if err != nil {
			return nil, err
		}
		if i, ok := seen[k]; ok {
			out[i].Value = v
			continue
		}
		seen[k] = len(out)
		out = append(out, variables.Variable{Key: k, Value: v, Source: variables.SourcePipeline})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
