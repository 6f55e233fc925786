package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/ciforge/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

const (
	// ExitFailure is returned when the configuration does not compile.
	ExitFailure = 1
	// ExitUsage is returned for invalid flags, arguments or settings.
	ExitUsage = 2
)

func usageError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// settingFlags maps settings keys onto flag names.
var settingFlags = map[string]string{
	"project":              "project",
	"ref":                  "ref",
	"dir":                  "dir",
	"git":                  "git",
	"max_includes":         "max-includes",
	"max_include_depth":    "max-include-depth",
	"max_tags":             "max-tags",
	"max_cache_key_files":  "max-cache-key-files",
	"max_caches":           "max-caches",
	"max_needs":            "max-needs",
	"max_active_jobs":      "max-active-jobs",
	"rate_limit_count":     "rate-limit-count",
	"rate_limit_window":    "rate-limit-window",
	"partition_id":         "partition-id",
	"server_host":          "server-host",
	"excluded_need_policy": "excluded-need-policy",
	"log_format":           "log-format",
	"log_level":            "log-level",
}

func addSettingFlags(fs *pflag.FlagSet) {
	d := app.DefaultSettings()
	fs.String("project", d.Project, "Project path the configuration belongs to.")
	fs.String("ref", d.Ref, "Branch, tag or commit to compile.")
	fs.String("dir", d.Dir, "Working copy serving the project.")
	fs.Bool("git", d.Git, "Read --dir as a git repository at --ref.")
	fs.Int("max-includes", d.MaxIncludes, "Maximum number of included files.")
	fs.Int("max-include-depth", d.MaxIncludeDepth, "Maximum include nesting depth.")
	fs.Int("max-tags", d.MaxTags, "Maximum number of tags per job.")
	fs.Int("max-cache-key-files", d.MaxCacheKeyFiles, "Maximum number of files in a cache key.")
	fs.Int("max-caches", d.MaxCaches, "Maximum number of caches per job.")
	fs.Int("max-needs", d.MaxNeeds, "Maximum number of needs per job.")
	fs.Int("max-active-jobs", d.MaxActiveJobs, "Active job ceiling, 0 is disabled.")
	fs.Int("rate-limit-count", d.RateLimitCount, "Pipelines allowed per window, 0 is disabled.")
	fs.Duration("rate-limit-window", d.RateLimitWindow, "Rate limit window.")
	fs.Int64("partition-id", d.PartitionID, "Partition id assigned to the graph.")
	fs.String("server-host", d.ServerHost, "Host component includes are resolved against.")
	fs.String("excluded-need-policy", d.ExcludedNeedPolicy, "What a need on a job excluded by rules does: 'error' or 'drop'.")
	fs.String("log-format", d.LogFormat, "Log output format. Options: 'text' or 'json'.")
	fs.String("log-level", d.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
}

// loadSettings merges, from lowest to highest priority, defaults, the
// config file, CIFORGE_* environment variables and explicitly set flags.
func loadSettings(fs *pflag.FlagSet, configFile string) (app.Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("CIFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, name := range settingFlags {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return app.Settings{}, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return app.Settings{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var s app.Settings
	if err := v.Unmarshal(&s); err != nil {
		return app.Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return s, nil
}

// NewRootCommand builds the ciforge command tree. Reports go to outW, logs
// and usage to errW.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "ciforge",
		Short:         "Compiles CI pipeline configuration into a build graph.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	root.PersistentFlags().StringVar(&configFile, "config", "", "Settings file (yaml, json or toml).")
	addSettingFlags(root.PersistentFlags())

	root.AddCommand(newLintCommand(outW, &configFile))
	return root
}

// Execute runs the command line args and returns an *ExitError for any
// failure.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	// Anything cobra rejects before a command runs is a usage problem.
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}
