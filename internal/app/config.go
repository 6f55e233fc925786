package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/needs"
	"github.com/specialistvlad/ciforge/internal/pipeline"
	"gopkg.in/validator.v2"
)

// Settings holds everything an App needs to compile configuration. The CLI
// fills it from flags, CIFORGE_* environment variables and an optional
// config file.
type Settings struct {
	// Project is the project path the root configuration belongs to.
	Project string `mapstructure:"project" validate:"nonzero,nowhitespace"`
	// Ref is the branch, tag or commit compiled.
	Ref string `mapstructure:"ref" validate:"nonzero,nowhitespace"`
	// Dir is the working copy serving the project.
	Dir string `mapstructure:"dir" validate:"nonzero"`
	// Git reads Dir as a git repository at Ref instead of as a plain tree.
	Git bool `mapstructure:"git"`

	MaxIncludes      int `mapstructure:"max_includes" validate:"min=0"`
	MaxIncludeDepth  int `mapstructure:"max_include_depth" validate:"min=0"`
	MaxTags          int `mapstructure:"max_tags" validate:"min=0"`
	MaxCacheKeyFiles int `mapstructure:"max_cache_key_files" validate:"min=0"`
	MaxCaches        int `mapstructure:"max_caches" validate:"min=0"`
	MaxNeeds         int `mapstructure:"max_needs" validate:"min=0"`
	MaxActiveJobs    int `mapstructure:"max_active_jobs" validate:"min=0"`

	// RateLimitCount pipelines are allowed per RateLimitWindow. Zero
	// disables rate limiting.
	RateLimitCount  int           `mapstructure:"rate_limit_count" validate:"min=0"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`

	PartitionID        int64  `mapstructure:"partition_id" validate:"min=0"`
	ServerHost         string `mapstructure:"server_host" validate:"nonzero,nowhitespace"`
	ExcludedNeedPolicy string `mapstructure:"excluded_need_policy" validate:"regexp=^(error|drop)$"`

	LogFormat string `mapstructure:"log_format" validate:"regexp=^(text|json)$"`
	LogLevel  string `mapstructure:"log_level" validate:"regexp=^(debug|info|warn|error)$"`
}

// DefaultSettings returns the settings used when nothing overrides them.
func DefaultSettings() Settings {
	return Settings{
		Project:            "local/project",
		Ref:                "main",
		Dir:                ".",
		MaxIncludes:        include.DefaultMaxIncludes,
		MaxIncludeDepth:    include.DefaultMaxDepth,
		MaxTags:            pipeline.DefaultMaxTags,
		MaxCacheKeyFiles:   pipeline.DefaultMaxCacheKeyFiles,
		MaxCaches:          pipeline.DefaultMaxCaches,
		MaxNeeds:           needs.DefaultMaxNeeds,
		RateLimitWindow:    time.Minute,
		ServerHost:         "gitlab.com",
		ExcludedNeedPolicy: string(needs.PolicyError),
		LogFormat:          "text",
		LogLevel:           "info",
	}
}

var settingsValidator = newSettingsValidator()

func newSettingsValidator() *validator.Validator {
	v := validator.NewValidator()
	if err := v.SetValidationFunc("nowhitespace", noWhitespace); err != nil {
		panic(err)
	}
	return v
}

func noWhitespace(v interface{}, _ string) error {
	s, ok := v.(string)
	if !ok {
		return validator.ErrUnsupported
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return errors.New("contains whitespace")
	}
	return nil
}

// Validate checks s and returns every violation in one error.
func (s Settings) Validate() error {
	if errs := settingsValidator.Validate(s); errs != nil {
		return fmt.Errorf("invalid settings: %w", errs)
	}
	if s.RateLimitCount > 0 && s.RateLimitWindow <= 0 {
		return errors.New("invalid settings: rate_limit_window must be positive when rate_limit_count is set")
	}
	return nil
}

// compilerConfig maps s onto the compiler's tuning knobs.
func (s Settings) compilerConfig() pipeline.Config {
	return pipeline.Config{
		Limits: pipeline.Limits{
			MaxIncludes:      s.MaxIncludes,
			MaxIncludeDepth:  s.MaxIncludeDepth,
			MaxTags:          s.MaxTags,
			MaxCacheKeyFiles: s.MaxCacheKeyFiles,
			MaxCaches:        s.MaxCaches,
			MaxNeeds:         s.MaxNeeds,
			MaxActiveJobs:    s.MaxActiveJobs,
		},
		PartitionID: s.PartitionID,
		ServerHost:  s.ServerHost,
		NeedPolicy:  needs.Policy(s.ExcludedNeedPolicy),
	}
}
