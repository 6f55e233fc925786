package variables

import (
	"strconv"
	"strings"
)

// PipelineContext describes the pipeline being compiled.
type PipelineContext struct {
	PipelineID    int64
	PipelineIID   int64
	Source        string
	Name          string
	ProjectID     int64
	ProjectPath   string
	DefaultBranch string
	ServerHost    string
	SHA           string
	Ref           string
	Tag           bool
	CommitMessage string
}

// JobInfo describes one job instance.
type JobInfo struct {
	Name        string
	Stage       string
	NodeIndex   int
	NodeTotal   int
	Environment *Environment
}

// Environment is the deployment target of a job.
type Environment struct {
	Name   string
	Tier   string
	URL    string
	Action string
}

// Slugify lowercases s, replaces every character outside [a-z0-9] with `-`,
// trims dashes and cuts the result to 63 characters.
func Slugify(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('-')
		}
	}
	out := sb.String()
	if len(out) > 63 {
		out = out[:63]
	}
	return strings.Trim(out, "-")
}

func predefined(key, value string) Variable {
	return Variable{Key: key, Value: value, Source: SourcePredefined}
}

// PipelinePredefined returns the CI_* variables shared by every job.
func PipelinePredefined(p PipelineContext) []Variable {
	short := p.SHA
	if len(short) > 8 {
		short = short[:8]
	}
	vars := []Variable{
		predefined("CI", "true"),
		predefined("CI_SERVER_HOST", p.ServerHost),
		predefined("CI_PROJECT_ID", strconv.FormatInt(p.ProjectID, 10)),
		predefined("CI_PROJECT_PATH", p.ProjectPath),
		predefined("CI_PROJECT_PATH_SLUG", Slugify(p.ProjectPath)),
		predefined("CI_DEFAULT_BRANCH", p.DefaultBranch),
		predefined("CI_PIPELINE_ID", strconv.FormatInt(p.PipelineID, 10)),
		predefined("CI_PIPELINE_IID", strconv.FormatInt(p.PipelineIID, 10)),
		predefined("CI_PIPELINE_SOURCE", p.Source),
		predefined("CI_COMMIT_SHA", p.SHA),
		predefined("CI_COMMIT_SHORT_SHA", short),
		predefined("CI_COMMIT_REF_NAME", p.Ref),
		predefined("CI_COMMIT_REF_SLUG", Slugify(p.Ref)),
		predefined("CI_COMMIT_MESSAGE", p.CommitMessage),
	}
	if p.Name != "" {
		vars = append(vars, predefined("CI_PIPELINE_NAME", p.Name))
	}
	if p.Tag {
		vars = append(vars, predefined("CI_COMMIT_TAG", p.Ref))
	} else if p.Ref != "" {
		vars = append(vars, predefined("CI_COMMIT_BRANCH", p.Ref))
	}
	return vars
}

// JobPredefined returns the CI_* variables specific to one job instance.
func JobPredefined(j JobInfo) []Variable {
	vars := []Variable{
		predefined("CI_JOB_NAME", j.Name),
		predefined("CI_JOB_NAME_SLUG", Slugify(j.Name)),
		predefined("CI_JOB_STAGE", j.Stage),
	}
	if j.NodeTotal > 0 {
		vars = append(vars,
			predefined("CI_NODE_INDEX", strconv.Itoa(j.NodeIndex)),
			predefined("CI_NODE_TOTAL", strconv.Itoa(j.NodeTotal)))
	}
	if env := j.Environment; env != nil && env.Name != "" {
		vars = append(vars,
			predefined("CI_ENVIRONMENT_NAME", env.Name),
			predefined("CI_ENVIRONMENT_SLUG", Slugify(env.Name)),
			predefined("CI_ENVIRONMENT_ACTION", env.Action),
			predefined("CI_ENVIRONMENT_TIER", env.Tier))
		if env.URL != "" {
			vars = append(vars, predefined("CI_ENVIRONMENT_URL", env.URL))
		}
	}
	return vars
}

// IsPredefined reports whether key names a predefined variable.
func IsPredefined(key string) bool {
	return key == "CI" || strings.HasPrefix(key, "CI_")
}
