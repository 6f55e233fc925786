package app

import (
	"context"

	"github.com/specialistvlad/ciforge/internal/pipeline"
)

// Compile runs one compilation. Project and Ref default to the App's
// settings.
func (a *App) Compile(ctx context.Context, req pipeline.Request, opts pipeline.Options) *pipeline.Result {
	ctx = a.context(ctx)
	if req.Project == "" {
		req.Project = a.settings.Project
	}
	if req.Ref == "" {
		req.Ref = a.settings.Ref
	}
	a.logger.Debug("App.Compile started.", "project", req.Project, "ref", req.Ref, "dry_run", opts.DryRun, "lint", opts.Lint)

	res := a.compiler.Compile(ctx, req, opts)

	if res.Success() {
		a.logger.Info("Pipeline compiled.", "jobs", res.Graph.Size(), "warnings", len(res.Warnings), "pipeline_id", res.PipelineID)
	} else {
		a.logger.Warn("Pipeline failed.", "reason", res.FailureReason, "errors", len(res.Errors))
	}
	return res
}

// Lint compiles path without realizing the graph and keeps the merged
// document on the result.
func (a *App) Lint(ctx context.Context, path string, req pipeline.Request) *pipeline.Result {
	req.ConfigPath = path
	return a.Compile(ctx, req, pipeline.Options{Lint: true})
}
