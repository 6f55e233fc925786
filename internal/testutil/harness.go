package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/inmemorystore"
	"github.com/specialistvlad/ciforge/internal/pipeline"
	"github.com/specialistvlad/ciforge/internal/source/memory"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of a compile test run.
type HarnessResult struct {
	LogOutput string
	Result    *pipeline.Result
	// Store holds the graphs the compiler realized.
	Store *inmemorystore.Store
}

// RunCompileTest compiles fixture using a default background context.
func RunCompileTest(t *testing.T, fixture Fixture) *HarnessResult {
	t.Helper()
	return RunCompileTestWithContext(context.Background(), t, fixture)
}

// RunCompileTestWithContext compiles fixture against an in-memory
// repository and store, capturing debug logs.
func RunCompileTestWithContext(ctx context.Context, t *testing.T, fixture Fixture) *HarnessResult {
	t.Helper()

	repo := fixture.Repo
	if repo == nil {
		repo = memory.New()
	}
	if len(fixture.Files) > 0 {
		files := make(map[string]string, len(fixture.Files))
		for name, content := range fixture.Files {
			files[name] = Unindent(content)
		}
		repo.AddFiles(TestProject, TestRef, files)
	}

	logBuffer := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuffer, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx = ctxlog.WithLogger(ctx, logger)

	store := inmemorystore.New()
	opts := []pipeline.Option{
		pipeline.WithComponents(include.NewComponentResolver(repo, TestHost)),
		pipeline.WithRealizer(store),
	}
	opts = append(opts, fixture.CompilerOptions...)
	compiler := pipeline.New(repo, repo, opts...)

	req := fixture.Request
	if req.Project == "" {
		req.Project = TestProject
	}
	if req.Ref == "" {
		req.Ref = TestRef
	}
	res := compiler.Compile(ctx, req, fixture.Options)

	if os.Getenv("CIFORGE_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Result:    res,
		Store:     store,
	}
}
