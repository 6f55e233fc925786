// Package glob evaluates `exists` and `changes` patterns against file
// listings, with a cache scoped to one compilation run.
package glob

import (
	"context"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/specialistvlad/ciforge/internal/ctxlog"
	"github.com/specialistvlad/ciforge/internal/source"
)

// Match reports whether path matches pattern. `*` stays within one path
// segment, `**` crosses segments and `{a,b}` alternates. Leading `./` and
// `/` are ignored on both sides. An invalid pattern matches nothing.
func Match(pattern, path string) bool {
	ok, err := doublestar.Match(clean(pattern), clean(path))
	return err == nil && ok
}

// MatchAny reports whether any path matches any pattern.
func MatchAny(patterns, paths []string) bool {
	for _, pattern := range patterns {
		for _, path := range paths {
			if Match(pattern, path) {
				return true
			}
		}
	}
	return false
}

// Filter returns the paths matching pattern, keeping their order.
func Filter(pattern string, paths []string) []string {
	var out []string
	for _, path := range paths {
		if Match(pattern, path) {
			out = append(out, path)
		}
	}
	return out
}

// HasMeta reports whether s contains glob syntax.
func HasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func clean(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(s, "./"), "/")
}

// Cache lists each (project, ref) at most once and remembers the answer of
// every pattern it evaluated. It must not outlive a single compilation run
// because file trees differ per ref. A Cache is safe for concurrent use.
type Cache struct {
	lister source.FileLister

	mu      sync.Mutex
	files   map[string][]string
	results map[string]bool
	scans   int
}

// NewCache returns an empty Cache reading listings from lister.
func NewCache(lister source.FileLister) *Cache {
	return &Cache{
		lister:  lister,
		files:   make(map[string][]string),
		results: make(map[string]bool),
	}
}

// Files returns the listing of project at ref.
func (c *Cache) Files(ctx context.Context, project, ref string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filesLocked(ctx, project, ref)
}

func (c *Cache) filesLocked(ctx context.Context, project, ref string) ([]string, error) {
	key := project + "@" + ref
	if files, ok := c.files[key]; ok {
		return files, nil
	}
	ctxlog.FromContext(ctx).Debug("Listing project files.", "project", project, "ref", ref)
	files, err := c.lister.ListFiles(ctx, project, ref)
	if err != nil {
		return nil, err
	}
	c.files[key] = files
	return files, nil
}

// Exists reports whether any file of project at ref matches pattern.
func (c *Cache) Exists(ctx context.Context, project, ref, pattern string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := project + "@" + ref + "\x00" + pattern
	if ok, cached := c.results[key]; cached {
		return ok, nil
	}
	files, err := c.filesLocked(ctx, project, ref)
	if err != nil {
		return false, err
	}

	c.scans++
	found := false
	for _, f := range files {
		if Match(pattern, f) {
			found = true
			break
		}
	}
	c.results[key] = found
	return found, nil
}

// ExistsAny reports whether any of the patterns matches a file.
func (c *Cache) ExistsAny(ctx context.Context, project, ref string, patterns []string) (bool, error) {
	for _, p := range patterns {
		ok, err := c.Exists(ctx, project, ref, p)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Scans returns how many pattern evaluations walked a listing.
func (c *Cache) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}
