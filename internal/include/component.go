package include

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/ciforge/internal/source"
	"golang.org/x/mod/semver"
)

// LatestVersion selects the highest released version of a component.
const LatestVersion = "~latest"

// Locator is a parsed component reference `host/project/name@version`. The
// project path may have any number of segments.
type Locator struct {
	Raw     string
	Host    string
	Project string
	Name    string
	Version string
}

// ParseLocator splits a component reference.
func ParseLocator(raw string) (Locator, error) {
	path, version, ok := strings.Cut(raw, "@")
	if !ok || version == "" {
		return Locator{}, fmt.Errorf("component '%s' - the component version must be specified with `@`", raw)
	}
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return Locator{}, fmt.Errorf("component '%s' - the component path must contain the host, the project path and the component name", raw)
	}
	for _, p := range parts {
		if p == "" {
			return Locator{}, fmt.Errorf("component '%s' - the component path is invalid", raw)
		}
	}
	return Locator{
		Raw:     raw,
		Host:    parts[0],
		Project: strings.Join(parts[1:len(parts)-1], "/"),
		Name:    parts[len(parts)-1],
		Version: version,
	}, nil
}

// Files returns the candidate paths of the component's template, in lookup
// order.
func (l Locator) Files() []string {
	return []string{
		"templates/" + l.Name + ".yml",
		"templates/" + l.Name + "/template.yml",
	}
}

// Resolution is the commit a component version points at.
type Resolution struct {
	SHA     string
	Version string
}

// ComponentResolver turns a version constraint into a commit through a
// source.Catalog.
type ComponentResolver struct {
	catalog source.Catalog
	host    string
}

// NewComponentResolver creates a resolver. An empty host accepts any host.
func NewComponentResolver(catalog source.Catalog, host string) *ComponentResolver {
	return &ComponentResolver{catalog: catalog, host: host}
}

// Resolve finds the commit for l.Version, trying an exact tag, `~latest`,
// a full commit SHA and finally a partial semantic version such as `1` or
// `1.2`. Anything else is a content-not-found error naming the locator.
func (c *ComponentResolver) Resolve(ctx context.Context, l Locator) (Resolution, error) {
	if c.host != "" && !strings.EqualFold(l.Host, c.host) {
		return Resolution{}, fmt.Errorf("component '%s' - the component host must be %s", l.Raw, c.host)
	}
	notFound := fmt.Errorf("component '%s' - content not found: %w", l.Raw, source.ErrNotFound)

	tags, err := c.catalog.Tags(ctx, l.Project)
	if err != nil {
		if isNotFound(err) {
			return Resolution{}, notFound
		}
		return Resolution{}, fmt.Errorf("component '%s' - listing versions: %w", l.Raw, err)
	}

	for _, t := range tags {
		if t.Name == l.Version {
			return Resolution{SHA: t.SHA, Version: t.Name}, nil
		}
	}

	if l.Version == LatestVersion {
		if t, ok := highest(tags, func(string) bool { return true }); ok {
			return Resolution{SHA: t.SHA, Version: t.Name}, nil
		}
		return Resolution{}, notFound
	}

	if isSHA(l.Version) {
		ok, err := c.catalog.CommitExists(ctx, l.Project, l.Version)
		if err != nil && !isNotFound(err) {
			return Resolution{}, fmt.Errorf("component '%s' - checking commit: %w", l.Raw, err)
		}
		if ok {
			return Resolution{SHA: l.Version, Version: l.Version}, nil
		}
		return Resolution{}, notFound
	}

	if prefix := canonical(l.Version); prefix != "" {
		parts := strings.Count(strings.TrimPrefix(l.Version, "v"), ".") + 1
		match := func(v string) bool {
			switch parts {
			case 1:
				return semver.Major(v) == semver.Major(prefix)
			case 2:
				return semver.MajorMinor(v) == semver.MajorMinor(prefix)
			default:
				return false
			}
		}
		if t, ok := highest(tags, match); ok {
			return Resolution{SHA: t.SHA, Version: t.Name}, nil
		}
	}
	return Resolution{}, notFound
}

func isNotFound(err error) bool {
	return errors.Is(err, source.ErrNotFound)
}

// highest returns the highest released (non pre-release) semantic version
// tag accepted by match.
func highest(tags []source.Tag, match func(v string) bool) (source.Tag, bool) {
	var best source.Tag
	var bestV string
	for _, t := range tags {
		v := canonical(t.Name)
		if v == "" || semver.Prerelease(v) != "" || !match(v) {
			continue
		}
		if bestV == "" || semver.Compare(v, bestV) > 0 {
			best, bestV = t, v
		}
	}
	return best, bestV != ""
}

// canonical normalizes `1.2.3` and `v1.2.3` to the semver package's form,
// returning "" for anything that is not a version.
func canonical(name string) string {
	v := name
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

func isSHA(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
