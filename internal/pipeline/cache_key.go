package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/config"
	"github.com/specialistvlad/ciforge/internal/graph"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/specialistvlad/ciforge/internal/variables"
	"github.com/zeebo/blake3"
)

// DefaultCacheKey is used when no key is given or a key file is missing.
const DefaultCacheKey = "default"

// cacheKeyLength is the number of hex characters of a files digest.
const cacheKeyLength = 40

func (c *Compiler) caches(ctx context.Context, st State, job *config.Job, vars *variables.Collection) ([]graph.Cache, error) {
	if len(job.Cache) > c.config.Limits.MaxCaches {
		return nil, cierr.At(cierr.KindLimitExceeded, job.Range,
			"jobs:%s:cache config no more than %d caches can be created", job.Name, c.config.Limits.MaxCaches)
	}
	var out []graph.Cache
	for _, cc := range job.Cache {
		key, err := c.cacheKey(ctx, st, job.Name, cc, vars)
		if err != nil {
			return nil, err
		}
		gc := graph.Cache{
			Key:       key,
			Paths:     cc.Paths,
			Policy:    cc.Policy,
			When:      cc.When,
			Untracked: cc.Untracked,
			Unprotect: cc.Unprotect,
		}
		for _, k := range cc.FallbackKeys {
			gc.FallbackKeys = append(gc.FallbackKeys, vars.ExpandString(k))
		}
		out = append(out, gc)
	}
	return out, nil
}

// cacheKey derives the key of one cache entry. With `key:files` the key is
// a digest of the files' contents, or DefaultCacheKey when one of them does
// not exist, optionally preceded by `prefix-`.
func (c *Compiler) cacheKey(ctx context.Context, st State, jobName string, cc config.Cache, vars *variables.Collection) (string, error) {
	if len(cc.KeyFiles) == 0 {
		if cc.Key == "" {
			return DefaultCacheKey, nil
		}
		return vars.ExpandString(cc.Key), nil
	}
	if limit := c.config.Limits.MaxCacheKeyFiles; len(cc.KeyFiles) > limit {
		return "", cierr.At(cierr.KindLimitExceeded, cc.Range,
			"jobs:%s:cache:key:files config has too many entries (maximum %d)", jobName, limit)
	}

	files := make([]string, len(cc.KeyFiles))
	for i, f := range cc.KeyFiles {
		files[i] = vars.ExpandString(f)
	}
	key, err := c.filesDigest(ctx, st, files)
	if err != nil {
		return "", err
	}
	if prefix := vars.ExpandString(cc.KeyPrefix); prefix != "" {
		key = prefix + "-" + key
	}
	return key, nil
}

func (c *Compiler) filesDigest(ctx context.Context, st State, files []string) (string, error) {
	memo := strings.Join(files, "\x00")
	if key, ok := st.run.keys[memo]; ok {
		return key, nil
	}

	h := blake3.New()
	key := ""
	for _, f := range files {
		data, err := c.reader.Read(ctx, source.Request{
			Kind:    source.KindLocal,
			Project: st.Request.Project,
			Ref:     st.Request.sha(),
			Path:    strings.TrimPrefix(f, "/"),
		})
		if errors.Is(err, source.ErrNotFound) {
			key = DefaultCacheKey
			break
		}
		if err != nil {
			return "", cierr.Wrap(cierr.KindInternal, err, "reading cache key file %s", f)
		}
		_, _ = h.Write(data)
		_, _ = h.Write([]byte{0})
	}
	if key == "" {
		key = hex.EncodeToString(h.Sum(nil))[:cacheKeyLength]
	}
	st.run.keys[memo] = key
	return key, nil
}
