package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

// sphinxArtifact is the file name a documentation build writes into its
// output directory.
const sphinxArtifact = "searchindex.js"

const loadParallelism = 4

// NameFromPath maps a file under dir to the index it holds:
//
//	dir/<name>.js, dir/<name>.json    -> <name>
//	dir/<name>/searchindex.js         -> <name>
func NameFromPath(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parent, base := filepath.Split(rel)
	parent = filepath.Clean(parent)
	if parent != "." {
		if base != sphinxArtifact || strings.ContainsRune(parent, filepath.Separator) {
			return "", false
		}
		return parent, ValidateName(parent) == nil
	}
	ext := filepath.Ext(base)
	if ext != ".js" && ext != ".json" {
		return "", false
	}
	name := strings.TrimSuffix(base, ext)
	return name, ValidateName(name) == nil
}

func discover(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading index directory: %w", err)
	}
	found := make(map[string]string)
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			path = filepath.Join(path, sphinxArtifact)
			if _, err := os.Stat(path); err != nil {
				continue
			}
		}
		name, ok := NameFromPath(dir, path)
		if !ok {
			continue
		}
		if prev, dup := found[name]; dup {
			// Prefer the lexically first path so loads are deterministic.
			if prev < path {
				continue
			}
		}
		found[name] = path
	}
	return found, nil
}

// LoadDir installs every index found directly under dir. Files that fail to
// decode or validate are logged and skipped. A missing directory loads
// nothing. It returns the number of indexes installed.
func (c *Catalog) LoadDir(ctx context.Context, dir string) (int, error) {
	found, err := discover(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("index directory does not exist", "dir", dir)
			return 0, nil
		}
		return 0, err
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	loaded := make([]bool, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := c.LoadFile(name, found[name]); err != nil {
				c.logger.Error("skipping index", "index", name, "path", found[name], "error", err)
				return nil
			}
			loaded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	n := 0
	for _, ok := range loaded {
		if ok {
			n++
		}
	}
	c.logger.Info("index directory loaded", "dir", dir, "found", len(names), "loaded", n)
	return n, nil
}

// LoadFile decodes the artifact at path and installs it under name.
func (c *Catalog) LoadFile(name, path string) error {
	idx, err := searchindex.DecodeFile(path)
	if err != nil {
		c.recordReload(SourceFile, "error")
		return err
	}
	entry, _, err := c.Prepare(name, idx, SourceFile)
	if err != nil {
		return err
	}
	entry.Path = path
	c.Install(entry)
	return nil
}
