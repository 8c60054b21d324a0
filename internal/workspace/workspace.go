// Package workspace provides the bounded-privilege handle to a source tree
// that the agent path operates on: file edits plus the test gate, nothing
// else. Publish and registry access stay with the deterministic pipeline.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conveyor-dev/conveyor/internal/fsutil"
	"github.com/conveyor-dev/conveyor/internal/ports"
)

// Workspace owns a scratch copy of a source tree. Ownership is exclusive:
// the pipeline hands the workspace to the agent and receives it back; the
// original source directory is never mutated.
type Workspace struct {
	dir       string
	validator ports.Validator
	excludes  []string
}

// New copies sourceDir into a fresh scratch directory and binds the test
// gate. The returned workspace is the only handle to the copy.
func New(sourceDir string, validator ports.Validator) (*Workspace, error) {
	scratch, err := os.MkdirTemp("", "conveyor-workspace-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	if err := fsutil.CopyTree(sourceDir, scratch); err != nil {
		os.RemoveAll(scratch)
		return nil, fmt.Errorf("copying source tree: %w", err)
	}
	return &Workspace{dir: scratch, validator: validator}, nil
}

// Dir returns the scratch root. Engines that drive a CLI agent use it as
// the agent's working directory.
func (w *Workspace) Dir() string { return w.dir }

// resolve scopes path inside the scratch root, rejecting escapes.
func (w *Workspace) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(w.dir, clean)
	if full != w.dir && !strings.HasPrefix(full, w.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return full, nil
}

func (w *Workspace) ReadFile(path string) (string, error) {
	full, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *Workspace) WriteFile(path, contents string) error {
	full, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(contents), 0644)
}

// ListFiles returns the relative paths of all regular files under dir,
// sorted, with excluded subtrees omitted.
func (w *Workspace) ListFiles(dir string) ([]string, error) {
	root, err := w.resolve(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.dir, path)
		if err != nil {
			return err
		}
		if rel != "." && w.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Test runs the bound validation gate against the scratch tree and returns
// the captured test output.
func (w *Workspace) Test(ctx context.Context) (string, error) {
	return w.validator.Test(ctx, w.dir)
}

// WithoutPath returns a view of the workspace with the subtree at path
// excluded from listings and exports. The receiver is unchanged; both views
// share the underlying scratch copy.
func (w *Workspace) WithoutPath(path string) *Workspace {
	excludes := make([]string, len(w.excludes), len(w.excludes)+1)
	copy(excludes, w.excludes)
	excludes = append(excludes, filepath.ToSlash(filepath.Clean(path)))
	return &Workspace{dir: w.dir, validator: w.validator, excludes: excludes}
}

func (w *Workspace) excluded(rel string) bool {
	slashed := filepath.ToSlash(rel)
	for _, e := range w.excludes {
		if slashed == e || strings.HasPrefix(slashed, e+"/") {
			return true
		}
	}
	return false
}

// Export materializes the view (excluded subtrees stripped) into a fresh
// directory and returns its path. The workspace remains usable afterwards.
func (w *Workspace) Export() (string, error) {
	dest, err := os.MkdirTemp("", "conveyor-export-")
	if err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	if err := fsutil.CopyTree(w.dir, dest, w.excludes...); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("exporting workspace: %w", err)
	}
	return dest, nil
}

// Close removes the scratch copy. Views created by WithoutPath share it and
// become invalid too.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}
