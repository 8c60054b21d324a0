// Package fsutil holds small filesystem helpers shared by the workspace and
// the host-process runtime adapter.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CopyTree copies src into dst recursively, preserving file modes. Paths in
// exclude (relative to src, slash-separated) are skipped along with their
// subtrees. dst is created if needed.
func CopyTree(src, dst string, exclude ...string) error {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[filepath.ToSlash(filepath.Clean(e))] = true
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && isExcluded(filepath.ToSlash(rel), excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if d.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		return copyFile(path, target, d)
	})
}

func isExcluded(rel string, excluded map[string]bool) bool {
	for p := rel; p != "."; p = pathDir(p) {
		if excluded[p] {
			return true
		}
	}
	return false
}

func pathDir(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return "."
}

func copyFile(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
