package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conveyor-dev/conveyor/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "src", "components"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "package.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "src", "components", "App.vue"), []byte("<template/>"), 0644))

	dst := t.TempDir()
	require.NoError(t, fsutil.CopyTree(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "src", "components", "App.vue"))
	require.NoError(t, err)
	assert.Equal(t, "<template/>", string(data))
}

func TestCopyTree_ExcludesSubtree(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules", "left-pad"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "node_modules", "left-pad", "index.js"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("<h1/>"), 0644))

	dst := t.TempDir()
	require.NoError(t, fsutil.CopyTree(src, dst, "node_modules"))

	_, err := os.Stat(filepath.Join(dst, "node_modules"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "index.html"))
	assert.NoError(t, err)
}

func TestCopyTree_PreservesSymlinks(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "real.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(src, "link.txt")))

	dst := t.TempDir()
	require.NoError(t, fsutil.CopyTree(src, dst))

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}
