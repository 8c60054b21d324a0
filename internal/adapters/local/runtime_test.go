package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/conveyor-dev/conveyor/internal/adapters/local"
	"github.com/conveyor-dev/conveyor/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_ExecInWorkdir(t *testing.T) {
	rt := local.NewRuntimeWithCacheRoot(t.TempDir())
	ctx := context.Background()
	defer rt.Cleanup(ctx)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hi\n"), 0644))

	out, err := rt.FromBaseImage("node:21-slim").
		WithDirectory("/src", src).
		WithWorkdir("/src").
		WithExec([]string{"cat", "hello.txt"}).
		Stdout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)
}

func TestEnvironment_FailedExec(t *testing.T) {
	rt := local.NewRuntimeWithCacheRoot(t.TempDir())
	ctx := context.Background()
	defer rt.Cleanup(ctx)

	_, err := rt.FromBaseImage("node:21-slim").
		WithExec([]string{"sh", "-c", "echo missing module >&2; exit 2"}).
		Stdout(ctx)

	var execErr *ports.ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 2, execErr.ExitCode)
	assert.Contains(t, execErr.Output(), "missing module")
}

func TestEnvironment_CacheSharedAcrossEnvironments(t *testing.T) {
	cacheRoot := t.TempDir()
	rt := local.NewRuntimeWithCacheRoot(cacheRoot)
	ctx := context.Background()
	defer rt.Cleanup(ctx)

	_, err := rt.FromBaseImage("node:21-slim").
		WithMountedCache("/root/.npm", "node").
		WithExec([]string{"true"}).
		Sync(ctx)
	require.NoError(t, err)

	// The shared cache directory exists under the runtime's cache root and
	// persists after environment cleanup.
	_, err = os.Stat(filepath.Join(cacheRoot, "node"))
	assert.NoError(t, err)
}

func TestEnvironment_DirectoryExport(t *testing.T) {
	rt := local.NewRuntimeWithCacheRoot(t.TempDir())
	ctx := context.Background()
	defer rt.Cleanup(ctx)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.html"), []byte("<h1>hi</h1>"), 0644))

	exported, err := rt.FromBaseImage("node:21-slim").
		WithDirectory("/src", src).
		WithWorkdir("/src").
		WithExec([]string{"sh", "-c", "mkdir -p dist && cp index.html dist/"}).
		Directory(ctx, "dist")
	require.NoError(t, err)
	defer os.RemoveAll(exported)

	data, err := os.ReadFile(filepath.Join(exported, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", string(data))
}

func TestEnvironment_PublishUnsupported(t *testing.T) {
	rt := local.NewRuntimeWithCacheRoot(t.TempDir())
	defer rt.Cleanup(context.Background())

	_, err := rt.FromBaseImage("nginx:1.25-alpine").Publish(context.Background(), "ttl.sh/x")
	assert.ErrorContains(t, err, "docker runtime")
}
