package ports

import (
	"context"
	"fmt"
	"strings"
)

// ContainerRuntime creates build environments from base images. Environments
// are immutable recipes: every With* call returns a new handle, and nothing
// executes until a terminal operation (Sync, Stdout, Directory, Publish)
// forces evaluation.
type ContainerRuntime interface {
	FromBaseImage(ref string) Environment
}

type Environment interface {
	// WithDirectory copies the host directory into the environment at path.
	WithDirectory(path, hostDir string) Environment

	// WithMountedCache mounts a persistent cache at path. Caches are shared
	// across invocations by key; a missing cache is a cold start, never an
	// error.
	WithMountedCache(path, key string) Environment

	WithWorkdir(path string) Environment

	// WithExec appends a command. A non-zero exit surfaces as *ExecError
	// when the environment is evaluated.
	WithExec(args []string) Environment

	WithExposedPort(port int) Environment

	// Sync forces evaluation of all pending operations.
	Sync(ctx context.Context) (Environment, error)

	// Stdout evaluates and returns the captured stdout of the last exec.
	Stdout(ctx context.Context) (string, error)

	// Directory evaluates and exports the directory at path to the host,
	// returning the host path.
	Directory(ctx context.Context, path string) (string, error)

	// Publish evaluates, packages the environment as an image, and pushes
	// it under tag, returning the published reference.
	Publish(ctx context.Context, tag string) (string, error)
}

// ExecError reports a command that exited non-zero inside an environment,
// with its captured output.
type ExecError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command %q exited %d", strings.Join(e.Args, " "), e.ExitCode)
}

// Output returns the combined captured output, stdout first.
func (e *ExecError) Output() string {
	if e.Stdout == "" {
		return e.Stderr
	}
	if e.Stderr == "" {
		return e.Stdout
	}
	return e.Stdout + "\n" + e.Stderr
}
