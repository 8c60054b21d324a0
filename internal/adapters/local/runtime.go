// Package local implements the container runtime port with host processes:
// each environment gets a scratch root standing in for the container
// filesystem, cache mounts map to a shared directory under the user cache
// dir, and execs run directly on the host. Publishing requires a real
// container runtime and is unsupported here.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conveyor-dev/conveyor/internal/fsutil"
	"github.com/conveyor-dev/conveyor/internal/ports"
)

type Runtime struct {
	cacheRoot string
	mu        sync.Mutex
	scratch   []string
}

func NewRuntime() (*Runtime, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("locating cache dir: %w", err)
	}
	return &Runtime{cacheRoot: filepath.Join(base, "conveyor")}, nil
}

// NewRuntimeWithCacheRoot is used by tests to isolate the shared cache.
func NewRuntimeWithCacheRoot(cacheRoot string) *Runtime {
	return &Runtime{cacheRoot: cacheRoot}
}

func (r *Runtime) FromBaseImage(ref string) ports.Environment {
	return &environment{rt: r, base: ref}
}

// Cleanup removes the scratch roots created by evaluated environments.
func (r *Runtime) Cleanup(context.Context) {
	r.mu.Lock()
	scratch := r.scratch
	r.scratch = nil
	r.mu.Unlock()

	for _, dir := range scratch {
		os.RemoveAll(dir)
	}
}

func (r *Runtime) track(dir string) {
	r.mu.Lock()
	r.scratch = append(r.scratch, dir)
	r.mu.Unlock()
}

type opKind int

const (
	opDirectory opKind = iota
	opCache
	opWorkdir
	opExec
	opExposePort
)

type op struct {
	kind    opKind
	path    string
	hostDir string
	key     string
	args    []string
	port    int
}

type evalState struct {
	root       string
	lastStdout string
	err        error
}

type environment struct {
	rt   *Runtime
	base string
	ops  []op

	once  sync.Once
	state evalState
}

func (e *environment) clone(next op) *environment {
	ops := make([]op, len(e.ops), len(e.ops)+1)
	copy(ops, e.ops)
	return &environment{rt: e.rt, base: e.base, ops: append(ops, next)}
}

func (e *environment) WithDirectory(path, hostDir string) ports.Environment {
	return e.clone(op{kind: opDirectory, path: path, hostDir: hostDir})
}

func (e *environment) WithMountedCache(path, key string) ports.Environment {
	return e.clone(op{kind: opCache, path: path, key: key})
}

func (e *environment) WithWorkdir(path string) ports.Environment {
	return e.clone(op{kind: opWorkdir, path: path})
}

func (e *environment) WithExec(args []string) ports.Environment {
	return e.clone(op{kind: opExec, args: args})
}

func (e *environment) WithExposedPort(port int) ports.Environment {
	return e.clone(op{kind: opExposePort, port: port})
}

func (e *environment) Sync(ctx context.Context) (ports.Environment, error) {
	if err := e.evaluate(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *environment) Stdout(ctx context.Context) (string, error) {
	if err := e.evaluate(ctx); err != nil {
		return "", err
	}
	return e.state.lastStdout, nil
}

func (e *environment) Directory(ctx context.Context, path string) (string, error) {
	if err := e.evaluate(ctx); err != nil {
		return "", err
	}

	src := e.mapPath(path, e.finalWorkdir())
	dest, err := os.MkdirTemp("", "conveyor-dir-")
	if err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}
	if err := fsutil.CopyTree(src, dest); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("exporting %s: %w", path, err)
	}
	return dest, nil
}

func (e *environment) Publish(context.Context, string) (string, error) {
	return "", fmt.Errorf("publishing requires the docker runtime")
}

// mapPath translates an in-environment path to the scratch root.
func (e *environment) mapPath(path, workdir string) string {
	if !strings.HasPrefix(path, "/") {
		path = strings.TrimSuffix(workdir, "/") + "/" + strings.TrimPrefix(path, "./")
	}
	return filepath.Join(e.state.root, filepath.FromSlash(path))
}

func (e *environment) finalWorkdir() string {
	workdir := "/"
	for _, o := range e.ops {
		if o.kind == opWorkdir {
			workdir = o.path
		}
	}
	return workdir
}

func (e *environment) evaluate(ctx context.Context) error {
	e.once.Do(func() {
		e.state = e.run(ctx)
	})
	return e.state.err
}

func (e *environment) run(ctx context.Context) evalState {
	var state evalState

	root, err := os.MkdirTemp("", "conveyor-env-")
	if err != nil {
		state.err = fmt.Errorf("creating environment root: %w", err)
		return state
	}
	state.root = root
	e.rt.track(root)

	workdir := "/"
	for _, o := range e.ops {
		switch o.kind {
		case opDirectory:
			target := filepath.Join(root, filepath.FromSlash(o.path))
			if err := os.MkdirAll(target, 0755); err != nil {
				state.err = err
				return state
			}
			if err := fsutil.CopyTree(o.hostDir, target); err != nil {
				state.err = fmt.Errorf("copying %s: %w", o.hostDir, err)
				return state
			}
		case opCache:
			shared := filepath.Join(e.rt.cacheRoot, o.key)
			if err := os.MkdirAll(shared, 0755); err != nil {
				state.err = fmt.Errorf("preparing cache %s: %w", o.key, err)
				return state
			}
			link := filepath.Join(root, filepath.FromSlash(o.path))
			if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
				state.err = err
				return state
			}
			if err := os.Symlink(shared, link); err != nil && !os.IsExist(err) {
				state.err = fmt.Errorf("mounting cache %s: %w", o.key, err)
				return state
			}
		case opWorkdir:
			if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(o.path)), 0755); err != nil {
				state.err = err
				return state
			}
			workdir = o.path
		case opExec:
			cmd := exec.CommandContext(ctx, o.args[0], o.args[1:]...)
			cmd.Dir = filepath.Join(root, filepath.FromSlash(workdir))

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			if runErr := cmd.Run(); runErr != nil {
				if exitErr, ok := runErr.(*exec.ExitError); ok {
					state.err = &ports.ExecError{
						Args:     o.args,
						ExitCode: exitErr.ExitCode(),
						Stdout:   stdout.String(),
						Stderr:   stderr.String(),
					}
					return state
				}
				state.err = fmt.Errorf("running %q: %w", strings.Join(o.args, " "), runErr)
				return state
			}
			state.lastStdout = stdout.String()
		case opExposePort:
			// Meaningful only for published images; recorded nowhere.
		}
	}
	return state
}
