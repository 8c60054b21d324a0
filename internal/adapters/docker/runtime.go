// Package docker implements the container runtime port by shelling out to
// the docker CLI. Environments are immutable recipes; evaluation creates a
// container, replays the recorded operations against it, and memoizes the
// result per handle.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/conveyor-dev/conveyor/internal/ports"
)

type Runtime struct {
	mu         sync.Mutex
	containers []string
}

func NewRuntime() (*Runtime, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("docker not found in PATH: %w", err)
	}
	return &Runtime{}, nil
}

func (r *Runtime) FromBaseImage(ref string) ports.Environment {
	return &environment{rt: r, base: ref}
}

// Cleanup force-removes every container this runtime created. Callers defer
// it around a top-level invocation.
func (r *Runtime) Cleanup(ctx context.Context) {
	r.mu.Lock()
	containers := r.containers
	r.containers = nil
	r.mu.Unlock()

	for _, id := range containers {
		exec.CommandContext(ctx, "docker", "rm", "-f", id).Run()
	}
}

func (r *Runtime) track(containerID string) {
	r.mu.Lock()
	r.containers = append(r.containers, containerID)
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
	containerID string
	lastStdout  string
	exposed     []int
	err         error
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

	dest, err := os.MkdirTemp("", "conveyor-dir-")
	if err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	src := e.state.containerID + ":" + e.containerPath(path)
	if _, err := runDocker(ctx, "cp", src, dest); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("exporting %s: %w", path, err)
	}

	// docker cp places the directory under its own name inside dest.
	base := strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return dest + "/" + base, nil
}

func (e *environment) Publish(ctx context.Context, tag string) (string, error) {
	if err := e.evaluate(ctx); err != nil {
		return "", err
	}

	commitArgs := []string{"commit"}
	for _, port := range e.state.exposed {
		commitArgs = append(commitArgs, "--change", fmt.Sprintf("EXPOSE %d", port))
	}
	commitArgs = append(commitArgs, e.state.containerID, tag)
	if _, err := runDocker(ctx, commitArgs...); err != nil {
		return "", fmt.Errorf("committing image: %w", err)
	}

	if _, err := runDocker(ctx, "push", tag); err != nil {
		return "", fmt.Errorf("pushing %s: %w", tag, err)
	}
	return tag, nil
}

// containerPath resolves a possibly relative path against the recipe's final
// workdir.
func (e *environment) containerPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	workdir := "/"
	for _, o := range e.ops {
		if o.kind == opWorkdir {
			workdir = o.path
		}
	}
	return strings.TrimSuffix(workdir, "/") + "/" + strings.TrimPrefix(path, "./")
}

func (e *environment) evaluate(ctx context.Context) error {
	e.once.Do(func() {
		e.state = e.run(ctx)
	})
	return e.state.err
}

func (e *environment) run(ctx context.Context) evalState {
	var state evalState

	// Cache mounts must be present at container creation, so they are
	// hoisted ahead of the ordered replay.
	runArgs := []string{"run", "-d", "--entrypoint", "sleep"}
	for _, o := range e.ops {
		if o.kind != opCache {
			continue
		}
		volume := "conveyor-cache-" + o.key
		// Idempotent; concurrent invocations may race, which is fine.
		runDocker(ctx, "volume", "create", volume)
		runArgs = append(runArgs, "-v", volume+":"+o.path)
	}
	runArgs = append(runArgs, e.base, "infinity")

	out, err := runDocker(ctx, runArgs...)
	if err != nil {
		state.err = fmt.Errorf("creating container from %s: %w", e.base, err)
		return state
	}
	state.containerID = strings.TrimSpace(out)
	e.rt.track(state.containerID)

	workdir := "/"
	for _, o := range e.ops {
		switch o.kind {
		case opDirectory:
			if _, err := runDocker(ctx, "exec", state.containerID, "mkdir", "-p", o.path); err != nil {
				state.err = fmt.Errorf("preparing %s: %w", o.path, err)
				return state
			}
			if _, err := runDocker(ctx, "cp", o.hostDir+"/.", state.containerID+":"+o.path); err != nil {
				state.err = fmt.Errorf("copying %s into container: %w", o.hostDir, err)
				return state
			}
		case opWorkdir:
			if _, err := runDocker(ctx, "exec", state.containerID, "mkdir", "-p", o.path); err != nil {
				state.err = fmt.Errorf("preparing workdir %s: %w", o.path, err)
				return state
			}
			workdir = o.path
		case opExec:
			stdout, stderr, code, err := execInContainer(ctx, state.containerID, workdir, o.args)
			if err != nil {
				state.err = err
				return state
			}
			if code != 0 {
				state.err = &ports.ExecError{Args: o.args, ExitCode: code, Stdout: stdout, Stderr: stderr}
				return state
			}
			state.lastStdout = stdout
		case opExposePort:
			state.exposed = append(state.exposed, o.port)
		}
	}
	return state
}

func execInContainer(ctx context.Context, containerID, workdir string, args []string) (stdout, stderr string, exitCode int, err error) {
	dockerArgs := append([]string{"exec", "-w", workdir, containerID}, args...)
	cmd := exec.CommandContext(ctx, "docker", dockerArgs...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return outBuf.String(), errBuf.String(), exitErr.ExitCode(), nil
		}
		return "", "", -1, fmt.Errorf("running %q: %w", strings.Join(args, " "), runErr)
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

func runDocker(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
