// Package pipeline implements the deterministic build path: install
// dependencies into a cached environment, test, build, and publish. Its Test
// method doubles as the validation gate for the agent path.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/domain"
	"github.com/conveyor-dev/conveyor/internal/ports"
)

type Pipeline struct {
	runtime ports.ContainerRuntime
	cfg     *config.Config
	log     *log.Logger
}

func New(runtime ports.ContainerRuntime, cfg *config.Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(nil)
	}
	return &Pipeline{runtime: runtime, cfg: cfg, log: logger}
}

// BuildEnvironment prepares a ready-to-use development environment: base
// image, source mounted at /src, the dependency cache, and dependencies
// installed. The install runs to completion before the environment is
// returned, so repeated calls on identical source reuse the cache.
func (p *Pipeline) BuildEnvironment(ctx context.Context, sourceDir string) (ports.Environment, error) {
	rc := p.cfg.Runtime
	env := p.runtime.FromBaseImage(rc.BaseImage).
		WithDirectory("/src", sourceDir).
		WithMountedCache(rc.CachePath, rc.CacheKey).
		WithWorkdir("/src").
		WithExec(p.cfg.Commands.Install)

	env, err := env.Sync(ctx)
	if err != nil {
		return nil, &domain.DependencyInstallError{Output: execOutput(err), Err: err}
	}
	return env, nil
}

// Test runs the test command inside the build environment and returns its
// output. This is the single validation gate; the agent path calls it on
// every completed workspace before accepting the result.
func (p *Pipeline) Test(ctx context.Context, sourceDir string) (string, error) {
	env, err := p.BuildEnvironment(ctx, sourceDir)
	if err != nil {
		return "", err
	}

	p.log.Debug("running test gate", "source", sourceDir)
	out, err := env.WithExec(p.cfg.Commands.Test).Stdout(ctx)
	if err != nil {
		return "", &domain.TestError{Output: execOutput(err), Err: err}
	}
	return out, nil
}

// Build runs the build command and copies its output into the serving base
// image with the configured port exposed. The result is an unevaluated
// artifact environment; Publish forces it.
func (p *Pipeline) Build(ctx context.Context, sourceDir string) (ports.Environment, error) {
	env, err := p.BuildEnvironment(ctx, sourceDir)
	if err != nil {
		return nil, err
	}

	p.log.Debug("building artifact", "source", sourceDir)
	dist, err := env.WithExec(p.cfg.Commands.Build).Directory(ctx, p.cfg.Commands.BuildOutput)
	if err != nil {
		return nil, &domain.BuildError{Output: execOutput(err), Err: err}
	}

	return p.runtime.FromBaseImage(p.cfg.Runtime.ServeImage).
		WithDirectory(p.cfg.Commands.ServePath, dist).
		WithExposedPort(p.cfg.Runtime.Port), nil
}

// Publish tests, builds, and pushes the artifact under a unique tag. The
// test gate must pass before any image work starts; a single failure aborts
// the whole call with the underlying error.
func (p *Pipeline) Publish(ctx context.Context, sourceDir string) (string, error) {
	if _, err := p.Test(ctx, sourceDir); err != nil {
		return "", err
	}

	artifact, err := p.Build(ctx, sourceDir)
	if err != nil {
		return "", err
	}

	tag := fmt.Sprintf("%s-%s", p.cfg.Publish.TagPrefix, uuid.NewString())
	ref, err := artifact.Publish(ctx, tag)
	if err != nil {
		return "", fmt.Errorf("publishing %s: %w", tag, err)
	}

	p.log.Info("published", "ref", ref)
	return ref, nil
}

// execOutput pulls captured command output out of an evaluation error so
// failures surface the diagnostics, not just the exit code.
func execOutput(err error) string {
	var execErr *ports.ExecError
	if errors.As(err, &execErr) {
		return execErr.Output()
	}
	return ""
}
