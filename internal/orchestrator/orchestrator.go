// Package orchestrator binds an assignment and a capability workspace to the
// execution engine, runs the agent to completion, and validates the result
// through the pipeline's test gate before anything leaves the agent path.
package orchestrator

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/conveyor-dev/conveyor/internal/domain"
	"github.com/conveyor-dev/conveyor/internal/env"
	"github.com/conveyor-dev/conveyor/internal/ports"
	"github.com/conveyor-dev/conveyor/internal/workspace"
)

//go:embed develop_prompt.md
var developPrompt string

type Orchestrator struct {
	engine    ports.ExecutionEngine
	validator ports.Validator
	store     ports.RunStore
	log       *log.Logger

	// generatedDir is stripped from the completed workspace before the
	// re-validation gate and before the artifact is returned.
	generatedDir string
}

func New(engine ports.ExecutionEngine, validator ports.Validator, store ports.RunStore, generatedDir string, logger *log.Logger) *Orchestrator {
	if store == nil {
		store = noopStore{}
	}
	if logger == nil {
		logger = log.New(nil)
	}
	return &Orchestrator{
		engine:       engine,
		validator:    validator,
		store:        store,
		log:          logger,
		generatedDir: generatedDir,
	}
}

// Develop runs one agent invocation against the assignment and returns the
// path of a validated result directory. The agent's output is never trusted
// un-validated: the test gate must pass on the completed workspace or the
// whole run fails.
func (o *Orchestrator) Develop(ctx context.Context, assignment, sourceDir string) (string, error) {
	run := domain.NewAgentRun(uuid.NewString(), assignment)
	if err := o.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}

	dir, err := o.develop(ctx, run, assignment, sourceDir)
	if err != nil {
		run.Fail(err.Error())
		if storeErr := o.store.UpdateRun(ctx, run); storeErr != nil {
			o.log.Error("recording failed run", "run", run.ID, "err", storeErr)
		}
		return "", err
	}

	run.Complete()
	if err := o.store.UpdateRun(ctx, run); err != nil {
		o.log.Error("recording completed run", "run", run.ID, "err", err)
	}
	return dir, nil
}

func (o *Orchestrator) develop(ctx context.Context, run *domain.AgentRun, assignment, sourceDir string) (string, error) {
	ws, err := workspace.New(sourceDir, o.validator)
	if err != nil {
		return "", err
	}
	defer ws.Close()

	binding := env.NewBinding()
	if err := binding.AddStringInput("assignment", assignment, "the assignment to complete"); err != nil {
		return "", err
	}
	if err := binding.AddWorkspaceInput("workspace", ws, "the workspace with tools to edit and test code"); err != nil {
		return "", err
	}
	if err := binding.AddWorkspaceOutput("completed", "the workspace with the completed assignment"); err != nil {
		return "", err
	}

	run.Start()
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	o.log.Info("agent run started", "run", run.ID)

	if err := o.engine.Run(ctx, developPrompt, binding); err != nil {
		return "", &domain.AgentExecutionError{Err: err}
	}

	if err := binding.Complete(); err != nil {
		return "", err
	}

	value, err := binding.Output("completed")
	if err != nil {
		return "", err
	}
	completed, ok := value.(*workspace.Workspace)
	if !ok {
		return "", &domain.IncompleteRunError{Missing: []string{"completed"}}
	}

	result, err := completed.WithoutPath(o.generatedDir).Export()
	if err != nil {
		return "", err
	}

	o.log.Info("agent run completed, re-validating", "run", run.ID)
	if _, err := o.validator.Test(ctx, result); err != nil {
		return "", &domain.ValidationError{Err: err}
	}

	return result, nil
}

// DevelopIssue reads an issue from the tracker, uses its body verbatim as
// the assignment, and submits the validated result as a pull request that
// closes the issue. Any failure along the way propagates unmodified; no
// partial pull request is ever created.
func (o *Orchestrator) DevelopIssue(ctx context.Context, tracker ports.IssueTracker, repositoryURL string, issueNumber int, sourceDir string) (string, error) {
	issue, err := tracker.ReadIssue(ctx, repositoryURL, issueNumber)
	if err != nil {
		return "", err
	}

	result, err := o.Develop(ctx, issue.Body, sourceDir)
	if err != nil {
		return "", err
	}

	body := fmt.Sprintf("%s\n\nCloses %s", issue.Body, issue.URL)
	pr, err := tracker.CreatePullRequest(ctx, repositoryURL, issue.Title, body, result)
	if err != nil {
		return "", err
	}

	o.log.Info("pull request opened", "url", pr.URL)
	return pr.URL, nil
}

type noopStore struct{}

func (noopStore) CreateRun(context.Context, *domain.AgentRun) error { return nil }
func (noopStore) UpdateRun(context.Context, *domain.AgentRun) error { return nil }
func (noopStore) GetRun(context.Context, string) (*domain.AgentRun, error) {
	return nil, fmt.Errorf("run persistence is disabled")
}
func (noopStore) ListRuns(context.Context) ([]*domain.AgentRun, error) { return nil, nil }
