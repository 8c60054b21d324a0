package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/conveyor-dev/conveyor/internal/domain"
	"github.com/conveyor-dev/conveyor/internal/env"
	"github.com/conveyor-dev/conveyor/internal/orchestrator"
	"github.com/conveyor-dev/conveyor/internal/ports"
	"github.com/conveyor-dev/conveyor/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	prompt string
	run    func(b *env.Binding) error
}

func (f *fakeEngine) Run(_ context.Context, prompt string, b *env.Binding) error {
	f.prompt = prompt
	return f.run(b)
}

type fakeValidator struct {
	err    error
	tested []string
}

func (f *fakeValidator) Test(_ context.Context, sourceDir string) (string, error) {
	f.tested = append(f.tested, sourceDir)
	if f.err != nil {
		return "", f.err
	}
	return "all tests passed", nil
}

type fakeStore struct {
	created []*domain.AgentRun
	states  []domain.RunState
}

func (f *fakeStore) CreateRun(_ context.Context, run *domain.AgentRun) error {
	f.created = append(f.created, run)
	f.states = append(f.states, run.State)
	return nil
}

func (f *fakeStore) UpdateRun(_ context.Context, run *domain.AgentRun) error {
	f.states = append(f.states, run.State)
	return nil
}

func (f *fakeStore) GetRun(context.Context, string) (*domain.AgentRun, error) { return nil, nil }
func (f *fakeStore) ListRuns(context.Context) ([]*domain.AgentRun, error)     { return nil, nil }

// completeAssignment mimics a well-behaved engine: edit the workspace, then
// bind it to the declared output slot.
func completeAssignment(t *testing.T) func(b *env.Binding) error {
	t.Helper()
	return func(b *env.Binding) error {
		v, err := b.InputValue("workspace")
		if err != nil {
			return err
		}
		ws, ok := v.(*workspace.Workspace)
		if !ok {
			return errors.New("workspace input has unexpected type")
		}
		if err := ws.WriteFile("src/Logout.vue", "<template/>\n"); err != nil {
			return err
		}
		return b.SetOutput("completed", ws)
	}
}

func seedSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "vue"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "vue", "index.js"), []byte("// dep"), 0644))
	return dir
}

func TestDevelop_ValidatedResult(t *testing.T) {
	engine := &fakeEngine{run: completeAssignment(t)}
	validator := &fakeValidator{}
	store := &fakeStore{}
	o := orchestrator.New(engine, validator, store, "node_modules", nil)

	result, err := o.Develop(context.Background(), "add a logout button", seedSource(t))
	require.NoError(t, err)
	defer os.RemoveAll(result)

	// The agent's edit survived export.
	_, err = os.Stat(filepath.Join(result, "src", "Logout.vue"))
	assert.NoError(t, err)

	// The generated dependency tree was stripped before validation.
	_, err = os.Stat(filepath.Join(result, "node_modules"))
	assert.True(t, os.IsNotExist(err))

	// The gate ran on the exported tree, not the scratch copy.
	require.Len(t, validator.tested, 1)
	assert.Equal(t, result, validator.tested[0])

	assert.NotEmpty(t, engine.prompt, "the prompt document is handed to the engine")
	assert.Equal(t, []domain.RunState{
		domain.RunStateCreated,
		domain.RunStateRunning,
		domain.RunStateCompleted,
	}, store.states)
}

func TestDevelop_RejectsBrokenResult(t *testing.T) {
	engine := &fakeEngine{run: completeAssignment(t)}
	validator := &fakeValidator{err: &domain.TestError{Output: "1 failed"}}
	store := &fakeStore{}
	o := orchestrator.New(engine, validator, store, "node_modules", nil)

	_, err := o.Develop(context.Background(), "add a logout button", seedSource(t))

	var valErr *domain.ValidationError
	require.True(t, errors.As(err, &valErr))

	var testErr *domain.TestError
	require.True(t, errors.As(err, &testErr))
	assert.Contains(t, testErr.Output, "1 failed")

	assert.Equal(t, domain.RunStateFailed, store.states[len(store.states)-1])
}

func TestDevelop_EngineFailure(t *testing.T) {
	engine := &fakeEngine{run: func(*env.Binding) error {
		return errors.New("model backend unavailable")
	}}
	o := orchestrator.New(engine, &fakeValidator{}, nil, "node_modules", nil)

	_, err := o.Develop(context.Background(), "anything", seedSource(t))

	var execErr *domain.AgentExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, err.Error(), "model backend unavailable")
}

func TestDevelop_IncompleteRun(t *testing.T) {
	// Engine signals success without populating the declared output.
	engine := &fakeEngine{run: func(*env.Binding) error { return nil }}
	validator := &fakeValidator{}
	o := orchestrator.New(engine, validator, nil, "node_modules", nil)

	_, err := o.Develop(context.Background(), "anything", seedSource(t))

	var incomplete *domain.IncompleteRunError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"completed"}, incomplete.Missing)
	assert.Empty(t, validator.tested, "nothing to validate, nothing leaks out")
}

type fakeTracker struct {
	issue   *ports.Issue
	readErr error

	prTitle      string
	prBody       string
	prContentDir string
}

func (f *fakeTracker) ReadIssue(_ context.Context, _ string, _ int) (*ports.Issue, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.issue, nil
}

func (f *fakeTracker) CreatePullRequest(_ context.Context, _, title, body, contentDir string) (*ports.PullRequest, error) {
	f.prTitle = title
	f.prBody = body
	f.prContentDir = contentDir
	return &ports.PullRequest{Title: title, Body: body, URL: "https://github.com/acme/app/pull/7"}, nil
}

func TestDevelopIssue_OpensPullRequest(t *testing.T) {
	engine := &fakeEngine{run: completeAssignment(t)}
	tracker := &fakeTracker{issue: &ports.Issue{
		Number: 42,
		Title:  "Crash on startup",
		Body:   "Fix crash on startup",
		URL:    "https://github.com/acme/app/issues/42",
	}}
	o := orchestrator.New(engine, &fakeValidator{}, nil, "node_modules", nil)

	url, err := o.DevelopIssue(context.Background(), tracker, "https://github.com/acme/app", 42, seedSource(t))
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/app/pull/7", url)
	assert.Equal(t, "Crash on startup", tracker.prTitle)
	assert.Contains(t, tracker.prBody, "Fix crash on startup")
	assert.Contains(t, tracker.prBody, "Closes https://github.com/acme/app/issues/42")

	// The PR content is the validated export.
	info, err := os.Stat(tracker.prContentDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDevelopIssue_MissingIssueAbortsBeforeAgent(t *testing.T) {
	engineCalled := false
	engine := &fakeEngine{run: func(b *env.Binding) error {
		engineCalled = true
		return completeAssignment(t)(b)
	}}
	tracker := &fakeTracker{readErr: &domain.IssueNotFoundError{Repository: "https://github.com/acme/app", Number: 99}}
	o := orchestrator.New(engine, &fakeValidator{}, nil, "node_modules", nil)

	_, err := o.DevelopIssue(context.Background(), tracker, "https://github.com/acme/app", 99, seedSource(t))

	var notFound *domain.IssueNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.False(t, engineCalled)
}
