package domain

import "time"

type RunState string

const (
	RunStateCreated   RunState = "created"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// AgentRun is one execution of the orchestrator against an engine, prompt,
// and binding. Terminal states are completed and failed only; a run that
// stops anywhere short of completed is failed.
type AgentRun struct {
	ID           string
	Assignment   string
	State        RunState
	StartedAt    time.Time
	CompletedAt  time.Time
	ErrorMessage string
}

func NewAgentRun(id, assignment string) *AgentRun {
	return &AgentRun{
		ID:         id,
		Assignment: assignment,
		State:      RunStateCreated,
	}
}

func (r *AgentRun) Start() {
	r.State = RunStateRunning
	r.StartedAt = time.Now()
}

func (r *AgentRun) Complete() {
	r.State = RunStateCompleted
	r.CompletedAt = time.Now()
}

func (r *AgentRun) Fail(msg string) {
	r.State = RunStateFailed
	r.CompletedAt = time.Now()
	r.ErrorMessage = msg
}

// Terminal reports whether the run has reached a final state.
func (r *AgentRun) Terminal() bool {
	return r.State == RunStateCompleted || r.State == RunStateFailed
}

func (r *AgentRun) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
