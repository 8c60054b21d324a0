// Package claude implements the execution engine port by shelling out to an
// agent CLI (Claude Code by default). The agent works directly in the
// workspace's scratch directory; the completion protocol is line markers on
// stdout that name the output slots the agent has satisfied.
package claude

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/conveyor-dev/conveyor/internal/env"
	"github.com/conveyor-dev/conveyor/internal/protocol"
)

// workspaceDir is the slice of the workspace capability this adapter needs:
// somewhere to point the agent's working directory.
type workspaceDir interface {
	Dir() string
}

type Engine struct {
	Command string
	Args    []string

	log *log.Logger
}

func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(nil)
	}
	return &Engine{
		Command: "claude",
		Args:    []string{"-p", "--output-format", "text", "--dangerously-skip-permissions"},
		log:     logger,
	}
}

// Run executes the agent once against the binding. The first workspace
// input becomes the agent's working directory; every output marker the
// agent emits binds the corresponding workspace output. Slots the agent
// never names stay unbound and surface upstream when the binding is
// completed.
func (e *Engine) Run(ctx context.Context, prompt string, binding *env.Binding) error {
	ws, err := workspaceInput(binding)
	if err != nil {
		return err
	}

	fullPrompt := assemblePrompt(prompt, binding)

	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Dir = ws.Dir()
	cmd.Stdin = strings.NewReader(fullPrompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Debug("invoking agent", "command", e.Command)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("agent command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	names, _ := protocol.ExtractOutputs(stdout.Bytes())
	for _, name := range names {
		if err := binding.SetOutput(name, ws); err != nil {
			return fmt.Errorf("agent named undeclared output %q: %w", name, err)
		}
	}
	return nil
}

func workspaceInput(binding *env.Binding) (workspaceDir, error) {
	for _, slot := range binding.Inputs() {
		if slot.Kind != env.KindWorkspace {
			continue
		}
		value, _ := slot.Value()
		if ws, ok := value.(workspaceDir); ok {
			return ws, nil
		}
	}
	return nil, fmt.Errorf("binding has no workspace input")
}

// assemblePrompt renders the prompt document plus the binding's contract:
// inputs by name and description, and the marker each output requires.
// Secret values are never rendered.
func assemblePrompt(prompt string, binding *env.Binding) string {
	var b strings.Builder
	b.WriteString(prompt)

	b.WriteString("\n\n## Inputs\n")
	for _, slot := range binding.Inputs() {
		switch slot.Kind {
		case env.KindString:
			value, _ := slot.Value()
			fmt.Fprintf(&b, "- %s (%s): %v\n", slot.Name, slot.Description, value)
		case env.KindWorkspace:
			fmt.Fprintf(&b, "- %s (%s): the current working directory\n", slot.Name, slot.Description)
		default:
			fmt.Fprintf(&b, "- %s (%s): provided out of band\n", slot.Name, slot.Description)
		}
	}

	outputs := binding.Outputs()
	if len(outputs) > 0 {
		b.WriteString("\n## Completion\n")
		b.WriteString("When an output is ready, print the matching line below on its own line:\n")
		for _, slot := range outputs {
			fmt.Fprintf(&b, "- %s%s (%s)\n", protocol.OutputPrefix, slot.Name, slot.Description)
		}
	}

	return b.String()
}
