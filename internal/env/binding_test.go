package env_test

import (
	"errors"
	"testing"

	"github.com/conveyor-dev/conveyor/internal/domain"
	"github.com/conveyor-dev/conveyor/internal/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinding_DuplicateNamesRejected(t *testing.T) {
	b := env.NewBinding()
	require.NoError(t, b.AddStringInput("assignment", "add a button", "the task"))

	var dup *domain.DuplicateSlotError

	err := b.AddStringInput("assignment", "something else", "again")
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "assignment", dup.Name)

	// Uniqueness holds across directions too.
	err = b.AddWorkspaceOutput("assignment", "clashes with the input")
	require.True(t, errors.As(err, &dup))
}

func TestBinding_OutputUnreadableBeforeCompletion(t *testing.T) {
	b := env.NewBinding()
	require.NoError(t, b.AddWorkspaceOutput("completed", "the finished workspace"))
	require.NoError(t, b.SetOutput("completed", "some-workspace"))

	_, err := b.Output("completed")
	var unbound *domain.UnboundOutputError
	require.True(t, errors.As(err, &unbound))
	assert.Equal(t, "completed", unbound.Name)

	require.NoError(t, b.Complete())

	v, err := b.Output("completed")
	require.NoError(t, err)
	assert.Equal(t, "some-workspace", v)
}

func TestBinding_UndeclaredOutput(t *testing.T) {
	b := env.NewBinding()
	require.NoError(t, b.AddStringInput("assignment", "x", ""))

	var unbound *domain.UnboundOutputError

	err := b.SetOutput("nope", 1)
	assert.True(t, errors.As(err, &unbound))

	// Inputs are not readable through Output either.
	_, err = b.Output("assignment")
	assert.True(t, errors.As(err, &unbound))
}

func TestBinding_CompleteReportsMissingOutputs(t *testing.T) {
	b := env.NewBinding()
	require.NoError(t, b.AddWorkspaceOutput("completed", ""))
	require.NoError(t, b.AddWorkspaceOutput("notes", ""))
	require.NoError(t, b.SetOutput("completed", "ws"))

	err := b.Complete()
	var incomplete *domain.IncompleteRunError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"notes"}, incomplete.Missing)
	assert.False(t, b.Completed())
}

func TestBinding_InputsAndOutputsKeepDeclarationOrder(t *testing.T) {
	b := env.NewBinding()
	require.NoError(t, b.AddStringInput("assignment", "task", "the assignment to complete"))
	require.NoError(t, b.AddWorkspaceInput("workspace", struct{}{}, "tools to edit and test code"))
	require.NoError(t, b.AddSecretInput("token", domain.NewSecret("shh"), "tracker credential"))
	require.NoError(t, b.AddWorkspaceOutput("completed", "the completed workspace"))

	inputs := b.Inputs()
	require.Len(t, inputs, 3)
	assert.Equal(t, "assignment", inputs[0].Name)
	assert.Equal(t, env.KindString, inputs[0].Kind)
	assert.Equal(t, "workspace", inputs[1].Name)
	assert.Equal(t, env.KindWorkspace, inputs[1].Kind)
	assert.Equal(t, "token", inputs[2].Name)
	assert.Equal(t, env.KindSecret, inputs[2].Kind)

	outputs := b.Outputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, "completed", outputs[0].Name)

	v, err := b.InputValue("assignment")
	require.NoError(t, err)
	assert.Equal(t, "task", v)
}
