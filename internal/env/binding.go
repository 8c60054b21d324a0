// Package env implements the typed input/output contract for one agent
// invocation: a named, directionally-typed slot collection bound before the
// run and validated when the run signals completion.
package env

import (
	"fmt"

	"github.com/conveyor-dev/conveyor/internal/domain"
)

type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Kind records the semantic type of a slot for the engine's benefit. The
// binding itself is agnostic to kinds beyond carrying them; mismatches are
// the engine's concern.
type Kind string

const (
	KindString    Kind = "string"
	KindWorkspace Kind = "workspace"
	KindSecret    Kind = "secret"
	KindDirectory Kind = "directory"
)

type Slot struct {
	Name        string
	Direction   Direction
	Kind        Kind
	Description string

	value any
	bound bool
}

// Value returns the slot's current value and whether it is bound.
func (s *Slot) Value() (any, bool) {
	return s.value, s.bound
}

// Binding holds the declared slots for one agent run. Slot names are unique
// across both directions. Inputs are immutable once added; outputs are
// populated by the engine and become readable only after Complete succeeds.
type Binding struct {
	slots     []*Slot
	byName    map[string]*Slot
	completed bool
}

func NewBinding() *Binding {
	return &Binding{byName: make(map[string]*Slot)}
}

func (b *Binding) addInput(name string, kind Kind, value any, description string) error {
	return b.add(&Slot{
		Name:        name,
		Direction:   DirectionInput,
		Kind:        kind,
		Description: description,
		value:       value,
		bound:       true,
	})
}

func (b *Binding) add(slot *Slot) error {
	if _, exists := b.byName[slot.Name]; exists {
		return &domain.DuplicateSlotError{Name: slot.Name}
	}
	b.slots = append(b.slots, slot)
	b.byName[slot.Name] = slot
	return nil
}

func (b *Binding) AddStringInput(name, value, description string) error {
	return b.addInput(name, KindString, value, description)
}

// AddWorkspaceInput binds a capability workspace. The value is stored
// opaquely; engines recover the concrete type themselves.
func (b *Binding) AddWorkspaceInput(name string, workspace any, description string) error {
	return b.addInput(name, KindWorkspace, workspace, description)
}

func (b *Binding) AddSecretInput(name string, secret domain.Secret, description string) error {
	return b.addInput(name, KindSecret, secret, description)
}

// AddWorkspaceOutput declares an output slot the engine must populate before
// the run can complete.
func (b *Binding) AddWorkspaceOutput(name, description string) error {
	return b.add(&Slot{
		Name:        name,
		Direction:   DirectionOutput,
		Kind:        KindWorkspace,
		Description: description,
	})
}

// Inputs returns the input slots in declaration order.
func (b *Binding) Inputs() []*Slot {
	return b.byDirection(DirectionInput)
}

// Outputs returns the output slots in declaration order.
func (b *Binding) Outputs() []*Slot {
	return b.byDirection(DirectionOutput)
}

func (b *Binding) byDirection(dir Direction) []*Slot {
	var out []*Slot
	for _, s := range b.slots {
		if s.Direction == dir {
			out = append(out, s)
		}
	}
	return out
}

// InputValue returns the bound value of an input slot.
func (b *Binding) InputValue(name string) (any, error) {
	slot, ok := b.byName[name]
	if !ok || slot.Direction != DirectionInput {
		return nil, fmt.Errorf("input %q is not declared", name)
	}
	return slot.value, nil
}

// SetOutput populates a declared output slot. Engines call this as results
// become available; setting an undeclared name is an error.
func (b *Binding) SetOutput(name string, value any) error {
	slot, ok := b.byName[name]
	if !ok || slot.Direction != DirectionOutput {
		return &domain.UnboundOutputError{Name: name}
	}
	slot.value = value
	slot.bound = true
	return nil
}

// Complete verifies that every declared output slot has been populated and
// marks the binding completed. A missing output is fatal: the run is never
// accepted partially.
func (b *Binding) Complete() error {
	var missing []string
	for _, s := range b.slots {
		if s.Direction == DirectionOutput && !s.bound {
			missing = append(missing, s.Name)
		}
	}
	if len(missing) > 0 {
		return &domain.IncompleteRunError{Missing: missing}
	}
	b.completed = true
	return nil
}

// Completed reports whether Complete has succeeded.
func (b *Binding) Completed() bool { return b.completed }

// Output returns a populated output value. It fails until Complete has
// succeeded, and for names never declared as outputs.
func (b *Binding) Output(name string) (any, error) {
	slot, ok := b.byName[name]
	if !ok || slot.Direction != DirectionOutput {
		return nil, &domain.UnboundOutputError{Name: name}
	}
	if !b.completed || !slot.bound {
		return nil, &domain.UnboundOutputError{Name: name}
	}
	return slot.value, nil
}
