package domain

import (
	"fmt"
	"time"
)

// Instruction is one step of an action: a remote capability invocation with
// its argument mapping and a post-execution delay.
type Instruction struct {
	Capability string         `json:"capability" yaml:"capability" mapstructure:"capability"`
	Args       map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	DelayMS    int            `json:"delay_ms" yaml:"delay_ms" mapstructure:"delay_ms"`
}

// Delay returns the post-execution delay as a duration. Negative values are
// clamped to zero.
func (i Instruction) Delay() time.Duration {
	if i.DelayMS < 0 {
		return 0
	}
	return time.Duration(i.DelayMS) * time.Millisecond
}

// Validate checks the instruction's structural shape.
func (i Instruction) Validate() error {
	if i.Capability == "" {
		return &ValidationError{Field: "capability", Reason: "must not be empty"}
	}
	if i.DelayMS < 0 {
		return &ValidationError{Field: "delay_ms", Reason: fmt.Sprintf("must not be negative, got %d", i.DelayMS)}
	}
	return nil
}

// Action is a user-authored, ordered sequence of instructions. Instruction
// order is significant and preserved.
type Action struct {
	ID           string        `json:"id" yaml:"id" mapstructure:"id"`
	Name         string        `json:"name" yaml:"name" mapstructure:"name"`
	Icon         string        `json:"icon,omitempty" yaml:"icon,omitempty" mapstructure:"icon"`
	Color        string        `json:"color,omitempty" yaml:"color,omitempty" mapstructure:"color"`
	Instructions []Instruction `json:"instructions" yaml:"instructions" mapstructure:"instructions"`
}

// Validate checks that the action is eligible for execution: a non-empty ID
// and at least one structurally valid instruction.
func (a *Action) Validate() error {
	if a.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if len(a.Instructions) == 0 {
		return &ValidationError{Field: "instructions", Reason: "must contain at least one instruction"}
	}
	for n, in := range a.Instructions {
		if err := in.Validate(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("instructions[%d]", n), Reason: err.Error()}
		}
	}
	return nil
}

// Clone returns a deep copy of the action. The engine snapshots an action at
// run start so concurrent edits are never observed mid-run.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	out := *a
	out.Instructions = make([]Instruction, len(a.Instructions))
	for n, in := range a.Instructions {
		cp := in
		if in.Args != nil {
			cp.Args = make(map[string]any, len(in.Args))
			for k, v := range in.Args {
				cp.Args[k] = v
			}
		}
		out.Instructions[n] = cp
	}
	return &out
}
