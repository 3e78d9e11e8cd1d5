// Package tools implements the tool-call router: a registry of named tools
// with schema-validated arguments and polymorphic dispatch.
//
// A handler resolves a call in one of two ways:
//
//	Call → Registry.Dispatch → Handler → Done(result)
//	                                   → Suspend(subchat IDs...)
//
// Suspension is not an error. It is a tagged Pending outcome carrying the
// spawned subchat identifiers; the dispatch core resumes the call once all
// of them reach a terminal state.
package tools

import (
	"context"

	"twind/internal/types"
)

// Property describes a single argument in a tool schema.
type Property struct {
	// Type is the JSON type of the argument ("string", "boolean").
	Type string `json:"type"`

	// Description explains the argument for model-facing tool listings.
	Description string `json:"description"`

	// Enum restricts string arguments to a fixed value domain.
	Enum []string `json:"enum,omitempty"`

	// Nullable allows an explicit null (or absent optional) value.
	Nullable bool `json:"nullable,omitempty"`
}

// Schema declares the argument contract for a tool.
// Validation runs before the handler; a call that fails it never
// reaches the handler and causes no side effects.
type Schema struct {
	// Required lists arguments that must be present.
	Required []string `json:"required"`

	// Properties describes each argument.
	Properties map[string]Property `json:"properties"`
}

// Handler executes a validated tool call.
type Handler func(ctx context.Context, call types.ToolCall) (Outcome, error)

// Tool binds a name and schema to a handler.
type Tool struct {
	// Name is the unique identifier the model invokes the tool by.
	Name string

	// Description explains what the tool does.
	Description string

	// Schema defines the expected arguments.
	Schema Schema

	// Handler runs the tool.
	Handler Handler
}

// Validate checks that the tool definition is usable.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Handler == nil {
		return ErrToolHandlerNil
	}
	return nil
}

// Outcome is the result of dispatching a tool call: either a final payload
// (Done) or a suspension carrying pending subchat identifiers (Pending).
type Outcome struct {
	// Result is the final string payload for a synchronous completion.
	Result string

	// Subchats holds the spawned subchat IDs when the call is suspended.
	Subchats []string
}

// Done builds a synchronous completion outcome.
func Done(result string) Outcome {
	return Outcome{Result: result}
}

// Suspend builds a delegation outcome for the given subchat IDs.
func Suspend(ids ...string) Outcome {
	return Outcome{Subchats: ids}
}

// Pending reports whether the outcome suspends the call.
func (o Outcome) Pending() bool {
	return len(o.Subchats) > 0
}
