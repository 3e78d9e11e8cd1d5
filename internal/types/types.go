// Package types holds the shared data model for the twin daemon:
// tool calls, channel activity, subchat transcripts, and the LLM boundary.
// This package exists to break import cycles between tools, subchat, and dispatch.
package types

import "context"

// ToolCall is a single tool invocation issued by the model.
// It is immutable once issued and consumed exactly once by the router.
type ToolCall struct {
	// ID uniquely identifies this call across the persona process.
	ID string

	// Name is the registered tool name.
	Name string

	// Args is the argument mapping as decoded from the model output.
	Args map[string]any

	// ThreadID references the conversation thread that issued the call.
	ThreadID string
}

// StringArg returns the named argument as a string.
// Missing or null arguments come back as "".
func (c ToolCall) StringArg(name string) string {
	v, _ := c.Args[name].(string)
	return v
}

// BoolArg returns the named argument as a bool, false when absent.
func (c ToolCall) BoolArg(name string) bool {
	v, _ := c.Args[name].(bool)
	return v
}

// ActivityEvent is a normalized inbound event from a channel adapter.
// Transient: consumed once by correction detection, then discarded.
type ActivityEvent struct {
	// Channel identifies the adapter that produced the event.
	Channel string

	// Author is the sender identity on that channel.
	Author string

	// Text is the raw message text.
	Text string

	// AlreadyPosted is true when the twin already responded autonomously
	// to this message, in which case no inbox item is created.
	AlreadyPosted bool
}

// Message is one turn in a subchat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMClient is the boundary to the language model. The daemon never
// implements the model; it only drives conversations through this interface.
type LLMClient interface {
	// Complete sends the system prompt plus conversation so far and
	// returns the next assistant message content.
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}
