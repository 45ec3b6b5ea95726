// Package agent defines the boundary to the LLM agent that composes and sends
// candidate emails and mutates workflow state through tools.
//
// The agent itself is an opaque collaborator: it receives a prompt and either
// returns text or fails with an error that the retry package can classify.
package agent

import (
	"context"
	"errors"
)

// Request kinds.
const (
	KindOnboarding = "onboarding"
	KindReminder   = "reminder"
)

var (
	// ErrNoCaller is returned when the provider has no factory or the factory
	// returned nothing.
	ErrNoCaller = errors.New("agent caller is not available")

	// ErrUnknownTool is returned when the model requests a tool that is not
	// declared.
	ErrUnknownTool = errors.New("unknown agent tool")

	// ErrInvalidToolArgs is returned when tool arguments are missing or have
	// the wrong type.
	ErrInvalidToolArgs = errors.New("invalid agent tool arguments")
)

// Request is a single agent invocation.
type Request struct {
	Kind         string
	BGVRequestID int64
	Prompt       string
}

// Response is the final agent output.
type Response struct {
	Output    string
	ToolCalls int

	// EmailsSent counts successful send_email_to_candidate calls.
	EmailsSent int
}

// Caller invokes the agent.
type Caller interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req Request) (Response, error)

// Invoke calls f.
func (f CallerFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
