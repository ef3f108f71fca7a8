package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orbit/internal/registry"
)

// FailureKind classifies a failed invocation for the reasoning engine.
type FailureKind string

const (
	KindInvalidArgument FailureKind = "invalid_argument"
	KindToolNotFound    FailureKind = "tool_not_found"
	KindTimeout         FailureKind = "timeout"
	KindRemoteError     FailureKind = "remote_error"
	KindTransportError  FailureKind = "transport_error"
)

// Result is the tagged outcome of one invocation: exactly one of the
// success output or the failure kind/message is populated.
type Result struct {
	OK      bool
	Output  string
	Kind    FailureKind
	Message string
}

func Success(output string) Result {
	return Result{OK: true, Output: output}
}

func Failure(kind FailureKind, message string) Result {
	return Result{Kind: kind, Message: message}
}

// Observation renders the result as text for the conversation history.
// Failures are data the engine can read and react to, not faults.
func (r Result) Observation() string {
	if r.OK {
		return r.Output
	}
	return fmt.Sprintf("Error (%s): %s", r.Kind, r.Message)
}

// Caller is the registry capability the bridge executes against.
type Caller interface {
	CallRemote(ctx context.Context, name string, args map[string]any) (string, error)
}

// Bridge executes wrapped actions against the remote registry. It picks the
// blocking or suspending call variant from the descriptor's execution model
// so callers never branch on it, and it normalizes every registry error
// into a Failure result.
type Bridge struct {
	caller  Caller
	models  map[string]registry.ExecModel
	timeout time.Duration
}

func NewBridge(caller Caller, catalog []registry.ToolDescriptor, timeout time.Duration) *Bridge {
	models := make(map[string]registry.ExecModel, len(catalog))
	for _, d := range catalog {
		models[d.Name] = d.Exec
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Bridge{caller: caller, models: models, timeout: timeout}
}

// Execute performs at most one remote call and never retries; retry policy
// belongs to the caller.
func (b *Bridge) Execute(ctx context.Context, name string, args map[string]any) Result {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var out string
	var err error
	if b.models[name] == registry.ExecSuspending {
		out, err = b.callSuspending(callCtx, name, args)
	} else {
		out, err = b.caller.CallRemote(callCtx, name, args)
	}
	if err != nil {
		return normalize(ctx, name, err)
	}
	return Success(out)
}

// callSuspending runs the remote call on its own goroutine and waits for
// completion, deadline or cancellation. The goroutine owns its result
// channel so an abandoned call cannot block it.
func (b *Bridge) callSuspending(ctx context.Context, name string, args map[string]any) (string, error) {
	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := b.caller.CallRemote(ctx, name, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case o := <-done:
		return o.out, o.err
	}
}

func normalize(parent context.Context, name string, err error) Result {
	var remoteErr *registry.RemoteError
	switch {
	case errors.Is(err, registry.ErrToolNotFound):
		return Failure(KindToolNotFound, err.Error())
	case errors.As(err, &remoteErr):
		return Failure(KindRemoteError, remoteErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return Failure(KindTimeout, fmt.Sprintf("call to %s exceeded the deadline", name))
	case errors.Is(err, context.Canceled):
		// A cancel from the user shows up on the parent; report it as a
		// transport-level abort so the text still names the tool.
		if parent.Err() != nil {
			return Failure(KindTransportError, fmt.Sprintf("call to %s was canceled", name))
		}
		return Failure(KindTransportError, err.Error())
	default:
		return Failure(KindTransportError, err.Error())
	}
}
