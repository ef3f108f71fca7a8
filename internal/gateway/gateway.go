package gateway

import "context"

// Assistant is the slice of the agent loop a gateway talks to.
type Assistant interface {
	HandleUserTurn(ctx context.Context, input string) (string, error)
}

// Messenger defines the interface for user-facing gateways.
type Messenger interface {
	// Start runs the gateway until the context is cancelled or the user
	// ends the session.
	Start(ctx context.Context) error
	// Stop gracefully shuts the gateway down.
	Stop() error
}
