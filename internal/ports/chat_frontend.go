package ports

import "context"

// ChatFrontend defines the interface for the user-facing chat side of the bot
type ChatFrontend interface {
	// Start begins handling inbound commands and returns once running
	Start(ctx context.Context) error

	// Stop stops handling inbound commands
	Stop() error
}
