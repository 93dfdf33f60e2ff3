package interfaces

import (
	"context"

	"parlor/pkg/types"
)

// MessageStore handles durable storage of users and messages. The
// coordination core only consumes this interface; the SQLite
// implementation lives in internal/store.
type MessageStore interface {
	// CreateMessage persists a message and returns it with the
	// store-assigned id and creation time filled in. Persistence must
	// complete before any fan-out of the message.
	CreateMessage(ctx context.Context, room, author, content string) (*types.Message, error)

	// ListMessages returns a room's messages ascending by creation time.
	ListMessages(ctx context.Context, room string) ([]*types.Message, error)

	// CreateUser stores a new account. Returns ErrUserExists when the
	// name is already taken.
	CreateUser(ctx context.Context, name, passwordHash string) (*types.User, error)

	// GetUserByName looks up an account. Returns ErrUserNotFound when
	// no account has that name.
	GetUserByName(ctx context.Context, name string) (*types.User, error)

	// FindOrCreateUser returns the named account, creating it with an
	// empty password hash when missing. Used for synthetic identities
	// such as the assistant; never duplicates an existing user.
	FindOrCreateUser(ctx context.Context, name string) (*types.User, error)

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the store.
	Close() error
}
