package types

import (
	"time"
)

// Identity is the authenticated principal attached to a connection.
// It is supplied by the credential layer at handshake time and is
// immutable for the lifetime of the connection.
type Identity struct {
	Name string `json:"name"`
}

// Message is a persisted chat message. Messages are append-only and
// ordered by creation time within a room.
type Message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a stored account. The password hash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
