package interfaces

// Connection is a live client connection as seen by the coordination
// layer. Implementations must make WriteJSON safe for concurrent use;
// the websocket implementation serializes writes through a single
// writer goroutine.
type Connection interface {
	// WriteJSON sends a JSON-encoded event to the client (thread-safe).
	WriteJSON(v any) error

	// Close closes the connection and releases its resources. Safe to
	// call more than once.
	Close() error

	// Username returns the authenticated identity's name.
	Username() string
}
