package websocket

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"parlor/pkg/interfaces"
)

// Registry is the source of truth for who is online: one entry per
// currently-connected identity. It is an owned struct passed explicitly
// to every component that needs it; there is no ambient process-wide
// connection state.
type Registry struct {
	mu          sync.RWMutex
	log         zerolog.Logger
	connections map[string]interfaces.Connection // username -> live connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:         log.With().Str("component", "registry").Logger(),
		connections: make(map[string]interfaces.Connection),
	}
}

// Register associates an identity with its connection. If the identity
// already has a registration (a reconnect), the newer connection wins
// and the superseded one is closed asynchronously to avoid holding the
// registry lock during close.
func (r *Registry) Register(conn interfaces.Connection) {
	username := conn.Username()

	r.mu.Lock()
	prior, hadPrior := r.connections[username]
	r.connections[username] = conn
	r.mu.Unlock()

	if hadPrior && prior != conn {
		r.log.Info().Str("username", username).Msg("replacing superseded connection")
		go func() {
			_ = prior.Close()
		}()
	}
}

// Unregister removes the association only if the current registration
// is the caller's own connection. A stale disconnect arriving after a
// reconnect must not clobber the newer registration.
func (r *Registry) Unregister(conn interfaces.Connection) {
	username := conn.Username()

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.connections[username]; ok && registered == conn {
		delete(r.connections, username)
	}
}

// Lookup returns the live connection for an identity name, used for
// direct-message delivery.
func (r *Registry) Lookup(username string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[username]
	return conn, ok
}

// Snapshot returns the names of all online identities. Sorted for
// stable presence payloads; clients must not rely on the order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	names := lo.Keys(r.connections)
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Connections returns all live connections for a broadcast. The slice
// is a snapshot; callers may iterate without holding the registry lock.
func (r *Registry) Connections() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.connections)
}

// Count returns the number of online identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
