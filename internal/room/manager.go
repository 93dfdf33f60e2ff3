package room

import (
	"sync"

	"github.com/samber/lo"

	"parlor/pkg/interfaces"
)

// Manager tracks room membership per connection. A connection belongs
// to at most one room at a time: joining a new room leaves the previous
// one first. This constrains fan-out: a client only receives messages
// for its single currently-joined room plus its own sent echoes.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]struct{}
	memberOf map[interfaces.Connection]string
	rooms    map[string]map[interfaces.Connection]struct{}
}

// NewManager creates a manager over the operator-defined channel set.
func NewManager(channels []string) *Manager {
	return &Manager{
		channels: lo.SliceToMap(channels, func(name string) (string, struct{}) {
			return name, struct{}{}
		}),
		memberOf: make(map[interfaces.Connection]string),
		rooms:    make(map[string]map[interfaces.Connection]struct{}),
	}
}

// IsChannel reports whether roomID is an operator-defined named channel.
func (m *Manager) IsChannel(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[roomID]
	return ok
}

// Channels returns the named channel set in no particular order.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.channels)
}

// ValidateRoom checks that a connection may join roomID: either a known
// named channel, or a well-formed direct-message room the connection's
// own identity participates in.
func (m *Manager) ValidateRoom(conn interfaces.Connection, roomID string) error {
	if m.IsChannel(roomID) {
		return nil
	}
	a, b, ok := DirectParticipants(roomID)
	if !ok {
		return ErrUnknownRoom
	}
	if name := conn.Username(); name != a && name != b {
		return ErrNotParticipant
	}
	return nil
}

// Join adds roomID to the connection's membership, leaving any previous
// room first. Idempotent: joining the current room is a no-op.
func (m *Manager) Join(conn interfaces.Connection, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.memberOf[conn]; ok {
		if current == roomID {
			return
		}
		m.removeLocked(conn, current)
	}

	m.memberOf[conn] = roomID
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[interfaces.Connection]struct{})
	}
	m.rooms[roomID][conn] = struct{}{}
}

// Leave removes a connection from roomID. Idempotent.
func (m *Manager) Leave(conn interfaces.Connection, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.memberOf[conn] != roomID {
		return
	}
	m.removeLocked(conn, roomID)
}

// LeaveAll removes a connection from whatever room it is in and returns
// the room it left. Used on disconnect.
func (m *Manager) LeaveAll(conn interfaces.Connection) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.memberOf[conn]
	if !ok {
		return "", false
	}
	m.removeLocked(conn, roomID)
	return roomID, true
}

// CurrentRoom returns the room a connection is joined to, if any.
func (m *Manager) CurrentRoom(conn interfaces.Connection) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.memberOf[conn]
	return roomID, ok
}

// MembersOf returns the connections currently joined to roomID. The
// returned slice is a snapshot; callers may iterate without holding any
// manager lock.
func (m *Manager) MembersOf(roomID string) []interfaces.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]interfaces.Connection, 0, len(m.rooms[roomID]))
	for conn := range m.rooms[roomID] {
		members = append(members, conn)
	}
	return members
}

// removeLocked deletes the membership entry and cleans up empty room
// sets. Caller holds the write lock.
func (m *Manager) removeLocked(conn interfaces.Connection, roomID string) {
	delete(m.memberOf, conn)
	if members, ok := m.rooms[roomID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
}
