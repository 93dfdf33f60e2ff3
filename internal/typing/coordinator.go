package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parlor/internal/room"
	"parlor/pkg/interfaces"
	"parlor/pkg/types"
)

// DefaultDebounce matches observed client behavior: a typing indicator
// that is not refreshed expires after 1.5 seconds.
const DefaultDebounce = 1500 * time.Millisecond

type key struct {
	room     string
	username string
}

// Coordinator tracks the per-room ephemeral set of currently-typing
// identities. Each (room, identity) pair moves NotTyping -> Typing on a
// typing signal and back on an explicit stop, a disconnect, or expiry
// of the debounce window, whichever comes first. The stop notification
// is emitted exactly once per transition.
type Coordinator struct {
	mu       sync.Mutex
	log      zerolog.Logger
	rooms    *room.Manager
	debounce time.Duration
	active   map[key]*time.Timer
}

// NewCoordinator creates a coordinator over the given room manager.
func NewCoordinator(rooms *room.Manager, debounce time.Duration, log zerolog.Logger) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{
		log:      log.With().Str("component", "typing").Logger(),
		rooms:    rooms,
		debounce: debounce,
		active:   make(map[key]*time.Timer),
	}
}

// Start registers a typing signal. The first signal emits a typing
// notification to the other room members; further signals while already
// typing only refresh the expiry, without re-emitting.
func (c *Coordinator) Start(conn interfaces.Connection, roomID string) {
	k := key{room: roomID, username: conn.Username()}

	c.mu.Lock()
	if timer, ok := c.active[k]; ok {
		timer.Reset(c.debounce)
		c.mu.Unlock()
		return
	}
	c.active[k] = time.AfterFunc(c.debounce, func() {
		c.expire(k)
	})
	c.mu.Unlock()

	c.notify(k, types.EventTyping)
}

// Stop registers an explicit stop signal, emitting the stop
// notification if the pair was in the Typing state.
func (c *Coordinator) Stop(conn interfaces.Connection, roomID string) {
	c.clear(key{room: roomID, username: conn.Username()})
}

// StopAll clears every typing entry a connection's identity holds. A
// client that disconnects mid-typing must not leave a permanently stuck
// indicator for others.
func (c *Coordinator) StopAll(conn interfaces.Connection) {
	username := conn.Username()

	c.mu.Lock()
	var held []key
	for k, timer := range c.active {
		if k.username == username {
			timer.Stop()
			delete(c.active, k)
			held = append(held, k)
		}
	}
	c.mu.Unlock()

	for _, k := range held {
		c.notify(k, types.EventStopTyping)
	}
}

// expire fires when the debounce window elapses without a refresh.
func (c *Coordinator) expire(k key) {
	c.mu.Lock()
	if _, ok := c.active[k]; !ok {
		// An explicit stop or disconnect won the race.
		c.mu.Unlock()
		return
	}
	delete(c.active, k)
	c.mu.Unlock()

	c.notify(k, types.EventStopTyping)
}

// clear removes an entry and emits the stop notification if the entry
// existed. Whichever caller deletes the entry emits; this keeps the
// notification exactly-once under races between stop and expiry.
func (c *Coordinator) clear(k key) {
	c.mu.Lock()
	timer, ok := c.active[k]
	if ok {
		timer.Stop()
		delete(c.active, k)
	}
	c.mu.Unlock()

	if ok {
		c.notify(k, types.EventStopTyping)
	}
}

// notify delivers a typing or stop-typing notice to every room member
// other than the typist. Membership is a snapshot; no coordinator lock
// is held during delivery.
func (c *Coordinator) notify(k key, event string) {
	notice := types.ServerEvent{Event: event, Data: types.TypingNotice{Username: k.username}}
	for _, member := range c.rooms.MembersOf(k.room) {
		if member.Username() == k.username {
			continue
		}
		if err := member.WriteJSON(notice); err != nil {
			c.log.Debug().Err(err).
				Str("room", k.room).
				Str("to", member.Username()).
				Msg("failed to deliver typing notice")
		}
	}
}
