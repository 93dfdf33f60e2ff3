package session

import (
	"context"
	"encoding/json"
	"sync/atomic"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"parlor/internal/room"
	"parlor/internal/router"
	"parlor/internal/typing"
	"parlor/internal/websocket"
	"parlor/pkg/interfaces"
	"parlor/pkg/types"
)

// State is a coordinator's lifecycle position. The machine only moves
// forward: Connecting -> Active -> Closed. Closed is terminal; a later
// reconnect creates a brand-new coordinator.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

// Deps are the shared components a coordinator binds together. One
// coordinator instance runs per active connection; the registry, room,
// and typing state are shared across all of them.
type Deps struct {
	Registry    *websocket.Registry
	Rooms       *room.Manager
	Typing      *typing.Coordinator
	Router      *router.Router
	Store       interfaces.MessageStore
	DefaultRoom string
}

// Coordinator owns one connection's lifecycle: registration, presence
// broadcast, room membership, and dispatch of inbound client events.
// Events are processed one at a time in arrival order.
type Coordinator struct {
	log   zerolog.Logger
	conn  *websocket.Connection
	deps  Deps
	state atomic.Int32
}

// NewCoordinator creates a coordinator for an authenticated connection.
func NewCoordinator(conn *websocket.Connection, deps Deps, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		log: log.With().
			Str("component", "session").
			Str("username", conn.Username()).
			Logger(),
		conn: conn,
		deps: deps,
	}
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Run drives the connection until it disconnects or errors. On entering
// Active: register, broadcast presence, auto-join the default room and
// replay its history. On entering Closed: unregister, leave the current
// room, force-stop typing, and broadcast presence again.
func (c *Coordinator) Run(ctx context.Context) {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		return // terminal state is not re-enterable
	}

	c.deps.Registry.Register(c.conn)
	c.broadcastPresence()
	c.joinRoom(ctx, c.deps.DefaultRoom)

	c.log.Info().Msg("session active")
	defer c.close()

	for {
		ev, err := c.conn.ReadEvent()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure, gorilla.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("connection read failed")
			}
			return
		}
		c.dispatch(ctx, ev)
	}
}

// dispatch routes one inbound client event. A malformed payload is
// dropped; a single bad frame must never take the session down.
func (c *Coordinator) dispatch(ctx context.Context, ev *types.ClientEvent) {
	switch ev.Event {
	case types.EventJoinRoom:
		var p types.JoinRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			c.log.Debug().Err(err).Msg("malformed join-room payload")
			return
		}
		c.joinRoom(ctx, p.Room)

	case types.EventSendMessage:
		var p types.SendMessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			c.log.Debug().Err(err).Msg("malformed send-message payload")
			return
		}
		if err := c.deps.Router.Send(ctx, c.conn, p.Room, p.Content); err != nil {
			c.log.Debug().Err(err).Str("room", p.Room).Msg("send rejected")
			c.sendFailed(p.Room, err)
		}

	case types.EventTyping:
		if p, ok := c.typingPayload(ev); ok {
			c.deps.Typing.Start(c.conn, p.Room)
		}

	case types.EventStopTyping:
		if p, ok := c.typingPayload(ev); ok {
			c.deps.Typing.Stop(c.conn, p.Room)
		}

	default:
		c.log.Debug().Str("event", ev.Event).Msg("unknown event")
	}
}

// typingPayload decodes a typing payload and checks the connection is
// actually in the named room; typing signals for other rooms are noise.
func (c *Coordinator) typingPayload(ev *types.ClientEvent) (types.TypingPayload, bool) {
	var p types.TypingPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		c.log.Debug().Err(err).Msg("malformed typing payload")
		return p, false
	}
	current, ok := c.deps.Rooms.CurrentRoom(c.conn)
	if !ok || current != p.Room {
		return p, false
	}
	return p, true
}

// joinRoom switches the connection into roomID and replays its history.
// Any typing state in the previous room is stopped first.
func (c *Coordinator) joinRoom(ctx context.Context, roomID string) {
	if err := c.deps.Rooms.ValidateRoom(c.conn, roomID); err != nil {
		c.log.Debug().Err(err).Str("room", roomID).Msg("join rejected")
		c.sendFailed(roomID, err)
		return
	}

	if prev, ok := c.deps.Rooms.CurrentRoom(c.conn); ok && prev != roomID {
		c.deps.Typing.Stop(c.conn, prev)
	}
	c.deps.Rooms.Join(c.conn, roomID)
	c.sendHistory(ctx, roomID)
}

// sendHistory replays a room's persisted messages in creation order.
func (c *Coordinator) sendHistory(ctx context.Context, roomID string) {
	messages, err := c.deps.Store.ListMessages(ctx, roomID)
	if err != nil {
		c.log.Error().Err(err).Str("room", roomID).Msg("failed to load history")
		c.sendFailed(roomID, err)
		return
	}

	payload := lo.Map(messages, func(m *types.Message, _ int) types.MessagePayload {
		return types.NewMessagePayload(m)
	})
	if err := c.conn.WriteJSON(types.ServerEvent{Event: types.EventHistoryLoaded, Data: payload}); err != nil {
		c.log.Debug().Err(err).Str("room", roomID).Msg("failed to deliver history")
	}
}

// sendFailed surfaces a rejection or loss to the sender only.
func (c *Coordinator) sendFailed(roomID string, cause error) {
	ev := types.ServerEvent{
		Event: types.EventSendFailed,
		Data:  types.SendFailedPayload{Room: roomID, Reason: cause.Error()},
	}
	_ = c.conn.WriteJSON(ev)
}

// close enters the terminal state and unwinds the connection's shared
// state: typing stops first (notifications need the room membership of
// the others, not ours), then membership, then the registry entry.
func (c *Coordinator) close() {
	c.state.Store(int32(StateClosed))

	c.deps.Typing.StopAll(c.conn)
	c.deps.Rooms.LeaveAll(c.conn)
	c.deps.Registry.Unregister(c.conn)
	_ = c.conn.Close()

	c.broadcastPresence()
	c.log.Info().Msg("session closed")
}

// broadcastPresence pushes the current online set to every connection.
func (c *Coordinator) broadcastPresence() {
	ev := types.ServerEvent{Event: types.EventPresenceUpdated, Data: c.deps.Registry.Snapshot()}
	for _, conn := range c.deps.Registry.Connections() {
		if err := conn.WriteJSON(ev); err != nil {
			c.log.Debug().Err(err).Str("to", conn.Username()).Msg("presence delivery failed")
		}
	}
}
