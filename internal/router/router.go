package router

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"parlor/internal/assistant"
	"parlor/internal/room"
	"parlor/internal/websocket"
	"parlor/pkg/interfaces"
	"parlor/pkg/types"
)

// maxContentBytes bounds a single message body.
const maxContentBytes = 4096

// Router orchestrates persistence and fan-out for newly sent messages.
// Persist-then-route: a message reaches the store before any recipient
// sees it, and a persistence failure aborts the send with no partial
// fan-out.
type Router struct {
	log      zerolog.Logger
	store    interfaces.MessageStore
	registry *websocket.Registry
	rooms    *room.Manager
	bridge   *assistant.Bridge

	// Per-room ordering: sends into the same room are serialized so
	// recipients observe messages in persist order. Unrelated rooms
	// stay independent.
	roomMu   sync.Mutex
	roomLock map[string]*sync.Mutex
}

// NewRouter creates a message router.
func NewRouter(store interfaces.MessageStore, registry *websocket.Registry, rooms *room.Manager, bridge *assistant.Bridge, log zerolog.Logger) *Router {
	return &Router{
		log:      log.With().Str("component", "router").Logger(),
		store:    store,
		registry: registry,
		rooms:    rooms,
		bridge:   bridge,
		roomLock: make(map[string]*sync.Mutex),
	}
}

// Send validates, persists, and fans out a message from conn to roomID.
// Preconditions: content is non-empty after trimming and the connection
// is currently joined to roomID. Validation failures are returned
// without persistence or broadcast.
func (r *Router) Send(ctx context.Context, conn interfaces.Connection, roomID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.ErrEmptyContent
	}
	if len(content) > maxContentBytes {
		return types.ErrContentTooLarge
	}

	if current, ok := r.rooms.CurrentRoom(conn); !ok || current != roomID {
		return ErrNotJoined
	}

	lock := r.lockFor(roomID)
	lock.Lock()
	msg, err := r.store.CreateMessage(ctx, roomID, conn.Username(), content)
	if err != nil {
		lock.Unlock()
		return err
	}
	r.fanOut(msg, conn)
	lock.Unlock()

	// Assistant invocations only fire in named channels, never in
	// direct-message rooms, and run off the sender's event loop.
	if prompt, ok := r.bridge.ExtractPrompt(content); ok && !room.IsDirect(roomID) {
		go r.assistantReply(roomID, prompt)
	}

	return nil
}

// fanOut delivers a persisted message to its recipients. For a named
// channel that is everyone joined at delivery time; for a direct room
// it is the other participant's live connection, if any, plus an echo
// to the sender. Delivery to an offline or failing recipient is
// best-effort; they recover the message from history on next join.
func (r *Router) fanOut(msg *types.Message, sender interfaces.Connection) {
	event := types.ServerEvent{Event: types.EventMessage, Data: types.NewMessagePayload(msg)}

	if room.IsDirect(msg.Room) {
		r.deliverDirect(msg, event, sender)
		return
	}

	for _, member := range r.rooms.MembersOf(msg.Room) {
		if err := member.WriteJSON(event); err != nil {
			r.log.Debug().Err(err).
				Str("room", msg.Room).
				Str("to", member.Username()).
				Msg("message delivery failed")
		}
	}
}

// deliverDirect resolves the counterpart from the canonical identifier
// and delivers to them if online. The sender always receives their own
// echo, even though the counterpart never joined the room.
func (r *Router) deliverDirect(msg *types.Message, event types.ServerEvent, sender interfaces.Connection) {
	if sender != nil {
		if err := sender.WriteJSON(event); err != nil {
			r.log.Debug().Err(err).Str("room", msg.Room).Msg("sender echo failed")
		}
	}

	a, b, ok := room.DirectParticipants(msg.Room)
	if !ok {
		return
	}
	other := a
	if msg.Author == a {
		other = b
	}
	if other == msg.Author {
		return // self-conversation, echo already sent
	}

	if conn, online := r.registry.Lookup(other); online {
		if err := conn.WriteJSON(event); err != nil {
			r.log.Debug().Err(err).
				Str("room", msg.Room).
				Str("to", other).
				Msg("direct delivery failed")
		}
	}
}

// assistantReply generates and injects the assistant's answer into a
// named channel. It follows the same persist-then-fan-out path as a
// normal message and delivers to whoever is a member at delivery time.
// Failures are logged and dropped so assistant trouble never disturbs
// the rest of the pipeline.
func (r *Router) assistantReply(roomID, prompt string) {
	ctx := context.Background()

	identity, err := r.bridge.Identity(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to resolve assistant identity")
		return
	}

	reply := r.bridge.Reply(ctx, prompt)

	lock := r.lockFor(roomID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := r.store.CreateMessage(ctx, roomID, identity.Name, reply)
	if err != nil {
		r.log.Error().Err(err).Str("room", roomID).Msg("failed to persist assistant reply")
		return
	}
	r.fanOut(msg, nil)
}

// lockFor returns the serialization lock for a room.
func (r *Router) lockFor(roomID string) *sync.Mutex {
	r.roomMu.Lock()
	defer r.roomMu.Unlock()

	lock, ok := r.roomLock[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.roomLock[roomID] = lock
	}
	return lock
}
