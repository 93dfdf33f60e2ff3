package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parlor/internal/assistant"
	"parlor/internal/room"
	"parlor/internal/websocket"
	"parlor/pkg/interfaces"
	"parlor/pkg/types"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory MessageStore for router tests.
type memStore struct {
	mu         sync.Mutex
	messages   []*types.Message
	users      map[string]*types.User
	failWrites bool
	seq        int
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*types.User)}
}

func (s *memStore) CreateMessage(_ context.Context, roomID, author, content string) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return nil, errStoreDown
	}
	s.seq++
	msg := &types.Message{
		ID:        fmt.Sprintf("msg-%d", s.seq),
		Room:      roomID,
		Author:    author,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) ListMessages(_ context.Context, roomID string) ([]*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Message
	for _, m := range s.messages {
		if m.Room == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) CreateUser(_ context.Context, name, hash string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; ok {
		return nil, interfaces.ErrUserExists
	}
	u := &types.User{ID: name, Name: name, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	s.users[name] = u
	return u, nil
}

func (s *memStore) GetUserByName(_ context.Context, name string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) FindOrCreateUser(ctx context.Context, name string) (*types.User, error) {
	if u, err := s.GetUserByName(ctx, name); err == nil {
		return u, nil
	}
	return s.CreateUser(ctx, name, "")
}

func (s *memStore) HealthCheck(context.Context) error { return nil }
func (s *memStore) Close() error                      { return nil }

func (s *memStore) setFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = fail
}

func (s *memStore) byRoom(roomID string) []*types.Message {
	msgs, _ := s.ListMessages(context.Background(), roomID)
	return msgs
}

// recordConn captures delivered events.
type recordConn struct {
	name string

	mu     sync.Mutex
	events []types.ServerEvent
}

func (c *recordConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v.(types.ServerEvent))
	return nil
}

func (c *recordConn) Close() error     { return nil }
func (c *recordConn) Username() string { return c.name }

func (c *recordConn) messagesFrom(username string) []types.MessagePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.MessagePayload
	for _, ev := range c.events {
		if ev.Event != types.EventMessage {
			continue
		}
		if p, ok := ev.Data.(types.MessagePayload); ok && p.Username == username {
			out = append(out, p)
		}
	}
	return out
}

func (c *recordConn) messageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Event == types.EventMessage {
			n++
		}
	}
	return n
}

type fixture struct {
	router   *Router
	store    *memStore
	registry *websocket.Registry
	rooms    *room.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	registry := websocket.NewRegistry(zerolog.Nop())
	rooms := room.NewManager([]string{"general", "random"})
	bridge := assistant.NewBridge(nil, store, "bot", time.Second, zerolog.Nop())
	return &fixture{
		router:   NewRouter(store, registry, rooms, bridge, zerolog.Nop()),
		store:    store,
		registry: registry,
		rooms:    rooms,
	}
}

// connect registers a connection and joins it to a room.
func (f *fixture) connect(name, roomID string) *recordConn {
	conn := &recordConn{name: name}
	f.registry.Register(conn)
	if roomID != "" {
		f.rooms.Join(conn, roomID)
	}
	return conn
}

func TestSend_RejectsEmptyContent(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")

	err := f.router.Send(context.Background(), alice, "general", "   \t\n ")
	assert.ErrorIs(t, err, types.ErrEmptyContent)
	assert.Empty(t, f.store.byRoom("general"), "validation failures must not persist")
	assert.Zero(t, alice.messageCount())
}

func TestSend_RejectsWhenNotJoined(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")

	err := f.router.Send(context.Background(), alice, "random", "hello")
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.Empty(t, f.store.byRoom("random"))
}

func TestSend_EchoesToLoneSenderExactlyOnce(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")

	require.NoError(t, f.router.Send(context.Background(), alice, "general", "anyone here?"))

	got := alice.messagesFrom("alice")
	require.Len(t, got, 1)
	assert.Equal(t, "anyone here?", got[0].Content)
}

func TestSend_ChannelFanOut(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")
	bob := f.connect("bob", "general")
	carol := f.connect("carol", "random")

	require.NoError(t, f.router.Send(context.Background(), alice, "general", "hello"))

	persisted := f.store.byRoom("general")
	require.Len(t, persisted, 1)
	assert.Equal(t, "alice", persisted[0].Author)
	assert.Equal(t, "general", persisted[0].Room)

	bobGot := bob.messagesFrom("alice")
	require.Len(t, bobGot, 1)
	assert.Equal(t, "hello", bobGot[0].Content)

	assert.Len(t, alice.messagesFrom("alice"), 1, "sender echo")
	assert.Zero(t, carol.messageCount(), "other rooms must not hear channel traffic")
}

func TestSend_TrimsContent(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")

	require.NoError(t, f.router.Send(context.Background(), alice, "general", "  hello  "))

	persisted := f.store.byRoom("general")
	require.Len(t, persisted, 1)
	assert.Equal(t, "hello", persisted[0].Content)
}

func TestSend_DirectMessageDelivery(t *testing.T) {
	f := newFixture(t)
	dm := room.CanonicalDirectRoom("alice", "bob")

	alice := f.connect("alice", dm)
	bob := f.connect("bob", "general") // online, never joined the dm room
	carol := f.connect("carol", "general")

	require.NoError(t, f.router.Send(context.Background(), alice, dm, "hi"))

	bobGot := bob.messagesFrom("alice")
	require.Len(t, bobGot, 1, "the counterpart receives the message without joining")
	assert.Equal(t, "hi", bobGot[0].Content)

	assert.Len(t, alice.messagesFrom("alice"), 1, "sender echo")
	assert.Zero(t, carol.messageCount(), "direct traffic stays between the pair")

	persisted := f.store.byRoom(dm)
	require.Len(t, persisted, 1)
	assert.Equal(t, dm, persisted[0].Room)
}

func TestSend_DirectMessageToOfflineRecipient(t *testing.T) {
	f := newFixture(t)
	dm := room.CanonicalDirectRoom("alice", "bob")
	alice := f.connect("alice", dm)

	// bob is offline; delivery is best-effort, the send still succeeds.
	require.NoError(t, f.router.Send(context.Background(), alice, dm, "hi"))

	assert.Len(t, alice.messagesFrom("alice"), 1)
	assert.Len(t, f.store.byRoom(dm), 1, "bob recovers the message from history on next join")
}

func TestSend_AssistantFallbackReply(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")
	bob := f.connect("bob", "general")

	require.NoError(t, f.router.Send(context.Background(), alice, "general", "@bot what time is it"))

	// The assistant reply is generated off the sender's event loop.
	require.Eventually(t, func() bool {
		return len(bob.messagesFrom("bot")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	botGot := bob.messagesFrom("bot")
	assert.Equal(t, assistant.FallbackReply, botGot[0].Content, "unconfigured generator degrades to fallback text")
	assert.Len(t, alice.messagesFrom("bot"), 1)

	persisted := f.store.byRoom("general")
	require.Len(t, persisted, 2)
	assert.Equal(t, "alice", persisted[0].Author)
	assert.Equal(t, "bot", persisted[1].Author)
	assert.Equal(t, "general", persisted[1].Room, "the reply addresses the same room")
}

func TestSend_AssistantTriggerIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")

	require.NoError(t, f.router.Send(context.Background(), alice, "general", "@BOT hello"))

	require.Eventually(t, func() bool {
		return len(f.store.byRoom("general")) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSend_NoAssistantInDirectRooms(t *testing.T) {
	f := newFixture(t)
	dm := room.CanonicalDirectRoom("alice", "bob")
	alice := f.connect("alice", dm)

	require.NoError(t, f.router.Send(context.Background(), alice, dm, "@bot hello"))

	// Give a would-be reply time to appear; none may.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, f.store.byRoom(dm), 1, "the assistant never answers in direct-message rooms")
}

func TestSend_PersistenceFailureAbortsFanOut(t *testing.T) {
	f := newFixture(t)
	alice := f.connect("alice", "general")
	bob := f.connect("bob", "general")

	f.store.setFailWrites(true)
	err := f.router.Send(context.Background(), alice, "general", "hello")
	require.ErrorIs(t, err, errStoreDown)

	assert.Zero(t, alice.messageCount(), "no partial fan-out on persistence failure")
	assert.Zero(t, bob.messageCount())
}

func TestSend_RoomOrderingUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	bob := f.connect("bob", "general")

	senders := make([]*recordConn, 5)
	for i := range senders {
		senders[i] = f.connect(fmt.Sprintf("user%d", i), "general")
	}

	var wg sync.WaitGroup
	for i, sender := range senders {
		wg.Add(1)
		go func(n int, conn *recordConn) {
			defer wg.Done()
			for j := range 10 {
				err := f.router.Send(context.Background(), conn, "general", fmt.Sprintf("m-%d-%d", n, j))
				require.NoError(t, err)
			}
		}(i, sender)
	}
	wg.Wait()

	persisted := f.store.byRoom("general")
	require.Len(t, persisted, 50)

	// bob observes every message exactly once, in persist order.
	bob.mu.Lock()
	var seen []string
	for _, ev := range bob.events {
		if ev.Event == types.EventMessage {
			seen = append(seen, ev.Data.(types.MessagePayload).Content)
		}
	}
	bob.mu.Unlock()

	require.Len(t, seen, 50)
	for i, m := range persisted {
		assert.Equal(t, m.Content, seen[i], "delivery order must match persist order")
	}
}
