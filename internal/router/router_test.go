package router_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propflow/realtime-gateway/internal/router"
	"github.com/propflow/realtime-gateway/pkg/event"
	"github.com/propflow/realtime-gateway/pkg/state"
	"github.com/propflow/realtime-gateway/pkg/state/statemanager"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type mockTransport struct {
	id     uuid.UUID
	mu     sync.Mutex
	frames [][]byte
}

func newMockTransport() *mockTransport { return &mockTransport{id: uuid.New()} }

func (m *mockTransport) ID() uuid.UUID { return m.id }
func (m *mockTransport) Close(error)   {}

func (m *mockTransport) Send(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, msg)
}

func (m *mockTransport) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func newFixture(t *testing.T) (*statemanager.InMemoryManager, *router.Router) {
	t.Helper()
	m := statemanager.NewInMemoryManager(newTestLogger())
	return m, router.New(newTestLogger(), m)
}

func connect(t *testing.T, m *statemanager.InMemoryManager, userID string) *mockTransport {
	t.Helper()
	mt := newMockTransport()
	_, err := m.RegisterConnection(mt, state.Identity{UserID: userID, OrganizationID: "O1"})
	require.NoError(t, err)
	return mt
}

func frame(event string, payload string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"payload":%s}`, event, payload))
}

func TestJoinAndLeaveProperty(t *testing.T) {
	m, r := newFixture(t)
	mt := connect(t, m, "U1")
	ctx := context.Background()

	r.HandleMessage(ctx, mt.ID(), frame("join_property", `{"propertyId":"P9"}`))
	members := m.RoomMembers(event.PropertyRoom("P9"))
	require.Len(t, members, 1)
	assert.Equal(t, mt.ID(), members[0].ID)

	r.HandleMessage(ctx, mt.ID(), frame("leave_property", `{"propertyId":"P9"}`))
	assert.Empty(t, m.RoomMembers(event.PropertyRoom("P9")))
	_, found := m.FindRoom(event.PropertyRoom("P9"))
	assert.False(t, found, "emptied property room should be pruned")
}

func TestDisconnectEmptiesPropertyRoom(t *testing.T) {
	m, r := newFixture(t)
	mt := connect(t, m, "U1")

	r.HandleMessage(context.Background(), mt.ID(), frame("join_property", `{"propertyId":"P9"}`))
	require.NoError(t, m.DeregisterConnection(mt.ID()))

	_, found := m.FindRoom(event.PropertyRoom("P9"))
	assert.False(t, found)
}

func TestTypingStartExcludesSender(t *testing.T) {
	m, r := newFixture(t)
	sender := connect(t, m, "U1")
	receiver := connect(t, m, "U2")
	ctx := context.Background()

	r.HandleMessage(ctx, sender.ID(), frame("join_property", `{"propertyId":"P1"}`))
	r.HandleMessage(ctx, receiver.ID(), frame("join_property", `{"propertyId":"P1"}`))

	room := event.PropertyRoom("P1")
	r.HandleMessage(ctx, sender.ID(), frame("typing_start", fmt.Sprintf(`{"room":%q,"userName":"Jane"}`, room)))

	assert.Empty(t, sender.received(), "sender must not receive its own typing echo")
	require.Len(t, receiver.received(), 1)

	var got event.ServerMessage
	require.NoError(t, json.Unmarshal(receiver.received()[0], &got))
	assert.Equal(t, event.TypeUserTyping, got.Event)
	data, ok := got.Payload.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "U1", data["userId"])
	assert.Equal(t, "Jane", data["userName"])
}

func TestTypingStopCarriesSenderID(t *testing.T) {
	m, r := newFixture(t)
	sender := connect(t, m, "U1")
	receiver := connect(t, m, "U2")
	ctx := context.Background()

	r.HandleMessage(ctx, sender.ID(), frame("join_property", `{"propertyId":"P1"}`))
	r.HandleMessage(ctx, receiver.ID(), frame("join_property", `{"propertyId":"P1"}`))

	room := event.PropertyRoom("P1")
	r.HandleMessage(ctx, sender.ID(), frame("typing_stop", fmt.Sprintf(`{"room":%q}`, room)))

	assert.Empty(t, sender.received())
	require.Len(t, receiver.received(), 1)

	var got event.ServerMessage
	require.NoError(t, json.Unmarshal(receiver.received()[0], &got))
	assert.Equal(t, event.TypeUserStoppedTyping, got.Event)
}

func TestMalformedAndUnknownFramesAreDropped(t *testing.T) {
	m, r := newFixture(t)
	mt := connect(t, m, "U1")
	ctx := context.Background()

	assert.NotPanics(t, func() {
		r.HandleMessage(ctx, mt.ID(), []byte("not json"))
		r.HandleMessage(ctx, mt.ID(), frame("no_such_command", `{}`))
		r.HandleMessage(ctx, mt.ID(), frame("join_property", `{}`))
		r.HandleMessage(ctx, uuid.New(), frame("join_property", `{"propertyId":"P1"}`))
	})
	assert.Empty(t, mt.received())
	assert.Equal(t, 0, m.RoomCount())
}
