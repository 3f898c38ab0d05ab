package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/propflow/realtime-gateway/pkg/state"
)

// InMemoryManager keeps the connection registry and room topology in process
// memory. A single lock guards both maps so that the ordering invariants
// (registry entry before room membership on the way in, the reverse on the
// way out) hold atomically.
type InMemoryManager struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*state.Connection
	rooms map[string]*state.Room

	logger *slog.Logger
}

var _ state.Manager = (*InMemoryManager)(nil)

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "state_manager")),
	}
}

func (m *InMemoryManager) RegisterConnection(t state.Transport, ident state.Identity) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := t.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	conn := &state.Connection{
		ID:            connID,
		Identity:      ident,
		Transport:     t,
		EstablishedAt: time.Now(),
		Rooms:         make(map[string]struct{}),
	}
	m.conns[connID] = conn
	m.logger.Debug("connection registered",
		slog.String("connID", connID.String()),
		slog.String("userID", ident.UserID),
	)
	return conn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// already deregistered
		return nil
	}
	delete(m.conns, connID)

	for roomKey := range conn.Rooms {
		m.removeMemberLocked(conn, roomKey)
	}
	m.logger.Debug("connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *InMemoryManager) AllConnections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

func (m *InMemoryManager) UserConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.conns {
		if c.Identity.UserID == userID {
			count++
		}
	}
	return count
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var oldest *state.Connection
	for _, c := range m.conns {
		if c.Identity.UserID != userID {
			continue
		}
		if oldest == nil || c.EstablishedAt.Before(oldest.EstablishedAt) {
			oldest = c
		}
	}
	return oldest, oldest != nil
}

// --- Room Topology ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return errors.New("cannot join room: connection not registered")
	}
	if _, member := conn.Rooms[roomKey]; member {
		return nil
	}

	room, exists := m.rooms[roomKey]
	if !exists {
		room = &state.Room{
			Key:     roomKey,
			Members: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomKey] = room
	}
	room.Members[connID] = conn
	conn.Rooms[roomKey] = struct{}{}

	m.logger.Debug("joined room",
		slog.String("connID", connID.String()),
		slog.String("room", roomKey),
	)
	return nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil
	}
	if _, member := conn.Rooms[roomKey]; !member {
		return nil
	}
	delete(conn.Rooms, roomKey)
	m.removeMemberLocked(conn, roomKey)

	m.logger.Debug("left room",
		slog.String("connID", connID.String()),
		slog.String("room", roomKey),
	)
	return nil
}

// removeMemberLocked drops a connection from a room and prunes the room when
// it empties. Caller holds the write lock.
func (m *InMemoryManager) removeMemberLocked(conn *state.Connection, roomKey string) {
	room, ok := m.rooms[roomKey]
	if !ok {
		return
	}
	delete(room.Members, conn.ID)
	if len(room.Members) == 0 {
		delete(m.rooms, roomKey)
		m.logger.Debug("pruned empty room", slog.String("room", roomKey))
	}
}

func (m *InMemoryManager) RoomMembers(roomKey string) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.membersSnapshotLocked(roomKey)
}

func (m *InMemoryManager) FindRoom(roomKey string) (*state.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomKey]
	return room, ok
}

func (m *InMemoryManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// --- Broadcast ---

func (m *InMemoryManager) Broadcast(roomKey string, msg []byte) int {
	return m.BroadcastExcept(roomKey, uuid.Nil, msg)
}

func (m *InMemoryManager) BroadcastExcept(roomKey string, except uuid.UUID, msg []byte) int {
	m.mu.RLock()
	members := m.membersSnapshotLocked(roomKey)
	m.mu.RUnlock()

	// Send outside the lock; each transport's buffered channel preserves
	// per-connection FIFO order.
	sent := 0
	for _, member := range members {
		if member.ID == except {
			continue
		}
		member.Transport.Send(msg)
		sent++
	}
	return sent
}

func (m *InMemoryManager) membersSnapshotLocked(roomKey string) []*state.Connection {
	room, ok := m.rooms[roomKey]
	if !ok {
		return nil
	}
	members := make([]*state.Connection, 0, len(room.Members))
	for _, c := range room.Members {
		members = append(members, c)
	}
	return members
}
