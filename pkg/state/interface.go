package state

import (
	"github.com/google/uuid"
)

// Manager is the single source of truth for who is online and which rooms
// they occupy. Implementations must keep registration and teardown atomic:
// a deregistered connection is gone from the registry and from every room
// before DeregisterConnection returns.
type Manager interface {
	// --- Connection Registry ---
	RegisterConnection(t Transport, ident Identity) (*Connection, error)
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	ConnectionCount() int
	AllConnections() []*Connection
	UserConnectionCount(userID string) int
	FindOldestUserConnection(userID string) (*Connection, bool)

	// --- Room Topology ---
	// Join is idempotent; rooms are created lazily on first join.
	Join(connID uuid.UUID, roomKey string) error
	// Leave is idempotent; a room emptied by a leave is pruned.
	Leave(connID uuid.UUID, roomKey string) error
	RoomMembers(roomKey string) []*Connection
	FindRoom(roomKey string) (*Room, bool)
	RoomCount() int

	// --- Broadcast ---
	// Broadcast snapshots the member set at call time and hands the frame to
	// each member's transport. Returns the number of members targeted.
	Broadcast(roomKey string, msg []byte) int
	// BroadcastExcept does the same but skips one connection, used for
	// relaying ephemeral signals back to everyone but their sender.
	BroadcastExcept(roomKey string, except uuid.UUID, msg []byte) int
}
