package state

import (
	"time"

	"github.com/google/uuid"
)

// Transport is the send side of a live connection. The concrete
// implementation lives in pkg/transport; tests substitute their own.
type Transport interface {
	ID() uuid.UUID
	Send(msg []byte)
	Close(err error)
}

// Identity is the verified principal behind a connection, lifted from the
// handshake token.
type Identity struct {
	UserID         string
	OrganizationID string
	Role           string
}

// Connection is the registry's record of one live transport session.
type Connection struct {
	ID            uuid.UUID
	Identity      Identity
	Transport     Transport
	EstablishedAt time.Time

	// Rooms this connection is currently a member of, keyed by room key.
	// Maintained exclusively by the state manager.
	Rooms map[string]struct{}
}

// Room is a named broadcast group. Members hold the connection record by id;
// the room never owns the connection.
type Room struct {
	Key     string
	Members map[uuid.UUID]*Connection
}
