package dispatch

import (
	"log/slog"
	"sort"

	"github.com/propflow/realtime-gateway/pkg/event"
	"github.com/propflow/realtime-gateway/pkg/state"
)

// Dispatcher is the in-process API business collaborators use to push
// real-time events at connected clients. Every send is fire-and-forget:
// failures degrade to a false/void result and never propagate, so the
// business operation that triggered the notification cannot be blocked by it.
type Dispatcher struct {
	logger *slog.Logger
	state  state.Manager
}

func NewDispatcher(logger *slog.Logger, stateManager state.Manager) *Dispatcher {
	return &Dispatcher{
		logger: logger.With(slog.String("component", "dispatcher")),
		state:  stateManager,
	}
}

// SendToUser targets every live connection of one user. The returned bool
// reports whether anyone was listening at broadcast time; it is not a
// delivery acknowledgment. Callers wanting guaranteed delivery should also
// write a persisted notification.
func (d *Dispatcher) SendToUser(userID string, t event.Type, data any) bool {
	frame, ok := d.marshal(t, data)
	if !ok {
		return false
	}
	sent := d.state.Broadcast(event.UserRoom(userID), frame)
	d.logger.Debug("dispatched to user",
		slog.String("userID", userID),
		slog.String("event", string(t)),
		slog.Int("recipients", sent),
	)
	return sent > 0
}

// SendToOrganization targets every member of an organization room.
func (d *Dispatcher) SendToOrganization(orgID string, t event.Type, data any) {
	frame, ok := d.marshal(t, data)
	if !ok {
		return
	}
	sent := d.state.Broadcast(event.OrgRoom(orgID), frame)
	d.logger.Debug("dispatched to organization",
		slog.String("orgID", orgID),
		slog.String("event", string(t)),
		slog.Int("recipients", sent),
	)
}

// SendToProperty targets clients currently watching a property.
func (d *Dispatcher) SendToProperty(propertyID string, t event.Type, data any) {
	frame, ok := d.marshal(t, data)
	if !ok {
		return
	}
	sent := d.state.Broadcast(event.PropertyRoom(propertyID), frame)
	d.logger.Debug("dispatched to property",
		slog.String("propertyID", propertyID),
		slog.String("event", string(t)),
		slog.Int("recipients", sent),
	)
}

// BroadcastSystemWide bypasses room resolution and hits every live
// connection. Reserved for maintenance-window announcements.
func (d *Dispatcher) BroadcastSystemWide(t event.Type, data any) {
	frame, ok := d.marshal(t, data)
	if !ok {
		return
	}
	conns := d.state.AllConnections()
	for _, conn := range conns {
		conn.Transport.Send(frame)
	}
	d.logger.Info("dispatched system-wide",
		slog.String("event", string(t)),
		slog.Int("recipients", len(conns)),
	)
}

// ConnectedCount reports the number of live connections.
func (d *Dispatcher) ConnectedCount() int {
	return d.state.ConnectionCount()
}

// OrganizationMembers lists the distinct user ids currently online in an
// organization, for presence queries.
func (d *Dispatcher) OrganizationMembers(orgID string) []string {
	seen := make(map[string]struct{})
	for _, conn := range d.state.RoomMembers(event.OrgRoom(orgID)) {
		seen[conn.Identity.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

func (d *Dispatcher) marshal(t event.Type, data any) ([]byte, bool) {
	frame, err := event.Marshal(t, data)
	if err != nil {
		d.logger.Error("dropping undeliverable event",
			slog.String("event", string(t)),
			slog.Any("error", err),
		)
		return nil, false
	}
	return frame, true
}
