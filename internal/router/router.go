package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/propflow/realtime-gateway/pkg/state"
)

// Router decodes inbound client frames and executes the registered command.
// Unknown commands and malformed frames are logged and dropped; a misbehaving
// client never takes its connection down.
type Router struct {
	logger   *slog.Logger
	state    state.Manager
	commands map[string]CommandFunc
}

func New(logger *slog.Logger, stateManager state.Manager) *Router {
	r := &Router{
		logger:   logger.With(slog.String("component", "router")),
		state:    stateManager,
		commands: make(map[string]CommandFunc),
	}
	r.registerCoreCommands()
	return r
}

func (r *Router) register(name string, fn CommandFunc) {
	if _, exists := r.commands[name]; exists {
		panic("command already registered: " + name)
	}
	r.commands[name] = fn
}

func (r *Router) registerCoreCommands() {
	r.register("join_property", r.cmdJoinProperty)
	r.register("leave_property", r.cmdLeaveProperty)
	r.register("typing_start", r.cmdTypingStart)
	r.register("typing_stop", r.cmdTypingStop)
}

// HandleMessage is wired as the transport's message handler.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(msg, &clientMsg); err != nil {
		r.logger.Warn("failed to unmarshal client message",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		return
	}

	fn, ok := r.commands[clientMsg.Event]
	if !ok {
		r.logger.Warn("received unknown command",
			slog.String("event", clientMsg.Event),
			slog.String("connID", connID.String()),
		)
		return
	}

	conn, ok := r.state.GetConnection(connID)
	if !ok {
		r.logger.Error("message from connection missing in registry",
			slog.String("connID", connID.String()),
		)
		return
	}

	cctx := &CommandContext{Context: ctx, Conn: conn, Payload: clientMsg.Payload}
	if err := fn(cctx); err != nil {
		r.logger.Warn("command failed",
			slog.String("event", clientMsg.Event),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
	}
}
