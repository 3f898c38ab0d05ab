package router

import (
	"context"
	"encoding/json"

	"github.com/propflow/realtime-gateway/pkg/state"
)

// ClientMessage is the inbound frame shape: a named command plus payload.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// CommandContext carries everything a command handler needs about the
// sending connection.
type CommandContext struct {
	Context context.Context
	Conn    *state.Connection
	Payload json.RawMessage
}

// CommandFunc handles one named client command.
type CommandFunc func(cctx *CommandContext) error
