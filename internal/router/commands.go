package router

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/propflow/realtime-gateway/pkg/event"
)

func (r *Router) cmdJoinProperty(cctx *CommandContext) error {
	propertyID := gjson.GetBytes(cctx.Payload, "propertyId").String()
	if propertyID == "" {
		return errors.New("join_property requires a propertyId")
	}
	if err := r.state.Join(cctx.Conn.ID, event.PropertyRoom(propertyID)); err != nil {
		return fmt.Errorf("failed to join property room: %w", err)
	}
	return nil
}

func (r *Router) cmdLeaveProperty(cctx *CommandContext) error {
	propertyID := gjson.GetBytes(cctx.Payload, "propertyId").String()
	if propertyID == "" {
		return errors.New("leave_property requires a propertyId")
	}
	return r.state.Leave(cctx.Conn.ID, event.PropertyRoom(propertyID))
}

// cmdTypingStart relays a typing indicator to everyone else in the room.
// The sender never receives its own echo.
func (r *Router) cmdTypingStart(cctx *CommandContext) error {
	room := gjson.GetBytes(cctx.Payload, "room").String()
	if room == "" {
		return errors.New("typing_start requires a room")
	}
	userName := gjson.GetBytes(cctx.Payload, "userName").String()

	frame, err := event.Marshal(event.TypeUserTyping, map[string]string{
		"userId":   cctx.Conn.Identity.UserID,
		"userName": userName,
	})
	if err != nil {
		return err
	}
	r.state.BroadcastExcept(room, cctx.Conn.ID, frame)
	return nil
}

func (r *Router) cmdTypingStop(cctx *CommandContext) error {
	room := gjson.GetBytes(cctx.Payload, "room").String()
	if room == "" {
		return errors.New("typing_stop requires a room")
	}

	frame, err := event.Marshal(event.TypeUserStoppedTyping, map[string]string{
		"userId": cctx.Conn.Identity.UserID,
	})
	if err != nil {
		return err
	}
	r.state.BroadcastExcept(room, cctx.Conn.ID, frame)
	return nil
}
