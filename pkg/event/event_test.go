package event_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propflow/realtime-gateway/pkg/event"
)

func TestMarshalKeepsDataFieldForEmptyEvents(t *testing.T) {
	frame, err := event.Marshal(event.TypeRentOverdue, nil)
	require.NoError(t, err)

	var raw struct {
		Event   string                     `json:"event"`
		Payload map[string]json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &raw))
	assert.Equal(t, "rent_overdue", raw.Event)

	// the envelope shape is fixed: all four fields are always on the wire
	for _, field := range []string{"type", "message", "data", "timestamp"} {
		assert.Contains(t, raw.Payload, field)
	}
	assert.Equal(t, "null", string(raw.Payload["data"]))
	assert.Equal(t, `"Rent payment overdue"`, string(raw.Payload["message"]))
}
