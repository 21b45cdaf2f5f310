package realtime

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame exchanged on both connections: {"event": "...", "data": ...}.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a frame for event e. A nil payload produces a frame
// without data.
func NewEnvelope(e Event, payload any) (Envelope, error) {
	env := Envelope{Event: e}
	if payload == nil {
		return env, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", e, err)
	}
	env.Data = data

	return env, nil
}
