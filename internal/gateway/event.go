package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventError is the server-to-client event carrying a failure report.
const EventError = "error"

// Event is the JSON envelope exchanged over the websocket in both
// directions: {"event": "<name>", "data": <payload>}.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the body of an "error" event.
type ErrorPayload struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrEmptyPayload is returned by Decode when the event carries no data.
var ErrEmptyPayload = errors.New("gateway: event has no payload")

// Encode marshals an envelope for name with data as its payload.
func Encode(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return json.Marshal(Event{Name: name, Data: raw})
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return nil
}

func parseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	if strings.TrimSpace(ev.Name) == "" {
		return Event{}, errors.New("missing event name")
	}
	return ev, nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
