package chat

import (
	"fmt"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/goccy/go-json"
)

// TypeBroadcast is the only envelope type rooms exchange.
const TypeBroadcast = "broadcast"

// Broadcast event names.
const (
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
)

// Envelope is the wire frame sent over a channel.
type Envelope struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", shared.ErrMalformedPayload, e.Event, err)
	}
	return nil
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Type: TypeBroadcast, Event: event, Payload: raw})
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: envelope: %v", shared.ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: envelope without event", shared.ErrMalformedPayload)
	}
	return env, nil
}

// deletedPayload is the body of [EventMessageDeleted].
type deletedPayload struct {
	ID models.MessageID `json:"id"`
}
