package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const envelopeVersion = 1

// ActorRef identifies the reviewer that produced the event.
type ActorRef struct {
	Reviewer  string `json:"reviewer"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. Consumers dedupe on EventID.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyData = errors.New("envelope data is empty")

// DecodeEnvelope parses a stored payload column and rejects envelopes
// without data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, errEmptyData
	}
	return env, nil
}
