package streams

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// envelopeField is the stream entry field holding the encoded Envelope.
const envelopeField = "envelope"

// Envelope wraps every payload written to a research stream. TaskID lets
// readers follow a single research task without decoding Data.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	PayloadVersion string          `json:"payload_version"`
	TaskID         string          `json:"task_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	TraceID        string          `json:"trace_id,omitempty"`
	Data           json.RawMessage `json:"data"`
}

// Validate reports every missing mandatory field at once.
func (e Envelope) Validate() error {
	var errs []error
	if e.EventID == "" {
		errs = append(errs, errors.New("event_id is required"))
	}
	if e.EventType == "" {
		errs = append(errs, errors.New("event_type is required"))
	}
	if e.PayloadVersion == "" {
		errs = append(errs, errors.New("payload_version is required"))
	}
	if e.OccurredAt.IsZero() {
		errs = append(errs, errors.New("occurred_at is required"))
	}
	if len(e.Data) == 0 {
		errs = append(errs, errors.New("data payload is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid envelope: %w", errors.Join(errs...))
	}
	return nil
}

// Marshal validates e and returns its JSON encoding.
func (e Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// UnmarshalEnvelope parses and validates an envelope.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, env.Validate()
}

// entryEnvelope extracts the encoded envelope from a stream entry value.
func entryEnvelope(values map[string]interface{}) ([]byte, error) {
	switch v := values[envelopeField].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, errors.New("missing envelope field")
	default:
		return nil, fmt.Errorf("envelope field has type %T", v)
	}
}
