package dqueue

import (
	"encoding/json"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Entry is one unit of queued work. It exists in the store from the
// moment it is published until the transaction which claimed it commits.
type Entry struct {
	Id        uint64          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	VisibleAt time.Time       `json:"visible_at"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e Entry) String() string {
	return stringify(e)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Decode unmarshals the payload into v
func (e *Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return ErrDataCorruption.Withf("entry %d: %v", e.Id, err)
	}
	return nil
}

// NewEntry returns an entry from the raw column values read from a store.
// The payload must be valid JSON, or else ErrDataCorruption is returned.
func NewEntry(id uint64, typ string, data []byte, visibleAt time.Time) (*Entry, error) {
	if !json.Valid(data) {
		return nil, ErrDataCorruption.Withf("entry %d: payload is not valid JSON", id)
	}
	payload := make(json.RawMessage, len(data))
	copy(payload, data)
	return &Entry{
		Id:        id,
		Type:      typ,
		Payload:   payload,
		VisibleAt: visibleAt,
	}, nil
}

// MarshalPayload encodes a payload for storage. A nil payload is rejected.
// A json.RawMessage or []byte payload is stored as-is after validation.
func MarshalPayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, ErrBadParameter.With("missing payload")
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, ErrBadParameter.With("payload is not valid JSON")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, ErrBadParameter.With("payload is not valid JSON")
		}
		return v, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrBadParameter.Withf("payload: %v", err)
	}
	return data, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func stringify[T any](v T) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data)
}
