package shared

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NullableUUID is a patch field that tells "absent" apart from "null".
// Set is true when the key was present; Valid is false for an explicit null
// or an empty string.
type NullableUUID struct {
	Set   bool
	Valid bool
	UUID  uuid.UUID
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableUUID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Valid = false
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: expected an id string", ErrValidation)
	}
	if raw == "" {
		n.Valid = false
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return NewCodedError(ErrValidation, "VALIDATION_ERROR", "invalid id "+raw)
	}
	n.Valid, n.UUID = true, id
	return nil
}

// Ptr returns the value as a pointer, nil when null.
func (n NullableUUID) Ptr() *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

// ParseOptionalUUID parses a query or body value where "" means absent.
func ParseOptionalUUID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, NewCodedError(ErrValidation, "VALIDATION_ERROR", field+" must be a valid id")
	}
	return &id, nil
}

// ParseUUID parses a mandatory id field.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	id, err := ParseOptionalUUID(raw, field)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, NewCodedError(ErrValidation, "VALIDATION_ERROR", field+" is required")
	}
	return *id, nil
}
