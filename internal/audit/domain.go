package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/rbac"
	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Audited actions.
const (
	ActionCreate        = "CREATE"
	ActionUpdate        = "UPDATE"
	ActionDelete        = "DELETE"
	ActionDeactivate    = "DEACTIVATE"
	ActionResetPassword = "RESET_PASSWORD"
	ActionChangeRole    = "CHANGE_ROLE"
	ActionLogin         = "LOGIN"
)

// Entry is one change to record.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	UserID     *uuid.UUID      `json:"userId,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	OldValue   json.RawMessage `json:"oldValue,omitempty"`
	NewValue   json.RawMessage `json:"newValue,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// NewEntry builds an entry for an action of p, taking the client address from
// ctx. Values that fail to marshal are dropped.
func NewEntry(ctx context.Context, p *rbac.Principal, action, entityType, entityID string, oldValue, newValue any) Entry {
	info := shared.ClientInfoFromContext(ctx)
	entry := Entry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OldValue:   marshalValue(oldValue),
		NewValue:   marshalValue(newValue),
		IPAddress:  info.IP,
		UserAgent:  info.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if p != nil {
		id := p.ID
		entry.UserID = &id
	}
	return entry
}

func marshalValue(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Log is a stored audit entry with the actor resolved.
type Log struct {
	Entry
	UserEmail string `json:"userEmail,omitempty"`
	UserName  string `json:"userName,omitempty"`
}

// Filters narrows audit listings.
type Filters struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     *uuid.UUID
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}
