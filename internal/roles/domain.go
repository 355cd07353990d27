package roles

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a role row joined with its permission set.
type Role struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Permissions  []string  `json:"permissions"`
	ParishScoped bool      `json:"parishScoped"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PermissionGroup lists the catalog codes of one resource.
type PermissionGroup struct {
	Resource string   `json:"resource"`
	Codes    []string `json:"codes"`
}
