package parishioners

import (
	"time"

	"github.com/google/uuid"

	"github.com/gpbmt-org/gpbmt/internal/shared"
)

// Gender values accepted for a parishioner.
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
)

// ParishRef names the parish of a parishioner.
type ParishRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// HeadRef names the family head of a parishioner.
type HeadRef struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
}

// Parishioner is a member of a parish.
type Parishioner struct {
	ID          uuid.UUID  `json:"id"`
	Parish      ParishRef  `json:"parish"`
	FullName    string     `json:"fullName"`
	BaptismName string     `json:"baptismName"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Gender      *string    `json:"gender"`
	Phone       string     `json:"phone"`
	Address     string     `json:"address"`
	FamilyHead  *HeadRef   `json:"familyHead"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ListFilters narrows parishioner listings. ParishID is the effective filter
// after scoping.
type ListFilters struct {
	Search   string
	ParishID *uuid.UUID
	Gender   string
	Page     int
	Limit    int
}

// CreateInput is the body of a create request. Parish may be omitted by
// parish scoped principals.
type CreateInput struct {
	Parish      string `json:"parish" validate:"omitempty,uuid"`
	FullName    string `json:"fullName" validate:"required,min=2,max=100"`
	BaptismName string `json:"baptismName" validate:"max=100"`
	DateOfBirth string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Gender      string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Phone       string `json:"phone" validate:"omitempty,max=20,phone"`
	Address     string `json:"address" validate:"max=500"`
	FamilyHead  string `json:"familyHead" validate:"omitempty,uuid"`
}

// UpdateInput is the body of a partial update. An empty string clears an
// optional field.
type UpdateInput struct {
	Parish      string              `json:"parish" validate:"omitempty,uuid"`
	FullName    *string             `json:"fullName" validate:"omitempty,min=2,max=100"`
	BaptismName *string             `json:"baptismName" validate:"omitempty,max=100"`
	DateOfBirth *string             `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Gender      *string             `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Phone       *string             `json:"phone" validate:"omitempty,max=20,phone"`
	Address     *string             `json:"address" validate:"omitempty,max=500"`
	FamilyHead  shared.NullableUUID `json:"familyHead" validate:"-"`
}

// NewParishioner is the row written by Insert.
type NewParishioner struct {
	ID           uuid.UUID
	ParishID     uuid.UUID
	FullName     string
	BaptismName  string
	SearchKey    string
	DateOfBirth  *time.Time
	Gender       *string
	Phone        string
	Address      string
	FamilyHeadID *uuid.UUID
}

// Changes carries the columns of an update; nil fields are kept. The Set
// flags mark nullable columns that are written even when the value is nil.
type Changes struct {
	ParishID       *uuid.UUID
	FullName       *string
	BaptismName    *string
	SearchKey      *string
	SetDateOfBirth bool
	DateOfBirth    *time.Time
	SetGender      bool
	Gender         *string
	Phone          *string
	Address        *string
	SetFamilyHead  bool
	FamilyHeadID   *uuid.UUID
}

// searchKey is the accent folded text matched by listing searches.
func searchKey(fullName, baptismName, phone string) string {
	return shared.FoldSearch(fullName + " " + baptismName + " " + phone)
}
