package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of portal roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleGroupHead Role = "group_head"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleGroupHead, RoleAdmin:
		return true
	}
	return false
}

// Privileged roles self-certify their own submissions.
func (r Role) Privileged() bool {
	return r == RoleGroupHead || r == RoleAdmin
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role must be a string: %w", err)
	}
	role := Role(s)
	// An empty role is left unset for the caller to default.
	if role != "" && !role.Valid() {
		return fmt.Errorf("unknown role %q", s)
	}
	*r = role
	return nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
	role := Role(s)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q in store", s)
	}
	*r = role
	return nil
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	return string(r), nil
}

// User is the stored user record. It carries credential fields and must never
// be serialised to a client; use Public instead.
type User struct {
	ID                uuid.UUID
	Username          string
	Email             string
	PasswordHash      string
	Role              Role
	GroupHeadFormType *FormType
	RefreshToken      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PublicUser is the user profile exposed over the API.
type PublicUser struct {
	ID                uuid.UUID `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	Role              Role      `json:"role"`
	GroupHeadFormType *FormType `json:"groupHeadFormType,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Public strips the credential fields.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		Role:              u.Role,
		GroupHeadFormType: u.GroupHeadFormType,
		CreatedAt:         u.CreatedAt,
	}
}

// CheckRoleScope enforces that a group head has exactly one valid form type
// and that no other role carries one.
func CheckRoleScope(role Role, formType *FormType) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if role == RoleGroupHead {
		if formType == nil {
			return fmt.Errorf("group heads must specify form type")
		}
		if !formType.Valid() {
			return fmt.Errorf("form type must be between %d and %d", MinFormType, MaxFormType)
		}
		return nil
	}
	if formType != nil {
		return fmt.Errorf("only group heads carry a form type")
	}
	return nil
}

