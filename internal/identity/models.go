package identity

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of identity categories. Authorization decisions
// switch exhaustively over these four values; anything else is rejected at
// token verification time.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleTeamMember     Role = "team_member"
	RoleFinance        Role = "finance"
)

// Roles returns every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleProjectManager, RoleTeamMember, RoleFinance}
}

// ParseRole maps a raw string onto the enum. The second return is false for
// anything outside the four known values.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleProjectManager, RoleTeamMember, RoleFinance:
		return Role(s), true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Identity is a user record. The auth core only ever reads it; ownership of
// the row stays with the surrounding application.
type Identity struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:uuid_generate_v4()"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Role         Role      `json:"role" gorm:"not null;default:'team_member'"`
	HourlyRate   *float64  `json:"hourly_rate,omitempty"`
	Active       bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Identity) TableName() string {
	return "identities"
}
