package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Built-in role names. Which of them may create or approve appeals is policy,
// injected from configuration rather than decided here.
const (
	RoleSuperAdmin       = "super_admin"
	RoleITCAdmin         = "itc_admin"
	RoleMissionAuthority = "mission_authority"
	RoleAccountsUser     = "accounts_user"
	RoleViewer           = "viewer"
)

// AllRoles lists every role a user may be assigned.
var AllRoles = []string{RoleSuperAdmin, RoleITCAdmin, RoleMissionAuthority, RoleAccountsUser, RoleViewer}

// User represents an administrator of the donation desk
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone     string         `gorm:"type:varchar(50)" json:"phone"`
	Password  string         `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash, never serialized
	Role      string         `gorm:"type:varchar(50);not null;index" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
