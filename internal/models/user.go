package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User is the account every report, follow edge and session hangs off.
type User struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	AppID       string            `gorm:"size:50;not null;uniqueIndex:idx_users_app_email" json:"-"`
	Email       string            `gorm:"not null;size:255;uniqueIndex:idx_users_app_email" json:"email"`
	Password    string            `gorm:"not null" json:"-"`
	Role        string            `gorm:"size:20;default:'user'" json:"role"`
	ReportCount int               `gorm:"default:0" json:"report_count"`
	Enforcement EnforcementRecord `gorm:"embedded" json:"enforcement"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt    `gorm:"index" json:"-"`
}

// EnforcementRecord is the block/suspension state of an account. It is
// never deleted, only reset to the zero value on unblock.
//
// BlockedBy nil means the engine blocked the account on its own.
// SuspendedUntil is only set for automatic, time-boxed suspensions.
type EnforcementRecord struct {
	IsBlocked      bool       `gorm:"not null;default:false;index" json:"is_blocked"`
	BlockedReason  string     `gorm:"size:1000" json:"blocked_reason,omitempty"`
	BlockedBy      *uuid.UUID `gorm:"type:uuid" json:"blocked_by,omitempty"`
	BlockedAt      *time.Time `json:"blocked_at,omitempty"`
	SuspendedUntil *time.Time `gorm:"index" json:"suspended_until,omitempty"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsReviewer reports whether the account may act on reports.
func (u *User) IsReviewer() bool {
	return u.Role == RoleAdmin || u.Role == RoleModerator
}

// SuspensionExpired reports whether an automatic suspension has run out.
// Indefinite blocks never expire.
func (e EnforcementRecord) SuspensionExpired(now time.Time) bool {
	return e.IsBlocked && e.SuspendedUntil != nil && !now.Before(*e.SuspendedUntil)
}

// Active reports whether the block is in force at now.
func (e EnforcementRecord) Active(now time.Time) bool {
	return e.IsBlocked && !e.SuspensionExpired(now)
}
