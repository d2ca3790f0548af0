package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NotificationReportFiled    = "report_filed"
	NotificationReportReviewed = "report_reviewed"
	NotificationAccountBlocked = "account_blocked"
)

// Notification is an in-app notification. Reading them is someone else's job.
type Notification struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AppID       string         `gorm:"size:50;not null;index" json:"-"`
	RecipientID uuid.UUID      `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Type        string         `gorm:"size:50;not null" json:"type"`
	Title       string         `gorm:"size:255" json:"title"`
	Body        string         `gorm:"type:text" json:"body"`
	Data        datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"data"`
	Read        bool           `gorm:"default:false" json:"read"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
