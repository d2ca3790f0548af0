package models

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post and Comment are owned by the content service. The engine only
// touches moderation_status, report_count and, on removal, the rows.
type Post struct {
	ID               uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	AppID            string                   `gorm:"size:50;not null;index" json:"-"`
	AuthorID         uuid.UUID                `gorm:"type:uuid;not null;index" json:"author_id"`
	Content          string                   `gorm:"type:text" json:"content"`
	ModerationStatus moderation.ContentStatus `gorm:"size:20;default:'approved';index" json:"moderation_status"`
	ReportCount      int                      `gorm:"default:0" json:"report_count"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func (p *Post) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

type Comment struct {
	ID               uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	AppID            string                   `gorm:"size:50;not null;index" json:"-"`
	PostID           uuid.UUID                `gorm:"type:uuid;not null;index" json:"post_id"`
	ParentID         *uuid.UUID               `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	AuthorID         uuid.UUID                `gorm:"type:uuid;not null;index" json:"author_id"`
	Content          string                   `gorm:"type:text" json:"content"`
	ModerationStatus moderation.ContentStatus `gorm:"size:20;default:'approved';index" json:"moderation_status"`
	ReportCount      int                      `gorm:"default:0" json:"report_count"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func (c *Comment) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
