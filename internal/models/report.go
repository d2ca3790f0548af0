package models

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Report is one abuse complaint against one subject.
//
// The partial unique index keeps a reporter from holding two unresolved
// reports against the same subject.
type Report struct {
	ID          uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	AppID       string                 `gorm:"size:50;not null;index;uniqueIndex:idx_reports_open_subject,where:resolved = false" json:"-"`
	ReporterID  uuid.UUID              `gorm:"type:uuid;not null;index;uniqueIndex:idx_reports_open_subject" json:"reporter_id"`
	SubjectType moderation.SubjectType `gorm:"not null;size:20;index:idx_reports_subject;uniqueIndex:idx_reports_open_subject" json:"subject_type"`
	SubjectID   string                 `gorm:"not null;size:255;index:idx_reports_subject;uniqueIndex:idx_reports_open_subject" json:"subject_id"`
	Reason      moderation.Reason      `gorm:"not null;size:50" json:"reason"`
	Description string                 `gorm:"not null;size:1000" json:"description"`
	Priority    moderation.Priority    `gorm:"not null;size:20;index" json:"priority"`
	Status      moderation.Status      `gorm:"not null;default:'pending';size:20;index" json:"status"`
	Resolved    bool                   `gorm:"not null;default:false" json:"resolved"`
	ReviewerID  *uuid.UUID             `gorm:"type:uuid" json:"reviewer_id,omitempty"`
	ReviewedAt  *time.Time             `json:"reviewed_at,omitempty"`
	AdminNote   string                 `gorm:"size:1000" json:"admin_note,omitempty"`
	ActionTaken moderation.Action      `gorm:"size:30" json:"action_taken,omitempty"`
	CreatedAt   time.Time              `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Reporter    User                   `gorm:"foreignKey:ReporterID" json:"-"`
}

func (r *Report) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
