package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a direct-message thread between two users. UserAID is
// always the lexically smaller id so a pair maps to one row.
type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppID     string    `gorm:"size:50;not null;index" json:"-"`
	UserAID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_conversations_pair" json:"user_a_id"`
	UserBID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_conversations_pair;index" json:"user_b_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	if c.UserBID.String() < c.UserAID.String() {
		c.UserAID, c.UserBID = c.UserBID, c.UserAID
	}
	return nil
}

// Message carries per-participant soft-delete markers.
type Message struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AppID              string     `gorm:"size:50;not null;index" json:"-"`
	ConversationID     *uuid.UUID `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	SenderID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	ReceiverID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"receiver_id"`
	Content            string     `gorm:"type:text" json:"content"`
	DeletedForSender   bool       `gorm:"default:false" json:"deleted_for_sender"`
	DeletedForReceiver bool       `gorm:"default:false" json:"deleted_for_receiver"`
	ReportCount        int        `gorm:"default:0" json:"report_count"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (m *Message) BeforeCreate(_ *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
