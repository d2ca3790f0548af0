package services

import (
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContentStore is what the engine needs from the content and social graph
// services. Implementations are bound to one tenant and one transaction.
type ContentStore interface {
	SubjectExists(t moderation.SubjectType, id string) (bool, error)
	// IncrementReportCount bumps the denormalized counter and returns the new value.
	IncrementReportCount(t moderation.SubjectType, id string) (int, error)
	// Counterparts returns every user linked to userID by a follow edge in
	// either direction, a conversation or a direct message.
	Counterparts(userID uuid.UUID) ([]uuid.UUID, error)
	RemoveFollowEdge(a, b uuid.UUID) error
	DeleteConversationsBetween(a, b uuid.UUID) error
	SoftDeleteMessagesBetween(a, b uuid.UUID) error
	SetContentModerationStatus(t moderation.SubjectType, id string, status moderation.ContentStatus) error
	DeleteContent(t moderation.SubjectType, id string) error
}

// ContentStoreFactory binds a ContentStore to a transaction handle.
type ContentStoreFactory func(tx *gorm.DB, appID string) ContentStore

var errUnsupportedSubject = errors.New("unsupported subject type")

// GormContentStore implements ContentStore on the shared database.
type GormContentStore struct {
	db    *gorm.DB
	appID string
}

func NewGormContentStore(tx *gorm.DB, appID string) ContentStore {
	return &GormContentStore{db: tx, appID: appID}
}

func (s *GormContentStore) scoped() *gorm.DB {
	return s.db.Scopes(tenant.ForTenant(s.appID))
}

func subjectModel(t moderation.SubjectType) (interface{}, error) {
	switch t {
	case moderation.SubjectPost:
		return &models.Post{}, nil
	case moderation.SubjectComment:
		return &models.Comment{}, nil
	case moderation.SubjectUser:
		return &models.User{}, nil
	case moderation.SubjectMessage:
		return &models.Message{}, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnsupportedSubject, t)
}

func (s *GormContentStore) SubjectExists(t moderation.SubjectType, id string) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	model, err := subjectModel(t)
	if err != nil {
		return false, err
	}
	var n int64
	if err := s.scoped().Model(model).Where("id = ?", uid).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *GormContentStore) IncrementReportCount(t moderation.SubjectType, id string) (int, error) {
	model, err := subjectModel(t)
	if err != nil {
		return 0, err
	}
	result := s.scoped().Model(model).Where("id = ?", id).
		UpdateColumn("report_count", gorm.Expr("report_count + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrSubjectNotFound
	}
	var count int
	if err := s.scoped().Model(model).Where("id = ?", id).Pluck("report_count", &count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *GormContentStore) Counterparts(userID uuid.UUID) ([]uuid.UUID, error) {
	var following, followers, convA, convB, sentTo, receivedFrom []uuid.UUID
	queries := []struct {
		model  interface{}
		column string
		where  string
		out    *[]uuid.UUID
	}{
		{&models.Follow{}, "following_id", "follower_id = ?", &following},
		{&models.Follow{}, "follower_id", "following_id = ?", &followers},
		{&models.Conversation{}, "user_b_id", "user_a_id = ?", &convA},
		{&models.Conversation{}, "user_a_id", "user_b_id = ?", &convB},
		{&models.Message{}, "receiver_id", "sender_id = ?", &sentTo},
		{&models.Message{}, "sender_id", "receiver_id = ?", &receivedFrom},
	}
	for _, q := range queries {
		if err := s.scoped().Model(q.model).Where(q.where, userID).Distinct().Pluck(q.column, q.out).Error; err != nil {
			return nil, err
		}
	}

	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, list := range [][]uuid.UUID{following, followers, convA, convB, sentTo, receivedFrom} {
		for _, id := range list {
			if id == userID || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *GormContentStore) RemoveFollowEdge(a, b uuid.UUID) error {
	return s.scoped().
		Where("(follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?)", a, b, b, a).
		Delete(&models.Follow{}).Error
}

func (s *GormContentStore) DeleteConversationsBetween(a, b uuid.UUID) error {
	return s.scoped().
		Where("(user_a_id = ? AND user_b_id = ?) OR (user_a_id = ? AND user_b_id = ?)", a, b, b, a).
		Delete(&models.Conversation{}).Error
}

func (s *GormContentStore) SoftDeleteMessagesBetween(a, b uuid.UUID) error {
	return s.scoped().Model(&models.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Updates(map[string]interface{}{
			"deleted_for_sender":   true,
			"deleted_for_receiver": true,
		}).Error
}

func (s *GormContentStore) SetContentModerationStatus(t moderation.SubjectType, id string, status moderation.ContentStatus) error {
	if !t.IsContent() {
		return fmt.Errorf("%w: %s has no moderation status", errUnsupportedSubject, t)
	}
	model, _ := subjectModel(t)
	q := s.scoped().Model(model).Where("id = ?", id)
	if status == moderation.ContentFlagged {
		// Flagging never brings removed content back.
		q = q.Where("moderation_status <> ?", moderation.ContentRemoved)
	}
	return q.Update("moderation_status", status).Error
}

// DeleteContent hard-deletes a post or comment together with every comment
// hanging off it.
func (s *GormContentStore) DeleteContent(t moderation.SubjectType, id string) error {
	switch t {
	case moderation.SubjectPost:
		if err := s.scoped().Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return s.scoped().Where("id = ?", id).Delete(&models.Post{}).Error
	case moderation.SubjectComment:
		return s.deleteCommentTree(id)
	}
	return fmt.Errorf("%w: cannot delete %s", errUnsupportedSubject, t)
}

func (s *GormContentStore) deleteCommentTree(rootID string) error {
	ids := []string{rootID}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		var children []string
		if err := s.scoped().Model(&models.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return err
		}
		ids = append(ids, children...)
		frontier = children
	}
	return s.scoped().Where("id IN ?", ids).Delete(&models.Comment{}).Error
}
