package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/config"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultBlockReason = "Account blocked after review of a reported violation"

// ReviewService drives reports through the reviewer state machine.
type ReviewService struct {
	db       *gorm.DB
	stores   ContentStoreFactory
	enforcer *EnforcementCoordinator
	notify   ReportNotifier
	cfg      config.ModerationConfig
	now      func() time.Time
}

func NewReviewService(db *gorm.DB, stores ContentStoreFactory, enforcer *EnforcementCoordinator, notify ReportNotifier, cfg config.ModerationConfig) *ReviewService {
	if stores == nil {
		stores = NewGormContentStore
	}
	return &ReviewService{db: db, stores: stores, enforcer: enforcer, notify: notify, cfg: cfg, now: time.Now}
}

// MarkReviewing claims a pending report.
func (s *ReviewService) MarkReviewing(ctx context.Context, appID string, reportID, reviewerID uuid.UUID) (*models.Report, error) {
	if _, err := loadReviewer(s.db.WithContext(ctx), appID, reviewerID); err != nil {
		return nil, err
	}
	var report *models.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		report, err = s.transition(tx, appID, reportID, moderation.TransitionReview, map[string]interface{}{
			"reviewer_id": reviewerID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.ReviewTransitions.WithLabelValues(string(moderation.TransitionReview)).Inc()
	return report, nil
}

// Accept upholds a report and applies its consequences in one transaction:
// content removal, the account block and the bulk resolution of other
// pending reports against the same subject.
func (s *ReviewService) Accept(ctx context.Context, appID string, reportID, reviewerID uuid.UUID, req *dto.AcceptReportRequest) (*models.Report, error) {
	if !req.ActionTaken.Valid() {
		return nil, validationf("action_taken must be one of none, warning, content_removed, account_suspended, account_banned")
	}
	note := strings.TrimSpace(req.Note)
	if _, err := loadReviewer(s.db.WithContext(ctx), appID, reviewerID); err != nil {
		return nil, err
	}

	var (
		report   *models.Report
		enf      *Enforcement
		siblings []models.Report
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		var err error
		report, err = s.transition(tx, appID, reportID, moderation.TransitionAccept, map[string]interface{}{
			"resolved":     true,
			"reviewer_id":  reviewerID,
			"reviewed_at":  now,
			"admin_note":   note,
			"action_taken": req.ActionTaken,
		})
		if err != nil {
			return err
		}

		store := s.stores(tx, appID)
		switch {
		case report.SubjectType.IsContent() && req.RemoveContent:
			if err := store.SetContentModerationStatus(report.SubjectType, report.SubjectID, moderation.ContentRemoved); err != nil {
				return fmt.Errorf("remove content: %w", err)
			}
			if req.ActionTaken == moderation.ActionContentRemoved {
				if err := store.DeleteContent(report.SubjectType, report.SubjectID); err != nil {
					return fmt.Errorf("delete content: %w", err)
				}
			}
		case report.SubjectType == moderation.SubjectUser && req.BlockUser:
			target, err := uuid.Parse(report.SubjectID)
			if err != nil {
				return ErrUserNotFound
			}
			reason := note
			if reason == "" {
				reason = defaultBlockReason
			}
			enf, err = s.enforcer.ApplyTx(tx, EnforcementOrder{
				AppID:     appID,
				UserID:    target,
				Reason:    reason,
				BlockedBy: &reviewerID,
				Action:    req.ActionTaken,
				Source:    SourceReview,
			})
			if err != nil {
				return err
			}
		}

		if report.SubjectType != moderation.SubjectMessage {
			siblings, err = s.resolveSiblings(tx, report, reviewerID, now)
			if err != nil {
				return fmt.Errorf("resolve duplicate reports: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewTransitions.WithLabelValues(string(moderation.TransitionAccept)).Inc()
	slog.Info("report accepted",
		"app_id", appID,
		"report_id", report.ID.String(),
		"reviewer_id", reviewerID.String(),
		"action_taken", req.ActionTaken,
		"siblings_resolved", len(siblings),
	)
	s.enforcer.Announce(ctx, SourceReview, enf)
	if s.notify != nil {
		s.notify.ReportReviewed(ctx, report)
		for i := range siblings {
			s.notify.ReportReviewed(ctx, &siblings[i])
		}
	}
	return report, nil
}

// Decline rejects a report. A note is mandatory.
func (s *ReviewService) Decline(ctx context.Context, appID string, reportID, reviewerID uuid.UUID, note string) (*models.Report, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) < s.cfg.ReviewNoteMin {
		return nil, validationf("note must be at least %d characters", s.cfg.ReviewNoteMin)
	}
	if _, err := loadReviewer(s.db.WithContext(ctx), appID, reviewerID); err != nil {
		return nil, err
	}

	var report *models.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		report, err = s.transition(tx, appID, reportID, moderation.TransitionDecline, map[string]interface{}{
			"resolved":     true,
			"reviewer_id":  reviewerID,
			"reviewed_at":  s.now().UTC(),
			"admin_note":   note,
			"action_taken": moderation.ActionNone,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewTransitions.WithLabelValues(string(moderation.TransitionDecline)).Inc()
	slog.Info("report declined", "app_id", appID, "report_id", report.ID.String(), "reviewer_id", reviewerID.String())
	if s.notify != nil {
		s.notify.ReportReviewed(ctx, report)
	}
	return report, nil
}

// transition moves one report along t. The update is conditional on the
// row still being in a source status, so a concurrent reviewer loses
// cleanly with ErrAlreadyProcessed.
func (s *ReviewService) transition(tx *gorm.DB, appID string, reportID uuid.UUID, t moderation.Transition, updates map[string]interface{}) (*models.Report, error) {
	var report models.Report
	if err := tx.Scopes(tenant.ForTenant(appID)).First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	to, err := moderation.Next(report.Status, t)
	if err != nil {
		return nil, ErrAlreadyProcessed
	}

	updates["status"] = to
	result := tx.Model(&models.Report{}).Scopes(tenant.ForTenant(appID)).
		Where("id = ? AND status IN ?", reportID, moderation.Sources(t)).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}

	if err := tx.Scopes(tenant.ForTenant(appID)).First(&report, "id = ?", reportID).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *ReviewService) resolveSiblings(tx *gorm.DB, accepted *models.Report, reviewerID uuid.UUID, now time.Time) ([]models.Report, error) {
	var siblings []models.Report
	if err := tx.Scopes(tenant.ForTenant(accepted.AppID)).
		Where("subject_type = ? AND subject_id = ? AND id <> ? AND status IN ?",
			accepted.SubjectType, accepted.SubjectID, accepted.ID, moderation.Sources(moderation.TransitionBulkResolve)).
		Find(&siblings).Error; err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, nil
	}

	note := fmt.Sprintf("Resolved together with accepted report %s", accepted.ID)
	updates := map[string]interface{}{
		"status":       moderation.StatusResolved,
		"resolved":     true,
		"reviewer_id":  reviewerID,
		"reviewed_at":  now,
		"admin_note":   note,
		"action_taken": accepted.ActionTaken,
	}
	// A sibling closed by another reviewer since the read keeps its outcome.
	resolved := siblings[:0]
	for _, sib := range siblings {
		result := tx.Model(&models.Report{}).Scopes(tenant.ForTenant(accepted.AppID)).
			Where("id = ? AND status IN ?", sib.ID, moderation.Sources(moderation.TransitionBulkResolve)).
			Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		sib.Status = moderation.StatusResolved
		sib.Resolved = true
		sib.ReviewerID = &reviewerID
		sib.ReviewedAt = &now
		sib.AdminNote = note
		sib.ActionTaken = accepted.ActionTaken
		resolved = append(resolved, sib)
	}
	return resolved, nil
}
