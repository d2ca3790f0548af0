package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/config"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportNotifier receives report lifecycle events after commit.
type ReportNotifier interface {
	ReportFiled(ctx context.Context, r *models.Report)
	ReportReviewed(ctx context.Context, r *models.Report)
}

type ReportService struct {
	db       *gorm.DB
	stores   ContentStoreFactory
	enforcer *EnforcementCoordinator
	notify   ReportNotifier
	registry *tenant.Registry
	cfg      config.ModerationConfig
}

func NewReportService(db *gorm.DB, stores ContentStoreFactory, enforcer *EnforcementCoordinator, notify ReportNotifier, registry *tenant.Registry, cfg config.ModerationConfig) *ReportService {
	if stores == nil {
		stores = NewGormContentStore
	}
	return &ReportService{db: db, stores: stores, enforcer: enforcer, notify: notify, registry: registry, cfg: cfg}
}

// FileReport validates and stores a new report, then runs the escalation
// policy when the subject is a user. Escalation failures are logged; the
// report stands either way.
func (s *ReportService) FileReport(ctx context.Context, appID string, reporterID uuid.UUID, req *dto.CreateReportRequest) (*models.Report, error) {
	report, err := s.newReport(appID, reporterID, req)
	if err != nil {
		metrics.ReportsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.stores(tx, appID)
		ok, err := store.SubjectExists(report.SubjectType, report.SubjectID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSubjectNotFound
		}

		var open int64
		if err := tx.Model(&models.Report{}).Scopes(tenant.ForTenant(appID)).
			Where("reporter_id = ? AND subject_type = ? AND subject_id = ? AND resolved = ?",
				reporterID, report.SubjectType, report.SubjectID, false).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrDuplicateReport
		}

		if err := tx.Create(report).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReport
			}
			return fmt.Errorf("create report: %w", err)
		}

		count, err := store.IncrementReportCount(report.SubjectType, report.SubjectID)
		if err != nil {
			return fmt.Errorf("increment report count: %w", err)
		}
		if report.SubjectType == moderation.SubjectComment && count >= s.cfg.CommentFlagThreshold {
			if err := store.SetContentModerationStatus(report.SubjectType, report.SubjectID, moderation.ContentFlagged); err != nil {
				return fmt.Errorf("flag comment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.ReportsRejected.WithLabelValues("not_found").Inc()
		case errors.Is(err, ErrConflict):
			metrics.ReportsRejected.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	metrics.ReportsFiled.WithLabelValues(string(report.SubjectType), string(report.Priority)).Inc()
	slog.Info("report filed",
		"app_id", appID,
		"report_id", report.ID.String(),
		"subject_type", report.SubjectType,
		"reason", report.Reason,
		"priority", report.Priority,
	)
	if s.notify != nil {
		s.notify.ReportFiled(ctx, report)
	}
	if report.SubjectType == moderation.SubjectUser {
		s.escalate(ctx, report)
	}
	return report, nil
}

func (s *ReportService) newReport(appID string, reporterID uuid.UUID, req *dto.CreateReportRequest) (*models.Report, error) {
	subjectType := moderation.SubjectType(strings.TrimSpace(req.SubjectType))
	if !subjectType.Valid() {
		return nil, validationf("invalid subject_type %q", req.SubjectType)
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		return nil, validationf("subject_id is required")
	}
	// Every subject is keyed by its canonical id so dedupe and pending
	// counts see one spelling.
	subject, err := uuid.Parse(strings.TrimSpace(req.SubjectID))
	if err != nil {
		return nil, validationf("invalid subject_id %q", req.SubjectID)
	}
	subjectID := subject.String()
	reason := moderation.Reason(strings.TrimSpace(req.Reason))
	if !reason.Valid() {
		return nil, validationf("invalid reason %q", req.Reason)
	}
	description := strings.TrimSpace(req.Description)
	if n := utf8.RuneCountInString(description); n < s.cfg.DescriptionMin || n > s.cfg.DescriptionMax {
		return nil, validationf("description must be between %d and %d characters", s.cfg.DescriptionMin, s.cfg.DescriptionMax)
	}
	priority, ok := moderation.Classify(reason, moderation.Priority(strings.TrimSpace(req.Priority)))
	if !ok {
		return nil, validationf("invalid priority %q", req.Priority)
	}
	if subjectType == moderation.SubjectUser && subject == reporterID {
		return nil, ErrSelfReport
	}

	return &models.Report{
		AppID:       appID,
		ReporterID:  reporterID,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Reason:      reason,
		Description: description,
		Priority:    priority,
		Status:      moderation.StatusPending,
	}, nil
}

func (s *ReportService) escalate(ctx context.Context, r *models.Report) {
	if s.enforcer == nil {
		return
	}
	if s.registry != nil && !s.registry.FeatureEnabled(r.AppID, tenant.FeatureAutoEscalation, true) {
		return
	}
	userID, err := uuid.Parse(r.SubjectID)
	if err != nil {
		return
	}

	var pending int64
	if err := s.db.WithContext(ctx).Model(&models.Report{}).Scopes(tenant.ForTenant(r.AppID)).
		Where("subject_type = ? AND subject_id = ? AND status = ?", moderation.SubjectUser, r.SubjectID, moderation.StatusPending).
		Count(&pending).Error; err != nil {
		s.escalationFailed(r, err)
		return
	}

	decision := moderation.Evaluate(r.Reason, pending)
	if !decision.Suspend {
		return
	}
	reason := fmt.Sprintf("Automatically suspended after %d pending reports", pending)
	enf, err := s.enforcer.Suspend(ctx, r.AppID, userID, decision.Duration, reason)
	if err != nil {
		if errors.Is(err, ErrBlockAdmin) {
			metrics.Escalations.WithLabelValues(decision.Rule, "skipped_admin").Inc()
			slog.Warn("escalation skipped for admin account", "report_id", r.ID.String(), "user_id", r.SubjectID)
			return
		}
		metrics.Escalations.WithLabelValues(decision.Rule, "failed").Inc()
		s.escalationFailed(r, err)
		return
	}
	if !enf.Applied {
		metrics.Escalations.WithLabelValues(decision.Rule, "noop").Inc()
		slog.Debug("escalation found account already blocked", "report_id", r.ID.String(), "user_id", r.SubjectID)
		return
	}
	metrics.Escalations.WithLabelValues(decision.Rule, "applied").Inc()
}

func (s *ReportService) escalationFailed(r *models.Report, err error) {
	sentry.CaptureException(err)
	slog.Error("escalation failed", "report_id", r.ID.String(), "user_id", r.SubjectID, "error", err)
}

// priorityOrder sorts critical first.
const priorityOrder = "CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END"

// ListReports returns the triage queue, most urgent and oldest first.
func (s *ReportService) ListReports(ctx context.Context, appID string, f dto.ReportFilter) ([]models.Report, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Report{}).Scopes(tenant.ForTenant(appID))
	if f.Status != "" {
		if !moderation.Status(f.Status).Valid() {
			return nil, 0, validationf("invalid status %q", f.Status)
		}
		q = q.Where("status = ?", f.Status)
	}
	if f.SubjectType != "" {
		if !moderation.SubjectType(f.SubjectType).Valid() {
			return nil, 0, validationf("invalid subject_type %q", f.SubjectType)
		}
		q = q.Where("subject_type = ?", f.SubjectType)
	}
	if f.Priority != "" {
		if !moderation.Priority(f.Priority).Valid() {
			return nil, 0, validationf("invalid priority %q", f.Priority)
		}
		q = q.Where("priority = ?", f.Priority)
	}
	if f.Resolved != nil {
		q = q.Where("resolved = ?", *f.Resolved)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	var reports []models.Report
	if err := q.Order(priorityOrder).Order("created_at ASC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func (s *ReportService) GetReport(ctx context.Context, appID string, reportID uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID)).First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return &report, nil
}

// SetPriority lets a reviewer override the classified priority of an open
// report.
func (s *ReportService) SetPriority(ctx context.Context, appID string, reportID, reviewerID uuid.UUID, priority string) (*models.Report, error) {
	p := moderation.Priority(strings.TrimSpace(priority))
	if !p.Valid() {
		return nil, validationf("invalid priority %q", priority)
	}
	db := s.db.WithContext(ctx)
	if _, err := loadReviewer(db, appID, reviewerID); err != nil {
		return nil, err
	}

	result := db.Model(&models.Report{}).Scopes(tenant.ForTenant(appID)).
		Where("id = ? AND resolved = ?", reportID, false).
		Update("priority", p)
	if result.Error != nil {
		return nil, result.Error
	}
	report, err := s.GetReport(ctx, appID, reportID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadyProcessed
	}
	return report, nil
}
