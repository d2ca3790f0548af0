package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sessions is the realtime side channel: a local Hub or the Redis Broker.
type Sessions interface {
	Push(ctx context.Context, userID uuid.UUID, ev realtime.Event) error
	Disconnect(ctx context.Context, userID uuid.UUID, reason string) error
}

const (
	fanoutTimeout    = 10 * time.Second
	disconnectReason = "account blocked"
)

// NotificationService emits in-app notifications and realtime events. All
// of it is best effort: failures are logged and counted, never returned.
type NotificationService struct {
	db       *gorm.DB
	sessions Sessions
	dispatch func(func())
}

func NewNotificationService(db *gorm.DB, sessions Sessions) *NotificationService {
	return &NotificationService{
		db:       db,
		sessions: sessions,
		dispatch: func(f func()) { go f() },
	}
}

// SetDispatch replaces how fan-out work is scheduled. Tests run it inline.
func (s *NotificationService) SetDispatch(d func(func())) {
	s.dispatch = d
}

// List returns the newest notifications of one user.
func (s *NotificationService) List(ctx context.Context, appID string, userID uuid.UUID, limit, offset int) ([]models.Notification, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := s.db.WithContext(ctx).Model(&models.Notification{}).
		Scopes(tenant.ForTenant(appID)).
		Where("recipient_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Notification
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ReportFiled tells every reviewer of the app that a report needs triage.
func (s *NotificationService) ReportFiled(ctx context.Context, r *models.Report) {
	report := *r
	s.run(ctx, func(ctx context.Context) {
		reviewers, err := s.reviewers(ctx, report.AppID, report.ReporterID)
		if err != nil {
			s.fail("load_reviewers", err, "report_id", report.ID.String())
			return
		}
		data := map[string]interface{}{
			"report_id":    report.ID.String(),
			"subject_type": report.SubjectType,
			"subject_id":   report.SubjectID,
			"reason":       report.Reason,
			"priority":     report.Priority,
		}
		title := fmt.Sprintf("New %s priority report", report.Priority)
		body := fmt.Sprintf("A %s was reported for %s.", report.SubjectType, report.Reason)
		s.notifyAll(ctx, report.AppID, reviewers, models.NotificationReportFiled, title, body, data)
	})
}

// ReportReviewed tells the reporter how their report was decided.
func (s *NotificationService) ReportReviewed(ctx context.Context, r *models.Report) {
	report := *r
	s.run(ctx, func(ctx context.Context) {
		data := map[string]interface{}{
			"report_id":    report.ID.String(),
			"status":       report.Status,
			"action_taken": report.ActionTaken,
		}
		body := fmt.Sprintf("Your report was %s.", report.Status)
		s.notifyAll(ctx, report.AppID, []uuid.UUID{report.ReporterID}, models.NotificationReportReviewed, "Report reviewed", body, data)
	})
}

// AccountBlocked notifies the blocked user, pushes the accountBlocked event
// to their live sessions and then closes them. Reviewers are told about
// automatic suspensions.
func (s *NotificationService) AccountBlocked(ctx context.Context, enf *Enforcement) {
	e := *enf
	s.run(ctx, func(ctx context.Context) {
		rec := e.Record
		data := map[string]interface{}{
			"reason":       rec.BlockedReason,
			"action_taken": e.Action,
			"blocked_at":   rec.BlockedAt,
			"expires_at":   rec.SuspendedUntil,
		}
		title := "Your account has been blocked"
		if rec.SuspendedUntil != nil {
			title = "Your account has been suspended"
		}
		s.notifyAll(ctx, e.AppID, []uuid.UUID{e.UserID}, models.NotificationAccountBlocked, title, rec.BlockedReason, data)

		ev := realtime.Event{
			RecipientID: e.UserID,
			EventType:   realtime.EventAccountBlocked,
			Reason:      rec.BlockedReason,
			ActionTaken: string(e.Action),
			BlockedAt:   rec.BlockedAt,
			ExpiresAt:   rec.SuspendedUntil,
		}
		if err := s.sessions.Push(ctx, e.UserID, ev); err != nil {
			s.fail("push_blocked", err, "user_id", e.UserID.String())
		}
		if err := s.sessions.Disconnect(ctx, e.UserID, disconnectReason); err != nil {
			s.fail("disconnect", err, "user_id", e.UserID.String())
		}

		if rec.BlockedBy == nil {
			reviewers, err := s.reviewers(ctx, e.AppID, e.UserID)
			if err != nil {
				s.fail("load_reviewers", err, "user_id", e.UserID.String())
				return
			}
			data["user_id"] = e.UserID.String()
			s.notifyAll(ctx, e.AppID, reviewers, models.NotificationAccountBlocked,
				"Account suspended automatically", rec.BlockedReason, data)
		}
	})
}

// run detaches fn from the request so it outlives the response, bounded by
// its own timeout.
func (s *NotificationService) run(ctx context.Context, fn func(ctx context.Context)) {
	base := context.WithoutCancel(ctx)
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(base, fanoutTimeout)
		defer cancel()
		fn(ctx)
	})
}

func (s *NotificationService) reviewers(ctx context.Context, appID string, exclude uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Scopes(tenant.ForTenant(appID)).
		Where("role IN ? AND is_blocked = ? AND id <> ?", []string{models.RoleAdmin, models.RoleModerator}, false, exclude).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *NotificationService) notifyAll(ctx context.Context, appID string, recipients []uuid.UUID, kind, title, body string, data map[string]interface{}) {
	if len(recipients) == 0 {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		s.fail("encode", err)
		return
	}

	rows := make([]models.Notification, len(recipients))
	for i, id := range recipients {
		rows[i] = models.Notification{
			AppID:       appID,
			RecipientID: id,
			Type:        kind,
			Title:       title,
			Body:        body,
			Data:        datatypes.JSON(raw),
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		s.fail("persist", err, "type", kind)
		return
	}

	for _, n := range rows {
		ev := realtime.Event{RecipientID: n.RecipientID, EventType: realtime.EventNotification, Data: json.RawMessage(raw)}
		if err := s.sessions.Push(ctx, n.RecipientID, ev); err != nil {
			s.fail("push", err, "user_id", n.RecipientID.String())
		}
	}
}

func (s *NotificationService) fail(step string, err error, attrs ...any) {
	metrics.FanoutFailures.WithLabelValues(step).Inc()
	sentry.CaptureException(err)
	slog.Error("notification fan-out failed", append([]any{"step", step, "error", err}, attrs...)...)
}
