package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/config"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"gorm.io/gorm"
)

// Sweeper does the periodic housekeeping of the engine: lifting expired
// suspensions and archiving terminal reports past the retention window.
type Sweeper struct {
	db       *gorm.DB
	enforcer *EnforcementCoordinator
	cfg      config.ModerationConfig
}

func NewSweeper(db *gorm.DB, enforcer *EnforcementCoordinator, cfg config.ModerationConfig) *Sweeper {
	return &Sweeper{db: db, enforcer: enforcer, cfg: cfg}
}

// Start runs Sweep every SweepInterval until done is closed.
func (s *Sweeper) Start(done chan struct{}) {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background(), time.Now())
			case <-done:
				return
			}
		}
	}()
}

// Sweep runs one pass and returns how many suspensions were lifted and how
// many reports were archived.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (lifted, archived int64) {
	lifted, err := s.enforcer.LiftExpired(ctx, now)
	if err != nil {
		slog.Error("lifting expired suspensions failed", "error", err)
	} else if lifted > 0 {
		slog.Info("expired suspensions lifted", "count", lifted)
	}

	result := s.db.WithContext(ctx).
		Where("resolved = ? AND status IN ? AND created_at < ?", true,
			[]moderation.Status{moderation.StatusAccepted, moderation.StatusDeclined, moderation.StatusResolved},
			now.Add(-s.cfg.ReportRetention)).
		Delete(&models.Report{})
	if result.Error != nil {
		slog.Error("report archival failed", "error", result.Error)
		return lifted, 0
	}
	if result.RowsAffected > 0 {
		slog.Info("terminal reports archived", "count", result.RowsAffected)
	}
	return lifted, result.RowsAffected
}
