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
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Enforcement sources, used as a metrics label and in logs.
const (
	SourceEscalation = "escalation"
	SourceReview     = "review"
	SourceManual     = "manual"
)

// EnforcementOrder asks for one account to be blocked.
type EnforcementOrder struct {
	AppID  string
	UserID uuid.UUID
	Reason string
	// BlockedBy is nil for automatic suspensions.
	BlockedBy *uuid.UUID
	// Duration zero means indefinite.
	Duration time.Duration
	Action   moderation.Action
	Source   string
}

// Enforcement is the outcome of an order. Applied is false when the
// account was already blocked; nothing was changed in that case.
type Enforcement struct {
	Applied      bool
	AppID        string
	UserID       uuid.UUID
	Record       models.EnforcementRecord
	Action       moderation.Action
	Counterparts []uuid.UUID
}

// BlockNotifier is told about every applied enforcement after commit.
type BlockNotifier interface {
	AccountBlocked(ctx context.Context, enf *Enforcement)
}

// EnforcementCoordinator applies blocks atomically: the enforcement record,
// the purge of follow edges, conversations and messages with every
// counterpart, and the refresh token revocation commit together or not at
// all. Realtime and notification side effects run after commit.
type EnforcementCoordinator struct {
	db     *gorm.DB
	stores ContentStoreFactory
	notify BlockNotifier
	cfg    config.ModerationConfig
	now    func() time.Time
}

func NewEnforcementCoordinator(db *gorm.DB, stores ContentStoreFactory, notify BlockNotifier, cfg config.ModerationConfig) *EnforcementCoordinator {
	if stores == nil {
		stores = NewGormContentStore
	}
	return &EnforcementCoordinator{db: db, stores: stores, notify: notify, cfg: cfg, now: time.Now}
}

// ApplyTx runs the enforcement inside tx. The caller owns the transaction
// and must call Announce once it has committed.
func (c *EnforcementCoordinator) ApplyTx(tx *gorm.DB, o EnforcementOrder) (*Enforcement, error) {
	var user models.User
	if err := tx.Scopes(tenant.ForTenant(o.AppID)).First(&user, "id = ?", o.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.IsAdmin() {
		return nil, ErrBlockAdmin
	}

	now := c.now().UTC()
	rec := models.EnforcementRecord{
		IsBlocked:     true,
		BlockedReason: o.Reason,
		BlockedBy:     o.BlockedBy,
		BlockedAt:     &now,
	}
	if o.Duration > 0 {
		until := now.Add(o.Duration)
		rec.SuspendedUntil = &until
	}

	// The guard makes concurrent orders for the same account collapse into
	// one: only the transaction that flips is_blocked sees a row affected.
	result := tx.Model(&models.User{}).Scopes(tenant.ForTenant(o.AppID)).
		Where("id = ?", o.UserID).
		Where("is_blocked = ? OR (suspended_until IS NOT NULL AND suspended_until <= ?)", false, now).
		Updates(map[string]interface{}{
			"is_blocked":      true,
			"blocked_reason":  rec.BlockedReason,
			"blocked_by":      rec.BlockedBy,
			"blocked_at":      rec.BlockedAt,
			"suspended_until": rec.SuspendedUntil,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("set enforcement record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.Enforcements.WithLabelValues(o.Source, "noop").Inc()
		return &Enforcement{AppID: o.AppID, UserID: o.UserID, Record: user.Enforcement, Action: o.Action}, nil
	}

	store := c.stores(tx, o.AppID)
	counterparts, err := store.Counterparts(o.UserID)
	if err != nil {
		return nil, fmt.Errorf("list counterparts: %w", err)
	}
	for _, other := range counterparts {
		if err := store.RemoveFollowEdge(o.UserID, other); err != nil {
			return nil, fmt.Errorf("remove follow edge: %w", err)
		}
		if err := store.DeleteConversationsBetween(o.UserID, other); err != nil {
			return nil, fmt.Errorf("delete conversations: %w", err)
		}
		if err := store.SoftDeleteMessagesBetween(o.UserID, other); err != nil {
			return nil, fmt.Errorf("delete messages: %w", err)
		}
	}

	if err := tx.Model(&models.RefreshToken{}).Scopes(tenant.ForTenant(o.AppID)).
		Where("user_id = ? AND revoked = ?", o.UserID, false).
		Update("revoked", true).Error; err != nil {
		return nil, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	return &Enforcement{
		Applied:      true,
		AppID:        o.AppID,
		UserID:       o.UserID,
		Record:       rec,
		Action:       o.Action,
		Counterparts: counterparts,
	}, nil
}

// Announce runs the post-commit side effects of an applied enforcement.
func (c *EnforcementCoordinator) Announce(ctx context.Context, source string, enf *Enforcement) {
	if enf == nil || !enf.Applied {
		return
	}
	metrics.Enforcements.WithLabelValues(source, "applied").Inc()
	slog.Info("account blocked",
		"app_id", enf.AppID,
		"user_id", enf.UserID.String(),
		"source", source,
		"reason", enf.Record.BlockedReason,
		"counterparts", len(enf.Counterparts),
	)
	if c.notify != nil {
		c.notify.AccountBlocked(ctx, enf)
	}
}

func (c *EnforcementCoordinator) apply(ctx context.Context, o EnforcementOrder) (*Enforcement, error) {
	var enf *Enforcement
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enf, err = c.ApplyTx(tx, o)
		return err
	})
	if err != nil {
		metrics.Enforcements.WithLabelValues(o.Source, "failed").Inc()
		return nil, err
	}
	c.Announce(ctx, o.Source, enf)
	return enf, nil
}

// Suspend applies an automatic, time-boxed block. An account that is
// already blocked is left untouched and the result has Applied false.
func (c *EnforcementCoordinator) Suspend(ctx context.Context, appID string, userID uuid.UUID, d time.Duration, reason string) (*Enforcement, error) {
	return c.apply(ctx, EnforcementOrder{
		AppID:    appID,
		UserID:   userID,
		Reason:   reason,
		Duration: d,
		Action:   moderation.ActionAccountSuspended,
		Source:   SourceEscalation,
	})
}

// Block is the manual, indefinite block issued by a reviewer.
func (c *EnforcementCoordinator) Block(ctx context.Context, appID string, userID, reviewerID uuid.UUID, reason string) (*Enforcement, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < c.cfg.BlockReasonMin {
		return nil, validationf("reason must be at least %d characters", c.cfg.BlockReasonMin)
	}
	if userID == reviewerID {
		return nil, validationf("cannot block yourself")
	}
	if _, err := loadReviewer(c.db.WithContext(ctx), appID, reviewerID); err != nil {
		return nil, err
	}

	enf, err := c.apply(ctx, EnforcementOrder{
		AppID:     appID,
		UserID:    userID,
		Reason:    reason,
		BlockedBy: &reviewerID,
		Action:    moderation.ActionAccountBanned,
		Source:    SourceManual,
	})
	if err != nil {
		return nil, err
	}
	if !enf.Applied {
		return nil, ErrAlreadyBlocked
	}
	return enf, nil
}

var clearedRecord = map[string]interface{}{
	"is_blocked":      false,
	"blocked_reason":  "",
	"blocked_by":      nil,
	"blocked_at":      nil,
	"suspended_until": nil,
}

// Unblock resets the enforcement record. Purged edges and conversations are
// not restored.
func (c *EnforcementCoordinator) Unblock(ctx context.Context, appID string, userID, reviewerID uuid.UUID) error {
	db := c.db.WithContext(ctx)
	if _, err := loadReviewer(db, appID, reviewerID); err != nil {
		return err
	}

	result := db.Model(&models.User{}).Scopes(tenant.ForTenant(appID)).
		Where("id = ? AND is_blocked = ?", userID, true).
		Updates(clearedRecord)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var n int64
		if err := db.Model(&models.User{}).Scopes(tenant.ForTenant(appID)).Where("id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
		return ErrNotBlocked
	}
	slog.Info("account unblocked", "app_id", appID, "user_id", userID.String(), "reviewer_id", reviewerID.String())
	return nil
}

// LiftExpired clears every suspension that ran out before now, across all
// apps, and returns how many accounts were released.
func (c *EnforcementCoordinator) LiftExpired(ctx context.Context, now time.Time) (int64, error) {
	result := c.db.WithContext(ctx).Model(&models.User{}).
		Where("is_blocked = ? AND suspended_until IS NOT NULL AND suspended_until <= ?", true, now.UTC()).
		Updates(clearedRecord)
	return result.RowsAffected, result.Error
}

// EnsureActive returns ErrAccountBlocked while a block is in force. An
// expired suspension is lifted on the spot.
func (c *EnforcementCoordinator) EnsureActive(ctx context.Context, appID string, userID uuid.UUID) error {
	db := c.db.WithContext(ctx)
	var user models.User
	if err := db.Scopes(tenant.ForTenant(appID)).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	now := c.now().UTC()
	if user.Enforcement.Active(now) {
		return ErrAccountBlocked
	}
	if user.Enforcement.SuspensionExpired(now) {
		err := db.Model(&models.User{}).Scopes(tenant.ForTenant(appID)).
			Where("id = ? AND is_blocked = ? AND suspended_until <= ?", userID, true, now).
			Updates(clearedRecord).Error
		if err != nil {
			slog.Warn("failed to lift expired suspension", "user_id", userID.String(), "error", err)
		}
	}
	return nil
}

func loadReviewer(db *gorm.DB, appID string, reviewerID uuid.UUID) (*models.User, error) {
	var reviewer models.User
	if err := db.Scopes(tenant.ForTenant(appID)).First(&reviewer, "id = ?", reviewerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotReviewer
		}
		return nil, err
	}
	if !reviewer.IsReviewer() || reviewer.Enforcement.Active(time.Now()) {
		return nil, ErrNotReviewer
	}
	return &reviewer, nil
}
