package services

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_Sweep(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := seedUser(t, e.db, models.RoleUser)
	running := seedUser(t, e.db, models.RoleUser)
	reviewer := seedUser(t, e.db, models.RoleAdmin)
	manual := seedUser(t, e.db, models.RoleUser)

	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", expired.ID).Updates(map[string]interface{}{
		"is_blocked": true, "suspended_until": now.Add(-time.Minute),
	}).Error)
	_, err := e.enforcer.Suspend(ctx, testApp, running.ID, time.Hour, "reports")
	require.NoError(t, err)
	_, err = e.enforcer.Block(ctx, testApp, manual.ID, reviewer.ID, "indefinite ban for fraud")
	require.NoError(t, err)

	post := seedPost(t, e.db, reviewer.ID)
	req := reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonSpam)
	old := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	_, err = e.reviews.Decline(ctx, testApp, old.ID, reviewer.ID, "nothing wrong here")
	require.NoError(t, err)
	oldPending := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	recent := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	_, err = e.reviews.Decline(ctx, testApp, recent.ID, reviewer.ID, "nothing wrong here")
	require.NoError(t, err)

	past := now.Add(-e.cfg.ReportRetention - time.Hour)
	require.NoError(t, e.db.Model(&models.Report{}).Where("id IN ?", []interface{}{old.ID, oldPending.ID}).
		UpdateColumn("created_at", past).Error)

	sweeper := NewSweeper(e.db, e.enforcer, e.cfg)
	lifted, archived := sweeper.Sweep(ctx, now)
	assert.Equal(t, int64(1), lifted)
	assert.Equal(t, int64(1), archived)

	assert.False(t, reloadUser(t, e.db, expired.ID).Enforcement.IsBlocked)
	assert.True(t, reloadUser(t, e.db, running.ID).Enforcement.IsBlocked)
	assert.True(t, reloadUser(t, e.db, manual.ID).Enforcement.IsBlocked)

	var ids []string
	require.NoError(t, e.db.Model(&models.Report{}).Pluck("id", &ids).Error)
	assert.ElementsMatch(t, []string{oldPending.ID.String(), recent.ID.String()}, ids)
}
