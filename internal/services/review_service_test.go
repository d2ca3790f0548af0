package services

import (
	"context"
	"strings"
	"testing"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/realtime"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAccept_BulkResolvesSiblings(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	post := seedPost(t, e.db, seedUser(t, e.db, models.RoleUser).ID)
	req := reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonHateSpeech)

	first := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	second := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	third := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	otherPost := seedPost(t, e.db, reviewer.ID)
	unrelated := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectPost, otherPost.ID.String(), moderation.ReasonSpam))

	accepted, err := e.reviews.Accept(ctx, testApp, first.ID, reviewer.ID, &dto.AcceptReportRequest{
		ActionTaken: moderation.ActionWarning,
		Note:        "confirmed hate speech",
	})
	require.NoError(t, err)
	assert.Equal(t, moderation.StatusAccepted, accepted.Status)
	assert.True(t, accepted.Resolved)
	require.NotNil(t, accepted.ReviewerID)
	assert.Equal(t, reviewer.ID, *accepted.ReviewerID)
	assert.NotNil(t, accepted.ReviewedAt)

	for _, id := range []uuid.UUID{second.ID, third.ID} {
		r := reloadReport(t, e.db, id)
		assert.Equal(t, moderation.StatusResolved, r.Status)
		assert.True(t, r.Resolved)
		assert.Contains(t, r.AdminNote, first.ID.String())
	}
	assert.Equal(t, moderation.StatusPending, reloadReport(t, e.db, unrelated.ID).Status)

	var reviewed int64
	e.db.Model(&models.Notification{}).Where("type = ?", models.NotificationReportReviewed).Count(&reviewed)
	assert.Equal(t, int64(3), reviewed)
}

func TestAccept_SiblingClosedMeanwhileKeepsItsOutcome(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	post := seedPost(t, e.db, seedUser(t, e.db, models.RoleUser).ID)
	req := reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonHateSpeech)

	first := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	second := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)
	third := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)

	// Another reviewer declines second after the siblings were read but
	// before the first sibling write lands.
	fired := false
	require.NoError(t, e.db.Callback().Update().Before("gorm:update").Register("test:decline_sibling", func(db *gorm.DB) {
		updates, ok := db.Statement.Dest.(map[string]interface{})
		if fired || !ok {
			return
		}
		if note, _ := updates["admin_note"].(string); !strings.HasPrefix(note, "Resolved together") {
			return
		}
		fired = true
		require.NoError(t, db.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE reports SET status = ?, resolved = ?, admin_note = ? WHERE id = ?",
				moderation.StatusDeclined, true, "declined by another reviewer", second.ID).Error)
	}))

	_, err := e.reviews.Accept(ctx, testApp, first.ID, reviewer.ID, &dto.AcceptReportRequest{
		ActionTaken: moderation.ActionWarning,
		Note:        "confirmed hate speech",
	})
	require.NoError(t, err)
	require.True(t, fired)

	kept := reloadReport(t, e.db, second.ID)
	assert.Equal(t, moderation.StatusDeclined, kept.Status)
	assert.Equal(t, "declined by another reviewer", kept.AdminNote)
	assert.Nil(t, kept.ReviewerID)
	assert.Equal(t, moderation.StatusResolved, reloadReport(t, e.db, third.ID).Status)

	var reviewed int64
	e.db.Model(&models.Notification{}).Where("type = ?", models.NotificationReportReviewed).Count(&reviewed)
	assert.Equal(t, int64(2), reviewed)
}

func TestAccept_MessageReportsAreNotBulkResolved(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleAdmin)
	a := seedUser(t, e.db, models.RoleUser)
	b := seedUser(t, e.db, models.RoleUser)
	seedConversation(t, e.db, a.ID, b.ID)
	var msg models.Message
	require.NoError(t, e.db.Where("sender_id = ?", a.ID).First(&msg).Error)

	req := reportReq(moderation.SubjectMessage, msg.ID.String(), moderation.ReasonThreats)
	first := e.file(t, b.ID, req)
	second := e.file(t, seedUser(t, e.db, models.RoleUser).ID, req)

	_, err := e.reviews.Accept(ctx, testApp, first.ID, reviewer.ID, &dto.AcceptReportRequest{ActionTaken: moderation.ActionWarning})
	require.NoError(t, err)
	assert.Equal(t, moderation.StatusPending, reloadReport(t, e.db, second.ID).Status)
}

func TestDecline_RequiresNote(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	post := seedPost(t, e.db, reviewer.ID)
	r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonSpam))

	for _, note := range []string{"", "   ", "no"} {
		_, err := e.reviews.Decline(ctx, testApp, r.ID, reviewer.ID, note)
		assert.ErrorIs(t, err, ErrValidation)
	}
	stored := reloadReport(t, e.db, r.ID)
	assert.Equal(t, moderation.StatusPending, stored.Status)
	assert.False(t, stored.Resolved)

	declined, err := e.reviews.Decline(ctx, testApp, r.ID, reviewer.ID, "not a violation")
	require.NoError(t, err)
	assert.Equal(t, moderation.StatusDeclined, declined.Status)
	assert.True(t, declined.Resolved)
	assert.Equal(t, moderation.ActionNone, declined.ActionTaken)
}

func TestTerminalReportsAreAlreadyProcessed(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	other := seedUser(t, e.db, models.RoleAdmin)
	post := seedPost(t, e.db, reviewer.ID)
	r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonNudity))

	_, err := e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{ActionTaken: moderation.ActionWarning, Note: "first decision"})
	require.NoError(t, err)
	before := reloadReport(t, e.db, r.ID)

	_, err = e.reviews.Accept(ctx, testApp, r.ID, other.ID, &dto.AcceptReportRequest{ActionTaken: moderation.ActionContentRemoved, Note: "second decision"})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = e.reviews.Decline(ctx, testApp, r.ID, other.ID, "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = e.reviews.MarkReviewing(ctx, testApp, r.ID, other.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	after := reloadReport(t, e.db, r.ID)
	assert.Equal(t, before.AdminNote, after.AdminNote)
	assert.Equal(t, before.ActionTaken, after.ActionTaken)
	assert.Equal(t, *before.ReviewerID, *after.ReviewerID)
	assert.True(t, before.ReviewedAt.Equal(*after.ReviewedAt))

	var p models.Post
	require.NoError(t, e.db.First(&p, "id = ?", post.ID).Error)
	assert.Equal(t, moderation.ContentApproved, p.ModerationStatus)
}

func TestMarkReviewing(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	post := seedPost(t, e.db, reviewer.ID)
	r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonScam))

	claimed, err := e.reviews.MarkReviewing(ctx, testApp, r.ID, reviewer.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.StatusReviewing, claimed.Status)
	assert.False(t, claimed.Resolved)

	_, err = e.reviews.MarkReviewing(ctx, testApp, r.ID, reviewer.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	declined, err := e.reviews.Decline(ctx, testApp, r.ID, reviewer.ID, "legit listing")
	require.NoError(t, err)
	assert.Equal(t, moderation.StatusDeclined, declined.Status)
}

func TestReviewGuards(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	plain := seedUser(t, e.db, models.RoleUser)
	post := seedPost(t, e.db, plain.ID)
	r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonSpam))

	_, err := e.reviews.Accept(ctx, testApp, r.ID, plain.ID, &dto.AcceptReportRequest{ActionTaken: moderation.ActionWarning})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{ActionTaken: "shadowban"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.reviews.Accept(ctx, testApp, uuid.New(), reviewer.ID, &dto.AcceptReportRequest{ActionTaken: moderation.ActionWarning})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAlreadyProcessed)

	_, err = e.reviews.Accept(ctx, "other-app", r.ID, reviewer.ID, &dto.AcceptReportRequest{ActionTaken: moderation.ActionWarning})
	assert.ErrorIs(t, err, ErrForbidden, "reviewer belongs to another app")
}

func TestAccept_RemoveContent(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	author := seedUser(t, e.db, models.RoleUser)

	t.Run("flag only", func(t *testing.T) {
		post := seedPost(t, e.db, author.ID)
		r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonNudity))
		_, err := e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{
			ActionTaken: moderation.ActionWarning, RemoveContent: true,
		})
		require.NoError(t, err)
		var p models.Post
		require.NoError(t, e.db.First(&p, "id = ?", post.ID).Error)
		assert.Equal(t, moderation.ContentRemoved, p.ModerationStatus)
	})

	t.Run("hard delete post with comments", func(t *testing.T) {
		post := seedPost(t, e.db, author.ID)
		root := seedComment(t, e.db, post.ID, nil, author.ID)
		seedComment(t, e.db, post.ID, &root.ID, author.ID)
		r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectPost, post.ID.String(), moderation.ReasonViolence))

		_, err := e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{
			ActionTaken: moderation.ActionContentRemoved, RemoveContent: true,
		})
		require.NoError(t, err)
		var posts, comments int64
		e.db.Model(&models.Post{}).Where("id = ?", post.ID).Count(&posts)
		e.db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&comments)
		assert.Zero(t, posts)
		assert.Zero(t, comments)
	})

	t.Run("hard delete comment subtree", func(t *testing.T) {
		post := seedPost(t, e.db, author.ID)
		keep := seedComment(t, e.db, post.ID, nil, author.ID)
		root := seedComment(t, e.db, post.ID, nil, author.ID)
		child := seedComment(t, e.db, post.ID, &root.ID, author.ID)
		seedComment(t, e.db, post.ID, &child.ID, author.ID)
		r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectComment, root.ID.String(), moderation.ReasonBullying))

		_, err := e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{
			ActionTaken: moderation.ActionContentRemoved, RemoveContent: true,
		})
		require.NoError(t, err)
		var left []models.Comment
		require.NoError(t, e.db.Where("post_id = ?", post.ID).Find(&left).Error)
		require.Len(t, left, 1)
		assert.Equal(t, keep.ID, left[0].ID)
	})
}

func TestAccept_BlockUser(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleAdmin)
	target := seedUser(t, e.db, models.RoleUser)
	friend := seedUser(t, e.db, models.RoleUser)
	seedFollow(t, e.db, friend.ID, target.ID)
	r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectUser, target.ID.String(), moderation.ReasonHarassment))

	_, err := e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{
		ActionTaken: moderation.ActionAccountBanned, BlockUser: true,
	})
	require.NoError(t, err)

	u := reloadUser(t, e.db, target.ID)
	assert.True(t, u.Enforcement.IsBlocked)
	require.NotNil(t, u.Enforcement.BlockedBy)
	assert.Equal(t, reviewer.ID, *u.Enforcement.BlockedBy)
	assert.Nil(t, u.Enforcement.SuspendedUntil)
	assert.Equal(t, defaultBlockReason, u.Enforcement.BlockedReason)
	assert.Zero(t, countFollows(t, e.db, target.ID))

	assert.Equal(t, []string{
		"push:" + realtime.EventAccountBlocked + ":" + target.ID.String(),
		"disconnect:" + target.ID.String(),
	}, filterOps(e.sessions.opsFor(target.ID), realtime.EventNotification))

	var blockedEv realtime.Event
	for _, ev := range e.sessions.events {
		if ev.EventType == realtime.EventAccountBlocked {
			blockedEv = ev
		}
	}
	assert.Equal(t, target.ID, blockedEv.RecipientID)
	assert.Equal(t, string(moderation.ActionAccountBanned), blockedEv.ActionTaken)
	assert.NotNil(t, blockedEv.BlockedAt)
	assert.Nil(t, blockedEv.ExpiresAt)
}

func TestAccept_BlockAdminRollsBack(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()
	reviewer := seedUser(t, e.db, models.RoleModerator)
	admin := seedUser(t, e.db, models.RoleAdmin)
	r := e.file(t, seedUser(t, e.db, models.RoleUser).ID, reportReq(moderation.SubjectUser, admin.ID.String(), moderation.ReasonSpam))

	_, err := e.reviews.Accept(ctx, testApp, r.ID, reviewer.ID, &dto.AcceptReportRequest{
		ActionTaken: moderation.ActionAccountBanned, BlockUser: true, Note: "admin abusing tools",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	stored := reloadReport(t, e.db, r.ID)
	assert.Equal(t, moderation.StatusPending, stored.Status)
	assert.False(t, stored.Resolved)
	assert.False(t, reloadUser(t, e.db, admin.ID).Enforcement.IsBlocked)
}
