package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/config"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/dto"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/models"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/moderation"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/realtime"
	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testApp = "test-app"

type recordingSessions struct {
	mu       sync.Mutex
	ops      []string
	events   []realtime.Event
	pushErr  error
	closeErr error
}

func (r *recordingSessions) Push(_ context.Context, userID uuid.UUID, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, fmt.Sprintf("push:%s:%s", ev.EventType, userID))
	r.events = append(r.events, ev)
	return r.pushErr
}

func (r *recordingSessions) Disconnect(_ context.Context, userID uuid.UUID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, fmt.Sprintf("disconnect:%s", userID))
	return r.closeErr
}

func (r *recordingSessions) opsFor(userID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, op := range r.ops {
		if len(op) >= 36 && op[len(op)-36:] == userID.String() {
			out = append(out, op)
		}
	}
	return out
}

// countingStore wraps a ContentStore and can fail one step on demand.
type countingStore struct {
	ContentStore
	mu           *sync.Mutex
	counterparts *int
	failOn       string
}

var errInjected = errors.New("injected store failure")

func (c *countingStore) Counterparts(userID uuid.UUID) ([]uuid.UUID, error) {
	c.mu.Lock()
	*c.counterparts++
	c.mu.Unlock()
	return c.ContentStore.Counterparts(userID)
}

func (c *countingStore) SoftDeleteMessagesBetween(a, b uuid.UUID) error {
	if c.failOn == "messages" {
		return errInjected
	}
	return c.ContentStore.SoftDeleteMessagesBetween(a, b)
}

type engine struct {
	db       *gorm.DB
	cfg      config.ModerationConfig
	sessions *recordingSessions
	notify   *NotificationService
	enforcer *EnforcementCoordinator
	reports  *ReportService
	reviews  *ReviewService
}

func newEngine(t *testing.T, stores ContentStoreFactory) *engine {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := config.DefaultModeration()
	sessions := &recordingSessions{}
	notify := NewNotificationService(db, sessions)
	notify.SetDispatch(func(f func()) { f() })
	enforcer := NewEnforcementCoordinator(db, stores, notify, cfg)
	return &engine{
		db:       db,
		cfg:      cfg,
		sessions: sessions,
		notify:   notify,
		enforcer: enforcer,
		reports:  NewReportService(db, stores, enforcer, notify, nil, cfg),
		reviews:  NewReviewService(db, stores, enforcer, notify, cfg),
	}
}

func seedUser(t *testing.T, db *gorm.DB, role string) models.User {
	t.Helper()
	u := models.User{
		AppID:    testApp,
		Email:    uuid.NewString() + "@example.com",
		Password: "x",
		Role:     role,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedPost(t *testing.T, db *gorm.DB, author uuid.UUID) models.Post {
	t.Helper()
	p := models.Post{AppID: testApp, AuthorID: author, Content: "hello"}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedComment(t *testing.T, db *gorm.DB, post uuid.UUID, parent *uuid.UUID, author uuid.UUID) models.Comment {
	t.Helper()
	c := models.Comment{AppID: testApp, PostID: post, ParentID: parent, AuthorID: author, Content: "reply"}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func seedFollow(t *testing.T, db *gorm.DB, follower, following uuid.UUID) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{AppID: testApp, FollowerID: follower, FollowingID: following}).Error)
}

func seedConversation(t *testing.T, db *gorm.DB, a, b uuid.UUID) models.Conversation {
	t.Helper()
	c := models.Conversation{AppID: testApp, UserAID: a, UserBID: b}
	require.NoError(t, db.Create(&c).Error)
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		m := models.Message{AppID: testApp, ConversationID: &c.ID, SenderID: pair[0], ReceiverID: pair[1], Content: "hi"}
		require.NoError(t, db.Create(&m).Error)
	}
	return c
}

func reportReq(t moderation.SubjectType, id string, reason moderation.Reason) *dto.CreateReportRequest {
	return &dto.CreateReportRequest{
		SubjectType: string(t),
		SubjectID:   id,
		Reason:      string(reason),
		Description: "this is clearly against the rules",
	}
}

func (e *engine) file(t *testing.T, reporter uuid.UUID, req *dto.CreateReportRequest) *models.Report {
	t.Helper()
	r, err := e.reports.FileReport(context.Background(), testApp, reporter, req)
	require.NoError(t, err)
	return r
}

func reloadUser(t *testing.T, db *gorm.DB, id uuid.UUID) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u
}

func reloadReport(t *testing.T, db *gorm.DB, id uuid.UUID) models.Report {
	t.Helper()
	var r models.Report
	require.NoError(t, db.First(&r, "id = ?", id).Error)
	return r
}
