package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	user uuid.UUID
	cap  int

	mu     sync.Mutex
	events []Event
	closed string
	closes int
}

func (f *fakeSession) UserID() uuid.UUID { return f.user }

func (f *fakeSession) Send(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closes > 0 || (f.cap > 0 && len(f.events) >= f.cap) {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeSession) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closed = reason
}

func TestHub_PushReachesEverySessionOfUser(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	a := &fakeSession{user: user}
	b := &fakeSession{user: user}
	other := &fakeSession{user: uuid.New()}
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	require.NoError(t, hub.Push(context.Background(), user, Event{EventType: EventNotification}))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Empty(t, other.events)
}

func TestHub_PushToOfflineUserIsNoop(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.Push(context.Background(), uuid.New(), Event{EventType: EventNotification}))
}

func TestHub_DisconnectClosesAllSessions(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	a := &fakeSession{user: user}
	b := &fakeSession{user: user}
	hub.Register(a)
	hub.Register(b)

	require.NoError(t, hub.Push(context.Background(), user, Event{EventType: EventAccountBlocked, Reason: "spam"}))
	n := hub.disconnect(user, "account blocked")

	assert.Equal(t, 2, n)
	assert.Equal(t, 0, hub.Count(user))
	for _, s := range []*fakeSession{a, b} {
		require.Len(t, s.events, 1)
		assert.Equal(t, EventAccountBlocked, s.events[0].EventType)
		assert.Equal(t, "account blocked", s.closed)
		assert.Equal(t, 1, s.closes)
	}

	// A second disconnect has nothing left to close.
	assert.Equal(t, 0, hub.disconnect(user, "again"))
	assert.Equal(t, 1, a.closes)
}

func TestHub_SlowSessionIsDropped(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	slow := &fakeSession{user: user, cap: 1}
	hub.Register(slow)

	ctx := context.Background()
	require.NoError(t, hub.Push(ctx, user, Event{EventType: EventNotification}))
	require.NoError(t, hub.Push(ctx, user, Event{EventType: EventNotification}))

	assert.Equal(t, 0, hub.Count(user))
	assert.Equal(t, 1, slow.closes)
}

func TestHub_ConcurrentRegisterAndDisconnect(t *testing.T) {
	hub := NewHub()
	user := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Register(&fakeSession{user: user})
		}()
		go func() {
			defer wg.Done()
			hub.Disconnect(context.Background(), user, "blocked")
		}()
	}
	wg.Wait()
	hub.disconnect(user, "blocked")
	assert.Equal(t, 0, hub.Count(user))
}

func TestBroker_ApplyRoutesToHub(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	s := &fakeSession{user: user}
	hub.Register(s)
	b := NewBroker(nil, hub)
	ctx := context.Background()

	require.NoError(t, b.apply(ctx, []byte(`{"kind":"push","user_id":"`+user.String()+`","event":{"eventType":"notification"}}`)))
	require.NoError(t, b.apply(ctx, []byte(`{"kind":"disconnect","user_id":"`+user.String()+`","reason":"account blocked"}`)))

	assert.Len(t, s.events, 1)
	assert.Equal(t, "account blocked", s.closed)
	assert.Error(t, b.apply(ctx, []byte(`{"kind":"bogus"}`)))
	assert.Error(t, b.apply(ctx, []byte(`not json`)))
}

func TestEvent_AccountBlockedAlwaysCarriesExpiresAt(t *testing.T) {
	now := time.Now().UTC()
	raw, err := json.Marshal(Event{RecipientID: uuid.New(), EventType: EventAccountBlocked, Reason: "spam", BlockedAt: &now})
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Contains(t, fields, "expiresAt")
	assert.Equal(t, "null", string(fields["expiresAt"]))

	until := now.Add(time.Hour)
	raw, err = json.Marshal(Event{EventType: EventAccountBlocked, ExpiresAt: &until})
	require.NoError(t, err)
	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	require.NotNil(t, back.ExpiresAt)
	assert.True(t, until.Equal(*back.ExpiresAt))

	raw, err = json.Marshal(Event{EventType: EventNotification})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "expiresAt")
}
