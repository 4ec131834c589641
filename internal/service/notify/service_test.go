package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratekl/api/internal/activity"
	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/push"
	"github.com/ratekl/api/internal/repository"
	"github.com/ratekl/api/internal/repository/multitenant"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/internal/store/memstore"
	"github.com/ratekl/api/internal/tenant"
	"github.com/ratekl/api/pkg/logger"
)

type directory map[string]domain.Domain

func (d directory) GetDomain(_ context.Context, hostname string) (*domain.Domain, error) {
	entry, ok := d[hostname]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

type sent struct {
	msg      push.Message
	platform push.Platform
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Send(_ context.Context, msg push.Message, platform push.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{msg: msg, platform: platform})
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

type fixture struct {
	ctx     context.Context
	data    *multitenant.Repository[domain.AppData]
	members *multitenant.Repository[domain.AppMember]
	info    *multitenant.Repository[domain.AppInfo]
	tracker *activity.Tracker
	sender  *recorder
	d       *Dispatcher
}

func newFixture(t *testing.T, pushBasic bool) *fixture {
	t.Helper()
	cache := multitenant.NewModelCache(memstore.New(), directory{
		"acme.com": {Hostname: "acme.com", Database: "acme_db", Active: true},
	}, domain.Schemas(), logger.Nop())
	f := &fixture{
		ctx:     tenant.WithKey(context.Background(), "acme.com"),
		data:    multitenant.NewRepository[domain.AppData](cache, domain.AppDataSchema),
		members: multitenant.NewRepository[domain.AppMember](cache, domain.AppMemberSchema),
		info:    multitenant.NewRepository[domain.AppInfo](cache, domain.AppInfoSchema),
		tracker: activity.NewTracker(),
		sender:  &recorder{},
	}
	f.d = New(f.data, f.members, f.info, f.tracker, f.sender, logger.Nop(), Config{Workers: 2, QueueSize: 8, Timeout: time.Second}, nil)

	_, err := f.info.Create(f.ctx, domain.AppInfo{
		Name:  "draft",
		Draft: domain.Bool(true),
		Info: map[string]any{
			"content":  map[string]any{"title": "Acme Club"},
			"features": map[string]any{FeaturePushBasic: pushBasic},
		},
	})
	require.NoError(t, err)

	_, err = f.members.CreateAll(f.ctx, []domain.AppMember{
		{UserName: "alice", Email: "alice@acme.com", PreferredName: "Al"},
		{UserName: "bob", Email: "bob@acme.com", MemberData: map[string]any{"pushToken": "tok-bob", "pushType": "ios"}},
		{UserName: "carol", FirstName: "Carol", LastName: "King", MemberData: map[string]any{"pushToken": "tok-carol", "pushType": "android"}},
		{UserName: "dave"},
	})
	require.NoError(t, err)
	return f
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) post(t *testing.T, name, typ string, created time.Time, data map[string]any) domain.AppData {
	t.Helper()
	record, err := f.data.Create(f.ctx, domain.AppData{Name: name, Type: typ, Owner: "alice", Data: data, CreatedAt: created})
	require.NoError(t, err)
	return record
}

func alice() domain.Principal {
	return domain.Principal{ID: "alice"}
}

func TestPushDisabledSendsNothing(t *testing.T) {
	f := newFixture(t, false)
	record := f.post(t, "p1", domain.TypePost, day(2), nil)

	f.d.Process(Event{Tenant: "acme.com", Record: record, Actor: alice()})

	assert.Empty(t, f.sender.all())
	stored, err := f.data.FindByID(f.ctx, "p1", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, domain.TypePost, stored.Type)
}

func TestPostNotifiesEveryOtherMemberWithToken(t *testing.T) {
	f := newFixture(t, true)
	record := f.post(t, "p1", domain.TypePost, day(2), nil)

	f.d.Process(Event{Tenant: "acme.com", Record: record, Actor: alice()})

	got := f.sender.all()
	require.Len(t, got, 2)
	byToken := map[string]sent{}
	for _, s := range got {
		byToken[s.msg.Token] = s
	}
	bob := byToken["tok-bob"]
	assert.Equal(t, push.IOS, bob.platform)
	assert.Equal(t, "Acme Club", bob.msg.Title)
	assert.Equal(t, "New message from Al", bob.msg.Body)
	assert.Equal(t, map[string]string{"postId": "p1"}, bob.msg.Data)
	assert.Equal(t, 0, bob.msg.Badge)
	assert.Equal(t, push.Android, byToken["tok-carol"].platform)
}

func TestCommentUsesItemThread(t *testing.T) {
	f := newFixture(t, true)
	record := f.post(t, "c1", domain.TypeComment, day(2), map[string]any{"itemName": "p1"})

	f.d.Process(Event{Tenant: "acme.com", Record: record, Actor: alice()})

	got := f.sender.all()
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Equal(t, "New comment from Al", s.msg.Body)
		assert.Equal(t, "p1", s.msg.ThreadID)
		assert.Equal(t, map[string]string{"commentId": "c1"}, s.msg.Data)
	}
}

func TestReferralNotifiesOnlyRecipient(t *testing.T) {
	f := newFixture(t, true)
	record := f.post(t, "r1", domain.TypeReferral, day(2), map[string]any{
		"recipient": "carol",
		"firstName": "Jane",
		"lastName":  "Doe",
	})

	f.d.Process(Event{Tenant: "acme.com", Record: record, Actor: alice()})

	got := f.sender.all()
	require.Len(t, got, 1)
	assert.Equal(t, "tok-carol", got[0].msg.Token)
	assert.Equal(t, "You have a new referral from Al", got[0].msg.Body)
	assert.Equal(t, "Jane Doe", got[0].msg.ThreadID)
}

func TestReferralWithoutRecipientIsSkipped(t *testing.T) {
	f := newFixture(t, true)
	record := f.post(t, "r1", domain.TypeReferral, day(2), map[string]any{"message": "hi"})

	f.d.Process(Event{Tenant: "acme.com", Record: record, Actor: alice()})

	assert.Empty(t, f.sender.all())
}

func TestBadgeCountsUnreadAndAdvancesLastSeen(t *testing.T) {
	f := newFixture(t, true)
	f.tracker.SetActivity("acme.com", "bob@acme.com", activity.KindPost, "2024-01-01T00:00:00.000Z")
	f.post(t, "p1", domain.TypePost, day(2), nil)
	f.post(t, "c1", domain.TypeComment, day(3), map[string]any{"itemName": "p1"})
	f.post(t, "x1", "note", day(4), nil)
	record := f.post(t, "p2", domain.TypePost, day(5), nil)

	f.d.Process(Event{Tenant: "acme.com", Record: record, Actor: alice()})

	var bob sent
	for _, s := range f.sender.all() {
		if s.msg.Token == "tok-bob" {
			bob = s
		}
	}
	assert.Equal(t, 3, bob.msg.Badge)
	assert.Equal(t, "2024-01-05T00:00:00.000Z", f.tracker.GetActivityByUser("acme.com", "bob@acme.com", activity.KindPost))
	assert.Empty(t, f.tracker.GetActivityByUser("acme.com", "carol", activity.KindPost))
}

func TestBadgeDoesNotRecountNewestSubMillisecondPost(t *testing.T) {
	f := newFixture(t, true)
	f.tracker.SetActivity("acme.com", "bob@acme.com", activity.KindPost, "2024-01-01T00:00:00.000Z")
	f.post(t, "p1", domain.TypePost, time.Date(2024, 1, 5, 0, 0, 0, 123456789, time.UTC), nil)

	bob, err := f.members.FindByID(f.ctx, "bob", store.Filter{})
	require.NoError(t, err)

	first, err := f.d.badge(f.ctx, "acme.com", bob)
	require.NoError(t, err)
	second, err := f.d.badge(f.ctx, "acme.com", bob)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	assert.Equal(t, "2024-01-05T00:00:00.123456789Z", f.tracker.GetActivityByUser("acme.com", "bob@acme.com", activity.KindPost))
}

func TestUnknownActorIsLoggedNotPanicking(t *testing.T) {
	f := newFixture(t, true)
	record := f.post(t, "p1", domain.TypePost, day(2), nil)

	assert.NotPanics(t, func() {
		f.d.Process(Event{Tenant: "acme.com", Record: record, Actor: domain.Principal{ID: "ghost"}})
	})
	assert.Empty(t, f.sender.all())
}

func TestSubmitIgnoresOtherTypesAndDropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := New(nil, nil, nil, activity.NewTracker(), &recorder{}, logger.Nop(), Config{QueueSize: 1}, reg)

	d.Submit(Event{Record: domain.AppData{Type: "note"}})
	d.Submit(Event{Record: domain.AppData{Type: domain.TypePost}})
	d.Submit(Event{Record: domain.AppData{Type: domain.TypePost}})

	assert.Equal(t, 1, len(d.queue))
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.events.WithLabelValues("queued")))
	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.events.WithLabelValues("dropped")))
}

func TestRunProcessesQueuedEvents(t *testing.T) {
	f := newFixture(t, true)
	record := f.post(t, "p1", domain.TypePost, day(2), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.d.Run(ctx)
		close(done)
	}()

	f.d.Submit(Event{Tenant: "acme.com", Record: record, Actor: alice()})

	require.Eventually(t, func() bool { return len(f.sender.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
