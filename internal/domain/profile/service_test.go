package profile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/platform/errors"
)

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Config{}, Dependencies{Fetcher: &scriptedFetcher{}})
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, err = NewService(Config{}, Dependencies{Store: kv.NewMemory(kv.Config{})})
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestService_UpdateThenClearLeavesListenersEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var a, b recorder
	f.svc.Subscribe(a.listen)
	f.svc.Subscribe(b.listen)

	require.True(t, f.svc.Update(ctx, "https://img/x.jpg").Updated())
	require.True(t, f.svc.Clear(ctx).Updated())

	assert.Equal(t, Snapshot{}, a.last())
	assert.Equal(t, Snapshot{}, b.last())
	assert.Equal(t, Snapshot{}, f.svc.Current())
}

func TestService_LoadFromRemoteDistinctTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const u = "https://img/remote.jpg"
	f.fetcher.respond(Profile{Photo: u, HasPhoto: true, Name: "Ana", HasName: true}, nil)

	var rec recorder
	f.svc.Subscribe(rec.listen)

	first, res := f.svc.LoadFromRemote(ctx)
	require.NoError(t, res.Err)
	assert.True(t, res.Updated())
	second, _ := f.svc.LoadFromRemote(ctx)

	seen := rec.all()
	require.Len(t, seen, 2)
	for _, s := range seen {
		assert.True(t, strings.HasPrefix(s.Photo, u+"?t="), s.Photo)
		assert.Equal(t, "Ana", s.Name)
	}
	assert.Equal(t, first, seen[0].Photo)
	assert.Equal(t, second, seen[1].Photo)
	assert.NotEqual(t, seen[0].Photo, seen[1].Photo)

	photo, ok, err := f.store.Get(ctx, PhotoKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, second, photo)
	name, _, _ := f.store.Get(ctx, NameKey)
	assert.Equal(t, "Ana", name)
}

func TestService_LoadFromRemoteKeepsURLPrefix(t *testing.T) {
	for _, u := range []string{
		"https://img/x.jpg#v2",
		"https://img/x.jpg?t=old",
		"https://img/x.jpg?a=1",
	} {
		t.Run(u, func(t *testing.T) {
			f := newFixture(t)
			f.fetcher.respond(Profile{Photo: u, HasPhoto: true}, nil)

			var rec recorder
			f.svc.Subscribe(rec.listen)

			first, res := f.svc.LoadFromRemote(context.Background())
			require.NoError(t, res.Err)
			second, _ := f.svc.LoadFromRemote(context.Background())

			assert.True(t, strings.HasPrefix(first, u), first)
			assert.True(t, strings.HasPrefix(rec.last().Photo, u), rec.last().Photo)
			assert.NotEqual(t, first, second)
		})
	}
}

func TestService_ClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.Update(ctx, "https://img/x.jpg")

	var rec recorder
	f.svc.Subscribe(rec.listen)

	f.svc.Clear(ctx)
	once := f.svc.Current()
	keysOnce, err := f.store.Keys(ctx)
	require.NoError(t, err)

	f.svc.Clear(ctx)
	keysTwice, err := f.store.Keys(ctx)
	require.NoError(t, err)

	assert.Equal(t, once, f.svc.Current())
	assert.Equal(t, Snapshot{}, f.svc.Current())
	assert.Empty(t, keysOnce)
	assert.Equal(t, keysOnce, keysTwice)
	assert.Equal(t, []Snapshot{{}, {}}, rec.all())
}

func TestService_NetworkErrorKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Set(ctx, PhotoKey, "https://img/cached.jpg?t=1"))
	require.NoError(t, f.store.Set(ctx, NameKey, "Ana"))

	cached, res := f.svc.LoadFromCache(ctx)
	require.True(t, res.Updated())

	var rec recorder
	f.svc.Subscribe(rec.listen)

	photo, res := f.svc.LoadFromRemote(ctx)
	assert.Empty(t, photo)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.True(t, errors.IsKind(res.Err, errors.KindNetwork))
	assert.Equal(t, cached, f.svc.Current().Photo)
	assert.Empty(t, rec.all(), "failed refresh must not publish")

	n, err := testutil.GatherAndCount(f.registry, "profile_sync_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_PartialProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.Update(ctx, "https://img/old.jpg")
	f.fetcher.respond(Profile{Name: "Bia", HasName: true}, nil)

	var rec recorder
	f.svc.Subscribe(rec.listen)

	photo, res := f.svc.LoadFromRemote(ctx)
	require.NoError(t, res.Err)
	assert.Empty(t, photo)
	assert.Equal(t, Snapshot{Name: "Bia"}, rec.last())

	_, ok, err := f.store.Get(ctx, PhotoKey)
	require.NoError(t, err)
	assert.False(t, ok, "absent photo removes the key")
}

func TestService_ShapeErrorIsSuppressed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.Update(ctx, "https://img/keep.jpg")
	before := f.svc.Current()

	_, perr := ParseProfile([]byte(`{"id":1}`))
	f.fetcher.respond(Profile{}, perr)

	_, res := f.svc.LoadFromRemote(ctx)
	assert.False(t, res.Updated())
	assert.True(t, errors.IsKind(res.Err, errors.KindShape))
	assert.Equal(t, before, f.svc.Current())
}

func TestService_LoadFromCache(t *testing.T) {
	ctx := context.Background()

	t.Run("cold cache publishes nothing", func(t *testing.T) {
		f := newFixture(t)
		var rec recorder
		f.svc.Subscribe(rec.listen)

		photo, res := f.svc.LoadFromCache(ctx)
		assert.Empty(t, photo)
		assert.Equal(t, OutcomeUnchanged, res.Outcome)
		assert.NoError(t, res.Err)
		assert.Empty(t, rec.all())
	})

	t.Run("cached photo is published", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Set(ctx, PhotoKey, "https://img/c.jpg?t=5"))
		var rec recorder
		f.svc.Subscribe(rec.listen)

		photo, res := f.svc.LoadFromCache(ctx)
		assert.Equal(t, "https://img/c.jpg?t=5", photo)
		assert.True(t, res.Updated())
		assert.Equal(t, Snapshot{Photo: photo}, rec.last())
	})
}

func TestService_PersistenceFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	svc, err := NewService(Config{}, Dependencies{
		Store:   failingStore{Store: f.store, readErr: true},
		Fetcher: f.fetcher,
	})
	require.NoError(t, err)

	var rec recorder
	svc.Subscribe(rec.listen)

	photo, res := svc.LoadFromCache(ctx)
	assert.Empty(t, photo)
	assert.True(t, errors.IsKind(res.Err, errors.KindStorage))

	res = svc.Update(ctx, "https://img/x.jpg")
	assert.True(t, res.Updated(), "memory and listeners still change")
	assert.True(t, errors.IsKind(res.Err, errors.KindStorage))
	assert.True(t, strings.HasPrefix(rec.last().Photo, "https://img/x.jpg?t="))

	assert.Equal(t, Snapshot{}, svc.cache.ReadFromPersistent(ctx))
	assert.NotPanics(t, func() { svc.cache.WriteToPersistent(ctx, Snapshot{Photo: "p"}) })
}

func TestService_ListenerPanicDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var before, after recorder
	f.svc.Subscribe(before.listen)
	f.svc.Subscribe(func(Snapshot) { panic("broken consumer") })
	f.svc.Subscribe(after.listen)

	require.NotPanics(t, func() { f.svc.Update(ctx, "https://img/x.jpg") })
	assert.NotEmpty(t, before.last().Photo)
	assert.NotEmpty(t, after.last().Photo)

	assert.Equal(t, float64(1), metricValue(t, f, "profile_listener_panics_total"))
}

func TestService_UpdateKeepsNameAndEmptyURLRemovesPhoto(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fetcher.respond(Profile{Photo: "https://img/a.jpg", HasPhoto: true, Name: "Ana", HasName: true}, nil)
	f.svc.LoadFromRemote(ctx)

	f.svc.Update(ctx, "https://img/b.jpg")
	assert.Equal(t, "Ana", f.svc.Current().Name)
	assert.True(t, strings.HasPrefix(f.svc.Current().Photo, "https://img/b.jpg?t="))

	f.svc.Update(ctx, "")
	assert.Equal(t, Snapshot{Name: "Ana"}, f.svc.Current())
	_, ok, _ := f.store.Get(ctx, PhotoKey)
	assert.False(t, ok)
}

func TestService_SubscribeUnsubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var rec recorder
	unsubscribe := f.svc.Subscribe(rec.listen)
	assert.Equal(t, 1, f.svc.Listeners())

	unsubscribe()
	unsubscribe()
	f.svc.Update(ctx, "https://img/x.jpg")

	assert.Equal(t, 0, f.svc.Listeners())
	assert.Empty(t, rec.all())
}

func TestService_RunDisabled(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Run(context.Background()))
	assert.Zero(t, f.fetcher.Calls())
}

func TestService_RunRefreshesPeriodically(t *testing.T) {
	f := newFixture(t)
	f.svc.interval = 5 * time.Millisecond
	f.fetcher.respond(Profile{Name: "Ana", HasName: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	require.Eventually(t, func() bool { return f.fetcher.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, "Ana", f.svc.Current().Name)
}

func metricValue(t *testing.T, f *fixture, name string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}
