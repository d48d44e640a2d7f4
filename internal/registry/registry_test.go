package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/bayleafwalker/bindery-scr/internal/filter"
	"github.com/bayleafwalker/bindery-scr/internal/reference"
)

type recorder struct {
	mu     sync.Mutex
	events []reference.ProviderEvent
}

func (r *recorder) record(ev reference.ProviderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []reference.ProviderEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reference.ProviderEventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestPublish_Validation(t *testing.T) {
	r := New(testr.New(t))

	_, err := r.Publish("a", nil)
	require.ErrorIs(t, err, ErrInvalidPublication)

	_, err = r.Publish("a", []string{"foo.Bar"}, WithScope("weird"))
	require.ErrorIs(t, err, ErrInvalidPublication)
}

func TestPublish_StandardProperties(t *testing.T) {
	r := New(testr.New(t))

	reg, err := r.Publish("a", []string{"foo.Bar"},
		WithRanking(7),
		WithScope(reference.ProviderScopePrototype),
		WithProperties(filter.Properties{"service.id": 999, "color": "red"}),
	)
	require.NoError(t, err)

	md, ok := r.Metadata(reg.ID())
	require.True(t, ok)
	require.Equal(t, uint64(reg.ID()), md.Properties[reference.PropServiceID])
	require.Equal(t, 7, md.Properties[reference.PropServiceRanking])
	require.Equal(t, "prototype", md.Properties[reference.PropServiceScope])
	require.Equal(t, []string{"foo.Bar"}, md.Properties[reference.PropObjectClass])
	require.Equal(t, "red", md.Properties["color"])
	require.Equal(t, reference.ConfigurationID("a"), md.Owner)

	// returned metadata is a copy
	md.Properties["color"] = "blue"
	again, _ := r.Metadata(reg.ID())
	require.Equal(t, "red", again.Properties["color"])
}

func TestFindMatching_Ordering(t *testing.T) {
	r := New(testr.New(t))

	low, err := r.Publish("a", []string{"foo.Bar"}, WithRanking(1))
	require.NoError(t, err)
	high, err := r.Publish("b", []string{"foo.Bar"}, WithRanking(10))
	require.NoError(t, err)
	tie, err := r.Publish("c", []string{"foo.Bar"}, WithRanking(1))
	require.NoError(t, err)
	_, err = r.Publish("d", []string{"other.Iface"}, WithRanking(100))
	require.NoError(t, err)

	got := r.FindMatching("foo.Bar", "(objectclass=foo.Bar)")
	require.Equal(t, []reference.ProviderID{high.ID(), low.ID(), tie.ID()}, got)

	require.Empty(t, r.FindMatching("foo.Bar", "(&(objectclass=foo.Bar)(service.ranking>=50))"))
	require.Empty(t, r.FindMatching("foo.Bar", "((broken"))
	require.Less(t, low.ID(), tie.ID())
}

func TestSubscribe_Events(t *testing.T) {
	r := New(testr.New(t))
	var rec recorder

	_, err := r.Subscribe("foo.Bar", "(color=red)", nil)
	require.Error(t, err)

	sub, err := r.Subscribe("foo.Bar", "(color=red)", rec.record)
	require.NoError(t, err)

	red, err := r.Publish("a", []string{"foo.Bar"}, WithProperties(filter.Properties{"color": "red"}))
	require.NoError(t, err)
	_, err = r.Publish("a", []string{"foo.Bar"}, WithProperties(filter.Properties{"color": "blue"}))
	require.NoError(t, err)

	// no longer matching after the change: still told about it
	require.NoError(t, red.SetProperties(filter.Properties{"color": "green"}))
	// matched neither before nor after
	require.NoError(t, red.SetProperties(filter.Properties{"color": "yellow"}))

	red.Unregister()
	red.Unregister()

	require.Equal(t, []reference.ProviderEventKind{
		reference.ProviderAdded,
		reference.ProviderModified,
	}, rec.kinds())

	r.Unsubscribe(sub)
	_, err = r.Publish("a", []string{"foo.Bar"}, WithProperties(filter.Properties{"color": "red"}))
	require.NoError(t, err)
	require.Len(t, rec.kinds(), 2)
}

func TestSetProperties_UpdatesRanking(t *testing.T) {
	r := New(testr.New(t))

	reg, err := r.Publish("a", []string{"foo.Bar"}, WithRanking(1))
	require.NoError(t, err)
	require.NoError(t, reg.SetProperties(filter.Properties{reference.PropServiceRanking: 42}))

	md, ok := r.Metadata(reg.ID())
	require.True(t, ok)
	require.Equal(t, 42, md.Ranking)

	reg.Unregister()
	require.Error(t, reg.SetProperties(filter.Properties{}))
}

func TestSubscribe_ReentrantCallback(t *testing.T) {
	r := New(testr.New(t))

	var seen []reference.ProviderID
	_, err := r.Subscribe("foo.Bar", "", func(ev reference.ProviderEvent) {
		// the registry lock is not held during delivery
		md, ok := r.Metadata(ev.Provider)
		require.True(t, ok)
		seen = append(seen, md.ID)
	})
	require.NoError(t, err)

	reg, err := r.Publish("a", []string{"foo.Bar"})
	require.NoError(t, err)
	require.Equal(t, []reference.ProviderID{reg.ID()}, seen)
}

func TestAcquire_Scopes(t *testing.T) {
	r := New(testr.New(t))

	created := map[reference.ProviderScope]int{}
	factoryFor := func(scope reference.ProviderScope) Factory {
		return func(reference.ConfigurationID) (any, error) {
			created[scope]++
			return scope, nil
		}
	}

	singleton, err := r.Publish("p", []string{"foo.Bar"}, WithScope(reference.ProviderScopeSingleton), WithFactory(factoryFor(reference.ProviderScopeSingleton)))
	require.NoError(t, err)
	bundle, err := r.Publish("p", []string{"foo.Bar"}, WithScope(reference.ProviderScopeBundle), WithFactory(factoryFor(reference.ProviderScopeBundle)))
	require.NoError(t, err)
	prototype, err := r.Publish("p", []string{"foo.Bar"}, WithScope(reference.ProviderScopePrototype), WithFactory(factoryFor(reference.ProviderScopePrototype)))
	require.NoError(t, err)

	for _, consumer := range []reference.ConfigurationID{"a", "a", "b"} {
		require.NoError(t, r.Acquire(consumer, singleton.ID()))
		require.NoError(t, r.Acquire(consumer, bundle.ID()))
		require.NoError(t, r.Acquire(consumer, prototype.ID()))
	}

	require.Equal(t, 1, created[reference.ProviderScopeSingleton])
	require.Equal(t, 2, created[reference.ProviderScopeBundle])
	require.Equal(t, 3, created[reference.ProviderScopePrototype])
	require.Equal(t, 3, r.UseCount(singleton.ID()))

	r.Release("a", singleton.ID())
	r.Release("a", singleton.ID())
	r.Release("a", singleton.ID())
	r.Release("b", singleton.ID())
	require.Equal(t, 0, r.UseCount(singleton.ID()))

	// a fresh instance once every consumer let go
	require.NoError(t, r.Acquire("c", singleton.ID()))
	require.Equal(t, 2, created[reference.ProviderScopeSingleton])
}

func TestAcquire_Failures(t *testing.T) {
	r := New(testr.New(t))
	boom := errors.New("boom")

	broken, err := r.Publish("p", []string{"foo.Bar"}, WithFactory(func(reference.ConfigurationID) (any, error) {
		return nil, boom
	}))
	require.NoError(t, err)

	err = r.Acquire("a", broken.ID())
	require.ErrorIs(t, err, ErrAcquisitionFailed)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, r.UseCount(broken.ID()))

	broken.Unregister()
	require.ErrorIs(t, r.Acquire("a", broken.ID()), ErrAcquisitionFailed)

	// releasing what was never acquired is harmless
	r.Release("a", broken.ID())
	r.Release("a", 12345)
}

func TestProviders_SortedByID(t *testing.T) {
	r := New(testr.New(t))
	first, err := r.Publish("a", []string{"x"}, WithRanking(5))
	require.NoError(t, err)
	second, err := r.Publish("b", []string{"y"})
	require.NoError(t, err)

	got := r.Providers()
	require.Len(t, got, 2)
	require.Equal(t, first.ID(), got[0].ID)
	require.Equal(t, second.ID(), got[1].ID)
}
