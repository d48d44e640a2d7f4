package registry

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/go-logr/logr"

	"github.com/bayleafwalker/bindery-scr/internal/filter"
	"github.com/bayleafwalker/bindery-scr/internal/reference"
)

// Factory creates the instance handed to consumer on acquisition.
type Factory func(consumer reference.ConfigurationID) (any, error)

type publication struct {
	ranking    int
	scope      reference.ProviderScope
	properties filter.Properties
	factory    Factory
}

// PublishOption configures a provider at Publish time.
type PublishOption func(*publication)

func WithRanking(ranking int) PublishOption {
	return func(p *publication) { p.ranking = ranking }
}

func WithScope(scope reference.ProviderScope) PublishOption {
	return func(p *publication) { p.scope = scope }
}

// WithProperties adds user properties. The standard properties always win.
func WithProperties(props filter.Properties) PublishOption {
	return func(p *publication) { p.properties = props }
}

// WithFactory sets how instances are created. Without a factory every
// acquisition succeeds with a nil instance.
func WithFactory(f Factory) PublishOption {
	return func(p *publication) { p.factory = f }
}

type entry struct {
	md      reference.ProviderMetadata
	factory Factory

	// singleton instance, created on first acquisition
	shared any
	// bundle scope: one instance per consumer
	perConsumer map[reference.ConfigurationID]any
	// outstanding acquisitions per consumer
	uses map[reference.ConfigurationID]int
}

type subscription struct {
	id     reference.SubscriptionID
	iface  string
	filter string
	fn     func(reference.ProviderEvent)
}

// Registry is an in-memory provider registry. Events are delivered
// synchronously on the goroutine that made the change, outside the registry
// lock, so subscribers may call back into the registry.
type Registry struct {
	log  logr.Logger
	eval *filter.Evaluator

	mu        sync.RWMutex
	nextID    reference.ProviderID
	nextSub   reference.SubscriptionID
	providers map[reference.ProviderID]*entry
	subs      map[reference.SubscriptionID]*subscription
}

var _ reference.Registry = (*Registry)(nil)

func New(log logr.Logger) *Registry {
	log = log.WithName("registry")
	return &Registry{
		log:       log,
		eval:      filter.NewEvaluator(log),
		providers: map[reference.ProviderID]*entry{},
		subs:      map[reference.SubscriptionID]*subscription{},
	}
}

// Registration is the publisher's handle on a provider.
type Registration struct {
	r    *Registry
	id   reference.ProviderID
	once sync.Once
}

func (g *Registration) ID() reference.ProviderID { return g.id }

// Unregister removes the provider. Only the first call has an effect.
func (g *Registration) Unregister() {
	g.once.Do(func() { g.r.unregister(g.id) })
}

// SetProperties replaces the user properties of the provider. A
// service.ranking property updates the ranking.
func (g *Registration) SetProperties(props filter.Properties) error {
	return g.r.setProperties(g.id, props)
}

// Publish registers a provider of interfaces owned by owner.
func (r *Registry) Publish(owner reference.ConfigurationID, interfaces []string, opts ...PublishOption) (*Registration, error) {
	if len(interfaces) == 0 {
		return nil, fmt.Errorf("%w: no interfaces", ErrInvalidPublication)
	}
	p := publication{scope: reference.ProviderScopeSingleton}
	for _, opt := range opts {
		opt(&p)
	}
	switch p.scope {
	case reference.ProviderScopeSingleton, reference.ProviderScopeBundle, reference.ProviderScopePrototype:
	default:
		return nil, fmt.Errorf("%w: scope %q", ErrInvalidPublication, p.scope)
	}

	r.mu.Lock()
	r.nextID++
	e := &entry{
		md: reference.ProviderMetadata{
			ID:         r.nextID,
			Ranking:    p.ranking,
			Owner:      owner,
			Scope:      p.scope,
			Interfaces: slices.Clone(interfaces),
		},
		factory:     p.factory,
		perConsumer: map[reference.ConfigurationID]any{},
		uses:        map[reference.ConfigurationID]int{},
	}
	e.md.Properties = standardProperties(e.md, p.properties)
	r.providers[e.md.ID] = e
	targets := r.matchingSubsLocked(e.md)
	r.mu.Unlock()

	registryProviders.Inc()
	r.log.V(1).Info("provider published", "provider", e.md.ID, "owner", owner, "interfaces", interfaces, "ranking", p.ranking, "scope", p.scope)
	deliver(targets, reference.ProviderEvent{Kind: reference.ProviderAdded, Provider: e.md.ID})
	return &Registration{r: r, id: e.md.ID}, nil
}

func (r *Registry) unregister(id reference.ProviderID) {
	r.mu.Lock()
	e, ok := r.providers[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.providers, id)
	targets := r.matchingSubsLocked(e.md)
	r.mu.Unlock()

	registryProviders.Dec()
	r.log.V(1).Info("provider unregistered", "provider", id)
	deliver(targets, reference.ProviderEvent{Kind: reference.ProviderRemoved, Provider: id})
}

func (r *Registry) setProperties(id reference.ProviderID, props filter.Properties) error {
	r.mu.Lock()
	e, ok := r.providers[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("provider %d is not registered", id)
	}
	before := r.matchingSubsLocked(e.md)
	md := e.md
	if v, ok := props[reference.PropServiceRanking]; ok {
		if ranking, ok := toInt(v); ok {
			md.Ranking = ranking
		}
	}
	md.Properties = standardProperties(md, props)
	e.md = md
	after := r.matchingSubsLocked(e.md)
	r.mu.Unlock()

	targets := before
	for _, s := range after {
		if !slices.ContainsFunc(targets, func(t *subscription) bool { return t.id == s.id }) {
			targets = append(targets, s)
		}
	}
	r.log.V(1).Info("provider modified", "provider", id, "ranking", md.Ranking)
	deliver(targets, reference.ProviderEvent{Kind: reference.ProviderModified, Provider: id})
	return nil
}

// Subscribe registers fn for events on providers of interfaceName matching
// filter. A malformed filter is logged and matches nothing.
func (r *Registry) Subscribe(interfaceName, filter string, fn func(reference.ProviderEvent)) (reference.SubscriptionID, error) {
	if fn == nil {
		return 0, fmt.Errorf("subscribe to %q: nil callback", interfaceName)
	}
	// compile now so a bad filter is reported at subscription time
	_, _ = r.eval.Compile(filter)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSub++
	r.subs[r.nextSub] = &subscription{id: r.nextSub, iface: interfaceName, filter: filter, fn: fn}
	return r.nextSub, nil
}

func (r *Registry) Unsubscribe(id reference.SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// FindMatching lists the matching providers, highest ranking first and then
// by registration order.
func (r *Registry) FindMatching(interfaceName, filter string) []reference.ProviderID {
	r.mu.RLock()
	matched := make([]reference.ProviderMetadata, 0)
	for _, e := range r.providers {
		if r.matches(interfaceName, filter, e.md) {
			matched = append(matched, e.md)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Ranking != matched[j].Ranking {
			return matched[i].Ranking > matched[j].Ranking
		}
		return matched[i].ID < matched[j].ID
	})
	out := make([]reference.ProviderID, 0, len(matched))
	for _, md := range matched {
		out = append(out, md.ID)
	}
	return out
}

// Metadata returns a copy of the provider's metadata.
func (r *Registry) Metadata(id reference.ProviderID) (reference.ProviderMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[id]
	if !ok {
		return reference.ProviderMetadata{}, false
	}
	return copyMetadata(e.md), true
}

// Acquire materializes the provider for consumer. Singleton providers are
// created once, bundle providers once per consumer and prototype providers on
// every call. The factory runs outside the registry lock.
func (r *Registry) Acquire(consumer reference.ConfigurationID, id reference.ProviderID) error {
	r.mu.RLock()
	e, ok := r.providers[id]
	var (
		scope   reference.ProviderScope
		factory Factory
		need    bool
	)
	if ok {
		scope = e.md.Scope
		factory = e.factory
		switch scope {
		case reference.ProviderScopeSingleton:
			need = e.shared == nil
		case reference.ProviderScopeBundle:
			_, have := e.perConsumer[consumer]
			need = !have
		default:
			need = true
		}
	}
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: provider %d is not registered", ErrAcquisitionFailed, id)
	}

	var instance any
	if need && factory != nil {
		var err error
		instance, err = factory(consumer)
		if err != nil {
			registryAcquisitions.WithLabelValues(string(scope), "error").Inc()
			return fmt.Errorf("%w: provider %d: %w", ErrAcquisitionFailed, id, err)
		}
	}
	if instance == nil {
		instance = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.providers[id] != e {
		registryAcquisitions.WithLabelValues(string(scope), "error").Inc()
		return fmt.Errorf("%w: provider %d was unregistered", ErrAcquisitionFailed, id)
	}
	if need {
		switch scope {
		case reference.ProviderScopeSingleton:
			if e.shared == nil {
				e.shared = instance
			}
		case reference.ProviderScopeBundle:
			if _, have := e.perConsumer[consumer]; !have {
				e.perConsumer[consumer] = instance
			}
		}
	}
	e.uses[consumer]++
	registryAcquisitions.WithLabelValues(string(scope), "ok").Inc()
	return nil
}

// Release gives back one acquisition. Releasing more than was acquired is a
// no-op.
func (r *Registry) Release(consumer reference.ConfigurationID, id reference.ProviderID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.providers[id]
	if !ok || e.uses[consumer] == 0 {
		return
	}
	e.uses[consumer]--
	if e.uses[consumer] > 0 {
		return
	}
	delete(e.uses, consumer)
	delete(e.perConsumer, consumer)
	if len(e.uses) == 0 {
		e.shared = nil
	}
}

// UseCount reports the outstanding acquisitions of a provider.
func (r *Registry) UseCount(id reference.ProviderID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[id]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range e.uses {
		n += c
	}
	return n
}

// Providers returns the metadata of every registered provider, ordered by id.
func (r *Registry) Providers() []reference.ProviderMetadata {
	r.mu.RLock()
	out := make([]reference.ProviderMetadata, 0, len(r.providers))
	for _, e := range r.providers {
		out = append(out, copyMetadata(e.md))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) matches(interfaceName, filter string, md reference.ProviderMetadata) bool {
	if interfaceName != "" && !slices.Contains(md.Interfaces, interfaceName) {
		return false
	}
	return r.eval.Matches(filter, md.Properties)
}

func (r *Registry) matchingSubsLocked(md reference.ProviderMetadata) []*subscription {
	out := make([]*subscription, 0)
	for _, s := range r.subs {
		if r.matches(s.iface, s.filter, md) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func deliver(targets []*subscription, ev reference.ProviderEvent) {
	for _, s := range targets {
		s.fn(ev)
	}
}

func standardProperties(md reference.ProviderMetadata, user filter.Properties) filter.Properties {
	props := make(filter.Properties, len(user)+4)
	for k, v := range user {
		props[k] = v
	}
	props[reference.PropObjectClass] = slices.Clone(md.Interfaces)
	props[reference.PropServiceID] = uint64(md.ID)
	props[reference.PropServiceRanking] = md.Ranking
	props[reference.PropServiceScope] = string(md.Scope)
	return props
}

func copyMetadata(md reference.ProviderMetadata) reference.ProviderMetadata {
	md.Interfaces = slices.Clone(md.Interfaces)
	props := make(filter.Properties, len(md.Properties))
	for k, v := range md.Properties {
		props[k] = v
	}
	md.Properties = props
	return md
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
