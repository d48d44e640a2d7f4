package reference

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bayleafwalker/bindery-scr/internal/filter"
)

// Manager tracks one reference of one component configuration: the eligible
// providers, the subset bound under the reference's policy, and whether the
// reference is satisfied. Listeners are told when that changes.
//
// Registry events may arrive on any goroutine, including re-entrantly from
// Acquire. They are queued and drained by one goroutine at a time, so
// evaluations of one manager never interleave. Acquire, Release and listener
// callbacks run outside the state lock.
type Manager struct {
	desc     Descriptor
	consumer ConfigurationID
	registry Registry
	filter   string
	log      logr.Logger

	listeners listenerRegistry

	// mu guards the candidate set, the bound set and the status fields.
	mu                 sync.RWMutex
	tracker            *tracker
	bound              []Candidate
	conditions         []metav1.Condition
	generation         int64
	countedUnsatisfied bool
	// settled and settledBound are the state as of generation, without the
	// intermediate bound set of an evaluation in progress.
	settled      bool
	settledBound []Candidate

	queueMu  sync.Mutex
	queue    []ProviderEvent
	draining bool

	subscription SubscriptionID
	closed       atomic.Bool
	closeOnce    sync.Once
}

type options struct {
	evaluator FilterEvaluator
}

// Option configures a Manager.
type Option func(*options)

// WithFilterEvaluator replaces the default LDAP filter evaluator.
func WithFilterEvaluator(e FilterEvaluator) Option {
	return func(o *options) {
		o.evaluator = e
	}
}

// New creates the manager for desc on behalf of consumer, subscribes to the
// registry and evaluates the providers already published.
//
// It fails with ErrInvalidArgument for an invalid consumer, a zero logger or
// an invalid descriptor.
func New(desc Descriptor, consumer Consumer, logger logr.Logger, opts ...Option) (*Manager, error) {
	if !consumer.Valid() {
		return nil, fmt.Errorf("%w: invalid consumer context", ErrInvalidArgument)
	}
	if logger.IsZero() {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidArgument)
	}
	desc = desc.withDefaults()
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.evaluator == nil {
		o.evaluator = filter.NewEvaluator(logger)
	}

	m := &Manager{
		desc:     desc,
		consumer: consumer.Configuration,
		registry: consumer.Registry,
		filter:   desc.FilterString(),
		log: logger.WithName("reference").WithValues(
			"reference", desc.Name,
			"interface", desc.Interface,
			"configuration", consumer.Configuration,
		),
		tracker: newTracker(desc, consumer.Configuration, o.evaluator),
	}

	referenceManagers.Inc()
	m.mu.Lock()
	m.settled = m.satisfiedLocked()
	m.updateStatusLocked()
	m.mu.Unlock()

	sub, err := m.registry.Subscribe(desc.Interface, m.filter, m.enqueue)
	if err != nil {
		m.closeOnce.Do(func() {
			m.closed.Store(true)
			m.mu.Lock()
			m.reportLocked()
			m.mu.Unlock()
			referenceManagers.Dec()
		})
		return nil, fmt.Errorf("reference %q: subscribe: %w", desc.Name, err)
	}
	m.subscription = sub

	for _, id := range m.registry.FindMatching(desc.Interface, m.filter) {
		m.enqueue(ProviderEvent{Kind: ProviderAdded, Provider: id})
	}

	m.log.V(1).Info("reference manager created",
		"filter", m.filter,
		"cardinality", desc.Cardinality.String(),
		"policy", desc.Policy.String(),
		"policyOption", desc.PolicyOption.String(),
		"scope", desc.Scope.String(),
	)
	return m, nil
}

func (m *Manager) GetReferenceName() string { return m.desc.Name }

// GetFilterString returns the predicate used to query the registry.
func (m *Manager) GetFilterString() string { return m.filter }

func (m *Manager) Descriptor() Descriptor { return m.desc }

func (m *Manager) IsOptional() bool { return m.desc.IsOptional() }

func (m *Manager) IsMultiple() bool { return m.desc.IsMultiple() }

func (m *Manager) IsSatisfied() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.satisfiedLocked()
}

// GetTargetReferences returns a snapshot of the candidates, best first.
func (m *Manager) GetTargetReferences() []Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracker.set.snapshot()
}

// GetBoundReferences returns a snapshot of the bound candidates, best first.
func (m *Manager) GetBoundReferences() []Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneCandidates(m.bound)
}

// RegisterListener adds l. If the reference is satisfied, l receives a
// BECAME_SATISFIED notification before RegisterListener returns. Changes
// evaluated while that replay runs reach l after it, in order.
func (m *Manager) RegisterListener(l Listener) ListenerToken {
	if l == nil {
		return 0
	}

	m.mu.RLock()
	e := m.listeners.add(l, m.generation)
	satisfied := m.settled
	bound := cloneCandidates(m.settledBound)
	m.mu.RUnlock()

	if satisfied {
		m.notify(e, Notification{Reference: m.desc.Name, Event: EventBecameSatisfied, Bound: bound, Generation: e.since})
	}
	for {
		n, ok := e.delivery.next()
		if !ok {
			break
		}
		m.notify(e, n)
	}
	return e.token
}

// UnregisterListener removes the listener for token. Unknown tokens are ignored.
func (m *Manager) UnregisterListener(token ListenerToken) {
	if !m.listeners.remove(token) {
		m.log.V(2).Info("ignoring unknown listener token", "token", token)
	}
}

// Close unsubscribes from the registry, releases the bound providers and
// drops every listener. It is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.registry.Unsubscribe(m.subscription)

		m.mu.Lock()
		released := m.bound
		m.bound = nil
		m.settled = m.satisfiedLocked()
		m.settledBound = nil
		m.reportLocked()
		m.mu.Unlock()

		for _, c := range released {
			m.release(c)
		}
		m.listeners.clear()
		referenceManagers.Dec()
		m.log.V(1).Info("reference manager closed", "released", len(released))
	})
}

func (m *Manager) satisfiedLocked() bool {
	return len(m.bound) >= m.desc.Cardinality.Min
}

// enqueue is the registry callback.
func (m *Manager) enqueue(ev ProviderEvent) {
	if m.closed.Load() {
		return
	}
	m.queueMu.Lock()
	m.queue = append(m.queue, ev)
	if m.draining {
		m.queueMu.Unlock()
		return
	}
	m.draining = true
	m.queueMu.Unlock()

	m.drain()
}

func (m *Manager) drain() {
	defer func() {
		if r := recover(); r != nil {
			m.queueMu.Lock()
			m.draining = false
			m.queueMu.Unlock()
			panic(r)
		}
	}()

	for {
		m.queueMu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.queueMu.Unlock()
			return
		}
		ev := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		m.evaluate(ev)
	}
}

// evaluate folds ev into the candidate set, runs the binding policy, applies
// its actions and notifies listeners.
func (m *Manager) evaluate(ev ProviderEvent) {
	if m.closed.Load() {
		return
	}

	var (
		md    ProviderMetadata
		found bool
	)
	if ev.Kind != ProviderRemoved {
		md, found = m.registry.Metadata(ev.Provider)
	}

	m.mu.Lock()
	changed := m.tracker.apply(ev, md, found)
	m.refreshBoundLocked(ev.Provider)
	if !changed {
		m.mu.Unlock()
		return
	}
	start := time.Now()
	was := m.satisfiedLocked()
	before := len(m.bound)
	p := planBindings(m.desc, m.bound, m.tracker.set.items)
	m.bound = applyPlan(m.bound, plan{unbind: p.unbind})
	m.mu.Unlock()

	unbound, bound := m.execute(p)

	m.mu.Lock()
	now := m.satisfiedLocked()
	m.generation++
	generation := m.generation
	m.settled = now
	m.settledBound = cloneCandidates(m.bound)
	m.updateStatusLocked()
	m.mu.Unlock()

	referenceEvaluationsTotal.Inc()
	referenceEvaluationDuration.Observe(time.Since(start).Seconds())

	notes := notificationsFor(m.desc, was, now, before, unbound, bound)
	if len(notes) == 0 {
		return
	}
	m.log.V(1).Info("bindings changed",
		"trigger", ev.Kind.String(),
		"provider", ev.Provider,
		"unbound", candidateIDs(unbound),
		"bound", candidateIDs(bound),
		"satisfied", now,
	)
	for _, n := range notes {
		n.Generation = generation
		referenceNotificationsTotal.WithLabelValues(n.Event.String()).Inc()
		for _, e := range m.listeners.snapshot() {
			m.deliver(e, n)
		}
	}
}

// execute releases and acquires providers for p. A provider that cannot be
// acquired is excluded for the rest of this evaluation and the policy is
// asked again, so the next best candidate gets its chance.
func (m *Manager) execute(p plan) (unbound, bound []Candidate) {
	excluded := sets.New[ProviderID]()
	for {
		for _, c := range p.unbind {
			m.release(c)
		}
		unbound = append(unbound, p.unbind...)

		failed := false
		for _, c := range p.bind {
			if err := m.acquire(c); err != nil {
				referenceAcquisitionFailuresTotal.Inc()
				m.log.Error(err, "skipping candidate for this evaluation", "provider", c.ID)
				excluded.Insert(c.ID)
				failed = true
				continue
			}
			m.mu.Lock()
			if m.closed.Load() {
				// Close has already released the bound set.
				m.mu.Unlock()
				m.release(c)
				continue
			}
			m.bound = insertSorted(m.bound, c)
			m.mu.Unlock()
			referenceBindingsTotal.WithLabelValues("bind").Inc()
			bound = append(bound, c)
		}
		if !failed || m.closed.Load() {
			return unbound, bound
		}

		m.mu.Lock()
		p = planBindings(m.desc, m.bound, m.tracker.set.without(excluded))
		m.bound = applyPlan(m.bound, plan{unbind: p.unbind})
		m.mu.Unlock()
		if p.empty() {
			return unbound, bound
		}
	}
}

func (m *Manager) acquire(c Candidate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: provider %d: panic: %v", ErrProviderAcquisition, c.ID, r)
		}
	}()
	if aerr := m.registry.Acquire(m.consumer, c.ID); aerr != nil {
		return fmt.Errorf("%w: provider %d: %w", ErrProviderAcquisition, c.ID, aerr)
	}
	return nil
}

func (m *Manager) release(c Candidate) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(fmt.Errorf("panic: %v", r), "provider release failed", "provider", c.ID)
		}
	}()
	referenceBindingsTotal.WithLabelValues("unbind").Inc()
	m.registry.Release(m.consumer, c.ID)
}

// deliver hands n to e unless e's registration replay already covers it or is
// still running, in which case n waits for the replay to finish.
func (m *Manager) deliver(e registeredListener, n Notification) {
	if n.Generation <= e.since || e.delivery.hold(n) {
		return
	}
	m.notify(e, n)
}

func (m *Manager) notify(e registeredListener, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			m.listenerFailed(e.token, n, fmt.Errorf("%w: panic: %v", ErrListenerCallback, r))
		}
	}()
	if err := e.listener.Notify(n); err != nil {
		m.listenerFailed(e.token, n, fmt.Errorf("%w: %w", ErrListenerCallback, err))
	}
}

func (m *Manager) listenerFailed(token ListenerToken, n Notification, err error) {
	referenceListenerFailuresTotal.Inc()
	m.log.Error(err, "listener notification failed", "token", token, "event", n.Event.String())
}

// refreshBoundLocked copies an updated candidate into the bound set.
func (m *Manager) refreshBoundLocked(id ProviderID) {
	j := m.tracker.set.index(id)
	if j < 0 {
		return
	}
	i := slices.IndexFunc(m.bound, func(c Candidate) bool { return c.ID == id })
	if i < 0 {
		return
	}
	m.bound = slices.Delete(m.bound, i, i+1)
	m.bound = insertSorted(m.bound, m.tracker.set.items[j])
}

func cloneCandidates(list []Candidate) []Candidate {
	if len(list) == 0 {
		return nil
	}
	out := make([]Candidate, len(list))
	copy(out, list)
	return out
}

func candidateIDs(list []Candidate) []ProviderID {
	out := make([]ProviderID, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}
