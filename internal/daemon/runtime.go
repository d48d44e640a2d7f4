// Package daemon hosts component configurations: it publishes their services
// into the provider registry and runs one reference manager per declared
// reference.
package daemon

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	scrv1alpha1 "github.com/bayleafwalker/bindery-scr/api/v1alpha1"
	"github.com/bayleafwalker/bindery-scr/internal/graph"
	"github.com/bayleafwalker/bindery-scr/internal/metadata"
	"github.com/bayleafwalker/bindery-scr/internal/reference"
	"github.com/bayleafwalker/bindery-scr/internal/registry"
)

const (
	ConditionReady = "Ready"

	ReasonReferencesSatisfied   = "ReferencesSatisfied"
	ReasonReferencesUnsatisfied = "ReferencesUnsatisfied"
)

var ErrAlreadyStarted = errors.New("runtime already started")

// HealthSetter receives per-configuration serving status. The empty service
// name reports the runtime as a whole.
type HealthSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

type component struct {
	manifest     scrv1alpha1.ComponentManifest
	id           reference.ConfigurationID
	registration *registry.Registration
	managers     []*reference.Manager
}

// Runtime owns the hosted components.
type Runtime struct {
	log      logr.Logger
	registry *registry.Registry
	health   HealthSetter

	mu         sync.Mutex
	started    bool
	components []*component
}

func New(log logr.Logger, reg *registry.Registry, health HealthSetter) *Runtime {
	return &Runtime{log: log, registry: reg, health: health}
}

// Start publishes the provided services in manifest order, then creates the
// reference managers. On error everything started so far is torn down.
func (r *Runtime) Start(manifests []scrv1alpha1.ComponentManifest) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	components := make([]*component, 0, len(manifests))
	for i := range manifests {
		c := &component{manifest: *manifests[i].DeepCopy(), id: metadata.ConfigurationID(manifests[i])}
		if p := c.manifest.Spec.Provides; p != nil {
			g, err := r.registry.Publish(c.id, p.Interfaces,
				registry.WithRanking(int(p.Ranking)),
				registry.WithScope(metadata.ProviderScope(p.Scope)),
				registry.WithProperties(metadata.Properties(p.Properties)),
			)
			if err != nil {
				r.teardown(components)
				return fmt.Errorf("publish %s: %w", c.id, err)
			}
			c.registration = g
		}
		components = append(components, c)
	}

	r.mu.Lock()
	r.components = components
	r.mu.Unlock()

	for _, c := range components {
		for _, spec := range c.manifest.Spec.References {
			desc, err := metadata.ReferenceDescriptor(spec)
			if err != nil {
				r.Close()
				return fmt.Errorf("component %s: %w", c.id, err)
			}
			log := r.log.WithValues("component", c.manifest.Spec.Component.Name)
			m, err := reference.New(desc, reference.Consumer{Configuration: c.id, Registry: r.registry}, log)
			if err != nil {
				r.Close()
				return fmt.Errorf("component %s: %w", c.id, err)
			}
			r.mu.Lock()
			c.managers = append(c.managers, m)
			r.mu.Unlock()

			comp := c
			m.RegisterListener(reference.ListenerFunc(func(n reference.Notification) error {
				log.Info("reference changed", "reference", n.Reference, "event", n.Event.String(), "bound", len(n.Bound), "unbound", len(n.Unbound))
				r.setHealth(comp)
				return nil
			}))
		}
		r.setHealth(c)
	}

	r.log.Info("runtime started", "components", len(components))
	return nil
}

// Close closes every manager and withdraws every published service.
func (r *Runtime) Close() {
	r.mu.Lock()
	components := r.components
	r.components = nil
	r.mu.Unlock()
	r.teardown(components)
}

func (r *Runtime) teardown(components []*component) {
	for _, c := range components {
		for _, m := range c.managers {
			m.Close()
		}
	}
	for _, c := range components {
		if c.registration != nil {
			c.registration.Unregister()
		}
		if r.health != nil {
			r.health.SetServingStatus(string(c.id), healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
	if r.health != nil && len(components) > 0 {
		r.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Statuses returns a snapshot of every reference manager.
func (r *Runtime) Statuses() []reference.Status {
	r.mu.Lock()
	managers := make([]*reference.Manager, 0)
	for _, c := range r.components {
		managers = append(managers, c.managers...)
	}
	r.mu.Unlock()

	out := make([]reference.Status, 0, len(managers))
	for _, m := range managers {
		out = append(out, m.Status())
	}
	return out
}

func (r *Runtime) Graph() graph.BindingGraph {
	return graph.Build(r.Statuses())
}

// Ready reports whether every reference of every component is satisfied.
func (r *Runtime) Ready() bool {
	for _, st := range r.Statuses() {
		if !st.Satisfied {
			return false
		}
	}
	return true
}

// Manifests returns the hosted manifests with their status filled in from
// the reference managers.
func (r *Runtime) Manifests() []scrv1alpha1.ComponentManifest {
	type snapshot struct {
		manifest *scrv1alpha1.ComponentManifest
		managers []*reference.Manager
	}
	r.mu.Lock()
	snapshots := make([]snapshot, 0, len(r.components))
	for _, c := range r.components {
		snapshots = append(snapshots, snapshot{c.manifest.DeepCopy(), append([]*reference.Manager{}, c.managers...)})
	}
	r.mu.Unlock()

	out := make([]scrv1alpha1.ComponentManifest, 0, len(snapshots))
	for _, s := range snapshots {
		s.manifest.Status = componentStatus(s.managers)
		out = append(out, *s.manifest)
	}
	return out
}

func componentStatus(managers []*reference.Manager) scrv1alpha1.ComponentManifestStatus {
	status := scrv1alpha1.ComponentManifestStatus{}
	unsatisfied := make([]string, 0)
	for _, m := range managers {
		st := m.Status()
		rs := scrv1alpha1.ReferenceStatus{
			Name:       st.Name,
			Satisfied:  st.Satisfied,
			Candidates: int32(len(st.Candidates)),
		}
		for _, b := range st.Bound {
			rs.Bound = append(rs.Bound, uint64(b.ID))
		}
		if !st.Satisfied {
			unsatisfied = append(unsatisfied, st.Name)
		}
		status.References = append(status.References, rs)
	}
	sort.Slice(status.References, func(i, j int) bool { return status.References[i].Name < status.References[j].Name })
	sort.Strings(unsatisfied)

	ready := metav1.Condition{
		Type:    ConditionReady,
		Status:  metav1.ConditionTrue,
		Reason:  ReasonReferencesSatisfied,
		Message: fmt.Sprintf("%d reference(s) satisfied", len(managers)),
	}
	if len(unsatisfied) > 0 {
		ready.Status = metav1.ConditionFalse
		ready.Reason = ReasonReferencesUnsatisfied
		ready.Message = fmt.Sprintf("unsatisfied references: %v", unsatisfied)
	}
	meta.SetStatusCondition(&status.Conditions, ready)
	return status
}

func (r *Runtime) setHealth(c *component) {
	if r.health == nil {
		return
	}
	r.mu.Lock()
	managers := append([]*reference.Manager{}, c.managers...)
	r.mu.Unlock()

	ready := true
	for _, m := range managers {
		if !m.IsSatisfied() {
			ready = false
			break
		}
	}
	r.health.SetServingStatus(string(c.id), servingStatus(ready))
	r.health.SetServingStatus("", servingStatus(r.Ready()))
}

func servingStatus(ready bool) healthpb.HealthCheckResponse_ServingStatus {
	if ready {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
