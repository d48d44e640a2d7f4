package resolver

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/bayleafwalker/bindery-scr/internal/filter"
	"github.com/bayleafwalker/bindery-scr/internal/metadata"
	"github.com/bayleafwalker/bindery-scr/internal/reference"
)

// DefaultResolver applies the runtime eligibility and ordering rules to the
// declared providers. Provider ids are predicted from manifest order.
type DefaultResolver struct{}

type provider struct {
	configuration reference.ConfigurationID
	interfaces    []string
	scope         reference.ProviderScope
	ranking       int
	order         int
	properties    filter.Properties
}

func NewDefault() *DefaultResolver {
	return &DefaultResolver{}
}

func (r *DefaultResolver) Resolve(ctx context.Context, in Input) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	providers := make([]provider, 0)
	for i, m := range in.Manifests {
		p := m.Spec.Provides
		if p == nil {
			continue
		}
		pr := provider{
			configuration: metadata.ConfigurationID(m),
			interfaces:    p.Interfaces,
			scope:         metadata.ProviderScope(p.Scope),
			ranking:       int(p.Ranking),
			order:         i,
		}
		pr.properties = metadata.Properties(p.Properties)
		pr.properties[reference.PropObjectClass] = p.Interfaces
		pr.properties[reference.PropServiceID] = uint64(len(providers) + 1)
		pr.properties[reference.PropServiceRanking] = pr.ranking
		pr.properties[reference.PropServiceScope] = string(pr.scope)
		providers = append(providers, pr)
	}

	plan := Plan{}
	for _, consumer := range in.Manifests {
		consumerID := metadata.ConfigurationID(consumer)
		for _, ref := range consumer.Spec.References {
			desc, err := metadata.ReferenceDescriptor(ref)
			if err != nil {
				return Plan{}, fmt.Errorf("%w: %s/%s: %w", ErrInvalidInput, consumerID, ref.Name, err)
			}

			// validated by ReferenceDescriptor
			target := filter.MustCompile(desc.Target)

			candidates := make([]provider, 0)
			for _, p := range providers {
				if p.configuration == consumerID {
					continue
				}
				if !slices.Contains(p.interfaces, desc.Interface) {
					continue
				}
				if desc.Scope == reference.ReferenceScopePrototypeRequired && p.scope != reference.ProviderScopePrototype {
					continue
				}
				if !target.Matches(p.properties) {
					continue
				}
				candidates = append(candidates, p)
			}

			if len(candidates) == 0 {
				addUnresolved(&plan.Diagnostics, consumerID, desc, "no compatible provider declared")
				continue
			}

			for _, p := range selectProvidersDeterministic(desc, candidates) {
				plan.Bindings = append(plan.Bindings, Binding{
					Consumer:  consumerID,
					Reference: desc.Name,
					Provider:  p.configuration,
					Ranking:   p.ranking,
				})
			}
		}
	}

	for _, m := range in.Manifests {
		id := metadata.ConfigurationID(m)
		if !isProvider(id, plan.Bindings) {
			plan.Roots = append(plan.Roots, id)
		}
	}

	sort.SliceStable(plan.Bindings, func(i, j int) bool {
		a, b := plan.Bindings[i], plan.Bindings[j]
		if a.Consumer != b.Consumer {
			return a.Consumer < b.Consumer
		}
		return a.Reference < b.Reference
	})

	return plan, nil
}

func addUnresolved(diag *Diagnostics, consumer reference.ConfigurationID, desc reference.Descriptor, reason string) {
	unresolved := UnresolvedReference{
		Consumer:  consumer,
		Reference: desc.Name,
		Interface: desc.Interface,
		Reason:    reason,
	}
	if desc.IsOptional() {
		diag.UnresolvedOptional = append(diag.UnresolvedOptional, unresolved)
		return
	}
	diag.UnresolvedRequired = append(diag.UnresolvedRequired, unresolved)
}

func selectProvidersDeterministic(desc reference.Descriptor, candidates []provider) []provider {
	// Deterministic ordering:
	// 1) Higher ranking wins
	// 2) Tie-break: publication order
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ranking != candidates[j].ranking {
			return candidates[i].ranking > candidates[j].ranking
		}
		return candidates[i].order < candidates[j].order
	})

	if desc.IsMultiple() {
		return candidates
	}
	return candidates[:1]
}

func isProvider(id reference.ConfigurationID, bindings []Binding) bool {
	for _, b := range bindings {
		if b.Provider == id {
			return true
		}
	}
	return false
}

var _ Resolver = (*DefaultResolver)(nil)
