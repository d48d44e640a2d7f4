package reference

import "slices"

// tracker maintains the candidate set of one reference from registry events.
// Callers serialize access.
type tracker struct {
	desc     Descriptor
	consumer ConfigurationID
	eval     FilterEvaluator
	set      candidateSet
}

func newTracker(desc Descriptor, consumer ConfigurationID, eval FilterEvaluator) *tracker {
	return &tracker{desc: desc, consumer: consumer, eval: eval}
}

// eligible applies the interface, target, scope and self-exclusion rules.
func (t *tracker) eligible(md ProviderMetadata) bool {
	if t.desc.Interface != "" && !slices.Contains(md.Interfaces, t.desc.Interface) {
		return false
	}
	if t.desc.Scope == ReferenceScopePrototypeRequired && md.Scope != ProviderScopePrototype {
		return false
	}
	// A configuration never satisfies its own dependency.
	if md.Owner == t.consumer {
		return false
	}
	if t.desc.Target != "" && !t.eval.Matches(t.desc.Target, md.Properties) {
		return false
	}
	return true
}

// apply folds one event into the candidate set and reports whether the set
// changed in a way the binding policy has to look at. found is false when the
// provider is no longer registered.
func (t *tracker) apply(ev ProviderEvent, md ProviderMetadata, found bool) bool {
	if ev.Kind == ProviderRemoved || !found || !t.eligible(md) {
		return t.set.remove(ev.Provider)
	}
	return t.set.upsert(candidateFrom(md))
}
