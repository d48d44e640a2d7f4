package reference

import "slices"

// plan is the ordered set of actions one evaluation applies: every unbind
// runs before any bind.
type plan struct {
	unbind []Candidate
	bind   []Candidate
}

func (p plan) empty() bool {
	return len(p.unbind) == 0 && len(p.bind) == 0
}

// best returns up to limit leading candidates.
func best(candidates []Candidate, limit int) []Candidate {
	n := min(len(candidates), limit)
	return slices.Clone(candidates[:n])
}

func sameMembers(a, b []Candidate) bool {
	if len(a) != len(b) {
		return false
	}
	return ids(a).Equal(ids(b))
}

// planBindings computes how the bound set moves given the eligible
// candidates, ordered best first.
//
//   - static reluctant: nothing changes while every bound provider is still
//     eligible and the reference is satisfied. Otherwise the bound set is
//     released as a whole and rebuilt from the best candidates.
//   - static greedy: whenever the best candidates differ from the bound set,
//     release it as a whole and bind the best candidates.
//   - dynamic reluctant, multiple: keep eligible bindings and fill the free
//     capacity with the best unbound candidates.
//   - dynamic otherwise: move incrementally to the best candidates.
func planBindings(d Descriptor, bound, candidates []Candidate) plan {
	eligible := ids(candidates)
	stale := subtract(bound, eligible)
	desired := best(candidates, d.Cardinality.Max)

	switch {
	case d.Policy == PolicyStatic && d.PolicyOption == OptionReluctant:
		if len(stale) == 0 && len(bound) >= d.Cardinality.Min {
			return plan{}
		}
		if sameMembers(bound, desired) {
			return plan{}
		}
		return plan{unbind: slices.Clone(bound), bind: desired}

	case d.Policy == PolicyStatic:
		if sameMembers(bound, desired) {
			return plan{}
		}
		return plan{unbind: slices.Clone(bound), bind: desired}

	case d.PolicyOption == OptionReluctant && d.IsMultiple():
		keep := subtract(bound, ids(stale))
		held := ids(keep)
		free := d.Cardinality.Max - len(keep)
		var add []Candidate
		for _, c := range candidates {
			if free <= 0 {
				break
			}
			if held.Has(c.ID) {
				continue
			}
			add = append(add, c)
			free--
		}
		return plan{unbind: stale, bind: add}

	default:
		want := ids(desired)
		have := ids(bound)
		return plan{
			unbind: subtract(bound, want),
			bind:   subtract(desired, have),
		}
	}
}

// applyPlan returns bound after p, sorted best first.
func applyPlan(bound []Candidate, p plan) []Candidate {
	out := subtract(bound, ids(p.unbind))
	for _, c := range p.bind {
		out = insertSorted(out, c)
	}
	return out
}
