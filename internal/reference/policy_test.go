package reference

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawDescriptor(t *rapid.T) Descriptor {
	return Descriptor{
		Name:         "ref",
		Interface:    "foo.Bar",
		Cardinality:  rapid.SampledFrom([]Cardinality{OptionalUnary, MandatoryUnary, OptionalMultiple, MandatoryMultiple}).Draw(t, "cardinality"),
		Policy:       rapid.SampledFrom([]Policy{PolicyStatic, PolicyDynamic}).Draw(t, "policy"),
		PolicyOption: rapid.SampledFrom([]PolicyOption{OptionReluctant, OptionGreedy}).Draw(t, "option"),
	}
}

// drawState returns a sorted candidate set and a bound set that may hold
// providers which already left the candidate set.
func drawState(t *rapid.T, d Descriptor) (candidates, bound []Candidate) {
	n := rapid.IntRange(0, 6).Draw(t, "candidates")
	for i := 0; i < n; i++ {
		c := Candidate{ID: ProviderID(i + 1), Ranking: rapid.IntRange(-2, 2).Draw(t, fmt.Sprintf("ranking-%d", i))}
		candidates = insertSorted(candidates, c)
	}

	pool := append([]Candidate{}, candidates...)
	stale := rapid.IntRange(0, 2).Draw(t, "stale")
	for i := 0; i < stale; i++ {
		pool = append(pool, Candidate{ID: ProviderID(100 + i)})
	}
	for i, c := range pool {
		if len(bound) >= d.Cardinality.Max {
			break
		}
		if rapid.Bool().Draw(t, fmt.Sprintf("bound-%d", i)) {
			bound = insertSorted(bound, c)
		}
	}
	return candidates, bound
}

func TestPlanBindings_Invariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := drawDescriptor(t)
		candidates, bound := drawState(t, d)

		p := planBindings(d, bound, candidates)
		next := applyPlan(bound, p)

		if len(next) > d.Cardinality.Max {
			t.Fatalf("bound %d providers, max %d", len(next), d.Cardinality.Max)
		}
		eligible := ids(candidates)
		for _, c := range next {
			if !eligible.Has(c.ID) {
				t.Fatalf("provider %d bound but not a candidate", c.ID)
			}
		}
		if !sort.SliceIsSorted(next, func(i, j int) bool { return next[i].Better(next[j]) }) {
			t.Fatalf("bound set not ordered: %v", next)
		}
		if again := planBindings(d, next, candidates); !again.empty() {
			t.Fatalf("second evaluation not a no-op: %+v", again)
		}
	})
}

func TestPlanBindings_TracksBestUnlessStaticReluctant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := drawDescriptor(t)
		if d.Policy == PolicyStatic {
			// static reluctant keeps what it has
			d.PolicyOption = OptionGreedy
		}
		candidates, bound := drawState(t, d)

		next := applyPlan(bound, planBindings(d, bound, candidates))
		if !sameMembers(next, best(candidates, d.Cardinality.Max)) {
			t.Fatalf("bound %v, want best of %v", next, candidates)
		}
	})
}

func TestPlanBindings_StaticReluctant(t *testing.T) {
	d := Descriptor{Name: "ref", Cardinality: MandatoryUnary}
	low := Candidate{ID: 1, Ranking: 0}
	high := Candidate{ID: 2, Ranking: 10}

	// a better candidate does not displace the binding
	p := planBindings(d, []Candidate{low}, []Candidate{high, low})
	require.True(t, p.empty())

	// the bound candidate left: rebind to the best remaining
	p = planBindings(d, []Candidate{low}, []Candidate{high})
	require.Equal(t, []Candidate{low}, p.unbind)
	require.Equal(t, []Candidate{high}, p.bind)

	// unbound and a candidate exists
	p = planBindings(d, nil, []Candidate{high, low})
	require.Empty(t, p.unbind)
	require.Equal(t, []Candidate{high}, p.bind)

	// optional and unbound: nothing to do
	d.Cardinality = OptionalUnary
	require.True(t, planBindings(d, nil, []Candidate{high}).empty())
}

func TestPlanBindings_StaticGreedySwapsWholeSet(t *testing.T) {
	d := Descriptor{Name: "ref", Cardinality: MandatoryUnary, PolicyOption: OptionGreedy}
	low := Candidate{ID: 1, Ranking: 0}
	high := Candidate{ID: 2, Ranking: 10}

	p := planBindings(d, []Candidate{low}, []Candidate{high, low})
	require.Equal(t, []Candidate{low}, p.unbind)
	require.Equal(t, []Candidate{high}, p.bind)
}

func TestPlanBindings_DynamicReluctantMultipleKeepsBindings(t *testing.T) {
	d := Descriptor{Name: "ref", Cardinality: OptionalMultiple, Policy: PolicyDynamic}
	a := Candidate{ID: 1, Ranking: 0}
	b := Candidate{ID: 2, Ranking: 5}
	gone := Candidate{ID: 3, Ranking: 9}

	p := planBindings(d, []Candidate{gone, a}, []Candidate{b, a})
	require.Equal(t, []Candidate{gone}, p.unbind)
	require.Equal(t, []Candidate{b}, p.bind)
}
