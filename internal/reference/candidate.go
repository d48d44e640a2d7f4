package reference

import (
	"slices"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bayleafwalker/bindery-scr/internal/filter"
)

// Candidate is a provider currently eligible for a reference.
type Candidate struct {
	ID         ProviderID
	Ranking    int
	Owner      ConfigurationID
	Scope      ProviderScope
	Properties filter.Properties
}

func candidateFrom(md ProviderMetadata) Candidate {
	return Candidate{
		ID:         md.ID,
		Ranking:    md.Ranking,
		Owner:      md.Owner,
		Scope:      md.Scope,
		Properties: md.Properties,
	}
}

// Better reports whether c ranks before o: higher ranking first, then the
// earlier registration.
func (c Candidate) Better(o Candidate) bool {
	if c.Ranking != o.Ranking {
		return c.Ranking > o.Ranking
	}
	return c.ID < o.ID
}

// candidateSet is kept sorted best first.
type candidateSet struct {
	items []Candidate
}

func (s *candidateSet) index(id ProviderID) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *candidateSet) contains(id ProviderID) bool {
	return s.index(id) >= 0
}

// upsert reports whether membership or order changed. A property-only update
// is stored in place and reported as unchanged.
func (s *candidateSet) upsert(c Candidate) bool {
	if i := s.index(c.ID); i >= 0 {
		if s.items[i].Ranking == c.Ranking {
			s.items[i] = c
			return false
		}
		s.items = slices.Delete(s.items, i, i+1)
	}
	s.items = insertSorted(s.items, c)
	return true
}

func (s *candidateSet) remove(id ProviderID) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

func (s *candidateSet) snapshot() []Candidate {
	return slices.Clone(s.items)
}

// without returns the members not in excluded, preserving order.
func (s *candidateSet) without(excluded sets.Set[ProviderID]) []Candidate {
	if excluded.Len() == 0 {
		return s.items
	}
	out := make([]Candidate, 0, len(s.items))
	for _, c := range s.items {
		if !excluded.Has(c.ID) {
			out = append(out, c)
		}
	}
	return out
}

func insertSorted(list []Candidate, c Candidate) []Candidate {
	i := sort.Search(len(list), func(i int) bool { return c.Better(list[i]) })
	return slices.Insert(list, i, c)
}

func ids(list []Candidate) sets.Set[ProviderID] {
	out := sets.New[ProviderID]()
	for _, c := range list {
		out.Insert(c.ID)
	}
	return out
}

// subtract returns the members of list whose id is not in drop.
func subtract(list []Candidate, drop sets.Set[ProviderID]) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, c := range list {
		if !drop.Has(c.ID) {
			out = append(out, c)
		}
	}
	return out
}
