package reference

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Status is a diagnostics snapshot of a Manager.
type Status struct {
	Name         string
	Interface    string
	Filter       string
	Consumer     ConfigurationID
	Cardinality  Cardinality
	Policy       Policy
	PolicyOption PolicyOption
	Satisfied    bool
	Candidates   []Candidate
	Bound        []Candidate
	Listeners    int
	Conditions   []metav1.Condition
	Generation   int64
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conditions := make([]metav1.Condition, len(m.conditions))
	copy(conditions, m.conditions)
	return Status{
		Name:         m.desc.Name,
		Interface:    m.desc.Interface,
		Filter:       m.filter,
		Consumer:     m.consumer,
		Cardinality:  m.desc.Cardinality,
		Policy:       m.desc.Policy,
		PolicyOption: m.desc.PolicyOption,
		Satisfied:    m.satisfiedLocked(),
		Candidates:   m.tracker.set.snapshot(),
		Bound:        cloneCandidates(m.bound),
		Listeners:    m.listeners.len(),
		Conditions:   conditions,
		Generation:   m.generation,
	}
}

// updateStatusLocked refreshes the Satisfied condition and the unsatisfied gauge.
func (m *Manager) updateStatusLocked() {
	setCondition(&m.conditions, m.generation, satisfiedCondition(
		m.desc,
		m.satisfiedLocked(),
		len(m.bound),
		len(m.tracker.set.items),
	))
	m.reportLocked()
}

func (m *Manager) reportLocked() {
	unsatisfied := !m.closed.Load() && !m.satisfiedLocked()
	if unsatisfied == m.countedUnsatisfied {
		return
	}
	if unsatisfied {
		referenceUnsatisfied.Inc()
	} else {
		referenceUnsatisfied.Dec()
	}
	m.countedUnsatisfied = unsatisfied
}
