package reference

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Event is the kind of change a Notification reports.
type Event int

const (
	EventBecameSatisfied Event = iota
	EventBecameUnsatisfied
	// EventRebind reports a dynamic reluctant reference whose bound providers
	// changed while it stayed satisfied.
	EventRebind
)

func (e Event) String() string {
	switch e {
	case EventBecameSatisfied:
		return "BECAME_SATISFIED"
	case EventBecameUnsatisfied:
		return "BECAME_UNSATISFIED"
	case EventRebind:
		return "REBIND"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Notification is delivered to listeners after an evaluation changed the
// bound set. Unbound and Bound list what that evaluation released and bound.
// Generation is the manager generation the notification brings the listener to.
type Notification struct {
	Reference  string
	Event      Event
	Unbound    []Candidate
	Bound      []Candidate
	Generation int64
}

// notificationsFor derives what listeners see from one evaluation that started
// with before bound providers. Static and greedy references treat any change
// of the bound set as a rebind: UNSATISFIED (when it was satisfied) followed
// by SATISFIED (when it is). A dynamic reluctant reference reports the same
// pair when an unbind took it below its minimum, for instance a swap of the
// sole binding of a mandatory unary reference. Otherwise it reports the first
// bind as SATISFIED and churn while satisfied as REBIND.
func notificationsFor(d Descriptor, was, now bool, before int, unbound, bound []Candidate) []Notification {
	if len(unbound) == 0 && len(bound) == 0 {
		return nil
	}
	mk := func(e Event) Notification {
		return Notification{Reference: d.Name, Event: e, Unbound: unbound, Bound: bound}
	}

	dropped := was && before-len(unbound) < d.Cardinality.Min
	if d.Policy == PolicyStatic || d.PolicyOption == OptionGreedy || dropped {
		var out []Notification
		if was {
			out = append(out, mk(EventBecameUnsatisfied))
		}
		if now {
			out = append(out, mk(EventBecameSatisfied))
		}
		return out
	}

	switch {
	case !was && now:
		return []Notification{mk(EventBecameSatisfied)}
	case was && now:
		return []Notification{mk(EventRebind)}
	}
	return nil
}

const (
	ConditionSatisfied = "Satisfied"

	ReasonBound         = "Bound"
	ReasonOptional      = "Optional"
	ReasonNoCandidates  = "NoCandidates"
	ReasonNotAcquirable = "CandidatesNotAcquirable"
)

func satisfiedCondition(d Descriptor, satisfied bool, bound, candidates int) metav1.Condition {
	c := metav1.Condition{Type: ConditionSatisfied}
	switch {
	case satisfied && bound > 0:
		c.Status = metav1.ConditionTrue
		c.Reason = ReasonBound
		c.Message = fmt.Sprintf("%d of %d candidate(s) bound", bound, candidates)
	case satisfied:
		c.Status = metav1.ConditionTrue
		c.Reason = ReasonOptional
		c.Message = fmt.Sprintf("optional reference (%s) with nothing bound", d.Cardinality)
	case candidates == 0:
		c.Status = metav1.ConditionFalse
		c.Reason = ReasonNoCandidates
		c.Message = fmt.Sprintf("no provider of %q matches %q", d.Interface, d.FilterString())
	default:
		c.Status = metav1.ConditionFalse
		c.Reason = ReasonNotAcquirable
		c.Message = fmt.Sprintf("%d candidate(s) could not be acquired", candidates)
	}
	return c
}

func setCondition(conditions *[]metav1.Condition, generation int64, condition metav1.Condition) {
	condition.ObservedGeneration = generation
	meta.SetStatusCondition(conditions, condition)
}
