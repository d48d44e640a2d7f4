package reference

import (
	"fmt"
	"math"
	"strings"
)

// Unbounded is the maximum cardinality of a multiple reference ("n").
const Unbounded = math.MaxInt

// Cardinality bounds the number of bound providers.
type Cardinality struct {
	Min int
	Max int
}

var (
	OptionalUnary     = Cardinality{Min: 0, Max: 1}
	MandatoryUnary    = Cardinality{Min: 1, Max: 1}
	OptionalMultiple  = Cardinality{Min: 0, Max: Unbounded}
	MandatoryMultiple = Cardinality{Min: 1, Max: Unbounded}
)

func (c Cardinality) String() string {
	upper := "n"
	if c.Max != Unbounded {
		upper = fmt.Sprint(c.Max)
	}
	return fmt.Sprintf("%d..%s", c.Min, upper)
}

// ParseCardinality parses "0..1", "1..1", "0..n" and "1..n".
func ParseCardinality(raw string) (Cardinality, error) {
	switch strings.TrimSpace(raw) {
	case "0..1":
		return OptionalUnary, nil
	case "", "1..1":
		return MandatoryUnary, nil
	case "0..n":
		return OptionalMultiple, nil
	case "1..n":
		return MandatoryMultiple, nil
	}
	return Cardinality{}, fmt.Errorf("%w: cardinality %q", ErrInvalidArgument, raw)
}

// Policy decides whether a bound provider may be replaced while the consumer
// stays active.
type Policy int

const (
	// PolicyStatic bindings change only by deactivating the consumer.
	PolicyStatic Policy = iota
	// PolicyDynamic bindings change live.
	PolicyDynamic
)

func (p Policy) String() string {
	switch p {
	case PolicyStatic:
		return "static"
	case PolicyDynamic:
		return "dynamic"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "static":
		return PolicyStatic, nil
	case "dynamic":
		return PolicyDynamic, nil
	}
	return 0, fmt.Errorf("%w: policy %q", ErrInvalidArgument, raw)
}

// PolicyOption decides whether a better ranked provider displaces the
// current binding.
type PolicyOption int

const (
	OptionReluctant PolicyOption = iota
	OptionGreedy
)

func (o PolicyOption) String() string {
	switch o {
	case OptionReluctant:
		return "reluctant"
	case OptionGreedy:
		return "greedy"
	}
	return fmt.Sprintf("PolicyOption(%d)", int(o))
}

func ParsePolicyOption(raw string) (PolicyOption, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "reluctant":
		return OptionReluctant, nil
	case "greedy":
		return OptionGreedy, nil
	}
	return 0, fmt.Errorf("%w: policy option %q", ErrInvalidArgument, raw)
}

// ReferenceScope restricts which provider scopes may satisfy a reference.
type ReferenceScope int

const (
	// ReferenceScopeBundle accepts any provider; bundle and singleton
	// providers are shared per consumer.
	ReferenceScopeBundle ReferenceScope = iota
	// ReferenceScopeAny accepts any provider; prototype providers hand out a
	// fresh instance per acquisition. Manifests spell it "prototype", the
	// name of the matching reference scope in component descriptions.
	ReferenceScopeAny
	// ReferenceScopePrototypeRequired accepts prototype providers only.
	ReferenceScopePrototypeRequired
)

func (s ReferenceScope) String() string {
	switch s {
	case ReferenceScopeBundle:
		return "bundle"
	case ReferenceScopeAny:
		return "any"
	case ReferenceScopePrototypeRequired:
		return "prototype_required"
	}
	return fmt.Sprintf("ReferenceScope(%d)", int(s))
}

func ParseReferenceScope(raw string) (ReferenceScope, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "bundle":
		return ReferenceScopeBundle, nil
	case "prototype", "any":
		return ReferenceScopeAny, nil
	case "prototype_required":
		return ReferenceScopePrototypeRequired, nil
	}
	return 0, fmt.Errorf("%w: reference scope %q", ErrInvalidArgument, raw)
}

// Descriptor is the immutable declaration of one dependency of a component.
// A zero Cardinality means 1..1.
type Descriptor struct {
	Name         string
	Interface    string
	Target       string
	Cardinality  Cardinality
	Policy       Policy
	PolicyOption PolicyOption
	Scope        ReferenceScope
}

func (d Descriptor) IsOptional() bool { return d.Cardinality.Min == 0 }

func (d Descriptor) IsMultiple() bool { return d.Cardinality.Max > 1 }

func (d Descriptor) withDefaults() Descriptor {
	if d.Cardinality == (Cardinality{}) {
		d.Cardinality = MandatoryUnary
	}
	return d
}

// Validate checks the descriptor invariants.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: reference name is empty", ErrInvalidArgument)
	}
	c := d.Cardinality
	if c.Min != 0 && c.Min != 1 {
		return fmt.Errorf("%w: reference %q: minimum cardinality %d", ErrInvalidArgument, d.Name, c.Min)
	}
	if c.Max != 1 && c.Max != Unbounded {
		return fmt.Errorf("%w: reference %q: maximum cardinality %d", ErrInvalidArgument, d.Name, c.Max)
	}
	if d.Policy != PolicyStatic && d.Policy != PolicyDynamic {
		return fmt.Errorf("%w: reference %q: %v", ErrInvalidArgument, d.Name, d.Policy)
	}
	if d.PolicyOption != OptionReluctant && d.PolicyOption != OptionGreedy {
		return fmt.Errorf("%w: reference %q: %v", ErrInvalidArgument, d.Name, d.PolicyOption)
	}
	switch d.Scope {
	case ReferenceScopeBundle, ReferenceScopeAny, ReferenceScopePrototypeRequired:
	default:
		return fmt.Errorf("%w: reference %q: %v", ErrInvalidArgument, d.Name, d.Scope)
	}
	return nil
}

// FilterString combines the interface, the scope requirement and the target
// into the predicate handed to the registry.
func (d Descriptor) FilterString() string {
	parts := make([]string, 0, 3)
	if d.Interface != "" {
		parts = append(parts, fmt.Sprintf("(%s=%s)", PropObjectClass, escapeFilterValue(d.Interface)))
	}
	if d.Scope == ReferenceScopePrototypeRequired {
		parts = append(parts, fmt.Sprintf("(%s=%s)", PropServiceScope, ProviderScopePrototype))
	}
	if t := strings.TrimSpace(d.Target); t != "" {
		parts = append(parts, t)
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(&" + strings.Join(parts, "") + ")"
}

func escapeFilterValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `(`, `\(`, `)`, `\)`)
	return r.Replace(v)
}
