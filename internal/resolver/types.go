package resolver

import (
	scrv1alpha1 "github.com/bayleafwalker/bindery-scr/api/v1alpha1"
	"github.com/bayleafwalker/bindery-scr/internal/reference"
)

// Input is the set of manifests to resolve, in publication order.
type Input struct {
	Manifests []scrv1alpha1.ComponentManifest
}

// Plan is the predicted outcome.
type Plan struct {
	Bindings    []Binding
	Diagnostics Diagnostics
	// Roots are configurations no other configuration binds to.
	Roots []reference.ConfigurationID
}

// Binding is one predicted binding of a consumer's reference.
type Binding struct {
	Consumer  reference.ConfigurationID
	Reference string
	Provider  reference.ConfigurationID
	Ranking   int
}

// Diagnostics captures the references no declared provider can satisfy.
type Diagnostics struct {
	UnresolvedRequired []UnresolvedReference
	UnresolvedOptional []UnresolvedReference
}

type UnresolvedReference struct {
	Consumer  reference.ConfigurationID
	Reference string
	Interface string
	Reason    string
}
