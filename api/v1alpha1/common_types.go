package v1alpha1

// NOTE: enum values are the lowercase names used in manifests. Empty means
// the documented default.

type ProviderScope string

type ReferencePolicy string

type ReferencePolicyOption string

type ReferenceScope string

const (
	ProviderScopeSingleton ProviderScope = "singleton"
	ProviderScopeBundle    ProviderScope = "bundle"
	ProviderScopePrototype ProviderScope = "prototype"

	ReferencePolicyStatic  ReferencePolicy = "static"
	ReferencePolicyDynamic ReferencePolicy = "dynamic"

	ReferencePolicyOptionReluctant ReferencePolicyOption = "reluctant"
	ReferencePolicyOptionGreedy    ReferencePolicyOption = "greedy"

	ReferenceScopeBundle            ReferenceScope = "bundle"
	ReferenceScopePrototype         ReferenceScope = "prototype"
	ReferenceScopePrototypeRequired ReferenceScope = "prototype_required"
)

const (
	CardinalityOptionalUnary     = "0..1"
	CardinalityMandatoryUnary    = "1..1"
	CardinalityOptionalMultiple  = "0..n"
	CardinalityMandatoryMultiple = "1..n"
)
