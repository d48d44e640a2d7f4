package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ComponentManifest declares a component configuration: the service it
// provides and the references it depends on.
//
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=cm
// +kubebuilder:printcolumn:name="Component",type=string,JSONPath=`.spec.component.name`
// +kubebuilder:printcolumn:name="Satisfied",type=string,JSONPath=`.status.conditions[?(@.type=="Satisfied")].status`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
type ComponentManifest struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ComponentManifestSpec   `json:"spec"`
	Status ComponentManifestStatus `json:"status,omitempty"`
}

type ComponentManifestSpec struct {
	Component  ComponentIdentity `json:"component"`
	Provides   *ProvidedService  `json:"provides,omitempty"`
	References []ReferenceSpec   `json:"references,omitempty"`
}

type ComponentIdentity struct {
	Name string `json:"name"`
	// Configuration identifies the component configuration. Defaults to the
	// manifest name.
	Configuration string `json:"configuration,omitempty"`
}

type ProvidedService struct {
	Interfaces []string          `json:"interfaces"`
	Scope      ProviderScope     `json:"scope,omitempty"`
	Ranking    int32             `json:"ranking,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type ReferenceSpec struct {
	Name      string `json:"name"`
	Interface string `json:"interface"`
	// Cardinality is one of 0..1, 1..1, 0..n, 1..n. Defaults to 1..1.
	Cardinality  string                `json:"cardinality,omitempty"`
	Policy       ReferencePolicy       `json:"policy,omitempty"`
	PolicyOption ReferencePolicyOption `json:"policyOption,omitempty"`
	Scope        ReferenceScope        `json:"scope,omitempty"`
	// Target is an LDAP-style filter over provider properties.
	Target string `json:"target,omitempty"`
}

type ComponentManifestStatus struct {
	Conditions []metav1.Condition `json:"conditions,omitempty"`
	References []ReferenceStatus  `json:"references,omitempty"`
}

type ReferenceStatus struct {
	Name       string   `json:"name"`
	Satisfied  bool     `json:"satisfied"`
	Candidates int32    `json:"candidates"`
	Bound      []uint64 `json:"bound,omitempty"`
}

// +kubebuilder:object:root=true
type ComponentManifestList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ComponentManifest `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ComponentManifest{}, &ComponentManifestList{})
}
