package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ComponentManifest) DeepCopyInto(out *ComponentManifest) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy copies the receiver, creating a new ComponentManifest.
func (in *ComponentManifest) DeepCopy() *ComponentManifest {
	if in == nil {
		return nil
	}
	out := new(ComponentManifest)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject copies the receiver, creating a new runtime.Object.
func (in *ComponentManifest) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ComponentManifestList) DeepCopyInto(out *ComponentManifestList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]ComponentManifest, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy copies the receiver, creating a new ComponentManifestList.
func (in *ComponentManifestList) DeepCopy() *ComponentManifestList {
	if in == nil {
		return nil
	}
	out := new(ComponentManifestList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject copies the receiver, creating a new runtime.Object.
func (in *ComponentManifestList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ComponentManifestSpec) DeepCopyInto(out *ComponentManifestSpec) {
	*out = *in
	if in.Provides != nil {
		out.Provides = new(ProvidedService)
		in.Provides.DeepCopyInto(out.Provides)
	}
	if in.References != nil {
		out.References = make([]ReferenceSpec, len(in.References))
		copy(out.References, in.References)
	}
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ProvidedService) DeepCopyInto(out *ProvidedService) {
	*out = *in
	if in.Interfaces != nil {
		out.Interfaces = make([]string, len(in.Interfaces))
		copy(out.Interfaces, in.Interfaces)
	}
	if in.Properties != nil {
		out.Properties = make(map[string]string, len(in.Properties))
		for k, v := range in.Properties {
			out.Properties[k] = v
		}
	}
}

// DeepCopyInto copies the receiver, writing into out. in must be non-nil.
func (in *ComponentManifestStatus) DeepCopyInto(out *ComponentManifestStatus) {
	*out = *in
	if in.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(in.Conditions))
		for i := range in.Conditions {
			in.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
	if in.References != nil {
		out.References = make([]ReferenceStatus, len(in.References))
		for i := range in.References {
			out.References[i] = in.References[i]
			if in.References[i].Bound != nil {
				out.References[i].Bound = make([]uint64, len(in.References[i].Bound))
				copy(out.References[i].Bound, in.References[i].Bound)
			}
		}
	}
}
