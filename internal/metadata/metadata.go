// Package metadata loads component manifests and converts them into the
// descriptors the reference managers are built from.
package metadata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	scrv1alpha1 "github.com/bayleafwalker/bindery-scr/api/v1alpha1"
	"github.com/bayleafwalker/bindery-scr/internal/filter"
	"github.com/bayleafwalker/bindery-scr/internal/reference"
)

var ErrInvalidManifest = errors.New("invalid manifest")

var scheme = newScheme()

func newScheme() *runtime.Scheme {
	s := runtime.NewScheme()
	if err := scrv1alpha1.AddToScheme(s); err != nil {
		panic(err)
	}
	return s
}

// LoadFile reads every manifest in the YAML file at path.
func LoadFile(path string) ([]scrv1alpha1.ComponentManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	manifests, err := LoadManifests(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifests, nil
}

// LoadManifests decodes a multi-document YAML stream of ComponentManifest and
// ComponentManifestList objects. Unknown fields are rejected. Every manifest
// is validated and defaulted.
func LoadManifests(r io.Reader) ([]scrv1alpha1.ComponentManifest, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(r))
	out := make([]scrv1alpha1.ComponentManifest, 0)

	for n := 1; ; n++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read document %d: %w", n, err)
		}

		var probe map[string]any
		if err := yaml.Unmarshal(doc, &probe); err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidManifest, n, err)
		}
		if len(probe) == 0 {
			continue
		}

		var tm metav1.TypeMeta
		if err := yaml.Unmarshal(doc, &tm); err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidManifest, n, err)
		}
		obj, err := scheme.New(tm.GroupVersionKind())
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: unsupported kind %q in %q", ErrInvalidManifest, n, tm.Kind, tm.APIVersion)
		}
		if err := yaml.UnmarshalStrict(doc, obj); err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidManifest, n, err)
		}

		switch o := obj.(type) {
		case *scrv1alpha1.ComponentManifest:
			out = append(out, *o)
		case *scrv1alpha1.ComponentManifestList:
			out = append(out, o.Items...)
		}
	}

	seen := map[reference.ConfigurationID]string{}
	for i := range out {
		if err := Default(&out[i]); err != nil {
			return nil, err
		}
		id := ConfigurationID(out[i])
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: configuration %q declared by %q and %q", ErrInvalidManifest, id, prev, out[i].Name)
		}
		seen[id] = out[i].Name
	}
	return out, nil
}

// Default fills in defaults and validates m.
func Default(m *scrv1alpha1.ComponentManifest) error {
	spec := &m.Spec
	if strings.TrimSpace(spec.Component.Name) == "" {
		spec.Component.Name = m.Name
	}
	if strings.TrimSpace(spec.Component.Name) == "" {
		return fmt.Errorf("%w: component name is empty", ErrInvalidManifest)
	}
	if spec.Component.Configuration == "" {
		spec.Component.Configuration = m.Name
	}
	if spec.Component.Configuration == "" {
		spec.Component.Configuration = spec.Component.Name
	}

	if p := spec.Provides; p != nil {
		if len(p.Interfaces) == 0 {
			return fmt.Errorf("%w: component %q provides no interfaces", ErrInvalidManifest, spec.Component.Name)
		}
		if p.Scope == "" {
			p.Scope = scrv1alpha1.ProviderScopeSingleton
		}
		switch p.Scope {
		case scrv1alpha1.ProviderScopeSingleton, scrv1alpha1.ProviderScopeBundle, scrv1alpha1.ProviderScopePrototype:
		default:
			return fmt.Errorf("%w: component %q: provider scope %q", ErrInvalidManifest, spec.Component.Name, p.Scope)
		}
	}

	names := map[string]bool{}
	for _, ref := range spec.References {
		if names[ref.Name] {
			return fmt.Errorf("%w: component %q: duplicate reference %q", ErrInvalidManifest, spec.Component.Name, ref.Name)
		}
		names[ref.Name] = true
		if _, err := ReferenceDescriptor(ref); err != nil {
			return fmt.Errorf("%w: component %q: %w", ErrInvalidManifest, spec.Component.Name, err)
		}
	}
	return nil
}

// ReferenceDescriptor converts a manifest reference. Empty fields take the
// defaults 1..1, static, reluctant and bundle.
func ReferenceDescriptor(spec scrv1alpha1.ReferenceSpec) (reference.Descriptor, error) {
	if strings.TrimSpace(spec.Interface) == "" {
		return reference.Descriptor{}, fmt.Errorf("%w: reference %q has no interface", reference.ErrInvalidArgument, spec.Name)
	}
	card, err := reference.ParseCardinality(spec.Cardinality)
	if err != nil {
		return reference.Descriptor{}, err
	}
	policy, err := reference.ParsePolicy(string(spec.Policy))
	if err != nil {
		return reference.Descriptor{}, err
	}
	option, err := reference.ParsePolicyOption(string(spec.PolicyOption))
	if err != nil {
		return reference.Descriptor{}, err
	}
	scope, err := reference.ParseReferenceScope(string(spec.Scope))
	if err != nil {
		return reference.Descriptor{}, err
	}
	if spec.Target != "" {
		if _, err := filter.Compile(spec.Target); err != nil {
			return reference.Descriptor{}, fmt.Errorf("reference %q: %w", spec.Name, err)
		}
	}

	d := reference.Descriptor{
		Name:         spec.Name,
		Interface:    strings.TrimSpace(spec.Interface),
		Target:       strings.TrimSpace(spec.Target),
		Cardinality:  card,
		Policy:       policy,
		PolicyOption: option,
		Scope:        scope,
	}
	if err := d.Validate(); err != nil {
		return reference.Descriptor{}, err
	}
	return d, nil
}

func ConfigurationID(m scrv1alpha1.ComponentManifest) reference.ConfigurationID {
	return reference.ConfigurationID(m.Spec.Component.Configuration)
}

func ProviderScope(s scrv1alpha1.ProviderScope) reference.ProviderScope {
	if s == "" {
		return reference.ProviderScopeSingleton
	}
	return reference.ProviderScope(s)
}

// Properties converts manifest properties into filter properties.
func Properties(in map[string]string) filter.Properties {
	out := make(filter.Properties, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
