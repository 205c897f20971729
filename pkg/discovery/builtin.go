package discovery

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/trellis/pkg/extension"
)

// BuiltinSource emits a fixed set of manifests shipped with the host
type BuiltinSource struct {
	descriptors []Descriptor
}

// NewBuiltinSource encodes manifests as descriptors with BuiltIn provenance
func NewBuiltinSource(manifests ...Manifest) (*BuiltinSource, error) {
	descriptors := make([]Descriptor, 0, len(manifests))
	for _, m := range manifests {
		data, err := yaml.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode built-in manifest %s: %w", m.ID, err)
		}
		descriptors = append(descriptors, Descriptor{
			Ref:         "builtin:" + m.ID,
			Fingerprint: fingerprint(data),
			Provenance:  extension.ProvenanceBuiltIn,
			Data:        data,
		})
	}
	return &BuiltinSource{descriptors: descriptors}, nil
}

func (s *BuiltinSource) Name() string { return "builtin" }

// Watch emits the built-in list once; built-ins never change at runtime
func (s *BuiltinSource) Watch(ctx context.Context) (<-chan []Descriptor, error) {
	out := make(chan []Descriptor, 1)
	out <- append([]Descriptor(nil), s.descriptors...)

	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}
