// Package builtin registers the extensions shipped with the host.
package builtin

import (
	"github.com/platinummonkey/trellis/pkg/builtin/localfiles"
	"github.com/platinummonkey/trellis/pkg/discovery"
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/pipeline"
)

// Options configures the shipped extensions
type Options struct {
	// MusicDir is the default library root of the local files extension
	MusicDir string
}

// Register binds the factories of every shipped extension to loader
func Register(loader *pipeline.Loader, opts Options) {
	loader.Register(localfiles.Entrypoint, localfiles.Factory(opts.MusicDir))
}

// Manifests returns the shipped manifests of kind
func Manifests(kind extension.Kind) []discovery.Manifest {
	var out []discovery.Manifest
	for _, m := range []discovery.Manifest{localfiles.Manifest()} {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
