package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/platinummonkey/trellis/pkg/extension"
)

// Descriptor is one raw, unparsed extension descriptor
type Descriptor struct {
	// Ref names the artifact: a package directory, a file path or a built-in id
	Ref string
	// Fingerprint changes whenever the artifact changes
	Fingerprint string
	Provenance  extension.Provenance
	// Attributes carries package metadata for installed packages
	Attributes map[string]string
	// Data carries an embedded manifest for built-ins and sideloaded files
	Data []byte
}

// Source watches one origin of descriptors
type Source interface {
	// Name identifies the source in logs
	Name() string
	// Watch emits the full descriptor list now and again after every change until
	// ctx is done, then closes the channel
	Watch(ctx context.Context) (<-chan []Descriptor, error)
}

func fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
