package extension

import "fmt"

// Provenance is the origin class of a discovered extension. Lower values take
// precedence when two sources report the same identity.
type Provenance int

const (
	ProvenanceBuiltIn Provenance = iota
	ProvenanceInstalledPackage
	ProvenanceSideloadedFile
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceBuiltIn:
		return "builtin"
	case ProvenanceInstalledPackage:
		return "package"
	case ProvenanceSideloadedFile:
		return "file"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// Key identifies a logical extension
type Key struct {
	Kind Kind
	ID   string
}

// String renders the key as "kind:id", the settings scope of the extension
func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Metadata describes one discovered extension. It is recreated on every discovery
// scan; two values with the same Key are the same logical extension.
type Metadata struct {
	Kind           Kind       `json:"kind"`
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Version        string     `json:"version"`
	Description    string     `json:"description,omitempty"`
	Author         string     `json:"author,omitempty"`
	IconURL        string     `json:"icon_url,omitempty"`
	Entrypoint     string     `json:"entrypoint"`
	UpdateEndpoint string     `json:"update_endpoint,omitempty"`
	DefaultEnabled bool       `json:"default_enabled"`
	Provenance     Provenance `json:"provenance"`
	Ref            string     `json:"ref,omitempty"`

	// Enabled and PriorityOrdinal are filled in by the registry
	Enabled         bool `json:"enabled"`
	PriorityOrdinal int  `json:"priority"`
}

// Key returns the identity of the extension
func (m Metadata) Key() Key {
	return Key{Kind: m.Kind, ID: m.ID}
}

// Result is one composed discovery outcome: either metadata with its lazily
// loadable instance, or a failure that keeps its place in the list.
type Result struct {
	Metadata Metadata
	Lazy     *Lazy
	Err      error
}

// Failed reports whether the result carries a parse or load failure
func (r Result) Failed() bool {
	return r.Err != nil
}

// Entry is one row of a registry list
type Entry struct {
	Metadata Metadata
	Lazy     *Lazy
	Err      error
}

// Key returns the identity of the entry
func (e Entry) Key() Key {
	return e.Metadata.Key()
}

// Usable reports whether the entry is enabled and did not fail discovery
func (e Entry) Usable() bool {
	return e.Err == nil && e.Lazy != nil && e.Metadata.Enabled
}
