package discovery

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/trellis/pkg/extension"
)

var (
	versionRegex = regexp.MustCompile(`^v?\d+(\.\d+){0,2}(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
	idRegex      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,254}$`)
)

// Manifest is the embedded descriptor of built-in and sideloaded extensions
type Manifest struct {
	Kind        extension.Kind `yaml:"kind"`
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Version     string         `yaml:"version"`
	Description string         `yaml:"description,omitempty"`
	Author      string         `yaml:"author,omitempty"`
	IconURL     string         `yaml:"icon_url,omitempty"`
	Entrypoint  string         `yaml:"entrypoint,omitempty"`
	UpdateURL   string         `yaml:"update_url,omitempty"`
	Enabled     *bool          `yaml:"enabled,omitempty"`
}

// ValidationError describes one invalid manifest field
type ValidationError struct {
	Field   string
	Message string
}

func (v ValidationError) Error() string {
	return v.Field + ": " + v.Message
}

// Parser turns raw descriptors into metadata
type Parser interface {
	Parse(d Descriptor) (extension.Metadata, error)
}

type parsed struct {
	meta extension.Metadata
	err  error
}

// ManifestParser parses descriptors for one capability kind
type ManifestParser struct {
	kind  extension.Kind
	cache *lru.Cache[string, parsed]
}

// NewManifestParser creates a parser that memoizes up to cacheSize descriptors
func NewManifestParser(kind extension.Kind, cacheSize int) *ManifestParser {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	// lru.New only fails for non-positive sizes
	cache, _ := lru.New[string, parsed](cacheSize)
	return &ManifestParser{kind: kind, cache: cache}
}

// Parse returns the descriptor's metadata or a *extension.ParseError
func (p *ManifestParser) Parse(d Descriptor) (extension.Metadata, error) {
	cacheKey := ""
	if d.Fingerprint != "" {
		cacheKey = d.Ref + "@" + d.Fingerprint
		if hit, ok := p.cache.Get(cacheKey); ok {
			return hit.meta, hit.err
		}
	}

	meta, err := p.parse(d)
	if err != nil {
		err = &extension.ParseError{Kind: p.kind, Ref: d.Ref, Err: err}
	}
	if cacheKey != "" {
		p.cache.Add(cacheKey, parsed{meta: meta, err: err})
	}
	return meta, err
}

func (p *ManifestParser) parse(d Descriptor) (extension.Metadata, error) {
	var m Manifest
	switch {
	case len(d.Data) > 0:
		if err := yaml.Unmarshal(d.Data, &m); err != nil {
			return extension.Metadata{}, fmt.Errorf("invalid manifest: %w", err)
		}
	case len(d.Attributes) > 0:
		var err error
		m, err = manifestFromAttributes(d.Attributes)
		if err != nil {
			return extension.Metadata{}, err
		}
	default:
		return extension.Metadata{}, errors.New("descriptor has no manifest")
	}

	if m.Kind == "" {
		m.Kind = p.kind
	}
	if errs := ValidateManifest(m, p.kind); len(errs) > 0 {
		return extension.Metadata{}, errors.Join(toErrors(errs)...)
	}

	entrypoint := m.Entrypoint
	if entrypoint == "" {
		entrypoint = m.ID
	}
	enabled := true
	if m.Enabled != nil {
		enabled = *m.Enabled
	}

	return extension.Metadata{
		Kind:           m.Kind,
		ID:             m.ID,
		Name:           m.Name,
		Version:        m.Version,
		Description:    m.Description,
		Author:         m.Author,
		IconURL:        m.IconURL,
		Entrypoint:     entrypoint,
		UpdateEndpoint: m.UpdateURL,
		DefaultEnabled: enabled,
		Provenance:     d.Provenance,
		Ref:            d.Ref,
	}, nil
}

func toErrors(errs []ValidationError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// manifestFromAttributes reads the package metadata attributes written by
// PackageSource
func manifestFromAttributes(attrs map[string]string) (Manifest, error) {
	m := Manifest{
		Kind:        extension.Kind(attrs[AttrKind]),
		ID:          attrs[AttrID],
		Name:        attrs[AttrLabel],
		Version:     attrs[AttrVersion],
		Description: attrs[AttrDescription],
		Author:      attrs[AttrAuthor],
		IconURL:     attrs[AttrIcon],
		Entrypoint:  attrs[AttrEntrypoint],
		UpdateURL:   attrs[AttrUpdateURL],
	}
	if m.ID == "" {
		m.ID = attrs[AttrPackage]
	}
	if raw, ok := attrs[AttrEnabled]; ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return Manifest{}, fmt.Errorf("invalid %s attribute %q", AttrEnabled, raw)
		}
		m.Enabled = &enabled
	}
	return m, nil
}

// ValidateManifest checks required fields, formats and that the manifest belongs
// to kind
func ValidateManifest(m Manifest, kind extension.Kind) []ValidationError {
	var errs []ValidationError

	if m.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "extension id is required"})
	} else if !idRegex.MatchString(m.ID) {
		errs = append(errs, ValidationError{Field: "id", Message: fmt.Sprintf("invalid extension id: %s", m.ID)})
	}

	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "extension name is required"})
	}

	if m.Version == "" {
		errs = append(errs, ValidationError{Field: "version", Message: "version is required"})
	} else if !versionRegex.MatchString(m.Version) {
		errs = append(errs, ValidationError{Field: "version", Message: fmt.Sprintf("invalid version format: %s", m.Version)})
	}

	if m.Kind != kind {
		errs = append(errs, ValidationError{Field: "kind", Message: fmt.Sprintf("expected %s extension, got %q", kind, m.Kind)})
	}

	return errs
}
