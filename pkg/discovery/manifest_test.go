package discovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/extension"
)

func yamlDescriptor(ref, body string) Descriptor {
	return Descriptor{
		Ref:         ref,
		Fingerprint: fingerprint([]byte(body)),
		Provenance:  extension.ProvenanceSideloadedFile,
		Data:        []byte(body),
	}
}

func TestManifestParser_Parse(t *testing.T) {
	p := NewManifestParser(extension.KindMusic, 0)

	meta, err := p.Parse(yamlDescriptor("/x/radio.musicext", `
kind: music
id: radio
name: Internet Radio
version: 1.2.0
author: someone
update_url: https://example.com/radio/releases
`))
	require.NoError(t, err)

	assert.Equal(t, extension.KindMusic, meta.Kind)
	assert.Equal(t, "radio", meta.ID)
	assert.Equal(t, "Internet Radio", meta.Name)
	assert.Equal(t, "1.2.0", meta.Version)
	assert.Equal(t, "radio", meta.Entrypoint)
	assert.Equal(t, "https://example.com/radio/releases", meta.UpdateEndpoint)
	assert.Equal(t, extension.ProvenanceSideloadedFile, meta.Provenance)
	assert.Equal(t, "/x/radio.musicext", meta.Ref)
	assert.True(t, meta.DefaultEnabled)
}

func TestManifestParser_KindDefaultsToParserKind(t *testing.T) {
	p := NewManifestParser(extension.KindLyrics, 0)

	meta, err := p.Parse(yamlDescriptor("a", "id: words\nname: Words\nversion: \"2\"\nenabled: false\n"))
	require.NoError(t, err)
	assert.Equal(t, extension.KindLyrics, meta.Kind)
	assert.False(t, meta.DefaultEnabled)
}

func TestManifestParser_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "not yaml", body: "id: [", message: "invalid manifest"},
		{name: "missing id", body: "name: A\nversion: 1.0.0\n", message: "extension id is required"},
		{name: "missing name", body: "id: a\nversion: 1.0.0\n", message: "extension name is required"},
		{name: "missing version", body: "id: a\nname: A\n", message: "version is required"},
		{name: "bad version", body: "id: a\nname: A\nversion: latest\n", message: "invalid version format"},
		{name: "bad id", body: "id: \"-a b\"\nname: A\nversion: 1.0.0\n", message: "invalid extension id"},
		{name: "wrong kind", body: "kind: tracker\nid: a\nname: A\nversion: 1.0.0\n", message: "expected music extension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewManifestParser(extension.KindMusic, 0)
			_, err := p.Parse(yamlDescriptor("ref-"+tt.name, tt.body))
			require.Error(t, err)

			var parseErr *extension.ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, extension.KindMusic, parseErr.Kind)
			assert.Equal(t, "ref-"+tt.name, parseErr.Ref)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestManifestParser_EmptyDescriptor(t *testing.T) {
	p := NewManifestParser(extension.KindMusic, 0)
	_, err := p.Parse(Descriptor{Ref: "empty"})
	assert.ErrorContains(t, err, "descriptor has no manifest")
}

func TestManifestParser_Attributes(t *testing.T) {
	p := NewManifestParser(extension.KindTracker, 0)

	meta, err := p.Parse(Descriptor{
		Ref:        "/pkgs/scrobbler",
		Provenance: extension.ProvenanceInstalledPackage,
		Attributes: map[string]string{
			AttrPackage:    "org.example.scrobbler",
			AttrKind:       "tracker",
			AttrLabel:      "Scrobbler",
			AttrVersion:    "0.3.1",
			AttrEntrypoint: "scrobbler",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "org.example.scrobbler", meta.ID)
	assert.Equal(t, "Scrobbler", meta.Name)
	assert.Equal(t, "scrobbler", meta.Entrypoint)
	assert.Equal(t, extension.ProvenanceInstalledPackage, meta.Provenance)
}

func TestManifestParser_AttributeEnabledMustBeBool(t *testing.T) {
	p := NewManifestParser(extension.KindTracker, 0)

	_, err := p.Parse(Descriptor{
		Ref: "/pkgs/x",
		Attributes: map[string]string{
			AttrPackage: "x", AttrKind: "tracker", AttrLabel: "X", AttrVersion: "1.0.0",
			AttrEnabled: "sometimes",
		},
	})
	assert.ErrorContains(t, err, "invalid enabled attribute")
}

func TestManifestParser_MemoizesByFingerprint(t *testing.T) {
	p := NewManifestParser(extension.KindMusic, 4)
	d := yamlDescriptor("a", "id: a\nname: A\nversion: 1.0.0\n")

	_, err := p.Parse(d)
	require.NoError(t, err)
	assert.Equal(t, 1, p.cache.Len())

	// same fingerprint serves the memoized result even if the payload is gone
	d.Data = nil
	meta, err := p.Parse(d)
	require.NoError(t, err)
	assert.Equal(t, "a", meta.ID)

	d.Fingerprint = "changed"
	_, err = p.Parse(d)
	assert.Error(t, err)
}

func TestValidateManifest(t *testing.T) {
	valid := Manifest{Kind: extension.KindMisc, ID: "tools", Name: "Tools", Version: "v1.0.0-beta.1"}
	assert.Empty(t, ValidateManifest(valid, extension.KindMisc))

	errs := ValidateManifest(Manifest{}, extension.KindMisc)
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"id", "name", "version", "kind"}, fields)
}
