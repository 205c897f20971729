package extension_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/extension/extensiontest"
)

func TestParseKind(t *testing.T) {
	k, err := extension.ParseKind(" Music ")
	require.NoError(t, err)
	assert.Equal(t, extension.KindMusic, k)

	_, err = extension.ParseKind("video")
	assert.Error(t, err)
}

func TestKind_Naming(t *testing.T) {
	assert.Equal(t, ".lyricsext", extension.KindLyrics.FileSuffix())
	assert.Equal(t, "trellis.tracker_extension", extension.KindTracker.Marker("trellis"))
}

func TestKind_Accepts(t *testing.T) {
	fake := extensiontest.New()
	plain := &extensiontest.Plain{}

	assert.True(t, extension.KindMusic.Accepts(fake))
	assert.True(t, extension.KindTracker.Accepts(fake))
	assert.True(t, extension.KindLyrics.Accepts(fake))
	assert.True(t, extension.KindMisc.Accepts(plain))

	assert.False(t, extension.KindMusic.Accepts(plain))
	assert.False(t, extension.Kind("video").Accepts(fake))
}

func TestKey_String(t *testing.T) {
	key := extension.Key{Kind: extension.KindMusic, ID: "deezer"}
	assert.Equal(t, "music:deezer", key.String())
}

func TestProvenance_String(t *testing.T) {
	assert.Equal(t, "builtin", extension.ProvenanceBuiltIn.String())
	assert.Equal(t, "package", extension.ProvenanceInstalledPackage.String())
	assert.Equal(t, "file", extension.ProvenanceSideloadedFile.String())
}

func TestSourceOf(t *testing.T) {
	key := extension.Key{Kind: extension.KindLyrics, ID: "lrc"}

	tests := []struct {
		name string
		err  error
		want extension.Key
		ok   bool
	}{
		{"load", &extension.LoadError{Key: key, Err: errors.New("x")}, key, true},
		{"update", &extension.UpdateError{Key: key, Stage: "downloading", Err: errors.New("x")}, key, true},
		{"missing", &extension.RequiredExtensionsMissingError{Dependent: key, Kind: extension.KindMusic, Missing: []string{"a"}}, key, true},
		{"parse", &extension.ParseError{Kind: extension.KindLyrics, Ref: "lrc", Err: errors.New("x")}, key, true},
		{"plain", errors.New("x"), extension.Key{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extension.SourceOf(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiredExtensionsMissingError_Message(t *testing.T) {
	err := &extension.RequiredExtensionsMissingError{
		Dependent: extension.Key{Kind: extension.KindTracker, ID: "scrobbler"},
		Kind:      extension.KindMusic,
		Missing:   []string{"x", "y"},
	}
	assert.Equal(t, "extension tracker:scrobbler requires music extensions that are not available: x, y", err.Error())
}
