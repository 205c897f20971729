package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/discovery"
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/extension/extensiontest"
)

// chanSource emits whatever the test pushes
type chanSource struct {
	ch chan []discovery.Descriptor
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan []discovery.Descriptor, 8)}
}

func (s *chanSource) Name() string { return "chan" }

func (s *chanSource) Watch(ctx context.Context) (<-chan []discovery.Descriptor, error) {
	return s.ch, nil
}

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Watch(ctx context.Context) (<-chan []discovery.Descriptor, error) {
	return nil, errors.New("no such directory")
}

func manifest(id, version string) discovery.Descriptor {
	body := fmt.Sprintf("id: %s\nname: %s\nversion: %s\nentrypoint: fake\n", id, id, version)
	return discovery.Descriptor{
		Ref:         "/ext/" + id + ".musicext",
		Fingerprint: id + "@" + version,
		Provenance:  extension.ProvenanceSideloadedFile,
		Data:        []byte(body),
	}
}

func fakeLoader() *Loader {
	loader := NewLoader(nil)
	loader.Register("fake", func(meta extension.Metadata) (extension.Extension, error) {
		return extensiontest.New(), nil
	})
	return loader
}

func newTestPipeline(src discovery.Source) *Pipeline {
	return New("test", extension.KindMusic, src, discovery.NewManifestParser(extension.KindMusic, 0), fakeLoader(), nil)
}

func TestPipeline_Resolve(t *testing.T) {
	p := newTestPipeline(newChanSource())

	results := p.Resolve([]discovery.Descriptor{
		manifest("a", "1.0.0"),
		{Ref: "/ext/broken.musicext", Fingerprint: "x", Data: []byte("id: [")},
		manifest("b", "1.0.0"),
	})

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Metadata.ID)
	assert.NotNil(t, results[0].Lazy)
	assert.True(t, results[1].Failed())
	assert.Equal(t, "/ext/broken.musicext", results[1].Metadata.Ref)
	assert.Equal(t, extension.KindMusic, results[1].Metadata.Kind)
	assert.Equal(t, "b", results[2].Metadata.ID)
}

func TestPipeline_ResolveUnknownEntrypoint(t *testing.T) {
	p := newTestPipeline(newChanSource())

	results := p.Resolve([]discovery.Descriptor{{
		Ref:         "/ext/x.musicext",
		Fingerprint: "x",
		Data:        []byte("id: x\nname: X\nversion: 1.0.0\nentrypoint: missing\n"),
	}})
	require.Len(t, results, 1)

	var loadErr *extension.LoadError
	assert.ErrorAs(t, results[0].Err, &loadErr)
	assert.Equal(t, "x", results[0].Metadata.ID)
}

func TestPipeline_ReusesUnchangedLazies(t *testing.T) {
	p := newTestPipeline(newChanSource())

	first := p.Resolve([]discovery.Descriptor{manifest("a", "1.0.0"), manifest("b", "1.0.0")})
	second := p.Resolve([]discovery.Descriptor{manifest("a", "1.0.0"), manifest("b", "1.1.0"), manifest("c", "1.0.0")})

	assert.Same(t, first[0].Lazy, second[0].Lazy)
	assert.NotSame(t, first[1].Lazy, second[1].Lazy)
	assert.Equal(t, "1.1.0", second[1].Metadata.Version)

	// removed and re-added extensions get a fresh instance
	third := p.Resolve([]discovery.Descriptor{manifest("b", "1.1.0")})
	fourth := p.Resolve([]discovery.Descriptor{manifest("a", "1.0.0"), manifest("b", "1.1.0")})
	assert.Same(t, second[1].Lazy, third[0].Lazy)
	assert.NotSame(t, first[0].Lazy, fourth[0].Lazy)
}

func TestPipeline_DuplicateIDWithinSource(t *testing.T) {
	p := newTestPipeline(newChanSource())

	dup := manifest("a", "1.0.0")
	dup.Ref = "/ext/a-copy.musicext"
	dup.Fingerprint = "other"

	results := p.Resolve([]discovery.Descriptor{manifest("a", "1.0.0"), dup})
	require.Len(t, results, 2)
	assert.Same(t, results[0].Lazy, results[1].Lazy)
	assert.Len(t, Merge(results), 1)
}

func TestPipeline_Run(t *testing.T) {
	src := newChanSource()
	p := newTestPipeline(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	src.ch <- []discovery.Descriptor{manifest("a", "1.0.0")}
	require.Eventually(t, func() bool { return len(p.Results().Load()) == 1 }, 2*time.Second, 10*time.Millisecond)

	src.ch <- []discovery.Descriptor{manifest("a", "1.0.0"), manifest("b", "1.0.0")}
	require.Eventually(t, func() bool { return len(p.Results().Load()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestPipeline_RunWatchError(t *testing.T) {
	p := newTestPipeline(failingSource{})
	err := p.Run(context.Background())
	assert.ErrorContains(t, err, "no such directory")

	results, version := p.Results().Get()
	assert.Empty(t, results)
	assert.Equal(t, uint64(1), version)
}
