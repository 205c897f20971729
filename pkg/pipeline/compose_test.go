package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/discovery"
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/reactive"
)

func TestComposer_MergesInputs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := reactive.NewValue[[]extension.Result](nil)
	second := reactive.NewValue[[]extension.Result](nil)
	c := NewComposer(extension.KindMusic, nil, first, second)
	c.Start(ctx)
	c.Start(ctx)
	assert.Equal(t, extension.KindMusic, c.Kind())

	second.Set([]extension.Result{okResult("x", extension.ProvenanceBuiltIn, "builtin-x")})
	first.Set([]extension.Result{
		okResult("x", extension.ProvenanceSideloadedFile, "file-x"),
		okResult("y", extension.ProvenanceSideloadedFile, "file-y"),
	})

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"builtin-x", "file-y"}, refs(c.Output().Load()))
	}, 2*time.Second, 10*time.Millisecond)

	second.Set(nil)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"file-x", "file-y"}, refs(c.Output().Load()))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCompose_RunsPipelines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	builtin, err := discovery.NewBuiltinSource(discovery.Manifest{
		Kind: extension.KindMusic, ID: "a", Name: "A", Version: "1.0.0", Entrypoint: "fake",
	})
	require.NoError(t, err)

	files := newChanSource()
	c := Compose(ctx, extension.KindMusic, nil,
		newTestPipeline(builtin),
		newTestPipeline(files),
	)

	files.ch <- []discovery.Descriptor{manifest("a", "9.0.0"), manifest("b", "1.0.0")}

	require.Eventually(t, func() bool {
		out := c.Output().Load()
		return len(out) == 2 &&
			out[0].Metadata.Provenance == extension.ProvenanceBuiltIn &&
			out[1].Metadata.ID == "b"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestComposer_ReadyAfterEveryInputPublished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := reactive.NewValue[[]extension.Result](nil)
	second := reactive.NewValue[[]extension.Result](nil)
	c := NewComposer(extension.KindMusic, nil, first, second)
	c.Start(ctx)

	first.Set([]extension.Result{okResult("a", extension.ProvenanceBuiltIn, "a")})
	require.Eventually(t, func() bool {
		return len(c.Output().Load()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-c.Ready():
		t.Fatal("ready before the second input published")
	default:
	}

	second.Set(nil)
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("composer never became ready")
	}
	assert.Equal(t, []string{"a"}, refs(c.Output().Load()))
}

func TestComposer_ReadyWithoutInputs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewComposer(extension.KindMusic, nil)
	c.Start(ctx)
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("composer never became ready")
	}
}

func TestCompose_FailedSideloadDoesNotShadowBuiltin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	builtin, err := discovery.NewBuiltinSource(discovery.Manifest{
		Kind: extension.KindMusic, ID: "x", Name: "X", Version: "1.0.0", Entrypoint: "fake",
	})
	require.NoError(t, err)

	files := newChanSource()
	broken := manifest("x", "2.0.0")
	broken.Data = []byte("id: x\nname: x\nversion: 2.0.0\nentrypoint: missing\n")
	files.ch <- []discovery.Descriptor{broken}

	c := Compose(ctx, extension.KindMusic, nil, newTestPipeline(builtin), newTestPipeline(files))

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("composer never became ready")
	}
	out := c.Output().Load()
	require.Len(t, out, 1)
	assert.Equal(t, extension.ProvenanceBuiltIn, out[0].Metadata.Provenance)
	assert.False(t, out[0].Failed())
}
