package inject

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/extension/extensiontest"
	"github.com/platinummonkey/trellis/pkg/messages"
	"github.com/platinummonkey/trellis/pkg/reactive"
	"github.com/platinummonkey/trellis/pkg/settings"
)

type fixture struct {
	injector     *Injector
	bus          *messages.Bus
	store        *settings.Store
	connectivity *reactive.Value[bool]
	recorder     *recorder
}

type recorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorder) RecordRealization(kind, outcome string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, kind+":"+outcome)
}

func newFixture() *fixture {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f := &fixture{
		bus:          messages.NewBus(10, log),
		store:        settings.NewStore(settings.NewMemoryBackend(), log),
		connectivity: reactive.NewValue(true),
		recorder:     &recorder{},
	}
	f.injector = New(f.store, f.bus, f.connectivity, log, WithRecorder(f.recorder))
	return f
}

func meta(id string) extension.Metadata {
	return extension.Metadata{Kind: extension.KindMusic, ID: id, Name: id, Version: "1.0.0", Enabled: true}
}

func lazyOf(id string, inst extension.Extension) *extension.Lazy {
	return extension.NewLazy(extension.Key{Kind: extension.KindMusic, ID: id}, func(ctx context.Context) (extension.Extension, error) {
		return inst, nil
	})
}

func TestInject_StepOrder(t *testing.T) {
	f := newFixture()
	fake := extensiontest.New()

	wrapped := f.injector.Inject(extension.KindMusic, meta("a"), lazyOf("a", fake))
	assert.Empty(t, fake.Snapshot())

	inst, err := wrapped.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, fake, inst)

	assert.Equal(t, []string{
		"metadata",
		"messenger",
		"global_settings",
		"settings",
		"connectivity",
		"bridge",
		"initialize",
		"activated",
	}, fake.Snapshot())

	assert.Equal(t, "a", fake.Meta.ID)
	assert.Equal(t, "music:a", fake.Settings.(*settings.Settings).Scope())
	assert.Equal(t, settings.GlobalScope, fake.Global.(*settings.Settings).Scope())
	online, set := fake.Connectivity()
	assert.True(t, set)
	assert.True(t, online)
	assert.Equal(t, extension.Key{Kind: extension.KindMusic, ID: "a"}, fake.Bridge.Owner())
	assert.Equal(t, []string{"music:ready"}, f.recorder.outcomes)
}

func TestInject_SettingsAvailableDuringInitialize(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.store.Scope(extension.Key{Kind: extension.KindMusic, ID: "a"}).PutString("token", "abc"))

	var seen string
	inst := &settingsReader{onInit: func(s extension.Settings) {
		seen, _ = s.GetString("token")
	}}

	_, err := f.injector.Inject(extension.KindMusic, extension.Metadata{Kind: extension.KindMusic, ID: "a"}, extension.NewLazy(
		extension.Key{Kind: extension.KindMusic, ID: "a"},
		func(ctx context.Context) (extension.Extension, error) { return inst, nil },
	)).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", seen)
}

type settingsReader struct {
	settings extension.Settings
	onInit   func(extension.Settings)
}

func (p *settingsReader) SetSettings(s extension.Settings) { p.settings = s }

func (p *settingsReader) Initialize(ctx context.Context) error {
	p.onInit(p.settings)
	return nil
}

func TestInject_OfflineConnectivity(t *testing.T) {
	f := newFixture()
	f.connectivity.Set(false)
	fake := extensiontest.New()

	_, err := f.injector.Inject(extension.KindMusic, meta("a"), lazyOf("a", fake)).Get(context.Background())
	require.NoError(t, err)

	online, set := fake.Connectivity()
	assert.True(t, set)
	assert.False(t, online)
}

func TestInject_RecordsInjectedConnectivity(t *testing.T) {
	f := newFixture()
	f.connectivity.Set(false)

	wrapped := f.injector.Inject(extension.KindMusic, meta("a"), lazyOf("a", extensiontest.New()))
	_, ok := f.injector.InjectedConnectivity(wrapped)
	assert.False(t, ok, "nothing is recorded before realization")

	_, err := wrapped.Get(context.Background())
	require.NoError(t, err)

	online, ok := f.injector.InjectedConnectivity(wrapped)
	require.True(t, ok)
	assert.False(t, online)

	_, ok = f.injector.InjectedConnectivity(wrapped)
	assert.False(t, ok, "the record is consumed")

	plain := f.injector.Inject(extension.KindMusic, meta("p"), lazyOf("p", &extensiontest.Plain{}))
	_, err = plain.Get(context.Background())
	require.NoError(t, err)
	_, ok = f.injector.InjectedConnectivity(plain)
	assert.False(t, ok)
}

func TestInject_PlainExtensionOnlyGetsSettings(t *testing.T) {
	f := newFixture()
	plain := &extensiontest.Plain{}

	_, err := f.injector.Inject(extension.KindMisc, extension.Metadata{Kind: extension.KindMisc, ID: "p"}, extension.NewLazy(
		extension.Key{Kind: extension.KindMisc, ID: "p"},
		func(ctx context.Context) (extension.Extension, error) { return plain, nil },
	)).Get(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, plain.Settings)
	assert.Equal(t, 1, plain.Inits)
}

func TestInject_RunsOnce(t *testing.T) {
	f := newFixture()
	fake := extensiontest.New()
	wrapped := f.injector.Inject(extension.KindMusic, meta("a"), lazyOf("a", fake))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wrapped.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.InitCount())
	assert.Equal(t, 1, fake.ActivationCount())
}

func TestInject_ConstructorRunsOnceAcrossWrappers(t *testing.T) {
	f := newFixture()
	var constructed atomic.Int32
	underlying := extension.NewLazy(extension.Key{Kind: extension.KindMusic, ID: "a"}, func(ctx context.Context) (extension.Extension, error) {
		constructed.Add(1)
		return extensiontest.New(), nil
	})

	first := f.injector.Inject(extension.KindMusic, meta("a"), underlying)
	second := f.injector.Inject(extension.KindMusic, meta("a"), underlying)

	a, err := first.Get(context.Background())
	require.NoError(t, err)
	b, err := second.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), constructed.Load())
}

func TestInject_InitializeFailure(t *testing.T) {
	f := newFixture()
	sub := f.bus.Subscribe(4)
	defer sub.Close()

	fake := extensiontest.New()
	fake.FailInit = errors.New("no credentials")

	wrapped := f.injector.Inject(extension.KindMusic, meta("a"), lazyOf("a", fake))
	_, err := wrapped.Get(context.Background())
	require.Error(t, err)

	var loadErr *extension.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StageInitialize, loadErr.Stage)
	assert.Equal(t, extension.StateFailed, wrapped.State())
	assert.NotContains(t, fake.Snapshot(), "activated")

	select {
	case msg := <-sub.C:
		assert.Equal(t, messages.LevelError, msg.Level)
		assert.Equal(t, extension.Key{Kind: extension.KindMusic, ID: "a"}, msg.Source)
	case <-time.After(time.Second):
		t.Fatal("failure was not reported")
	}

	// not retried
	_, err = wrapped.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, len(filter(fake.Snapshot(), "initialize")))
	assert.Equal(t, []string{"music:failed"}, f.recorder.outcomes)
}

func TestInject_PanicInInitialize(t *testing.T) {
	f := newFixture()
	fake := extensiontest.New()
	fake.PanicOnInit = true

	_, err := f.injector.Inject(extension.KindMusic, meta("a"), lazyOf("a", fake)).Get(context.Background())

	var loadErr *extension.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StageInitialize, loadErr.Stage)
	assert.Contains(t, err.Error(), "fake initialize panic")
}

func TestInject_ActivateFailure(t *testing.T) {
	f := newFixture()
	fake := extensiontest.New()
	fake.FailActivate = errors.New("busy")

	_, err := f.injector.Inject(extension.KindMusic, meta("a"), lazyOf("a", fake)).Get(context.Background())

	var loadErr *extension.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StageActivate, loadErr.Stage)
}

func TestInject_ConstructorFailure(t *testing.T) {
	f := newFixture()
	underlying := extension.NewLazy(extension.Key{Kind: extension.KindMusic, ID: "a"}, func(ctx context.Context) (extension.Extension, error) {
		return nil, errors.New("bad binary")
	})

	_, err := f.injector.Inject(extension.KindMusic, meta("a"), underlying).Get(context.Background())

	var loadErr *extension.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, StageConstruct, loadErr.Stage)
	assert.ErrorContains(t, err, "bad binary")
}

func TestGuard(t *testing.T) {
	assert.NoError(t, Guard(func() error { return nil }))
	assert.EqualError(t, Guard(func() error { return errors.New("x") }), "x")
	assert.ErrorContains(t, Guard(func() error { panic("boom") }), "panic: boom")
}

func filter(calls []string, name string) []string {
	var out []string
	for _, c := range calls {
		if c == name {
			out = append(out, c)
		}
	}
	return out
}
