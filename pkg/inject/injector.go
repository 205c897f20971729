// Package inject supplies collaborators to extension instances on first
// realization.
//
// Steps run strictly in this order and at most once per instance:
//
//  1. metadata               MetadataAware
//  2. message channel        MessageAware
//  3. global settings        GlobalSettingsAware, then the "kind:id" settings handle
//  4. connectivity           ConnectivityAware
//  5. UI bridge              BridgeAware
//  6. Initialize
//  7. OnActivated            Activatable
//
// A failing or panicking step fails the wrapped Lazy with a *extension.LoadError
// naming the step. The failure is reported to the message channel and is not
// retried; a new discovery cycle produces a new Lazy.
package inject

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/reactive"
	"github.com/platinummonkey/trellis/pkg/settings"
)

const tracerName = "github.com/platinummonkey/trellis/pkg/inject"

// Step names used as LoadError stages
const (
	StageConstruct    = "construct"
	StageMetadata     = "metadata"
	StageMessenger    = "messenger"
	StageSettings     = "settings"
	StageConnectivity = "connectivity"
	StageBridge       = "bridge"
	StageInitialize   = "initialize"
	StageActivate     = "activate"
)

// Recorder observes realization outcomes
type Recorder interface {
	RecordRealization(kind, outcome string, duration time.Duration)
}

// Injector wraps lazies so their instances are fully wired before anybody sees them
type Injector struct {
	store        *settings.Store
	messenger    extension.Messenger
	connectivity *reactive.Value[bool]
	bridges      *extension.BridgeHost
	recorder     Recorder
	tracer       trace.Tracer
	log          *logrus.Logger

	// connectivity handed to each realized wrapper, keyed by the wrapper
	injected sync.Map
}

// Option configures an Injector
type Option func(*Injector)

// WithBridgeHost supplies UI bridges to BridgeAware extensions
func WithBridgeHost(host *extension.BridgeHost) Option {
	return func(i *Injector) { i.bridges = host }
}

// WithRecorder records realization metrics
func WithRecorder(r Recorder) Option {
	return func(i *Injector) { i.recorder = r }
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(i *Injector) { i.tracer = t }
}

// New creates an injector. connectivity is read at realization time.
func New(store *settings.Store, messenger extension.Messenger, connectivity *reactive.Value[bool], log *logrus.Logger, opts ...Option) *Injector {
	if log == nil {
		log = logrus.New()
	}
	i := &Injector{
		store:        store,
		messenger:    messenger,
		connectivity: connectivity,
		bridges:      extension.NewBridgeHost(nil),
		tracer:       otel.Tracer(tracerName),
		log:          log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inject returns a Lazy that realizes the underlying one and then runs the
// injection steps. The underlying Lazy is shared; the returned one is not, so
// callers should memoize it per underlying instance.
func (i *Injector) Inject(kind extension.Kind, meta extension.Metadata, lazy *extension.Lazy) *extension.Lazy {
	key := extension.Key{Kind: kind, ID: meta.ID}

	var wrapper *extension.Lazy
	wrapper = extension.NewLazy(key, func(ctx context.Context) (extension.Extension, error) {
		ctx, span := i.tracer.Start(ctx, "extension.realize", trace.WithAttributes(
			attribute.String("extension.kind", string(kind)),
			attribute.String("extension.id", meta.ID),
			attribute.String("extension.provenance", meta.Provenance.String()),
		))
		defer span.End()

		start := time.Now()
		inst, err := i.realize(ctx, wrapper, key, meta, lazy)
		elapsed := time.Since(start)

		outcome := "ready"
		if err != nil {
			outcome = "failed"
			i.injected.Delete(wrapper)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			i.log.WithError(err).WithField("extension", key.String()).Error("Extension failed to load")
			if i.messenger != nil {
				i.messenger.Report(key, err)
			}
		} else {
			i.log.WithField("extension", key.String()).Debugf("Extension ready in %s", elapsed)
		}
		if i.recorder != nil {
			i.recorder.RecordRealization(string(kind), outcome, elapsed)
		}
		return inst, err
	})
	return wrapper
}

// InjectedConnectivity returns the connectivity state wrapper's instance received
// during injection. The record is consumed by the first call.
func (i *Injector) InjectedConnectivity(wrapper *extension.Lazy) (bool, bool) {
	v, ok := i.injected.LoadAndDelete(wrapper)
	if !ok {
		return false, false
	}
	return v.(bool), true
}

func (i *Injector) realize(ctx context.Context, wrapper *extension.Lazy, key extension.Key, meta extension.Metadata, lazy *extension.Lazy) (extension.Extension, error) {
	inst, err := lazy.Get(ctx)
	if err != nil {
		var loadErr *extension.LoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, &extension.LoadError{Key: key, Stage: StageConstruct, Err: err}
	}

	steps := []struct {
		stage string
		run   func() error
	}{
		{StageMetadata, func() error {
			if aware, ok := inst.(extension.MetadataAware); ok {
				aware.SetMetadata(meta)
			}
			return nil
		}},
		{StageMessenger, func() error {
			if aware, ok := inst.(extension.MessageAware); ok && i.messenger != nil {
				aware.SetMessenger(i.messenger)
			}
			return nil
		}},
		{StageSettings, func() error {
			if i.store == nil {
				return errors.New("no settings store")
			}
			if aware, ok := inst.(extension.GlobalSettingsAware); ok {
				aware.SetGlobalSettings(i.store.Global())
			}
			inst.SetSettings(i.store.Scope(key))
			return nil
		}},
		{StageConnectivity, func() error {
			if aware, ok := inst.(extension.ConnectivityAware); ok && i.connectivity != nil {
				online := i.connectivity.Load()
				aware.SetConnectivity(online)
				i.injected.Store(wrapper, online)
			}
			return nil
		}},
		{StageBridge, func() error {
			if aware, ok := inst.(extension.BridgeAware); ok && i.bridges != nil {
				aware.SetBridge(i.bridges.Bind(key))
			}
			return nil
		}},
		{StageInitialize, func() error {
			return inst.Initialize(ctx)
		}},
		{StageActivate, func() error {
			if aware, ok := inst.(extension.Activatable); ok {
				return aware.OnActivated(ctx)
			}
			return nil
		}},
	}

	for _, step := range steps {
		if err := Guard(step.run); err != nil {
			return nil, &extension.LoadError{Key: key, Stage: step.stage, Err: err}
		}
	}
	return inst, nil
}

// Guard runs fn and turns a panic into an error. Every call into extension code
// goes through it.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
