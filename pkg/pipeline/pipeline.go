package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/discovery"
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/reactive"
)

type loaded struct {
	fingerprint string
	provenance  extension.Provenance
	lazy        *extension.Lazy
}

// Pipeline turns one source's descriptors into results of one kind
type Pipeline struct {
	Name   string
	Kind   extension.Kind
	Source discovery.Source
	Parser discovery.Parser
	Loader *Loader

	results *reactive.Value[[]extension.Result]
	// previous scan's lazies; only touched by the Run goroutine
	previous map[extension.Key]loaded
	log      *logrus.Logger
}

// New creates a pipeline. It publishes nothing until Run is called.
func New(name string, kind extension.Kind, source discovery.Source, parser discovery.Parser, loader *Loader, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	return &Pipeline{
		Name:     name,
		Kind:     kind,
		Source:   source,
		Parser:   parser,
		Loader:   loader,
		results:  reactive.NewValue[[]extension.Result](nil),
		previous: make(map[extension.Key]loaded),
		log:      log,
	}
}

// Results is the pipeline's published output
func (p *Pipeline) Results() *reactive.Value[[]extension.Result] {
	return p.results
}

// Run watches the source until ctx is done. When the source cannot be watched an
// empty list is published so consumers waiting on a first list are not stalled.
func (p *Pipeline) Run(ctx context.Context) error {
	updates, err := p.Source.Watch(ctx)
	if err != nil {
		p.results.Set(nil)
		return fmt.Errorf("failed to watch %s: %w", p.Source.Name(), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case descriptors, ok := <-updates:
			if !ok {
				return nil
			}
			results := p.Resolve(descriptors)
			p.log.Debugf("Pipeline %s resolved %d %s extensions", p.Name, len(results), p.Kind)
			p.results.Set(results)
		}
	}
}

// Resolve parses and loads one descriptor list. Lazies of extensions whose
// identity and fingerprint did not change since the previous call are reused.
// Resolve is not safe for concurrent use.
func (p *Pipeline) Resolve(descriptors []discovery.Descriptor) []extension.Result {
	results := make([]extension.Result, 0, len(descriptors))
	current := make(map[extension.Key]loaded, len(descriptors))

	for _, d := range descriptors {
		meta, err := p.Parser.Parse(d)
		if err != nil {
			p.log.Warnf("Pipeline %s: %v", p.Name, err)
			results = append(results, extension.Result{
				Metadata: extension.Metadata{Kind: p.Kind, Ref: d.Ref, Provenance: d.Provenance},
				Err:      err,
			})
			continue
		}

		key := meta.Key()
		if prev, ok := p.previous[key]; ok && prev.fingerprint == d.Fingerprint && prev.provenance == meta.Provenance {
			current[key] = prev
			results = append(results, extension.Result{Metadata: meta, Lazy: prev.lazy})
			continue
		}
		if _, dup := current[key]; dup {
			// the same id twice in one source; the first one stands
			results = append(results, extension.Result{Metadata: meta, Lazy: current[key].lazy})
			continue
		}

		lazy, err := p.Loader.Load(meta)
		if err != nil {
			p.log.Warnf("Pipeline %s: %v", p.Name, err)
			results = append(results, extension.Result{Metadata: meta, Err: err})
			continue
		}

		current[key] = loaded{fingerprint: d.Fingerprint, provenance: meta.Provenance, lazy: lazy}
		results = append(results, extension.Result{Metadata: meta, Lazy: lazy})
	}

	p.previous = current
	return results
}
