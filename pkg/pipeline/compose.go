package pipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/reactive"
)

// Composer publishes the merged output of several pipelines of one kind
type Composer struct {
	kind    extension.Kind
	inputs  []*reactive.Value[[]extension.Result]
	output  *reactive.Value[[]extension.Result]
	ready   chan struct{}
	started sync.Once
	log     *logrus.Logger
}

// NewComposer merges inputs in the given order
func NewComposer(kind extension.Kind, log *logrus.Logger, inputs ...*reactive.Value[[]extension.Result]) *Composer {
	if log == nil {
		log = logrus.New()
	}
	return &Composer{
		kind:   kind,
		inputs: inputs,
		output: reactive.NewValue[[]extension.Result](nil),
		ready:  make(chan struct{}),
		log:    log,
	}
}

// Compose runs every pipeline and returns a composer merging their output. The
// pipelines stop with ctx.
func Compose(ctx context.Context, kind extension.Kind, log *logrus.Logger, pipelines ...*Pipeline) *Composer {
	inputs := make([]*reactive.Value[[]extension.Result], len(pipelines))
	for i, p := range pipelines {
		inputs[i] = p.Results()
	}
	c := NewComposer(kind, log, inputs...)

	for _, p := range pipelines {
		go func(p *Pipeline) {
			if err := p.Run(ctx); err != nil {
				c.log.Errorf("Pipeline %s stopped: %v", p.Name, err)
			}
		}(p)
	}
	c.Start(ctx)
	return c
}

// Kind returns the kind the composer merges
func (c *Composer) Kind() extension.Kind {
	return c.kind
}

// Output is the merged list
func (c *Composer) Output() *reactive.Value[[]extension.Result] {
	return c.output
}

// Ready is closed once the output includes a published list from every input
func (c *Composer) Ready() <-chan struct{} {
	return c.ready
}

// Start begins merging in the background. Calling it more than once has no effect.
func (c *Composer) Start(ctx context.Context) {
	c.started.Do(func() {
		go c.run(ctx)
	})
}

func (c *Composer) run(ctx context.Context) {
	type update struct {
		index int
		snap  reactive.Snapshot[[]extension.Result]
	}

	updates := make(chan update)
	var wg sync.WaitGroup
	for i, in := range c.inputs {
		wg.Add(1)
		go func(i int, in *reactive.Value[[]extension.Result]) {
			defer wg.Done()
			in.WatchVersions(ctx, func(snap reactive.Snapshot[[]extension.Result]) {
				select {
				case updates <- update{index: i, snap: snap}:
				case <-ctx.Done():
				}
			})
		}(i, in)
	}

	latest := make([][]extension.Result, len(c.inputs))
	emitted := make([]bool, len(c.inputs))
	pending := len(c.inputs)
	if pending == 0 {
		close(c.ready)
	}
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case u := <-updates:
			latest[u.index] = u.snap.Value
			merged := Merge(latest...)
			c.log.Debugf("Composed %d %s extensions from %d sources", len(merged), c.kind, len(c.inputs))
			c.output.Set(merged)

			if u.snap.Version > 0 && !emitted[u.index] {
				emitted[u.index] = true
				pending--
				if pending == 0 {
					close(c.ready)
				}
			}
		}
	}
}
