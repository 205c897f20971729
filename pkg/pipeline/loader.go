package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/extension"
)

// Factory constructs an extension instance from its metadata
type Factory func(meta extension.Metadata) (extension.Extension, error)

// Loader resolves entrypoints to factories and wraps them in deferred constructors
type Loader struct {
	mu        sync.RWMutex
	factories map[string]Factory
	log       *logrus.Logger
}

// NewLoader creates an empty loader
func NewLoader(log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
	}
	return &Loader{
		factories: make(map[string]Factory),
		log:       log,
	}
}

// Register binds entrypoint to factory, replacing any previous binding
func (l *Loader) Register(entrypoint string, factory Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[entrypoint] = factory
}

// Entrypoints lists the registered entrypoints
func (l *Loader) Entrypoints() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.factories))
	for name := range l.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns a deferred constructor for meta. Nothing is constructed until the
// Lazy is first accessed.
func (l *Loader) Load(meta extension.Metadata) (*extension.Lazy, error) {
	l.mu.RLock()
	factory, ok := l.factories[meta.Entrypoint]
	l.mu.RUnlock()

	if !ok {
		return nil, &extension.LoadError{
			Key:   meta.Key(),
			Stage: "resolve",
			Err:   fmt.Errorf("no factory registered for entrypoint %q", meta.Entrypoint),
		}
	}

	key := meta.Key()
	return extension.NewLazy(key, func(ctx context.Context) (extension.Extension, error) {
		l.log.Debugf("Constructing extension %s from %s", key, meta.Ref)

		inst, err := factory(meta)
		if err != nil {
			return nil, &extension.LoadError{Key: key, Stage: "construct", Err: err}
		}
		if !meta.Kind.Accepts(inst) {
			return nil, &extension.LoadError{
				Key:   key,
				Stage: "construct",
				Err:   fmt.Errorf("%T does not implement the %s capability", inst, meta.Kind),
			}
		}
		return inst, nil
	}), nil
}
