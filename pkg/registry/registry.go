package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/async"
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/reactive"
	"github.com/platinummonkey/trellis/pkg/settings"
)

// ErrDisabled is returned when a disabled extension is requested
var ErrDisabled = errors.New("extension is disabled")

// Injector wraps discovered lazies with collaborator injection
type Injector interface {
	Inject(kind extension.Kind, meta extension.Metadata, lazy *extension.Lazy) *extension.Lazy
	// InjectedConnectivity reports the state a wrapper's instance received while
	// it was realized
	InjectedConnectivity(wrapper *extension.Lazy) (bool, bool)
}

// Observer receives list statistics after every recomputation
type Observer interface {
	SetListed(kind string, enabled, disabled, failed int)
}

type kindState struct {
	kind   extension.Kind
	source *reactive.Value[[]extension.Result]
	input  []extension.Result
	list   *reactive.Value[[]extension.Entry]
	// source version the list was last built from
	processed *reactive.Value[uint64]
	// injected wrapper per underlying Lazy
	wrappers map[*extension.Lazy]*extension.Lazy
}

// Registry owns the per-kind extension lists
type Registry struct {
	prefs        *Preferences
	injector     Injector
	messenger    extension.Messenger
	connectivity *reactive.Value[bool]
	pool         *async.WorkerPool
	observer     Observer
	log          *logrus.Logger

	// serializes recomputation and fan-out
	mu     sync.Mutex
	kinds  map[extension.Kind]*kindState
	active *reactive.Value[*extension.Entry]
	// wrapper of the current selection; activation runs when it changes
	activeLazy *extension.Lazy
	running    bool
	// delivery queue per realized wrapper
	boxes map[*extension.Lazy]*mailbox
}

// Config holds the registry's collaborators
type Config struct {
	Store        *settings.Store
	Injector     Injector
	Messenger    extension.Messenger
	Connectivity *reactive.Value[bool]
	// Pool realizes and activates extensions in the background
	Pool     *async.WorkerPool
	Observer Observer
	Log      *logrus.Logger
}

// New creates a registry with an empty list for every kind
func New(cfg Config) (*Registry, error) {
	if cfg.Store == nil || cfg.Injector == nil || cfg.Pool == nil {
		return nil, errors.New("registry requires a settings store, an injector and a worker pool")
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	if cfg.Connectivity == nil {
		cfg.Connectivity = reactive.NewValue(true)
	}

	r := &Registry{
		prefs:        NewPreferences(cfg.Store),
		injector:     cfg.Injector,
		messenger:    cfg.Messenger,
		connectivity: cfg.Connectivity,
		pool:         cfg.Pool,
		observer:     cfg.Observer,
		log:          cfg.Log,
		kinds:        make(map[extension.Kind]*kindState),
		active:       reactive.NewValue[*extension.Entry](nil),
		boxes:        make(map[*extension.Lazy]*mailbox),
	}
	for _, kind := range extension.Kinds() {
		r.kinds[kind] = &kindState{
			kind:     kind,
			list:      reactive.NewValue[[]extension.Entry](nil),
			processed: reactive.NewValue[uint64](0),
			wrappers:  make(map[*extension.Lazy]*extension.Lazy),
		}
	}
	return r, nil
}

// Preferences returns the registry's persisted preferences
func (r *Registry) Preferences() *Preferences {
	return r.prefs
}

// Attach sets the composed discovery output of kind. It must be called before Run.
func (r *Registry) Attach(kind extension.Kind, source *reactive.Value[[]extension.Result]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.kinds[kind]
	if !ok {
		return fmt.Errorf("unknown extension kind %q", kind)
	}
	if r.running {
		return errors.New("registry is already running")
	}
	st.source = source
	return nil
}

// Run follows every attached source and the connectivity state until ctx is done
func (r *Registry) Run(ctx context.Context) {
	r.mu.Lock()
	r.running = true
	var attached []*kindState
	for _, kind := range extension.Kinds() {
		if st := r.kinds[kind]; st.source != nil {
			attached = append(attached, st)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, st := range attached {
		wg.Add(1)
		go func(st *kindState) {
			defer wg.Done()
			st.source.WatchVersions(ctx, func(snap reactive.Snapshot[[]extension.Result]) {
				r.update(st.kind, snap.Value)
				st.processed.Set(snap.Version)
			})
		}(st)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		first := true
		r.connectivity.Watch(ctx, func(online bool) {
			// injection already delivered the state current at realization
			if first {
				first = false
				return
			}
			r.fanOutConnectivity(online)
		})
	}()

	wg.Wait()
}

// Synced blocks until the list of every attached kind was built from the
// discovery output that was current when Synced was called
func (r *Registry) Synced(ctx context.Context) error {
	r.mu.Lock()
	var attached []*kindState
	for _, kind := range extension.Kinds() {
		if st := r.kinds[kind]; st.source != nil {
			attached = append(attached, st)
		}
	}
	r.mu.Unlock()

	for _, st := range attached {
		_, target := st.source.Get()
		if err := waitVersion(ctx, st.processed, target); err != nil {
			return fmt.Errorf("waiting for %s extensions: %w", st.kind, err)
		}
	}
	return nil
}

func waitVersion(ctx context.Context, processed *reactive.Value[uint64], target uint64) error {
	sub := processed.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-sub.C:
			if !ok {
				return nil
			}
			if v >= target {
				return nil
			}
		}
	}
}

// update replaces the discovery input of kind
func (r *Registry) update(kind extension.Kind, results []extension.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.kinds[kind].input = results
	r.refreshLocked(kind)
}

// refreshLocked recomputes kind's list and runs the fan-outs. r.mu must be held.
func (r *Registry) refreshLocked(kind extension.Kind) {
	st := r.kinds[kind]
	entries := r.buildLocked(st)
	st.list.Set(entries)
	r.observe(kind, entries)

	if kind == extension.PrimaryKind {
		r.reselectLocked()
	}
	r.fanOutSiblingsLocked()
}

func (r *Registry) buildLocked(st *kindState) []extension.Entry {
	wrappers := make(map[*extension.Lazy]*extension.Lazy, len(st.input))
	var ok, failed []extension.Entry

	for _, res := range st.input {
		meta := res.Metadata
		meta.Kind = st.kind

		if res.Failed() || res.Lazy == nil {
			err := res.Err
			if err == nil {
				err = &extension.LoadError{Key: meta.Key(), Stage: "resolve", Err: errors.New("no instance")}
			}
			meta.Enabled = false
			failed = append(failed, extension.Entry{Metadata: meta, Err: err})
			continue
		}

		wrapper, seen := st.wrappers[res.Lazy]
		if !seen {
			wrapper = r.injector.Inject(st.kind, meta, res.Lazy)
		}
		wrappers[res.Lazy] = wrapper

		meta.Enabled = meta.DefaultEnabled
		if override, set := r.prefs.Enabled(meta.Key()); set {
			meta.Enabled = override
		}
		ok = append(ok, extension.Entry{Metadata: meta, Lazy: wrapper})
	}
	st.wrappers = wrappers

	sortByPriority(ok, r.prefs.Order(st.kind))

	entries := append(ok, failed...)
	for i := range entries {
		entries[i].Metadata.PriorityOrdinal = i
	}
	return entries
}

// sortByPriority orders entries by their index in order. Ids missing from order
// sort after listed ids and keep their relative order.
func sortByPriority(entries []extension.Entry, order []string) {
	rank := make(map[string]int, len(order))
	for i, id := range order {
		if _, dup := rank[id]; !dup {
			rank[id] = i
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ri, iListed := rank[entries[i].Metadata.ID]
		rj, jListed := rank[entries[j].Metadata.ID]
		switch {
		case iListed && jListed:
			return ri < rj
		case iListed != jListed:
			return iListed
		default:
			return false
		}
	})
}

func (r *Registry) observe(kind extension.Kind, entries []extension.Entry) {
	if r.observer == nil {
		return
	}
	var enabled, disabled, failed int
	for _, e := range entries {
		switch {
		case e.Err != nil:
			failed++
		case e.Metadata.Enabled:
			enabled++
		default:
			disabled++
		}
	}
	r.observer.SetListed(string(kind), enabled, disabled, failed)
}

// List returns the current snapshot of kind
func (r *Registry) List(kind extension.Kind) []extension.Entry {
	st, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	return st.list.Load()
}

// Watch subscribes to kind's list; the current snapshot is delivered first
func (r *Registry) Watch(kind extension.Kind) (*reactive.Subscription[[]extension.Entry], error) {
	st, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown extension kind %q", kind)
	}
	return st.list.Subscribe(), nil
}

// Get returns the entry of id in kind's list
func (r *Registry) Get(kind extension.Kind, id string) (extension.Entry, error) {
	for _, e := range r.List(kind) {
		if e.Metadata.ID == id && e.Err == nil {
			return e, nil
		}
	}
	for _, e := range r.List(kind) {
		if e.Metadata.ID == id {
			return e, nil
		}
	}
	return extension.Entry{}, fmt.Errorf("%w: %s", extension.ErrNotFound, extension.Key{Kind: kind, ID: id})
}

// Instance realizes and returns the enabled extension id of kind
func (r *Registry) Instance(ctx context.Context, kind extension.Kind, id string) (extension.Extension, error) {
	entry, err := r.Get(kind, id)
	if err != nil {
		return nil, err
	}
	if entry.Err != nil {
		return nil, entry.Err
	}
	if !entry.Metadata.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrDisabled, entry.Key())
	}

	_, wasRealized := entry.Lazy.Peek()
	inst, err := entry.Lazy.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !wasRealized {
		r.realized(entry)
	}
	return inst, nil
}

// realized supplies siblings to an instance that was realized after the last
// list change and hands it the connectivity state when it changed during
// realization
func (r *Registry) realized(entry extension.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lists := r.snapshotLocked()
	for _, current := range lists[entry.Metadata.Kind] {
		if current.Lazy != entry.Lazy {
			continue
		}
		if !current.Usable() {
			return
		}
		if b := r.mailboxLocked(current); b != nil {
			b.postConnectivity(r.connectivity.Load())
			b.postSiblings(lists)
		}
		return
	}
}

// SetEnabled persists an enabled override and recomputes kind's list. Realized
// instances are kept.
func (r *Registry) SetEnabled(kind extension.Kind, id string, enabled bool) error {
	if _, err := r.Get(kind, id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.prefs.SetEnabled(extension.Key{Kind: kind, ID: id}, enabled); err != nil {
		return fmt.Errorf("failed to persist enabled state: %w", err)
	}
	r.refreshLocked(kind)
	return nil
}

// ResetEnabled removes the enabled override of id so its manifest default applies
// again, and recomputes kind's list
func (r *Registry) ResetEnabled(kind extension.Kind, id string) error {
	if _, err := r.Get(kind, id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.prefs.ClearEnabled(extension.Key{Kind: kind, ID: id}); err != nil {
		return fmt.Errorf("failed to clear enabled state: %w", err)
	}
	r.refreshLocked(kind)
	return nil
}

// SetOrder persists ids as the complete priority order of kind
func (r *Registry) SetOrder(kind extension.Kind, ids []string) error {
	if _, ok := r.kinds[kind]; !ok {
		return fmt.Errorf("unknown extension kind %q", kind)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate id %q in order", id)
		}
		seen[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.prefs.SetOrder(kind, ids); err != nil {
		return fmt.Errorf("failed to persist order: %w", err)
	}
	r.refreshLocked(kind)
	return nil
}

// Move moves the extension at position from to position to within the
// successfully discovered entries of kind and persists the resulting full order
func (r *Registry) Move(kind extension.Kind, from, to int) error {
	var ids []string
	for _, e := range r.List(kind) {
		if e.Err == nil {
			ids = append(ids, e.Metadata.ID)
		}
	}
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return fmt.Errorf("move %d -> %d out of range for %d %s extensions", from, to, len(ids), kind)
	}

	id := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	ids = append(ids[:to], append([]string{id}, ids[to:]...)...)
	return r.SetOrder(kind, ids)
}

// SetConnectivity publishes a connectivity change
func (r *Registry) SetConnectivity(online bool) {
	if current := r.connectivity.Load(); current == online {
		return
	}
	r.connectivity.Set(online)
}

// Connectivity returns the current connectivity state
func (r *Registry) Connectivity() bool {
	return r.connectivity.Load()
}

func (r *Registry) snapshotLocked() map[extension.Kind][]extension.Entry {
	lists := make(map[extension.Kind][]extension.Entry, len(r.kinds))
	for kind, st := range r.kinds {
		lists[kind] = st.list.Load()
	}
	return lists
}

func (r *Registry) report(key extension.Key, err error) {
	r.log.WithField("extension", key.String()).WithError(err).Warn("Extension error")
	if r.messenger != nil {
		r.messenger.Report(key, err)
	}
}

// submit runs fn on the background pool
func (r *Registry) submit(what string, fn async.Task) {
	if err := r.pool.Submit(fn); err != nil {
		r.log.WithError(err).Warnf("Failed to schedule %s", what)
	}
}
