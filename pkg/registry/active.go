package registry

import (
	"context"
	"fmt"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/inject"
	"github.com/platinummonkey/trellis/pkg/reactive"
)

// Active returns the current selection of the primary kind
func (r *Registry) Active() (extension.Entry, bool) {
	if e := r.active.Load(); e != nil {
		return *e, true
	}
	return extension.Entry{}, false
}

// ActiveValue is the observable selection; nil means none
func (r *Registry) ActiveValue() *reactive.Value[*extension.Entry] {
	return r.active
}

// SetActive remembers id as the selected primary extension and switches to it
func (r *Registry) SetActive(id string) error {
	entry, err := r.Get(extension.PrimaryKind, id)
	if err != nil {
		return err
	}
	if entry.Err != nil {
		return entry.Err
	}
	if !entry.Metadata.Enabled {
		return fmt.Errorf("%w: %s", ErrDisabled, entry.Key())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.prefs.SetActive(extension.PrimaryKind, id); err != nil {
		return fmt.Errorf("failed to persist active extension: %w", err)
	}
	r.reselectLocked()
	return nil
}

// selectActive picks the remembered id when it is usable, else the first usable
// entry in priority order
func selectActive(entries []extension.Entry, remembered string) (extension.Entry, bool) {
	if remembered != "" {
		for _, e := range entries {
			if e.Metadata.ID == remembered && e.Usable() {
				return e, true
			}
		}
	}
	for _, e := range entries {
		if e.Usable() {
			return e, true
		}
	}
	return extension.Entry{}, false
}

// reselectLocked recomputes the active selection and activates a new one.
// r.mu must be held.
func (r *Registry) reselectLocked() {
	remembered, _ := r.prefs.Active(extension.PrimaryKind)
	entry, found := selectActive(r.kinds[extension.PrimaryKind].list.Load(), remembered)

	if !found {
		if r.active.Load() != nil {
			r.log.Info("No active music extension")
		}
		r.activeLazy = nil
		r.active.Set(nil)
		return
	}

	selected := entry
	r.active.Set(&selected)
	if entry.Lazy == r.activeLazy {
		return
	}
	r.activeLazy = entry.Lazy
	r.log.WithField("extension", entry.Key().String()).Info("Switching active extension")
	r.activate(entry)
}

// activate realizes the entry in the background, which runs its activation hook
// as the last injection step, or calls the hook directly when already realized
func (r *Registry) activate(entry extension.Entry) {
	lazy := entry.Lazy
	key := entry.Key()

	if inst, ready := lazy.Peek(); ready {
		activatable, ok := inst.(extension.Activatable)
		if !ok {
			return
		}
		r.submit("activation of "+key.String(), func(ctx context.Context) error {
			err := inject.Guard(func() error { return activatable.OnActivated(ctx) })
			if err != nil {
				err = &extension.LoadError{Key: key, Stage: inject.StageActivate, Err: err}
				r.report(key, err)
			}
			return err
		})
		return
	}

	r.submit("realization of "+key.String(), func(ctx context.Context) error {
		if _, err := lazy.Get(ctx); err != nil {
			// the injector already reported the failure
			return err
		}
		r.realized(entry)
		return nil
	})
}
