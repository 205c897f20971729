package discovery

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 150 * time.Millisecond

// dirWatch rescans a directory tree whenever fsnotify reports a change, a refresh
// is requested, or on start. Each scan's full result is offered to the output
// channel, replacing any result the consumer has not taken yet.
type dirWatch struct {
	root     string
	debounce time.Duration
	refresh  chan struct{}
	scan     func() ([]Descriptor, []string)
	log      *logrus.Logger
}

func newDirWatch(root string, scan func() ([]Descriptor, []string), log *logrus.Logger) *dirWatch {
	return &dirWatch{
		root:     root,
		debounce: defaultDebounce,
		refresh:  make(chan struct{}, 1),
		scan:     scan,
		log:      log,
	}
}

func (w *dirWatch) requestRefresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

func (w *dirWatch) start(ctx context.Context) (<-chan []Descriptor, error) {
	if err := os.MkdirAll(w.root, 0755); err != nil {
		// the directory may already exist write-protected
		if _, statErr := os.Stat(w.root); statErr != nil {
			return nil, err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(w.root); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan []Descriptor, 1)
	go w.loop(ctx, watcher, out)
	return out, nil
}

func (w *dirWatch) loop(ctx context.Context, watcher *fsnotify.Watcher, out chan []Descriptor) {
	defer close(out)
	defer watcher.Close()

	emit := func() {
		descriptors, subdirs := w.scan()
		for _, dir := range subdirs {
			if err := watcher.Add(dir); err != nil {
				w.log.Debugf("Failed to watch %s: %v", dir, err)
			}
		}
		select {
		case <-out:
		default:
		}
		out <- descriptors
	}

	emit()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.log.Debugf("Extension directory change: %s %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("Extension directory watcher error on %s: %v", w.root, err)

		case <-fire:
			fire = nil
			emit()

		case <-w.refresh:
			emit()
		}
	}
}
