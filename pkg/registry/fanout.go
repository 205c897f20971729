package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/inject"
)

// mailbox serializes sibling and connectivity deliveries into one realized
// instance. Posting never blocks; a single goroutine per mailbox drains the
// newest pending state and calls into the extension without holding r.mu.
type mailbox struct {
	key      extension.Key
	consumer extension.SiblingConsumer
	aware    extension.ConnectivityAware
	report   func(extension.Key, error)

	mu       sync.Mutex
	running  bool
	siblings map[extension.Kind][]extension.Entry
	online   *bool
	// last connectivity state the instance has seen
	delivered *bool
	// last reported missing ids per required kind
	missing map[extension.Kind]string
}

func newMailbox(key extension.Key, inst extension.Extension, report func(extension.Key, error)) *mailbox {
	b := &mailbox{key: key, report: report, missing: make(map[extension.Kind]string)}
	b.consumer, _ = inst.(extension.SiblingConsumer)
	b.aware, _ = inst.(extension.ConnectivityAware)
	return b
}

func (b *mailbox) postSiblings(lists map[extension.Kind][]extension.Entry) {
	if b.consumer == nil {
		return
	}
	b.mu.Lock()
	b.siblings = lists
	b.startLocked()
	b.mu.Unlock()
}

func (b *mailbox) postConnectivity(online bool) {
	if b.aware == nil {
		return
	}
	b.mu.Lock()
	b.online = &online
	b.startLocked()
	b.mu.Unlock()
}

func (b *mailbox) startLocked() {
	if b.running {
		return
	}
	b.running = true
	go b.drain()
}

func (b *mailbox) drain() {
	for {
		b.mu.Lock()
		online, lists := b.online, b.siblings
		b.online, b.siblings = nil, nil
		if online == nil && lists == nil {
			b.running = false
			b.mu.Unlock()
			return
		}
		if online != nil && b.delivered != nil && *b.delivered == *online {
			online = nil
		}
		if online != nil {
			b.delivered = online
		}
		b.mu.Unlock()

		if online != nil {
			state := *online
			if err := inject.Guard(func() error {
				b.aware.SetConnectivity(state)
				return nil
			}); err != nil {
				b.report(b.key, err)
			}
		}
		if lists != nil {
			b.deliverSiblings(lists)
		}
	}
}

// deliverSiblings runs on the drain goroutine only
func (b *mailbox) deliverSiblings(lists map[extension.Kind][]extension.Entry) {
	var required map[extension.Kind][]string
	if err := inject.Guard(func() error {
		required = b.consumer.RequiredSiblings()
		return nil
	}); err != nil {
		b.report(b.key, err)
		return
	}

	kinds := make([]extension.Kind, 0, len(required))
	for kind := range required {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		siblings, missing := siblingsFor(lists[kind], required[kind])
		if len(missing) > 0 {
			signature := strings.Join(missing, ",")
			if b.missing[kind] != signature {
				b.missing[kind] = signature
				b.report(b.key, &extension.RequiredExtensionsMissingError{
					Dependent: b.key,
					Kind:      kind,
					Missing:   missing,
				})
			}
			continue
		}
		delete(b.missing, kind)

		kind := kind
		if err := inject.Guard(func() error {
			b.consumer.SetSiblings(kind, siblings)
			return nil
		}); err != nil {
			b.report(b.key, err)
		}
	}
}

// mailboxLocked returns the mailbox of a realized entry, creating it on first
// use. r.mu must be held.
func (r *Registry) mailboxLocked(entry extension.Entry) *mailbox {
	if b, ok := r.boxes[entry.Lazy]; ok {
		return b
	}
	inst, ready := entry.Lazy.Peek()
	if !ready {
		return nil
	}
	b := newMailbox(entry.Key(), inst, r.report)
	if online, ok := r.injector.InjectedConnectivity(entry.Lazy); ok {
		b.delivered = &online
	}
	r.boxes[entry.Lazy] = b
	return b
}

// fanOutSiblingsLocked posts the current lists to every enabled, realized
// SiblingConsumer and drops mailboxes of instances no longer listed. r.mu must
// be held.
func (r *Registry) fanOutSiblingsLocked() {
	lists := r.snapshotLocked()
	listed := make(map[*extension.Lazy]bool, len(r.boxes))

	for _, kind := range extension.Kinds() {
		for _, entry := range lists[kind] {
			if entry.Lazy == nil {
				continue
			}
			listed[entry.Lazy] = true
			if !entry.Usable() {
				continue
			}
			if b := r.mailboxLocked(entry); b != nil {
				b.postSiblings(lists)
			}
		}
	}

	for lazy := range r.boxes {
		if !listed[lazy] {
			delete(r.boxes, lazy)
		}
	}
}

// siblingsFor returns the enabled entries of a kind. With required ids only those
// entries are returned, or the ids that are not available.
func siblingsFor(entries []extension.Entry, required []string) ([]extension.Entry, []string) {
	enabled := make([]extension.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Usable() {
			enabled = append(enabled, e)
		}
	}
	if len(required) == 0 {
		return enabled, nil
	}

	want := make(map[string]bool, len(required))
	for _, id := range required {
		want[id] = true
	}

	filtered := make([]extension.Entry, 0, len(required))
	found := make(map[string]bool, len(required))
	for _, e := range enabled {
		if want[e.Metadata.ID] {
			filtered = append(filtered, e)
			found[e.Metadata.ID] = true
		}
	}

	var missing []string
	for _, id := range required {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, missing
	}
	return filtered, nil
}

// fanOutConnectivity posts online to every enabled, realized ConnectivityAware
// instance
func (r *Registry) fanOutConnectivity(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lists := r.snapshotLocked()
	for _, kind := range extension.Kinds() {
		for _, entry := range lists[kind] {
			if !entry.Usable() {
				continue
			}
			if b := r.mailboxLocked(entry); b != nil {
				b.postConnectivity(online)
			}
		}
	}
}
