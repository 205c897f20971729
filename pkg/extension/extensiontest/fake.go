// Package extensiontest provides recording fake extensions for tests.
package extensiontest

import (
	"context"
	"sync"

	"github.com/platinummonkey/trellis/pkg/extension"
)

// Fake is a music, tracker and lyrics extension that records every call made
// into it. Configure the Fail* and *Gate fields before realization.
type Fake struct {
	mu sync.Mutex

	Calls        []string
	Meta         extension.Metadata
	Settings     extension.Settings
	Global       extension.Settings
	Messenger    extension.Messenger
	Bridge       extension.Bridge
	Online       *bool
	Inits        int
	Activations  int
	Siblings     map[extension.Kind][]extension.Entry
	SiblingCalls int
	Required     map[extension.Kind][]string

	FailInit     error
	FailActivate error
	PanicOnInit  bool

	// InitGate and SiblingGate block Initialize and SetSiblings until they
	// are closed
	InitGate    <-chan struct{}
	SiblingGate <-chan struct{}
}

// New returns a Fake with no required siblings
func New() *Fake {
	return &Fake{Siblings: make(map[extension.Kind][]extension.Entry)}
}

func (f *Fake) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *Fake) SetMetadata(meta extension.Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("metadata")
	f.Meta = meta
}

func (f *Fake) SetMessenger(m extension.Messenger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("messenger")
	f.Messenger = m
}

func (f *Fake) SetGlobalSettings(s extension.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("global_settings")
	f.Global = s
}

func (f *Fake) SetSettings(s extension.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("settings")
	f.Settings = s
}

func (f *Fake) SetConnectivity(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connectivity")
	f.Online = &online
}

func (f *Fake) SetBridge(b extension.Bridge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("bridge")
	f.Bridge = b
}

func (f *Fake) Initialize(ctx context.Context) error {
	if f.InitGate != nil {
		<-f.InitGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("initialize")
	if f.PanicOnInit {
		panic("fake initialize panic")
	}
	f.Inits++
	return f.FailInit
}

func (f *Fake) OnActivated(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("activated")
	f.Activations++
	return f.FailActivate
}

func (f *Fake) RequiredSiblings() map[extension.Kind][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Required
}

func (f *Fake) SetSiblings(kind extension.Kind, siblings []extension.Entry) {
	if f.SiblingGate != nil {
		<-f.SiblingGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SiblingCalls++
	f.Siblings[kind] = siblings
}

func (f *Fake) Search(ctx context.Context, query string) ([]extension.Track, error) {
	return []extension.Track{{ID: query, Title: query}}, nil
}

func (f *Fake) Stream(ctx context.Context, track extension.Track) (extension.Stream, error) {
	return extension.Stream{URL: "memory://" + track.ID}, nil
}

func (f *Fake) OnTrackChanged(ctx context.Context, track *extension.Track) error { return nil }

func (f *Fake) OnPlaybackStateChanged(ctx context.Context, track *extension.Track, playing bool) error {
	return nil
}

func (f *Fake) SearchLyrics(ctx context.Context, track extension.Track) ([]extension.Lyrics, error) {
	return nil, nil
}

// Snapshot returns a copy of the recorded calls
func (f *Fake) Snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// InitCount returns how many times Initialize succeeded in being called
func (f *Fake) InitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Inits
}

// ActivationCount returns how many times OnActivated was called
func (f *Fake) ActivationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Activations
}

// SiblingsFor returns the last sibling list delivered for kind
func (f *Fake) SiblingsFor(kind extension.Kind) ([]extension.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Siblings[kind]
	return s, ok
}

// SiblingDeliveries returns how many sibling lists were delivered
func (f *Fake) SiblingDeliveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SiblingCalls
}

// ConnectivityDeliveries returns how many connectivity states were delivered
func (f *Fake) ConnectivityDeliveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == "connectivity" {
			n++
		}
	}
	return n
}

// Connectivity returns the last delivered connectivity state
func (f *Fake) Connectivity() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Online == nil {
		return false, false
	}
	return *f.Online, true
}

// Plain implements only the base Extension interface
type Plain struct {
	Settings extension.Settings
	Inits    int
}

func (p *Plain) SetSettings(s extension.Settings) { p.Settings = s }

func (p *Plain) Initialize(ctx context.Context) error {
	p.Inits++
	return nil
}
