// Package extension defines the vocabulary shared by every layer of the extension
// engine: capability kinds, descriptor metadata, the lazily realized instance handle,
// the optional collaborator interfaces an extension may implement and the error
// taxonomy reported on the global message channel.
//
// # Capability Kinds
//
//	KindMusic    catalog browsing and stream resolution (the primary kind)
//	KindTracker  playback activity tracking
//	KindLyrics   lyrics lookup
//	KindMisc     everything else
//
// # Collaborators
//
// Extensions opt into injected collaborators by implementing interfaces, checked once
// at realization time:
//
//	type scrobbler struct{ settings extension.Settings }
//
//	func (s *scrobbler) SetSettings(v extension.Settings)            { s.settings = v }
//	func (s *scrobbler) Initialize(ctx context.Context) error         { return nil }
//	func (s *scrobbler) SetConnectivity(online bool)                  {}
//	func (s *scrobbler) OnTrackChanged(ctx context.Context, t extension.Track) error { ... }
//
// # Lazy Instances
//
// A Lazy wraps a constructor that runs at most once, on first Get. Concurrent first
// callers all block on the same attempt and observe the same instance or error.
//
// # Related Packages
//
//   - pkg/pipeline: produces Results from descriptors
//   - pkg/inject: wraps Lazy values with collaborator injection
//   - pkg/registry: owns per-kind Entry lists
package extension
