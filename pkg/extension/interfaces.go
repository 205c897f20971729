package extension

import (
	"context"
	"time"
)

// Extension is implemented by every extension regardless of kind. The per-extension
// settings handle is always supplied before Initialize runs.
type Extension interface {
	SetSettings(settings Settings)
	Initialize(ctx context.Context) error
}

// Settings is the typed key-value handle an extension persists its state in
type Settings interface {
	GetString(key string) (string, bool)
	PutString(key, value string) error
	GetInt(key string) (int64, bool)
	PutInt(key string, value int64) error
	GetBool(key string) (bool, bool)
	PutBool(key string, value bool) error
	GetStringSet(key string) ([]string, bool)
	PutStringSet(key string, values []string) error
	Delete(key string) error
}

// Messenger is the process-wide message and error channel
type Messenger interface {
	Info(source Key, text string)
	Report(source Key, err error)
}

// MetadataAware extensions receive their own descriptor metadata
type MetadataAware interface {
	SetMetadata(meta Metadata)
}

// MessageAware extensions receive the global message channel
type MessageAware interface {
	SetMessenger(m Messenger)
}

// GlobalSettingsAware extensions receive host-wide settings in addition to their own
type GlobalSettingsAware interface {
	SetGlobalSettings(settings Settings)
}

// ConnectivityAware extensions are told about network connectivity changes
type ConnectivityAware interface {
	SetConnectivity(online bool)
}

// BridgeAware extensions receive a UI bridge for interactive flows such as login
type BridgeAware interface {
	SetBridge(bridge Bridge)
}

// Activatable extensions are told when they become the active selection
type Activatable interface {
	OnActivated(ctx context.Context) error
}

// SiblingConsumer extensions receive lists of enabled extensions of other kinds.
// RequiredSiblings maps each wanted kind to the ids that must all be present; an
// empty id list asks for every enabled extension of that kind.
type SiblingConsumer interface {
	RequiredSiblings() map[Kind][]string
	SetSiblings(kind Kind, siblings []Entry)
}

// Track is a playable item exposed by a music extension
type Track struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Artists  []string          `json:"artists,omitempty"`
	Album    string            `json:"album,omitempty"`
	Duration time.Duration     `json:"duration,omitempty"`
	Extras   map[string]string `json:"extras,omitempty"`
}

// Stream is a resolved, playable media source
type Stream struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Quality int               `json:"quality,omitempty"`
}

// Lyrics is a lyrics result. Synced lyrics carry LRC-style timestamps in Lines.
type Lyrics struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Lines  []string `json:"lines"`
	Synced bool     `json:"synced"`
}

// MusicExtension browses a catalog and resolves streams
type MusicExtension interface {
	Extension
	Search(ctx context.Context, query string) ([]Track, error)
	Stream(ctx context.Context, track Track) (Stream, error)
}

// TrackerExtension records playback activity
type TrackerExtension interface {
	Extension
	OnTrackChanged(ctx context.Context, track *Track) error
	OnPlaybackStateChanged(ctx context.Context, track *Track, playing bool) error
}

// LyricsExtension looks up lyrics for a track
type LyricsExtension interface {
	Extension
	SearchLyrics(ctx context.Context, track Track) ([]Lyrics, error)
}

// MiscExtension has no capability beyond the base interface
type MiscExtension interface {
	Extension
}
