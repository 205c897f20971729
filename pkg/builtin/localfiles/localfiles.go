// Package localfiles is a music extension serving audio files from a local
// directory tree.
package localfiles

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/trellis/pkg/discovery"
	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/pipeline"
)

const (
	// ID is the extension id of the local files extension
	ID = "localfiles"
	// Entrypoint is the factory name the manifest points at
	Entrypoint = "builtin.localfiles"

	// SettingRoot overrides the library directory
	SettingRoot = "root"
	// settingIndexedAt records when the library was last scanned (unix millis)
	settingIndexedAt = "indexed_at"
	// SettingExcluded lists directory names skipped while scanning
	SettingExcluded = "excluded_dirs"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".m4a":  true,
	".wav":  true,
}

// Manifest describes the extension to the built-in source
func Manifest() discovery.Manifest {
	return discovery.Manifest{
		Kind:        extension.KindMusic,
		ID:          ID,
		Name:        "Local Files",
		Version:     "1.0.0",
		Description: "Plays audio files from a local music directory",
		Author:      "trellis",
		Entrypoint:  Entrypoint,
	}
}

// Factory returns a loader factory that creates the extension with defaultRoot
// as its library directory
func Factory(defaultRoot string) pipeline.Factory {
	return func(meta extension.Metadata) (extension.Extension, error) {
		return New(defaultRoot), nil
	}
}

// Extension indexes a directory of audio files
type Extension struct {
	defaultRoot string

	mu        sync.RWMutex
	meta      extension.Metadata
	settings  extension.Settings
	messenger extension.Messenger
	online    bool
	root      string
	tracks    []extension.Track
	paths     map[string]string
}

// New creates an unindexed extension
func New(defaultRoot string) *Extension {
	return &Extension{defaultRoot: defaultRoot, paths: make(map[string]string)}
}

func (e *Extension) SetMetadata(meta extension.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meta = meta
}

func (e *Extension) SetMessenger(m extension.Messenger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messenger = m
}

func (e *Extension) SetSettings(s extension.Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
}

// SetConnectivity is recorded only; local playback works offline
func (e *Extension) SetConnectivity(online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.online = online
}

// Online returns the last connectivity state delivered
func (e *Extension) Online() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.online
}

// Initialize resolves the library directory and indexes it
func (e *Extension) Initialize(ctx context.Context) error {
	e.mu.Lock()
	root := e.defaultRoot
	if e.settings != nil {
		if configured, ok := e.settings.GetString(SettingRoot); ok && configured != "" {
			root = configured
		}
	}
	e.mu.Unlock()

	if root == "" {
		return errors.New("no music directory configured")
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("music directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("music directory %s is not a directory", root)
	}

	e.mu.Lock()
	e.root = root
	e.mu.Unlock()
	return e.Rescan(ctx)
}

// OnActivated rescans so files added while inactive show up
func (e *Extension) OnActivated(ctx context.Context) error {
	return e.Rescan(ctx)
}

// Rescan rebuilds the track index
func (e *Extension) Rescan(ctx context.Context) error {
	e.mu.RLock()
	root := e.root
	settings := e.settings
	e.mu.RUnlock()

	excluded := make(map[string]bool)
	if settings != nil {
		names, _ := settings.GetStringSet(SettingExcluded)
		for _, name := range names {
			excluded[name] = true
		}
	}

	var tracks []extension.Track
	paths := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && (excluded[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		tracks = append(tracks, trackFor(id))
		paths[id] = path
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", root, err)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })

	e.mu.Lock()
	e.tracks = tracks
	e.paths = paths
	meta := e.meta
	messenger := e.messenger
	e.mu.Unlock()

	if settings != nil {
		if err := settings.PutInt(settingIndexedAt, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("failed to record index time: %w", err)
		}
	}
	if messenger != nil {
		messenger.Info(meta.Key(), fmt.Sprintf("Indexed %d tracks in %s", len(tracks), root))
	}
	return nil
}

// trackFor derives track fields from a slash separated path relative to the root.
// Directories map to artist/album/title.
func trackFor(id string) extension.Track {
	parts := strings.Split(id, "/")
	name := parts[len(parts)-1]
	track := extension.Track{
		ID:    id,
		Title: strings.TrimSuffix(name, filepath.Ext(name)),
	}
	if len(parts) >= 2 {
		track.Album = parts[len(parts)-2]
	}
	if len(parts) >= 3 {
		track.Artists = []string{parts[len(parts)-3]}
	}
	return track
}

// Search matches query against track paths, case-insensitively. An empty query
// returns the whole library.
func (e *Extension) Search(ctx context.Context, query string) ([]extension.Track, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]extension.Track, 0)
	for _, t := range e.tracks {
		if query == "" || strings.Contains(strings.ToLower(t.ID), query) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Stream resolves an indexed track to a file URL
func (e *Extension) Stream(ctx context.Context, track extension.Track) (extension.Stream, error) {
	e.mu.RLock()
	path, ok := e.paths[track.ID]
	e.mu.RUnlock()

	if !ok {
		return extension.Stream{}, fmt.Errorf("%w: track %s", extension.ErrNotFound, track.ID)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return extension.Stream{}, err
	}
	return extension.Stream{URL: "file://" + filepath.ToSlash(abs)}, nil
}
