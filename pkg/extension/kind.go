package extension

import (
	"fmt"
	"strings"
)

// Kind is a category of pluggable behavior
type Kind string

const (
	KindMusic   Kind = "music"
	KindTracker Kind = "tracker"
	KindLyrics  Kind = "lyrics"
	KindMisc    Kind = "misc"
)

// PrimaryKind is the kind that carries an active selection
const PrimaryKind = KindMusic

// Kinds lists every capability kind in fan-out order
func Kinds() []Kind {
	return []Kind{KindMusic, KindTracker, KindLyrics, KindMisc}
}

// ParseKind converts a string to a known Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown capability kind: %q", s)
}

// FileSuffix is the file name suffix of sideloaded extensions of this kind
func (k Kind) FileSuffix() string {
	return "." + string(k) + "ext"
}

// Feature is the capability feature name advertised by installed packages
func (k Kind) Feature() string {
	return string(k) + "_extension"
}

// Marker is the feature marker an installed package declares to provide this kind
func (k Kind) Marker(namespace string) string {
	return namespace + "." + k.Feature()
}

// Accepts reports whether ext implements the capability interface of this kind
func (k Kind) Accepts(ext Extension) bool {
	switch k {
	case KindMusic:
		_, ok := ext.(MusicExtension)
		return ok
	case KindTracker:
		_, ok := ext.(TrackerExtension)
		return ok
	case KindLyrics:
		_, ok := ext.(LyricsExtension)
		return ok
	case KindMisc:
		return ext != nil
	default:
		return false
	}
}
