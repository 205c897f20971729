// Package discovery watches the origins extensions are discovered from and turns
// raw descriptors into metadata.
//
// # Sources
//
// A Source emits a fresh, complete descriptor list every time its origin changes:
//
//	BuiltinSource    manifests compiled into the host
//	PackageSource    installed packages advertising "<namespace>.<kind>_extension"
//	DirectorySource  sideloaded "*.<kind>ext" files in a managed directory
//
// Directory based sources are watched with fsnotify and rescanned after a short
// debounce. Refresh forces a rescan.
//
// # Parsing
//
// ManifestParser turns a Descriptor into extension.Metadata. It is pure apart from
// an LRU memo keyed by descriptor fingerprint; malformed input yields a
// *extension.ParseError that the pipeline keeps as a failed entry.
//
// # Managed Directories
//
// ManagedDir installs and removes sideloaded artifacts. The directory stays
// read-only except while a copy or delete is in progress.
package discovery
