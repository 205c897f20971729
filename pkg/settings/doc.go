// Package settings provides the persisted key-value storage extensions and the
// registry keep their state in.
//
// # Overview
//
// Values live in scopes. Every extension gets the scope "kind:id"; the host keeps
// global settings in "global" and registry preferences in "trellis". A Backend
// stores raw strings, Settings layers typed access on top:
//
//	store := settings.NewStore(settings.NewMemoryBackend(), logger)
//	s := store.Scope(extension.Key{Kind: extension.KindMusic, ID: "deezer"})
//
//	s.PutBool("explicit", true)
//	quality, ok := s.GetInt("quality")
//
// # Backends
//
//	MemoryBackend   process-local map
//	SQLBackend      sqlite (mattn/go-sqlite3) or postgres (lib/pq)
//	RedisBackend    one redis hash per scope
//	CachedBackend   LRU read-through cache in front of any backend
//
// Absent keys read as the zero value with ok=false; there is no schema migration
// beyond creating the settings table.
package settings
