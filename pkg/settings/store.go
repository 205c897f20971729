package settings

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/trellis/pkg/extension"
)

const (
	// GlobalScope holds host-wide settings shared with extensions that ask for them
	GlobalScope = "global"

	defaultTimeout = 3 * time.Second
)

// Store hands out typed settings handles over one backend
type Store struct {
	backend Backend
	timeout time.Duration
	log     *logrus.Logger
}

// NewStore creates a store over backend
func NewStore(backend Backend, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{backend: backend, timeout: defaultTimeout, log: log}
}

// Backend returns the underlying backend
func (s *Store) Backend() Backend {
	return s.backend
}

// Scope returns the per-extension handle keyed "kind:id"
func (s *Store) Scope(key extension.Key) *Settings {
	return s.Named(key.String())
}

// Global returns the host-wide handle
func (s *Store) Global() *Settings {
	return s.Named(GlobalScope)
}

// Named returns the handle for an arbitrary scope
func (s *Store) Named(scope string) *Settings {
	return &Settings{store: s, scope: scope}
}

// Settings is a typed view of one scope. Read failures are logged and read as
// absent so an unavailable backend degrades to defaults.
type Settings struct {
	store *Store
	scope string
}

var _ extension.Settings = (*Settings)(nil)

// Scope returns the scope name of the handle
func (s *Settings) Scope() string {
	return s.scope
}

func (s *Settings) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.store.timeout)
}

func (s *Settings) get(key string) (string, bool) {
	ctx, cancel := s.ctx()
	defer cancel()

	value, ok, err := s.store.backend.Get(ctx, s.scope, key)
	if err != nil {
		s.store.log.WithError(err).Warnf("Failed to read setting %s/%s", s.scope, key)
		return "", false
	}
	return value, ok
}

func (s *Settings) put(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.store.backend.Put(ctx, s.scope, key, value)
}

func (s *Settings) GetString(key string) (string, bool) {
	return s.get(key)
}

func (s *Settings) PutString(key, value string) error {
	return s.put(key, value)
}

func (s *Settings) GetInt(key string) (int64, bool) {
	raw, ok := s.get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Settings) PutInt(key string, value int64) error {
	return s.put(key, strconv.FormatInt(value, 10))
}

func (s *Settings) GetBool(key string) (bool, bool) {
	raw, ok := s.get(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}

func (s *Settings) PutBool(key string, value bool) error {
	return s.put(key, strconv.FormatBool(value))
}

func (s *Settings) GetStringSet(key string) ([]string, bool) {
	raw, ok := s.get(key)
	if !ok {
		return nil, false
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false
	}
	return values, true
}

// PutStringSet stores values deduplicated and sorted
func (s *Settings) PutStringSet(key string, values []string) error {
	seen := make(map[string]struct{}, len(values))
	set := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		set = append(set, v)
	}
	sort.Strings(set)

	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return s.put(key, string(data))
}

// GetList reads an ordered string list written by PutList
func (s *Settings) GetList(key string) ([]string, bool) {
	raw, ok := s.get(key)
	if !ok {
		return nil, false
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false
	}
	return values, true
}

// PutList stores an ordered string list
func (s *Settings) PutList(key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return s.put(key, string(data))
}

// GetTime reads a timestamp written by PutTime
func (s *Settings) GetTime(key string) (time.Time, bool) {
	n, ok := s.GetInt(key)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(n), true
}

// PutTime stores a timestamp with millisecond precision
func (s *Settings) PutTime(key string, t time.Time) error {
	return s.PutInt(key, t.UnixMilli())
}

func (s *Settings) Delete(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.store.backend.Delete(ctx, s.scope, key)
}

// Keys lists the keys present in the scope
func (s *Settings) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.store.backend.Keys(ctx, s.scope)
}
