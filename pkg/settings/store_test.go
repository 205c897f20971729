package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/extension"
)

func TestStore_ScopeNaming(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)

	assert.Equal(t, "music:deezer", store.Scope(extension.Key{Kind: extension.KindMusic, ID: "deezer"}).Scope())
	assert.Equal(t, GlobalScope, store.Global().Scope())
	assert.NotNil(t, store.log)
}

func TestSettings_TypedRoundTrips(t *testing.T) {
	s := NewStore(NewMemoryBackend(), logrus.New()).Named("music:a")

	_, ok := s.GetString("missing")
	assert.False(t, ok)

	require.NoError(t, s.PutString("token", "abc"))
	v, ok := s.GetString("token")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.PutInt("quality", 320))
	n, ok := s.GetInt("quality")
	assert.True(t, ok)
	assert.Equal(t, int64(320), n)

	require.NoError(t, s.PutBool("explicit", true))
	b, ok := s.GetBool("explicit")
	assert.True(t, ok)
	assert.True(t, b)

	require.NoError(t, s.PutStringSet("genres", []string{"rock", "jazz", "rock"}))
	set, ok := s.GetStringSet("genres")
	assert.True(t, ok)
	assert.Equal(t, []string{"jazz", "rock"}, set)

	require.NoError(t, s.PutList("order", []string{"c", "a", "b"}))
	list, ok := s.GetList("order")
	assert.True(t, ok)
	assert.Equal(t, []string{"c", "a", "b"}, list)

	now := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, s.PutTime("checked", now))
	got, ok := s.GetTime("checked")
	assert.True(t, ok)
	assert.True(t, now.Equal(got))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"checked", "explicit", "genres", "order", "quality", "token"}, keys)

	require.NoError(t, s.Delete("token"))
	_, ok = s.GetString("token")
	assert.False(t, ok)
}

func TestSettings_MalformedValuesReadAsAbsent(t *testing.T) {
	s := NewStore(NewMemoryBackend(), logrus.New()).Named("x")
	require.NoError(t, s.PutString("n", "not-a-number"))

	_, ok := s.GetInt("n")
	assert.False(t, ok)
	_, ok = s.GetBool("n")
	assert.False(t, ok)
	_, ok = s.GetStringSet("n")
	assert.False(t, ok)
}

func TestSettings_ScopesAreIsolated(t *testing.T) {
	store := NewStore(NewMemoryBackend(), logrus.New())
	a := store.Named("music:a")
	b := store.Named("music:b")

	require.NoError(t, a.PutString("k", "a"))
	_, ok := b.GetString("k")
	assert.False(t, ok)
}

type failingBackend struct {
	MemoryBackend
}

func (f *failingBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

func TestSettings_ReadErrorDegradesToAbsent(t *testing.T) {
	s := NewStore(&failingBackend{}, logrus.New()).Named("x")

	_, ok := s.GetString("k")
	assert.False(t, ok)
}
