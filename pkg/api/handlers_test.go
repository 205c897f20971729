package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/trellis/pkg/extension"
	"github.com/platinummonkey/trellis/pkg/httputil"
	"github.com/platinummonkey/trellis/pkg/messages"
	"github.com/platinummonkey/trellis/pkg/observability"
	"github.com/platinummonkey/trellis/pkg/registry"
	"github.com/platinummonkey/trellis/pkg/updater"
)

// fakeRegistry keeps entries in memory and mirrors the registry's error contract
type fakeRegistry struct {
	lists  map[extension.Kind][]extension.Entry
	active string
	online bool
}

func newFakeRegistry() *fakeRegistry {
	mk := func(id string, enabled bool) extension.Entry {
		key := extension.Key{Kind: extension.KindMusic, ID: id}
		return extension.Entry{
			Metadata: extension.Metadata{Kind: key.Kind, ID: id, Name: id, Version: "1.0.0", Enabled: enabled, DefaultEnabled: enabled},
			Lazy:     extension.NewLazy(key, nil),
		}
	}
	broken := extension.Entry{
		Metadata: extension.Metadata{Kind: extension.KindMusic, Ref: "/ext/broken.musicext"},
		Err:      &extension.ParseError{Kind: extension.KindMusic, Ref: "/ext/broken.musicext", Err: errors.New("bad yaml")},
	}
	r := &fakeRegistry{
		lists:  map[extension.Kind][]extension.Entry{extension.KindMusic: {mk("a", true), mk("b", false), broken}},
		active: "a",
		online: true,
	}
	r.renumber(extension.KindMusic)
	return r
}

func (r *fakeRegistry) renumber(kind extension.Kind) {
	for i := range r.lists[kind] {
		r.lists[kind][i].Metadata.PriorityOrdinal = i
	}
}

func (r *fakeRegistry) List(kind extension.Kind) []extension.Entry { return r.lists[kind] }

func (r *fakeRegistry) Get(kind extension.Kind, id string) (extension.Entry, error) {
	for _, e := range r.lists[kind] {
		if e.Metadata.ID == id {
			return e, nil
		}
	}
	return extension.Entry{}, fmt.Errorf("%w: %s:%s", extension.ErrNotFound, kind, id)
}

func (r *fakeRegistry) SetEnabled(kind extension.Kind, id string, enabled bool) error {
	for i, e := range r.lists[kind] {
		if e.Metadata.ID == id {
			r.lists[kind][i].Metadata.Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("%w: %s:%s", extension.ErrNotFound, kind, id)
}

func (r *fakeRegistry) ResetEnabled(kind extension.Kind, id string) error {
	for i, e := range r.lists[kind] {
		if e.Metadata.ID == id {
			r.lists[kind][i].Metadata.Enabled = e.Metadata.DefaultEnabled
			return nil
		}
	}
	return fmt.Errorf("%w: %s:%s", extension.ErrNotFound, kind, id)
}

func (r *fakeRegistry) SetOrder(kind extension.Kind, ids []string) error {
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("duplicate id %q in order", id)
		}
		seen[id] = true
	}
	return nil
}

func (r *fakeRegistry) Move(kind extension.Kind, from, to int) error {
	list := r.lists[kind]
	if from < 0 || to < 0 || from >= len(list) || to >= len(list) {
		return errors.New("out of range")
	}
	list[from], list[to] = list[to], list[from]
	r.renumber(kind)
	return nil
}

func (r *fakeRegistry) Active() (extension.Entry, bool) {
	if r.active == "" {
		return extension.Entry{}, false
	}
	e, err := r.Get(extension.PrimaryKind, r.active)
	return e, err == nil
}

func (r *fakeRegistry) SetActive(id string) error {
	e, err := r.Get(extension.PrimaryKind, id)
	if err != nil {
		return err
	}
	if !e.Metadata.Enabled {
		return fmt.Errorf("%w: %s", registry.ErrDisabled, e.Key())
	}
	r.active = id
	return nil
}

func (r *fakeRegistry) SetConnectivity(online bool) { r.online = online }
func (r *fakeRegistry) Connectivity() bool          { return r.online }

type fakeUpdates struct {
	report updater.Report
	err    error
	calls  int
}

func (u *fakeUpdates) CheckNow(ctx context.Context) (updater.Report, error) {
	u.calls++
	return u.report, u.err
}

type fixture struct {
	server   *Server
	registry *fakeRegistry
	updates  *fakeUpdates
	bus      *messages.Bus
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: newFakeRegistry(),
		updates:  &fakeUpdates{},
		bus:      messages.NewBus(10, nil),
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	}
	f.server = NewServer(Config{
		Registry: f.registry,
		Updates:  f.updates,
		Messages: f.bus,
		Health:   observability.NewHealthChecker("test"),
		Metrics:  f.metrics,
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestListExtensions(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/v1/extensions/music", nil)
	require.Equal(t, http.StatusOK, w.Code)

	views := decode[[]ExtensionView](t, w)
	require.Len(t, views, 3)
	assert.Equal(t, "a", views[0].ID)
	assert.True(t, views[0].Enabled)
	assert.Equal(t, "unrealized", views[0].State)
	assert.Equal(t, "failed", views[2].State)
	assert.Contains(t, views[2].Error, "bad yaml")
	assert.Equal(t, 2, views[2].Priority)
}

func TestListExtensions_UsableOnly(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/v1/extensions/music?usable=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]ExtensionView](t, w)
	require.Len(t, views, 1)
	assert.Equal(t, "a", views[0].ID)

	w = f.do(t, "GET", "/v1/extensions/music?usable=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteRegistryError(t *testing.T) {
	key := extension.Key{Kind: extension.KindTracker, ID: "scrobbler"}
	tests := []struct {
		name    string
		err     error
		code    int
		details map[string]string
	}{
		{"not found", fmt.Errorf("%w: tracker:x", extension.ErrNotFound), http.StatusNotFound, nil},
		{"disabled", registry.ErrDisabled, http.StatusConflict, nil},
		{
			"load failure",
			&extension.LoadError{Key: key, Stage: "initialize", Err: errors.New("boom")},
			http.StatusConflict,
			map[string]string{"extension": "tracker:scrobbler", "stage": "initialize"},
		},
		{
			"parse failure",
			&extension.ParseError{Kind: extension.KindTracker, Ref: "/ext/x.trackerext", Err: errors.New("bad")},
			http.StatusConflict,
			map[string]string{"kind": "tracker", "ref": "/ext/x.trackerext"},
		},
		{"other", errors.New("index out of range"), http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeRegistryError(w, tt.err)
			assert.Equal(t, tt.code, w.Code)
			body := decode[httputil.ErrorResponse](t, w)
			assert.Equal(t, tt.err.Error(), body.Error)
			assert.Equal(t, tt.details, body.Details)
		})
	}
}

func TestListAllExtensions(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/v1/extensions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	all := decode[map[extension.Kind][]ExtensionView](t, w)
	assert.Len(t, all, len(extension.Kinds()))
	assert.Len(t, all[extension.KindMusic], 3)
	assert.Empty(t, all[extension.KindLyrics])
}

func TestListExtensions_UnknownKind(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/v1/extensions/video", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetExtension(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/v1/extensions/music/b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", decode[ExtensionView](t, w).ID)

	w = f.do(t, "GET", "/v1/extensions/music/zzz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnableDisable(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/v1/extensions/music/b/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ExtensionView](t, w).Enabled)

	w = f.do(t, "POST", "/v1/extensions/music/b/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[ExtensionView](t, w).Enabled)

	w = f.do(t, "POST", "/v1/extensions/music/missing/enable", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetEnabled(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/v1/extensions/music/b/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "DELETE", "/v1/extensions/music/b/enabled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[ExtensionView](t, w).Enabled)

	w = f.do(t, "DELETE", "/v1/extensions/music/missing/enabled", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderAndMove(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "PUT", "/v1/extensions/music/order", OrderRequest{IDs: []string{"b", "a"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "PUT", "/v1/extensions/music/order", OrderRequest{IDs: []string{"a", "b", "a"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/v1/extensions/music/move", MoveRequest{From: 0, To: 1})
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]ExtensionView](t, w)
	assert.Equal(t, "b", views[0].ID)

	w = f.do(t, "POST", "/v1/extensions/music/move", MoveRequest{From: 0, To: 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.server.ServeHTTP(w, httptest.NewRequest("PUT", "/v1/extensions/music/order", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActive(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/v1/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode[ExtensionView](t, w).ID)

	w = f.do(t, "PUT", "/v1/active", ActiveRequest{ID: "b"})
	assert.Equal(t, http.StatusConflict, w.Code, "disabled extensions cannot become active")

	w = f.do(t, "PUT", "/v1/active", ActiveRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.do(t, "POST", "/v1/extensions/music/b/enable", nil)
	w = f.do(t, "PUT", "/v1/active", ActiveRequest{ID: "b"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", decode[ExtensionView](t, w).ID)

	f.registry.active = ""
	w = f.do(t, "GET", "/v1/active", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectivity(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "PUT", "/v1/connectivity", ConnectivityRequest{Online: false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.registry.online)

	w = f.do(t, "GET", "/v1/connectivity", nil)
	assert.False(t, decode[ConnectivityRequest](t, w).Online)
}

func TestCheckUpdates(t *testing.T) {
	f := newFixture(t)
	f.updates.report = updater.Report{
		Started: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Outcomes: []updater.Outcome{
			{Key: extension.Key{Kind: extension.KindMusic, ID: "a"}, State: updater.StateInstalling, Tag: "2.0", Asset: "a.musicext", Updated: true},
			{Key: extension.Key{Kind: extension.KindMusic, ID: "b"}, State: updater.StateFetchingReleaseFeed, Err: errors.New("status 500")},
		},
	}

	w := f.do(t, "POST", "/v1/updates/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[ReportView](t, w)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "music:a", report.Outcomes[0].Extension)
	assert.True(t, report.Outcomes[0].Updated)
	assert.Equal(t, "installing", report.Outcomes[0].State)
	assert.Equal(t, "status 500", report.Outcomes[1].Error)

	f.updates.err = updater.ErrCheckInProgress
	w = f.do(t, "POST", "/v1/updates/check", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckUpdates_Disabled(t *testing.T) {
	server := NewServer(Config{Registry: newFakeRegistry(), Logger: observability.NewLogger(observability.ErrorLevel, io.Discard)})
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("POST", "/v1/updates/check", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListMessages(t *testing.T) {
	f := newFixture(t)
	key := extension.Key{Kind: extension.KindLyrics, ID: "words"}
	f.bus.Info(key, "hello")
	f.bus.Report(key, errors.New("token expired"))

	w := f.do(t, "GET", "/v1/messages?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]MessageView](t, w)
	require.Len(t, msgs, 1)
	assert.Equal(t, "token expired", msgs[0].Text)
	assert.Equal(t, "error", msgs[0].Level)
	assert.Equal(t, "lyrics:words", msgs[0].Source)

	w = f.do(t, "GET", "/v1/messages?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOperationalRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, "GET", "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.do(t, "GET", "/v1/extensions/music", nil)
	w = f.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/v1/extensions/{kind}"`)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, "GET", "/v1/connectivity", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
