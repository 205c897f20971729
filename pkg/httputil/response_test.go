package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "success"}

	err := WriteJSON(w, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, errors.New("test error"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "test error", body.Error)
}

func TestWriteDetailedError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDetailedError(w, http.StatusConflict, errors.New("duplicate"), map[string]string{"id": "a"})

	assert.Equal(t, http.StatusConflict, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "a", body.Details["id"])
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		code  int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "invalid input") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "extension not found") }, http.StatusNotFound},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "already running") }, http.StatusConflict},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "updates disabled") }, http.StatusServiceUnavailable},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("internal error")) }, http.StatusInternalServerError},
		{"success", func(w http.ResponseWriter) { WriteSuccess(w, []string{"a"}) }, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func BenchmarkWriteJSON(b *testing.B) {
	data := map[string]interface{}{"id": "localfiles", "kind": "music", "enabled": true}
	for i := 0; i < b.N; i++ {
		WriteJSON(httptest.NewRecorder(), http.StatusOK, data)
	}
}
