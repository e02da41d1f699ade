package httputil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusTeapot, map[string]string{"hello": "world"}))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hello":"world"}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadGateway, fmt.Errorf("endpoint still down"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"endpoint still down"}`, rec.Body.String())
}

func TestParsePathInt64(t *testing.T) {
	router := mux.NewRouter()
	var got int64
	var gotErr error
	router.HandleFunc("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathInt64(r, "id")
	})

	t.Run("valid", func(t *testing.T) {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/items/42", nil))
		require.NoError(t, gotErr)
		assert.Equal(t, int64(42), got)
	})

	t.Run("not an integer", func(t *testing.T) {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/items/zero", nil))
		require.Error(t, gotErr)
	})
}

func TestParseJSONOrError(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"wiki"}`))
		var dest struct {
			Name string `json:"name"`
		}
		rec := httptest.NewRecorder()
		assert.True(t, ParseJSONOrError(rec, req, &dest))
		assert.Equal(t, "wiki", dest.Name)
	})

	t.Run("malformed body writes 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{`))
		rec := httptest.NewRecorder()
		var dest map[string]any
		assert.False(t, ParseJSONOrError(rec, req, &dest))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
