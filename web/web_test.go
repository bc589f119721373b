package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Result()
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHandler(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":       {Data: []byte("<html>index</html>")},
		"assets/app-1a.js": {Data: []byte("console.log(1)")},
		"robots.txt":       {Data: []byte("User-agent: *")},
	}
	h, err := newHandler(fsys)
	require.NoError(t, err)

	t.Run("root serves index", func(t *testing.T) {
		resp := serve(t, h, "/")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "<html>index</html>", body(t, resp))
		assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	})

	t.Run("hashed asset is immutable", func(t *testing.T) {
		resp := serve(t, h, "/assets/app-1a.js")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "console.log(1)", body(t, resp))
		assert.Contains(t, resp.Header.Get("Cache-Control"), "immutable")
	})

	t.Run("plain file", func(t *testing.T) {
		resp := serve(t, h, "/robots.txt")
		assert.Equal(t, "User-agent: *", body(t, resp))
		assert.Empty(t, resp.Header.Get("Cache-Control"))
	})

	t.Run("deep link falls back to index", func(t *testing.T) {
		resp := serve(t, h, "/reports/weekly")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "<html>index</html>", body(t, resp))
	})

	t.Run("directory falls back to index", func(t *testing.T) {
		resp := serve(t, h, "/assets/")
		assert.Equal(t, "<html>index</html>", body(t, resp))
	})
}

func TestHandlerRequiresIndex(t *testing.T) {
	_, err := newHandler(fstest.MapFS{"app.js": {Data: []byte("x")}})
	assert.Error(t, err)
}

func TestEmbeddedBundle(t *testing.T) {
	h, err := Handler()
	require.NoError(t, err)
	resp := serve(t, h, "/")
	assert.Contains(t, body(t, resp), "IoT Query Probe")
}
