// Package web serves the pre-built browser UI bundled into the binary.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed dist/*
var content embed.FS

// Handler returns an http.Handler that serves the embedded SPA assets.
// Unknown paths get index.html so client-side routes survive a reload.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}
	return newHandler(fsys)
}

func newHandler(fsys fs.FS) (http.Handler, error) {
	indexBytes, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded index.html: %w", err)
	}

	static := http.FileServer(http.FS(fsys))

	serveIndex := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(indexBytes)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if cleanPath == "" || cleanPath == "." || cleanPath == "index.html" {
			serveIndex(w)
			return
		}

		if info, err := fs.Stat(fsys, cleanPath); err == nil && !info.IsDir() {
			// Bundler output under assets/ is content-hashed.
			if strings.HasPrefix(cleanPath, "assets/") {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}
			static.ServeHTTP(w, r)
			return
		}

		// BrowserRouter deep-link fallback.
		serveIndex(w)
	}), nil
}
