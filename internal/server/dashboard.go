package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Dashboard serves the single-page dashboard from dir for every request that
// is not an API, health or metrics route. Unknown paths fall back to
// index.html so client-side routing works. An empty dir disables it.
func Dashboard(next http.Handler, dir string) http.Handler {
	if dir == "" {
		return next
	}

	index := filepath.Join(dir, "index.html")
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") ||
			r.URL.Path == "/healthz" ||
			r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if r.URL.Path == "/" {
			http.ServeFile(w, r, index)
			return
		}

		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.ServeFile(w, r, index)
			return
		}

		files.ServeHTTP(w, r)
	})
}
