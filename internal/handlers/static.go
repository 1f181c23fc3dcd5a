package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const indexFile = "index.html"

// SPA serves files from dir and answers any other GET or HEAD with
// dir/index.html so client-side routes survive a reload. Paths under
// apiPrefix never fall back and get a JSON 404 instead.
func SPA(dir, apiPrefix string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, indexFile)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if apiPrefix != "" && (r.URL.Path == apiPrefix || strings.HasPrefix(r.URL.Path, apiPrefix+"/")) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		name := path.Clean("/" + r.URL.Path)
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name))); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		serveIndex(w, r, index)
	}
}

func serveIndex(w http.ResponseWriter, r *http.Request, index string) {
	f, err := os.Open(index)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeContent(w, r, indexFile, info.ModTime(), f)
}
