package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// mimeTypes mirrors the asset types the overlay build ships. Anything else
// is served as an opaque stream.
var mimeTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".txt":   "text/plain; charset=utf-8",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// staticHandler serves the built overlay UI from a directory, falling back
// to index.html for unknown paths so hash-routed deep links work.
type staticHandler struct {
	root string
}

// resolve maps a request path to a file inside the root. It refuses any
// path that would escape the root after cleaning.
func (s *staticHandler) resolve(reqPath string) (string, bool) {
	rel := strings.ReplaceAll(reqPath, "\\", "/")
	rel = strings.TrimLeft(rel, "/")
	joined := filepath.Join(s.root, filepath.FromSlash(rel))

	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", false
	}
	joinedAbs, err := filepath.Abs(joined)
	if err != nil {
		return "", false
	}
	if joinedAbs != rootAbs && !strings.HasPrefix(joinedAbs, rootAbs+string(filepath.Separator)) {
		return "", false
	}
	return joinedAbs, true
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func (s *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.root == "" {
		http.Error(w, "UI root dir not configured", http.StatusInternalServerError)
		return
	}

	filePath, ok := s.resolve(r.URL.Path)
	if !ok {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if r.URL.Path == "/" || strings.HasSuffix(r.URL.Path, "/") {
		filePath = filepath.Join(filePath, "index.html")
	}
	// Unknown paths fall back to the single-page entry.
	if !fileExists(filePath) {
		fallback := filepath.Join(s.root, "index.html")
		if !fileExists(fallback) {
			http.NotFound(w, r)
			return
		}
		filePath = fallback
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	contentType := mimeTypes[strings.ToLower(filepath.Ext(filePath))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(body)
}
