package webui

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"stoptracker.transitpulse.org/internal/logging"
)

const indexFile = "index.html"

// openFile is replaced in tests.
var openFile = func(name string) (io.ReadSeekCloser, error) {
	return os.Open(name)
}

var allowedExtensions = map[string]bool{
	".html": true, ".css": true, ".js": true, ".json": true,
	".png": true, ".jpg": true, ".jpeg": true, ".svg": true,
	".ico": true, ".webmanifest": true,
}

// staticHandler serves a single file from the public directory. Only flat
// file names with a known extension are served.
func (webUI *WebUI) staticHandler(w http.ResponseWriter, r *http.Request) {
	fileName := r.PathValue("file")
	if fileName == "" {
		fileName = indexFile
	}

	if strings.Contains(fileName, "..") || strings.ContainsAny(fileName, "/\\\x00") {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(fileName))] {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	root, err := filepath.Abs(webUI.publicDir())
	if err != nil {
		http.Error(w, "Internal configuration error", http.StatusInternalServerError)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/assets/") {
		root = filepath.Join(root, "assets")
	}
	absPath := filepath.Join(root, fileName)

	rel, err := filepath.Rel(root, absPath)
	if err != nil || rel != fileName {
		webUI.logger().Warn("potential path traversal attempt blocked", slog.String("path", absPath))
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	stat, err := os.Stat(absPath)
	if err != nil || stat.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	f, err := openFile(absPath)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer logging.SafeCloseWithLogging(f, webUI.logger(), "static file "+fileName)
	http.ServeContent(w, r, fileName, stat.ModTime(), f)
}

func (webUI *WebUI) logger() *slog.Logger {
	if webUI.Application == nil || webUI.Logger == nil {
		return slog.Default()
	}
	return webUI.Logger
}

func (webUI *WebUI) publicDir() string {
	if webUI.Application == nil || webUI.Config.Server.PublicDir == "" {
		return "public"
	}
	return webUI.Config.Server.PublicDir
}
