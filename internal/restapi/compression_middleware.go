package restapi

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// CompressionMiddleware gzips responses for clients that accept it. Small
// bodies are passed through untouched.
func CompressionMiddleware(next http.Handler) http.Handler {
	wrapper, err := gzhttp.NewWrapper(gzhttp.MinSize(1024))
	if err != nil {
		return gzhttp.GzipHandler(next)
	}
	return wrapper(next)
}
