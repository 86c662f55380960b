package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/index.html
var embeddedStatic embed.FS

// newStaticHandler serves the bundled chat page. The page is tiny and changes
// with every release, so browsers are told to revalidate.
func newStaticHandler() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}
