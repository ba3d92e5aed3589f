// Package web serves the embedded mobile control page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Handler returns an http.Handler serving the control page at the root.
func Handler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embedded tree is fixed at build time.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
