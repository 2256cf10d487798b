// Package web embeds the chat page and its static assets.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html static
var assets embed.FS

// IndexHTML returns the chat page.
func IndexHTML() []byte {
	data, err := assets.ReadFile("index.html")
	if err != nil {
		panic("web: index.html missing from embedded assets: " + err.Error())
	}
	return data
}

// StaticHandler serves files under static/ and expects to be mounted at /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
