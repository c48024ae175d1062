// Package web embeds the error page templates and their stylesheet.
package web

import (
	"embed"
	"io/fs"
)

// Templates holds the error pages and the shared error layout.
//
//go:embed templates/errors/*.html templates/layouts/*.html
var Templates embed.FS

// Static holds the assets served under /static/.
//
//go:embed static/css/*.css
var Static embed.FS

// StaticFS returns Static rooted at the static directory.
func StaticFS() (fs.FS, error) {
	return fs.Sub(Static, "static")
}
