// Package web embeds the page templates and static assets served by the
// Objectory web UI.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static templates
var content embed.FS

// StaticFS returns the static assets (scripts, styles).
func StaticFS() fs.FS {
	return mustSub("static")
}

// TemplatesFS returns the HTML page templates.
func TemplatesFS() fs.FS {
	return mustSub("templates")
}

// mustSub panics on failure, which can only happen if the embed directive
// and the directory names disagree.
func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(content, dir)
	if err != nil {
		panic("web: " + dir + ": " + err.Error())
	}
	return sub
}
