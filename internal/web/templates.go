package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFiles embed.FS

// pages lists the templates rendered inside layout.html.
var pages = []string{"chat.html"}

// parsePages parses layout.html once, then gives every page its own
// clone of it so pages can each define the "content" block.
func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	layout, err := template.ParseFS(fsys, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	set := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(fsys, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		set[name] = t
	}
	return set, nil
}

// isPartial reports whether r is an htmx request, which only wants the
// page body swapped in.
func isPartial(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// render executes page into a buffer first so a template error yields a
// clean 500 instead of half a page.
func (s *WebServer) render(w http.ResponseWriter, r *http.Request, page string, data any) {
	t, ok := s.templates[page]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	entry := "layout.html"
	if isPartial(r) {
		entry = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, entry, data); err != nil {
		s.logger.Error("render failed", "page", page, "entry", entry, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
