package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageSignIn     = "signin.html"
	pageHome       = "home.html"
	pageCommon     = "common.html"
	pagePartial    = "partial.html"
	pageNoOverlap  = "no_overlap.html"
	pageTopArtists = "top_artists.html"
	pageTopTracks  = "top_tracks.html"
	pageError      = "error.html"
)

// parsePages parses each page together with the shared layout.
func parsePages() (map[string]*template.Template, error) {
	names := []string{
		pageSignIn, pageHome, pageCommon, pagePartial, pageNoOverlap, pageTopArtists, pageTopTracks, pageError,
	}

	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// render executes page into a buffer first so a template error never leaves a half-written response.
func (a *App) render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := a.pages[page]
	if !ok {
		a.logger.Error("unknown template", "page", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		a.logger.Error("failed to render template", "page", page, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorPage struct {
	Title   string
	Message string
	Retry   string
}
