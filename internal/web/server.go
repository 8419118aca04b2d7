// Package web serves the Envoy chat page: persona branding, example
// prompts and a chat box that talks to the JSON API.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed static/*
var staticFiles embed.FS

// Config holds the dependencies and branding for [NewWebServer].
type Config struct {
	Persona   string
	Title     string
	Tagline   string
	PublicURL string
	Examples  []string
	Logger    *slog.Logger
}

// WebServer renders the chat page.
type WebServer struct {
	persona   string
	title     string
	tagline   string
	publicURL string
	examples  []string
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewWebServer creates a web server from cfg. The embedded templates
// are parsed here; a syntax error in them panics.
func NewWebServer(cfg Config) *WebServer {
	templates, err := parsePages(templateFiles)
	if err != nil {
		panic(err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := cfg.Title
	if title == "" {
		title = cfg.Persona
	}
	return &WebServer{
		persona:   cfg.Persona,
		title:     title,
		tagline:   cfg.Tagline,
		publicURL: strings.TrimSpace(cfg.PublicURL),
		examples:  cfg.Examples,
		templates: templates,
		logger:    logger.With("component", "web"),
	}
}

// RegisterRoutes adds the chat page, its assets and the QR code to mux.
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	mux.HandleFunc("GET /{$}", s.handleChat)
	mux.HandleFunc("GET /qr.png", s.handleQR)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(subFS))))
}
