// Package site renders the fan-art page and serves its images and static assets.
package site

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"livewatch/internal/gallery"
	"livewatch/internal/presence"
)

//go:embed templates/*.html
var templateFS embed.FS

// StateReader is the read side of the presence cache.
type StateReader interface {
	Read() presence.State
}

// Config holds page and file-serving settings.
type Config struct {
	Title      string
	ChannelURL string
	ImagesDir  string
	StaticDir  string
}

// Handler serves the page using go-chi.
type Handler struct {
	cfg     Config
	states  StateReader
	catalog gallery.Catalog
	tmpl    *template.Template
	log     *slog.Logger
}

type pageData struct {
	Title       string
	DataState   string
	ChannelURL  string
	HasArtwork  bool
	ArtworkPath string
	Artist      gallery.Artist
}

// NewHandler parses the embedded templates and returns a Handler.
func NewHandler(cfg Config, states StateReader, catalog gallery.Catalog, log *slog.Logger) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{cfg: cfg, states: states, catalog: catalog, tmpl: tmpl, log: log}, nil
}

// Register mounts the page, /img/* and the static fallback on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.Index)
	if h.cfg.ImagesDir != "" {
		r.Handle("/img/*", http.StripPrefix("/img/", noDirListing(http.FileServer(http.Dir(h.cfg.ImagesDir)))))
	}
	if h.cfg.StaticDir != "" {
		r.NotFound(noDirListing(http.FileServer(http.Dir(h.cfg.StaticDir))).ServeHTTP)
	}
}

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:      h.cfg.Title,
		DataState:  presence.DataAttr(h.states.Read()),
		ChannelURL: h.cfg.ChannelURL,
	}
	if art, artist, ok := h.catalog.Random(); ok {
		data.HasArtwork = true
		data.ArtworkPath = art.Path
		data.Artist = artist
	} else {
		h.log.Warn("art catalog is empty")
	}

	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		h.log.Error("failed to render page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// noDirListing answers 404 for directory paths instead of listing or serving index.html.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
