// Package server is the local dashboard: the current ranking, the
// per-source collection status, the rendered run report, and the
// artist roster with add/deactivate forms.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/signalindex/signalindex/internal/database"
	"github.com/signalindex/signalindex/internal/registry"
	"github.com/signalindex/signalindex/internal/report"
	"github.com/signalindex/signalindex/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for the dashboard.
type Server struct {
	db    *database.DB
	reg   *registry.Registry
	st    *store.Store
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, reg *registry.Registry, st *store.Store) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"score":    func(v float64) string { return fmt.Sprintf("%.1f", v) },
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "sources.html", "report.html", "artists.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, reg: reg, st: st, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/sources", s.handleSources)
	s.mux.HandleFunc("/report", s.handleReport)
	s.mux.HandleFunc("/artists", s.handleArtists)
	s.mux.HandleFunc("/artists/add", s.handleAddArtist)
	s.mux.HandleFunc("/artists/toggle", s.handleToggleArtist)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	rows, err := s.st.ReadRankings()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Rows": rows,
	})
}

// sourceStatus joins a source's latest run report with the size of its
// observation table.
type sourceStatus struct {
	Report       database.RunReport
	Observations int
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	reports, err := s.db.LatestRunReports()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	tables, _ := s.st.ReadAllObservations()
	var statuses []sourceStatus
	for _, rep := range reports {
		count := 0
		for src, obs := range tables {
			if string(src) == rep.Source {
				count = len(obs)
			}
		}
		statuses = append(statuses, sourceStatus{Report: rep, Observations: count})
	}

	s.render(w, "sources.html", map[string]any{
		"Statuses": statuses,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	content, err := report.Load(s.st.Dir())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "report.html", map[string]any{
		"Report": content,
	})
}

func (s *Server) handleArtists(w http.ResponseWriter, r *http.Request) {
	s.render(w, "artists.html", map[string]any{
		"Artists": s.reg.All(),
	})
}

func (s *Server) handleAddArtist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/artists", http.StatusFound)
		return
	}

	entry := registry.Entry{
		Name:             strings.TrimSpace(r.FormValue("name")),
		Category:         strings.TrimSpace(r.FormValue("category")),
		Twitter:          strings.TrimSpace(r.FormValue("twitter")),
		YouTubeChannelID: strings.TrimSpace(r.FormValue("youtube_channel_id")),
	}
	if entry.Name != "" {
		if err := s.reg.Add(entry); err != nil {
			log.Printf("adding artist: %v", err)
		} else if err := s.reg.Save(); err != nil {
			log.Printf("saving registry: %v", err)
		}
	}

	http.Redirect(w, r, "/artists", http.StatusFound)
}

func (s *Server) handleToggleArtist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/artists", http.StatusFound)
		return
	}

	name := r.FormValue("name")
	active := r.FormValue("active") == "true"
	if err := s.reg.Toggle(name, active); err != nil {
		log.Printf("toggling artist: %v", err)
	} else if err := s.reg.Save(); err != nil {
		log.Printf("saving registry: %v", err)
	}

	http.Redirect(w, r, "/artists", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, reg *registry.Registry, st *store.Store, port int) error {
	srv, err := New(db, reg, st)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Dashboard listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
