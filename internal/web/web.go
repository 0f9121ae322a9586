package web

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/shadowsight/shadowsight/internal/auth"
	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/session"
	"github.com/shadowsight/shadowsight/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"band": integrity.Band,
	"when": func(t time.Time) string { return t.UTC().Format("Jan 2, 2006 15:04") },
	"label": func(t model.EventType) string {
		return strings.ReplaceAll(string(t), "_", " ")
	},
}

// Web handles web UI requests
type Web struct {
	svc       *session.Service
	verifier  *auth.Verifier
	templates *template.Template
}

// New creates a new web handler
func New(svc *session.Service, verifier *auth.Verifier) (*Web, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Web{
		svc:       svc,
		verifier:  verifier,
		templates: tmpl,
	}, nil
}

// Router creates the web router
func (w *Web) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(auth.Middleware(w.verifier, w.signIn))
	r.Get("/", w.home)
	r.Get("/sessions/{id}", w.sessionDetail)

	return r
}

// home renders the dashboard: stats and the searchable session list
func (w *Web) home(wr http.ResponseWriter, r *http.Request) {
	recruiter := auth.RecruiterID(r.Context())
	query := r.URL.Query().Get("q")

	sessions, err := w.svc.ListSessions(r.Context(), recruiter, query)
	if err != nil {
		w.fail(wr, r, err)
		return
	}
	stats, err := w.svc.Stats(r.Context(), recruiter)
	if err != nil {
		w.fail(wr, r, err)
		return
	}

	data := map[string]interface{}{
		"Query":    query,
		"Sessions": sessions,
		"Stats":    stats,
	}

	w.render(wr, http.StatusOK, "home.html", data)
}

// sessionDetail renders the score card, breakdown and timeline of a session
func (w *Web) sessionDetail(wr http.ResponseWriter, r *http.Request) {
	analysis, err := w.svc.Analysis(r.Context(), auth.RecruiterID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		w.fail(wr, r, err)
		return
	}

	data := map[string]interface{}{
		"Session":   analysis.Session,
		"Events":    analysis.Events,
		"Breakdown": analysis.Breakdown,
	}

	w.render(wr, http.StatusOK, "session.html", data)
}

func (w *Web) signIn(wr http.ResponseWriter, _ *http.Request, _ error) {
	w.render(wr, http.StatusUnauthorized, "signin.html", nil)
}

func (w *Web) fail(wr http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(wr, "Session not found", http.StatusNotFound)
		return
	}
	log.WithError(err).WithField("path", r.URL.Path).Error("render page")
	http.Error(wr, "Something went wrong", http.StatusInternalServerError)
}

func (w *Web) render(wr http.ResponseWriter, status int, name string, data interface{}) {
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	wr.WriteHeader(status)
	if err := w.templates.ExecuteTemplate(wr, name, data); err != nil {
		log.WithError(err).WithField("template", name).Error("execute template")
	}
}
