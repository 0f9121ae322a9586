package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/shadowsight/shadowsight/internal/auth"
	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/model"
	"github.com/shadowsight/shadowsight/internal/session"
	"github.com/shadowsight/shadowsight/internal/store"
)

const maxBodyBytes = 1 << 20

// HealthFunc reports whether the backing services are reachable.
type HealthFunc func(ctx context.Context) error

// API handles HTTP API requests
type API struct {
	svc      *session.Service
	verifier *auth.Verifier
	health   HealthFunc
}

// New creates a new API handler
func New(svc *session.Service, verifier *auth.Verifier, health HealthFunc) *API {
	return &API{svc: svc, verifier: verifier, health: health}
}

// Router creates the API router
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", a.healthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.verifier, unauthorized))

		r.Get("/me", a.getMe)
		r.Put("/me", a.putMe)

		r.Get("/sessions", a.listSessions)
		r.Post("/sessions", a.createSession)
		r.Get("/sessions/{id}", a.getSession)
		r.Patch("/sessions/{id}", a.updateSession)
		r.Delete("/sessions/{id}", a.deleteSession)
		r.Get("/sessions/{id}/events", a.listEvents)
		r.Post("/sessions/{id}/events", a.addEvent)
		r.Get("/sessions/{id}/analysis", a.getAnalysis)

		r.Get("/stats", a.getStats)
		r.Post("/score", a.score)
	})

	return r
}

// Response wraps API responses
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Meta  *Meta       `json:"meta,omitempty"`
	Error *ErrorMsg   `json:"error,omitempty"`
}

// Meta contains pagination metadata
type Meta struct {
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Time    string `json:"timestamp"`
}

// ErrorMsg represents an error response
type ErrorMsg struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  []integrity.FieldError `json:"fields,omitempty"`
}

// healthz handles GET /healthz
func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			log.WithError(err).Warn("health check failed")
			respondError(w, http.StatusServiceUnavailable, "unavailable", "backend unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, Response{Data: map[string]string{"status": "ok"}})
}

type profileRequest struct {
	Email   string `json:"email"`
	OrgName string `json:"orgName"`
}

// getMe handles GET /me
func (a *API) getMe(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetRecruiter(r.Context(), auth.RecruiterID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: rec})
}

// putMe handles PUT /me. The email defaults to the one in the token.
func (a *API) putMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	claims, _ := auth.FromContext(r.Context())
	if req.Email == "" {
		req.Email = claims.Email
	}
	rec, err := a.svc.RegisterRecruiter(r.Context(), claims.Subject, req.Email, req.OrgName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: rec})
}

// listSessions handles GET /sessions?q=
func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	sessions, err := a.svc.ListSessions(r.Context(), auth.RecruiterID(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	total := len(sessions)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	respondJSON(w, http.StatusOK, Response{
		Data: sessions[start:end],
		Meta: &Meta{
			Total:   total,
			Page:    page,
			PerPage: perPage,
			Time:    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// createSession handles POST /sessions
func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var in integrity.SessionInput
	if !decodeBody(w, r, &in) {
		return
	}
	sess, err := a.svc.CreateSession(r.Context(), auth.RecruiterID(r.Context()), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Data: sess})
}

// getSession handles GET /sessions/{id}
func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.svc.GetSession(r.Context(), auth.RecruiterID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: sess})
}

// updateSession handles PATCH /sessions/{id}
func (a *API) updateSession(w http.ResponseWriter, r *http.Request) {
	var p model.SessionPatch
	if !decodeBody(w, r, &p) {
		return
	}
	sess, err := a.svc.UpdateSession(r.Context(), auth.RecruiterID(r.Context()), chi.URLParam(r, "id"), p)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: sess})
}

// deleteSession handles DELETE /sessions/{id}
func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteSession(r.Context(), auth.RecruiterID(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listEvents handles GET /sessions/{id}/events
func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.svc.ListEvents(r.Context(), auth.RecruiterID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: events, Meta: &Meta{Total: len(events), Page: 1, PerPage: len(events)}})
}

// addEvent handles POST /sessions/{id}/events
func (a *API) addEvent(w http.ResponseWriter, r *http.Request) {
	var in integrity.EventInput
	if !decodeBody(w, r, &in) {
		return
	}
	ev, err := a.svc.AddEvent(r.Context(), auth.RecruiterID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Data: ev})
}

// getAnalysis handles GET /sessions/{id}/analysis
func (a *API) getAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := a.svc.Analysis(r.Context(), auth.RecruiterID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: analysis})
}

// getStats handles GET /stats
func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Stats(r.Context(), auth.RecruiterID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Data: stats})
}

type scoreEvent struct {
	Type string `json:"type"`
}

// score handles POST /score. The body is a JSON array of events; only their
// types are read.
func (a *API) score(w http.ResponseWriter, r *http.Request) {
	var in []scoreEvent
	if !decodeBody(w, r, &in) {
		return
	}
	events := make([]model.Event, len(in))
	for i, e := range in {
		t, err := model.ParseEventType(e.Type)
		if err != nil {
			t = model.EventType(e.Type)
		}
		events[i] = model.Event{Type: t}
	}
	respondJSON(w, http.StatusOK, Response{Data: a.svc.Weights().Explain(events)})
}

// parsePagination extracts pagination parameters from request
func parsePagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	return
}

// decodeBody reads a JSON request body into v, responding 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := sonic.ConfigStd.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

// respondServiceError maps service errors onto status codes. Unexpected
// errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *integrity.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, Response{Error: &ErrorMsg{
			Code:    "invalid_input",
			Message: verr.Error(),
			Fields:  verr.Fields,
		}})
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).WithError(err).Error("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	respondError(w, http.StatusUnauthorized, "unauthorized", "a valid ID token is required")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, Response{
		Error: &ErrorMsg{
			Code:    code,
			Message: message,
		},
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
