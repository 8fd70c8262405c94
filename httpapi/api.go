// Package httpapi exposes the state machine and automation engine
// over HTTP with JSON bodies. Routing is the standard library mux;
// callers mount the handler wherever they serve.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/engine"
	"github.com/fieldline/automation/pkg/statemachine"
	"github.com/fieldline/automation/pkg/storage"
)

// API wires the HTTP handlers over the core components.
type API struct {
	machine *statemachine.Machine
	engine  *engine.Engine
	store   storage.Store
	logger  *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API over the given components.
func New(machine *statemachine.Machine, eng *engine.Engine, store storage.Store, opts ...Option) *API {
	a := &API{
		machine: machine,
		engine:  eng,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /jobs/{id}/state-transitions", a.transitionJob)
	mux.HandleFunc("GET /jobs/{id}/allowed-transitions", a.allowedTransitions)
	mux.HandleFunc("GET /jobs/{id}/state-history", a.stateHistory)

	mux.HandleFunc("GET /workflows", a.listWorkflows)
	mux.HandleFunc("POST /workflows", a.createWorkflow)
	mux.HandleFunc("GET /workflows/templates", a.listTemplates)
	mux.HandleFunc("POST /workflows/from-template/{id}", a.instantiateTemplate)
	mux.HandleFunc("GET /workflows/{id}", a.getWorkflow)
	mux.HandleFunc("PUT /workflows/{id}", a.updateWorkflow)
	mux.HandleFunc("DELETE /workflows/{id}", a.deleteWorkflow)
	mux.HandleFunc("POST /workflows/{id}/execute", a.executeWorkflow)
	mux.HandleFunc("POST /workflows/{id}/toggle", a.toggleWorkflow)

	mux.HandleFunc("GET /automation-logs", a.listLogs)
	mux.HandleFunc("GET /automation-logs/stats", a.logStats)
	mux.HandleFunc("GET /automation-logs/{executionId}", a.executionLogs)

	return mux
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Errors []string `json:"errors"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	a.writeJSON(w, status, errorBody{Errors: msgs})
}

// writeError maps a component error to the right status code.
func (a *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrWorkflowNotFound),
		errors.Is(err, core.ErrTemplateNotFound),
		errors.Is(err, core.ErrExecutionNotFound):
		a.writeErrors(w, http.StatusNotFound, err.Error())
		return
	}

	var ve *core.ValidationError
	if errors.As(err, &ve) {
		a.writeErrors(w, http.StatusBadRequest, ve.Error())
		return
	}

	a.logger.Error("internal error", "error", err)
	a.writeErrors(w, http.StatusInternalServerError, "internal error")
}

// readJSON decodes the request body, answering malformed JSON with a
// 400. Unknown fields are ignored, not rejected.
func (a *API) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeErrors(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
