package httpapi

import (
	"net/http"

	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/storage"
	"github.com/fieldline/automation/pkg/validate"
)

func (a *API) listWorkflows(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOpts{
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	wfs, err := a.store.ListWorkflows(r.Context(), opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if wfs == nil {
		wfs = []core.Workflow{}
	}
	a.writeJSON(w, http.StatusOK, wfs)
}

func (a *API) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf core.Workflow
	if !a.readJSON(w, r, &wf) {
		return
	}
	if err := validate.Workflow(&wf); err != nil {
		a.writeError(w, err)
		return
	}

	if err := a.store.CreateWorkflow(r.Context(), &wf); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, wf)
}

func (a *API) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := a.store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if wf == nil {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, wf)
}

func (a *API) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf core.Workflow
	if !a.readJSON(w, r, &wf) {
		return
	}
	wf.ID = r.PathValue("id")
	if err := validate.Workflow(&wf); err != nil {
		a.writeError(w, err)
		return
	}

	if err := a.store.UpdateWorkflow(r.Context(), &wf); err != nil {
		a.writeError(w, err)
		return
	}

	updated, err := a.store.GetWorkflow(r.Context(), wf.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// executeRequest is the body of POST /workflows/{id}/execute.
type executeRequest struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	EntityData map[string]any `json:"entity_data"`
}

func (a *API) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !a.readJSON(w, r, &req) {
		return
	}

	exec, err := a.engine.ExecuteManual(r.Context(), r.PathValue("id"), req.EntityType, req.EntityID, req.EntityData)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, exec)
}

type toggleResponse struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
}

func (a *API) toggleWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	wf, err := a.store.GetWorkflow(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if wf == nil {
		a.writeError(w, core.ErrWorkflowNotFound)
		return
	}

	next := !wf.IsActive
	if err := a.store.SetWorkflowActive(r.Context(), id, next); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toggleResponse{ID: id, IsActive: next})
}

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := a.engine.ListTemplates(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	if tpls == nil {
		tpls = []core.Workflow{}
	}
	a.writeJSON(w, http.StatusOK, tpls)
}

func (a *API) instantiateTemplate(w http.ResponseWriter, r *http.Request) {
	wf, err := a.engine.InstantiateTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, wf)
}
