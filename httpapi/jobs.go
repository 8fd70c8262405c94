package httpapi

import (
	"net/http"

	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/statemachine"
	"github.com/fieldline/automation/pkg/validate"
)

// transitionRequest is the body of POST /jobs/{id}/state-transitions.
type transitionRequest struct {
	ToState       string         `json:"to_state"`
	ChangedBy     string         `json:"changed_by"`
	ChangedByRole string         `json:"changed_by_role"`
	ChangeSource  string         `json:"change_source"`
	Reason        string         `json:"reason"`
	Notes         string         `json:"notes"`
	JobUpdates    map[string]any `json:"job_updates"`
}

type transitionResponse struct {
	Job        *core.Job          `json:"job"`
	Transition *statemachine.Edge `json:"transition"`
}

func (a *API) transitionJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var req transitionRequest
	if !a.readJSON(w, r, &req) {
		return
	}
	if err := validate.TransitionTarget(req.ToState); err != nil {
		a.writeError(w, err)
		return
	}
	if err := validate.ChangeSource(req.ChangeSource); err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.machine.Transition(r.Context(), jobID, core.JobState(req.ToState), statemachine.TransitionRequest{
		ChangedBy:     req.ChangedBy,
		ChangedByRole: req.ChangedByRole,
		ChangeSource:  core.ChangeSource(req.ChangeSource),
		Reason:        req.Reason,
		Notes:         req.Notes,
		JobUpdates:    req.JobUpdates,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	if !result.Success {
		a.writeErrors(w, http.StatusBadRequest, result.Errors...)
		return
	}

	a.writeJSON(w, http.StatusOK, transitionResponse{
		Job:        result.Job,
		Transition: result.Transition,
	})
}

type allowedResponse struct {
	Allowed []statemachine.AllowedTransition `json:"allowed"`
}

func (a *API) allowedTransitions(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	allowed, err := a.machine.AllowedTransitions(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if allowed == nil {
		allowed = []statemachine.AllowedTransition{}
	}
	a.writeJSON(w, http.StatusOK, allowedResponse{Allowed: allowed})
}

type historyResponse struct {
	JobID        string                    `json:"job_id"`
	CurrentState core.JobState             `json:"current_state"`
	History      []core.JobStateTransition `json:"history"`
}

func (a *API) stateHistory(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := a.store.GetJob(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if job == nil {
		a.writeError(w, core.ErrJobNotFound)
		return
	}

	history, err := a.machine.StateHistory(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if history == nil {
		history = []core.JobStateTransition{}
	}

	a.writeJSON(w, http.StatusOK, historyResponse{
		JobID:        jobID,
		CurrentState: job.Status,
		History:      history,
	})
}
