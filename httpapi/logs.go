package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fieldline/automation/pkg/core"
	"github.com/fieldline/automation/pkg/storage"
)

func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := storage.LogFilter{
		WorkflowID: q.Get("workflow_id"),
		Status:     core.LogStatus(q.Get("status")),
		ActionType: core.ActionType(q.Get("action_type")),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.writeErrors(w, http.StatusBadRequest, "start_date must be RFC 3339")
			return
		}
		f.StartDate = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.writeErrors(w, http.StatusBadRequest, "end_date must be RFC 3339")
			return
		}
		f.EndDate = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeErrors(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	logs, err := a.store.ListLogs(r.Context(), f)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []core.AutomationLog{}
	}
	a.writeJSON(w, http.StatusOK, logs)
}

func (a *API) executionLogs(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("executionId")

	logs, err := a.store.ExecutionLogs(r.Context(), executionID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if len(logs) == 0 {
		a.writeError(w, core.ErrExecutionNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, logs)
}

func (a *API) logStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days := 7
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.writeErrors(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	stats, err := a.engine.Stats(r.Context(), days, q.Get("workflow_id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}
