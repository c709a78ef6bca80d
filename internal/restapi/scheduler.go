package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kenobot/kenobot/internal/apierr"
	"github.com/kenobot/kenobot/internal/scheduler"
)

func (a *api) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"tasks": a.deps.Scheduler.List()})
}

func (a *api) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var spec scheduler.AddTaskSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInvalidBody, "malformed request body", ""))
		return
	}

	id, err := a.deps.Scheduler.Add(spec)
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInvalidCron, err.Error(), "use standard 5-field POSIX cron syntax"))
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"id": id})
}

func (a *api) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.deps.Scheduler.Get(id); !ok {
		writeAPIErr(w, apierr.NotFound("task"))
		return
	}
	if err := a.deps.Scheduler.Remove(id); err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTaskExecutions returns a task's recorded fire history, oldest
// first. 404s if the task itself no longer exists; an existing task with
// no fires yet returns an empty list, not an error.
func (a *api) handleTaskExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.deps.Scheduler.Get(id); !ok {
		writeAPIErr(w, apierr.NotFound("task"))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"executions": a.deps.Scheduler.Executions(id)})
}
