package restapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kenobot/kenobot/internal/apierr"
)

func (a *api) handleActiveTasks(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"active": a.deps.Correlator.ActiveChatIDs()})
}

func (a *api) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	audit := a.deps.Bus.GetAuditTrail()
	if audit == nil {
		writeData(w, http.StatusOK, map[string]any{"events": []any{}})
		return
	}
	events, err := audit.ForChatID(id)
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"events": events})
}
