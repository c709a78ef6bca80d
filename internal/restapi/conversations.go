package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kenobot/kenobot/internal/apierr"
	"github.com/kenobot/kenobot/internal/bus"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 200
)

func (a *api) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := a.deps.Conversation.List()
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"conversations": convs})
}

type createConversationRequest struct {
	ID string `json:"id"`
}

func (a *api) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req) // a missing/empty body is not an error: id is optional
	}

	id := req.ID
	if id == "" {
		id = newConversationID()
	}

	if _, err := a.deps.Conversation.GetOrCreate(id); err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"id": id})
}

func (a *api) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, ok, err := a.deps.Conversation.Get(id)
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	if !ok {
		writeAPIErr(w, apierr.NotFound("conversation"))
		return
	}
	writeData(w, http.StatusOK, conv)
}

func (a *api) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok, err := a.deps.Conversation.Get(id); err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	} else if !ok {
		writeAPIErr(w, apierr.NotFound("conversation"))
		return
	}
	if err := a.deps.Conversation.Delete(id); err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultMessagesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxMessagesLimit {
		limit = maxMessagesLimit
	}

	messages, err := a.deps.Conversation.Messages(id, limit)
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}
	writeData(w, http.StatusOK, map[string]any{"messages": messages})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage mirrors the webhook's synchronous flow (spec.md
// §4.2) over the "api" correlator: register a pending entry keyed by
// this conversation's chatId, fire INCOMING_MESSAGE, and await the
// matching OUTGOING_MESSAGE or the configured deadline.
func (a *api) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeAPIErr(w, apierr.New(apierr.CodeMissingField, "content is required", ""))
		return
	}

	if a.deps.CostTracker != nil && a.deps.CostTracker.OverBudget() {
		writeAPIErr(w, apierr.New(apierr.CodeBudgetExceeded, "cost budget exceeded", "try again in the next window"))
		return
	}

	chatID := "api-" + id
	entry, err := a.deps.Correlator.Register(chatID)
	if err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeConflict, err.Error(), "a request for this conversation is already in flight"))
		return
	}

	if _, err := a.deps.Conversation.AppendMessage(id, "user", req.Content); err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.deps.RequestTimeout)
	defer cancel()

	a.deps.Bus.Fire(bus.TypeIncomingMessage, "api", "", map[string]any{
		"text":    req.Content,
		"chatId":  chatID,
		"userId":  "api",
		"channel": "api",
	})

	reply, err := a.deps.Correlator.Wait(ctx, entry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeAPIErr(w, apierr.New(apierr.CodeGatewayTimeout, "no reply within the configured timeout", "retry"))
			return
		}
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}

	if _, err := a.deps.Conversation.AppendMessage(id, "assistant", reply); err != nil {
		writeAPIErr(w, apierr.New(apierr.CodeInternal, err.Error(), ""))
		return
	}

	writeData(w, http.StatusOK, map[string]any{"reply": reply})
}

func newConversationID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
