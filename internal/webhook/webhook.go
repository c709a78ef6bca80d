// Package webhook implements the synchronous /webhook HTTP endpoint:
// an HMAC-signed caller gets the agent's reply in the same response,
// bridged over the signal bus via internal/correlator.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kenobot/kenobot/internal/bus"
	"github.com/kenobot/kenobot/internal/correlator"
)

const signaturePrefix = "sha256="

// maxBodyBytes bounds the request body read to guard against abusive
// callers; no legitimate webhook payload approaches this size.
const maxBodyBytes = 1 << 20 // 1 MiB

// requestBody is the webhook's wire-format request payload.
type requestBody struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
}

type successBody struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

type errorBody struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// Handler serves POST /webhook.
type Handler struct {
	bus        *bus.Bus
	correlator *correlator.Correlator
	secret     string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New constructs a webhook Handler. secret is the HMAC key every request
// must be signed with; an empty secret means every request is rejected
// (spec.md: "Reject with 401 if absent/mismatched or if no secret
// configured"). abuseLimit/abuseBurst configure a token-bucket limiter
// shared across all callers, distinct from the REST API's per-IP sliding
// window.
func New(b *bus.Bus, corr *correlator.Correlator, secret string, timeout time.Duration, abuseLimit rate.Limit, abuseBurst int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bus:        b,
		correlator: corr,
		secret:     secret,
		timeout:    timeout,
		limiter:    rate.NewLimiter(abuseLimit, abuseBurst),
		logger:     logger,
	}
}

// ServeHTTP implements the webhook request flow from spec.md §4.2.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	if !h.verifySignature(r.Header.Get("X-Webhook-Signature"), body) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req requestBody
	if err := json.Unmarshal(body, &req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chatID := transientChatID()
	if req.ChatID != "" {
		chatID = "webhook-" + req.ChatID
	}

	entry, err := h.correlator.Register(chatID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.bus.Fire(bus.TypeIncomingMessage, "webhook", "", map[string]any{
		"text":    req.Message,
		"chatId":  chatID,
		"userId":  "webhook",
		"channel": "webhook",
	})

	reply, err := h.correlator.Wait(ctx, entry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusRequestTimeout, "timeout")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, successBody{Response: reply, Status: "ok"})
}

// verifySignature checks header against HMAC-SHA256(h.secret, body) using
// a constant-time comparison. A missing secret or header always fails.
func (h *Handler) verifySignature(header string, body []byte) bool {
	if h.secret == "" || header == "" {
		return false
	}
	if len(header) <= len(signaturePrefix) || header[:len(signaturePrefix)] != signaturePrefix {
		return false
	}

	given, err := hex.DecodeString(header[len(signaturePrefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	want := mac.Sum(nil)

	return hmac.Equal(given, want)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message, Status: "error"})
}

// transientChatID mints a fresh chatId for callers that did not supply a
// chat_id, giving them a transient session with no history.
func transientChatID() string {
	if id, err := uuid.NewV7(); err == nil {
		return "webhook-" + id.String()
	}
	return "webhook-" + uuid.NewString()
}
