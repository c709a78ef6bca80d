// Package restapi implements the authenticated REST surface (spec.md
// §4.3, §6): a chi router over conversations, memory, scheduler,
// sleep-cycle, and task-introspection routes, wrapped uniformly in a
// success/error envelope.
package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kenobot/kenobot/internal/apierr"
)

// meta accompanies every response envelope, success or error.
type meta struct {
	RequestID string `json:"requestId"`
	Timestamp int64  `json:"timestamp"`
}

func newMeta() meta {
	id, err := uuid.NewV7()
	if err != nil {
		return meta{RequestID: uuid.NewString(), Timestamp: time.Now().UnixMilli()}
	}
	return meta{RequestID: id.String(), Timestamp: time.Now().UnixMilli()}
}

// successEnvelope wraps every 2xx REST API response.
type successEnvelope struct {
	Data any  `json:"data"`
	Meta meta `json:"meta"`
}

// errorEnvelope wraps every non-2xx REST API response, matching the
// stable error-code taxonomy in internal/apierr.
type errorEnvelope struct {
	Error struct {
		Code      apierr.Code `json:"code"`
		Message   string      `json:"message"`
		Hint      string      `json:"hint,omitempty"`
		Retryable bool        `json:"retryable"`
	} `json:"error"`
	Meta meta `json:"meta"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: data, Meta: newMeta()})
}

// writeAPIErr renders err as the standard error envelope, using err's own
// HTTPStatus.
func writeAPIErr(w http.ResponseWriter, err *apierr.Error) {
	var env errorEnvelope
	env.Error.Code = err.Code
	env.Error.Message = err.Message
	env.Error.Hint = err.Hint
	env.Error.Retryable = err.Retryable()
	env.Meta = newMeta()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(env)
}
