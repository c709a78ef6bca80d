package restapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kenobot/kenobot/internal/bus"
	"github.com/kenobot/kenobot/internal/correlator"
	"github.com/kenobot/kenobot/internal/conversation"
	"github.com/kenobot/kenobot/internal/costtracker"
	"github.com/kenobot/kenobot/internal/ratelimit"
	"github.com/kenobot/kenobot/internal/scheduler"
	"github.com/kenobot/kenobot/internal/sleepcycle"
	"github.com/kenobot/kenobot/internal/watchdog"
)

const testToken = "test-token-0123456789"

func newTestAPI(t *testing.T, rl *ratelimit.Limiter) (http.Handler, Dependencies) {
	t.Helper()

	b := bus.New(nil, nil)
	corr := correlator.New(b, "api")

	convStore, err := conversation.NewStore(filepath.Join(t.TempDir(), "conv.db"))
	if err != nil {
		t.Fatalf("conversation.NewStore: %v", err)
	}
	t.Cleanup(func() { convStore.Close() })

	schedStore, err := scheduler.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("scheduler.NewStore: %v", err)
	}
	t.Cleanup(func() { schedStore.Close() })
	sched := scheduler.New(b, schedStore, nil)

	sup, err := sleepcycle.New(t.TempDir(), time.Hour, -1, nil, nil)
	if err != nil {
		t.Fatalf("sleepcycle.New: %v", err)
	}

	wd := watchdog.New(b, nil, time.Hour, time.Second)
	wd.RegisterCheck("sleep", watchdog.SleepCycleStalenessCheck(sup, 48*time.Hour), false)

	if rl == nil {
		rl = ratelimit.New(1000, time.Minute)
	}

	deps := Dependencies{
		Bus:            b,
		Correlator:     corr,
		Conversation:   convStore,
		Scheduler:      sched,
		SleepCycle:     sup,
		Watchdog:       wd,
		CostTracker:    costtracker.New(0, 0),
		BearerToken:    testToken,
		CORSOrigin:     "*",
		RateLimiter:    rl,
		RequestTimeout: 200 * time.Millisecond,
	}
	return NewRouter(deps), deps
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env successEnvelope
	env.Data = v
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, rec.Body.String())
	}
}

func TestHealth_Public(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStats_RequiresBearerToken(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestStats_WrongTokenRejected(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestConversations_CreateGetDelete(t *testing.T) {
	h, _ := newTestAPI(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/conversations", []byte(`{"id":"c1"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201; body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/conversations/c1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/conversations/c1", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/conversations/c1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d, want 404", rec.Code)
	}
}

func TestSendMessage_MissingContent(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/conversations/c1/messages", []byte(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSendMessage_HappyPath(t *testing.T) {
	h, deps := newTestAPI(t, nil)

	deps.Bus.On(bus.TypeIncomingMessage, func(sig *bus.Signal) {
		chatID, _ := sig.ChatID()
		go deps.Bus.Fire(bus.TypeOutgoingMessage, "agent", "", map[string]any{
			"text":    "hello back",
			"chatId":  chatID,
			"channel": "api",
		})
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/conversations/c2/messages", []byte(`{"content":"hi"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
}

func TestSendMessage_ConflictOnConcurrentSameID(t *testing.T) {
	h, _ := newTestAPI(t, nil)

	done := make(chan struct{})
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/conversations/shared/messages", []byte(`{"content":"hi"}`)))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/conversations/shared/messages", []byte(`{"content":"hi"}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	<-done
}

func TestSendMessage_TimesOutWithoutAgentReply(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/conversations/c3/messages", []byte(`{"content":"hi"}`)))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
}

func TestScheduler_AddRejectsInvalidCron(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/scheduler", []byte(`{"cronExpr":"not a cron"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestScheduler_AddListRemove(t *testing.T) {
	h, _ := newTestAPI(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/scheduler", []byte(`{"cronExpr":"* * * * *","message":"hi"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201; body=%s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/scheduler/"+created.Data.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/scheduler/"+created.Data.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestScheduler_ExecutionsNotFoundForUnknownTask(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/scheduler/nope/executions", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScheduler_ExecutionsEmptyForNeverFiredTask(t *testing.T) {
	h, _ := newTestAPI(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/scheduler", []byte(`{"cronExpr":"* * * * *","message":"hi"}`)))
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/scheduler/"+created.Data.ID+"/executions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"executions":[]`)) {
		t.Fatalf("body = %s, want an empty executions list", rec.Body.String())
	}
}

func TestSleepCycle_RunReturnsAccepted(t *testing.T) {
	h, _ := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sleep-cycle/run", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}

func TestTasks_ActiveListsPendingChatIDs(t *testing.T) {
	h, _ := newTestAPI(t, nil)

	done := make(chan struct{})
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/conversations/track-me/messages", []byte(`{"content":"hi"}`)))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/tasks/active", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("api-track-me")) {
		t.Fatalf("active tasks body = %s, want to contain api-track-me", rec.Body.String())
	}

	<-done
}

func TestRateLimit_TripsBeforeAuth(t *testing.T) {
	rl := ratelimit.New(1, time.Minute)
	h, _ := newTestAPI(t, rl)

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429 (rate limited before auth)", rec2.Code)
	}
}
