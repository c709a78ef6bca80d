package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kenobot/kenobot/internal/bus"
)

// eventUpgrader accepts any origin: CORS for the REST surface is already
// enforced by the cors middleware, and this route sits behind the same
// bearer-auth group.
var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// watchedEventTypes are the signal types fanned out over the admin
// websocket; high-frequency THINKING_START is deliberately excluded.
var watchedEventTypes = []bus.Type{
	bus.TypeIncomingMessage,
	bus.TypeOutgoingMessage,
	bus.TypeError,
	bus.TypeHealthDegraded,
	bus.TypeHealthUnhealthy,
	bus.TypeHealthRecovered,
	bus.TypeNotification,
	bus.TypeApprovalProposed,
}

// handleEventsWebSocket upgrades to a websocket and fans out every
// watched signal fired on the bus for the lifetime of the connection.
// Additive to spec.md (§8 of SPEC_FULL.md): it observes the bus, it does
// not drive it.
func (a *api) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	out := make(chan *bus.Signal, 32)
	handler := func(sig *bus.Signal) {
		select {
		case out <- sig:
		default:
			// Slow consumer: drop rather than block signal dispatch.
		}
	}
	for _, typ := range watchedEventTypes {
		a.deps.Bus.On(typ, handler)
	}
	defer func() {
		for _, typ := range watchedEventTypes {
			a.deps.Bus.Off(typ, handler)
		}
	}()

	// Drain client reads in the background so the connection's close is
	// detected even though this handler never expects inbound messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case sig := <-out:
			data, err := json.Marshal(sig)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
