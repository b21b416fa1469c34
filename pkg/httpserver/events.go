package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// eventStream bridges the bus to websocket clients. Each connection gets its
// own subscription: history replay first, then live events.
type eventStream struct {
	bus      *bus.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func newEventStream(eventBus *bus.Bus, logger *zap.Logger) *eventStream {
	return &eventStream{
		bus:    eventBus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboard clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the connection and streams bus events until the client
// disconnects.
func (e *eventStream) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("ws-upgrade-failed", zap.Error(err))
		return
	}

	sub := e.bus.Subscribe()
	defer e.bus.Unsubscribe(sub)
	defer func() { _ = conn.Close() }()

	// Drain client messages so pings/pongs and closes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				e.logger.Debug("ws-write-failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
