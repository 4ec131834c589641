package httpx

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ratekl/api/internal/tenant"
	"github.com/ratekl/api/internal/ws"
)

const feedEvent = "app-data"

func (r *Router) handleFeedWS(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}
	tenantKey, _ := tenant.KeyFromContext(req.Context())
	caller, _ := principalFromContext(req.Context())
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	logger := r.logger.With("tenant", tenantKey, "client_id", uuid.NewString(), "user", caller.Key())
	client := ws.NewClient(conn, logger)
	r.hub.Register(tenantKey, client)
	logger.Debug("feed subscriber connected", "transport", "websocket")

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	client.Drain()
	close(done)
	r.hub.Unregister(tenantKey, client)
	client.Close()
	logger.Debug("feed subscriber disconnected", "transport", "websocket")
}

func (r *Router) handleFeedSSE(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "feed unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	tenantKey, _ := tenant.KeyFromContext(req.Context())
	caller, _ := principalFromContext(req.Context())

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := r.logger.With("tenant", tenantKey, "client_id", uuid.NewString(), "user", caller.Key())
	client := ws.NewSSEClient(w, flusher, feedEvent, logger)
	r.hub.Register(tenantKey, client)
	defer r.hub.Unregister(tenantKey, client)
	logger.Debug("feed subscriber connected", "transport", "sse")

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			client.Close()
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
