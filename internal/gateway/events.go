// ABOUTME: SSE endpoint streaming registry refresh notifications to dashboards.
// ABOUTME: One subscriber per request; events carry the current agent snapshot.

package gateway

import "net/http"

// handleEvents handles GET /api/events. It streams a "refresh" event
// whenever the set of connected agents visibly changes, carrying the new
// snapshot so observers need no follow-up request. An initial snapshot is
// sent immediately so late subscribers start from current state.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := g.registry.Subscribe()
	defer cancel()

	g.writeSSEEvent(w, "refresh", g.registry.Snapshot())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-events:
			g.writeSSEEvent(w, "refresh", g.registry.Snapshot())
			flusher.Flush()
		}
	}
}
