// ABOUTME: Per-connection control protocol handler for agent websocket sessions.
// ABOUTME: Parses inbound envelopes, handles registration, and replies in message order.

package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/acx-labs/fleetgate/internal/agent"
	"github.com/acx-labs/fleetgate/internal/store"
)

// envelope is one inbound message on an agent connection. Only the fields
// relevant to the current action are populated.
type envelope struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}

// reply is the handler's response to one inbound envelope.
type reply struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func errorReply(message string) reply {
	return reply{Status: "error", Message: message}
}

// Handler accepts agent websocket connections and runs the per-connection
// protocol loop. Each connection runs independently; replies for one
// connection's messages are sent in order before the next message is read.
type Handler struct {
	registry *agent.Registry
	store    store.Store
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler serving the given registry and store.
func NewHandler(registry *agent.Registry, st store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		store:    st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Agents connect from arbitrary networks, not browsers.
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and runs the connection loop until the
// peer disconnects. Unregistration runs exactly once, whether the
// connection ended gracefully or abruptly.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := newWSConn(raw)
	h.logger.Info("agent connected", "remote_addr", r.RemoteAddr)

	defer func() {
		conn.Close()
		h.registry.UnregisterConn(conn)
		h.logger.Info("agent disconnected", "remote_addr", r.RemoteAddr)
	}()

	for {
		messageType, message, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("connection closed unexpectedly", "remote_addr", r.RemoteAddr, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		h.handleMessage(r.Context(), conn, message)
	}
}

// handleMessage processes one inbound envelope and sends exactly one reply.
// A panic while processing is confined to this message: the connection
// stays open and the agent gets an error reply.
func (h *Handler) handleMessage(ctx context.Context, conn *wsConn, message []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic handling agent message", "panic", rec)
			h.send(conn, errorReply(fmt.Sprintf("Processing error: %v", rec)))
		}
	}()

	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		h.logger.Warn("invalid JSON from agent", "error", err)
		h.send(conn, errorReply("Invalid JSON"))
		return
	}

	switch env.Action {
	case "register":
		h.handleRegister(ctx, conn, env)
	default:
		h.logger.Warn("unknown action from agent", "action", env.Action)
		h.send(conn, errorReply("Unknown action"))
	}
}

// handleRegister validates the registration envelope, commits the live
// entry, and mirrors it into the asset table. The in-memory entry is kept
// even when the durable upsert fails; the agent sees the database error in
// its reply but the connection stays open and registered.
func (h *Handler) handleRegister(ctx context.Context, conn *wsConn, env envelope) {
	if env.ClientID == "" || env.Hostname == "" || env.IP == "" {
		h.logger.Warn("invalid registration data",
			"client_id", env.ClientID, "hostname", env.Hostname, "ip", env.IP)
		h.send(conn, errorReply("Invalid registration data"))
		return
	}

	h.registry.Register(env.ClientID, env.Hostname, env.IP, conn)

	if err := h.store.UpsertAsset(ctx, env.ClientID, env.Hostname, env.IP); err != nil {
		h.logger.Error("persisting asset record", "client_id", env.ClientID, "error", err)
		h.send(conn, errorReply(fmt.Sprintf("Database error: %v", err)))
		return
	}

	h.logger.Info("agent registered",
		"client_id", env.ClientID, "hostname", env.Hostname, "ip", env.IP)
	h.send(conn, reply{Status: "registered"})
}

func (h *Handler) send(conn *wsConn, r reply) {
	if err := conn.WriteJSON(r); err != nil {
		h.logger.Warn("sending reply to agent", "error", err)
	}
}
