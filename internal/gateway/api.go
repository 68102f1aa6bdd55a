// ABOUTME: Admin HTTP API for listing agents, pushing messages/scripts, and inbox submission.
// ABOUTME: JSON request/response handlers mounted on the admin mux.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/acx-labs/fleetgate/internal/distribute"
	"github.com/acx-labs/fleetgate/internal/store"
)

// SendMessageRequest is the JSON request body for POST /api/send.
type SendMessageRequest struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// BroadcastMessageRequest is the JSON request body for POST /api/send_all.
type BroadcastMessageRequest struct {
	Message string `json:"message"`
}

// SendScriptRequest is the JSON request body for POST /api/scripts/send.
type SendScriptRequest struct {
	ClientID   string `json:"client_id"`
	ScriptName string `json:"script_name"`
	ScriptType string `json:"script_type,omitempty"`
}

// BroadcastScriptRequest is the JSON request body for POST /api/scripts/send_all.
type BroadcastScriptRequest struct {
	ScriptName string `json:"script_name"`
	ScriptType string `json:"script_type,omitempty"`
}

// TargetResult reports the delivery outcome for one broadcast target.
type TargetResult struct {
	ClientID string `json:"client_id"`
	Error    string `json:"error,omitempty"`
}

// BroadcastResponse is the JSON response for broadcast operations.
type BroadcastResponse struct {
	Status  string         `json:"status"`
	Results []TargetResult `json:"results"`
}

// InboxCreatedResponse is the JSON response for POST /api/inbox.
type InboxCreatedResponse struct {
	InboxID string `json:"inbox_id"`
}

// InboxEntryResponse is the JSON response for GET /api/inbox/{id}.
type InboxEntryResponse struct {
	InboxID         string `json:"inbox_id"`
	Name            string `json:"name"`
	ProcessingState string `json:"processing_state"`
	ProcessingLog   string `json:"processing_log,omitempty"`
	ProcessingStart string `json:"processing_start,omitempty"`
	ProcessingEnd   string `json:"processing_end,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// inboxMetaData is the optional MetaData section of an inbox submission.
type inboxMetaData struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Creator     string `json:"Creator"`
	Vendor      string `json:"Vendor"`
	ContentType string `json:"ContentType"`
}

// adminMux builds the admin HTTP routes.
func (g *Gateway) adminMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	mux.HandleFunc("/api/clients", g.handleListClients)
	mux.HandleFunc("/api/send", g.handleSendMessage)
	mux.HandleFunc("/api/send_all", g.handleBroadcastMessage)
	mux.HandleFunc("/api/scripts", g.handleListScripts)
	mux.HandleFunc("/api/scripts/send", g.handleSendScript)
	mux.HandleFunc("/api/scripts/send_all", g.handleBroadcastScript)
	mux.HandleFunc("/api/inbox", g.handleCreateInbox)
	mux.HandleFunc("/api/inbox/", g.handleGetInbox)
	mux.HandleFunc("/api/events", g.handleEvents)

	return mux
}

// handleListClients handles GET /api/clients. It returns the live registry
// snapshot as {client_id: {hostname, ip}}.
func (g *Gateway) handleListClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.writeJSON(w, http.StatusOK, g.registry.Snapshot())
}

// handleSendMessage handles POST /api/send.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClientID == "" || req.Message == "" {
		g.sendJSONError(w, http.StatusBadRequest, "client_id and message are required")
		return
	}

	if err := g.distribute.SendText(req.ClientID, req.Message); err != nil {
		g.sendDeliveryError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleBroadcastMessage handles POST /api/send_all.
func (g *Gateway) handleBroadcastMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	statuses := g.distribute.Broadcast(req.Message)
	g.writeJSON(w, http.StatusOK, broadcastResponse(statuses))
}

// handleListScripts handles GET /api/scripts.
func (g *Gateway) handleListScripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	scripts, err := g.distribute.Scripts()
	if err != nil {
		g.logger.Error("listing scripts", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "error retrieving scripts")
		return
	}
	if scripts == nil {
		scripts = []distribute.Script{}
	}
	g.writeJSON(w, http.StatusOK, scripts)
}

// handleSendScript handles POST /api/scripts/send. Delivery to a single
// agent is chunked; the script type defaults from the file extension.
func (g *Gateway) handleSendScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClientID == "" || req.ScriptName == "" {
		g.sendJSONError(w, http.StatusBadRequest, "client_id and script_name are required")
		return
	}
	if req.ScriptType == "" {
		req.ScriptType = distribute.ScriptTypeFor(req.ScriptName)
	}

	if err := g.distribute.SendScript(req.ClientID, req.ScriptName, req.ScriptType); err != nil {
		g.sendDeliveryError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleBroadcastScript handles POST /api/scripts/send_all.
func (g *Gateway) handleBroadcastScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req BroadcastScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ScriptName == "" {
		g.sendJSONError(w, http.StatusBadRequest, "script_name is required")
		return
	}
	if req.ScriptType == "" {
		req.ScriptType = distribute.ScriptTypeFor(req.ScriptName)
	}

	statuses, err := g.distribute.BroadcastScript(req.ScriptName, req.ScriptType)
	if err != nil {
		g.sendDeliveryError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, broadcastResponse(statuses))
}

// handleCreateInbox handles POST /api/inbox. The payload is stored verbatim
// for the ingestion engine; MetaData fields are lifted into the entry's
// descriptive columns when present.
func (g *Gateway) handleCreateInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(payload) == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "empty request received")
		return
	}

	content, err := json.Marshal(payload)
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "error encoding payload")
		return
	}

	var meta inboxMetaData
	if raw, ok := payload["MetaData"]; ok {
		// Malformed MetaData is tolerated; the envelope still queues.
		_ = json.Unmarshal(raw, &meta)
	}

	entry := &store.InboxEntry{
		Name:        meta.Name,
		Description: meta.Description,
		Creator:     meta.Creator,
		Vendor:      meta.Vendor,
		ContentType: meta.ContentType,
		Content:     string(content),
	}
	if err := g.store.CreateInboxEntry(r.Context(), entry); err != nil {
		g.logger.Error("creating inbox entry", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "error saving payload")
		return
	}

	g.logger.Info("inbox entry queued", "inbox_id", entry.InboxID, "name", entry.Name)
	g.writeJSON(w, http.StatusCreated, InboxCreatedResponse{InboxID: entry.InboxID})
}

// handleGetInbox handles GET /api/inbox/{id}, exposing the processing state
// and log so callers can see why an entry errored.
func (g *Gateway) handleGetInbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/inbox/")
	if id == "" || strings.Contains(id, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "inbox id required")
		return
	}

	entry, err := g.store.GetInboxEntry(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "inbox entry not found")
			return
		}
		g.logger.Error("loading inbox entry", "inbox_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "error loading inbox entry")
		return
	}

	g.writeJSON(w, http.StatusOK, InboxEntryResponse{
		InboxID:         entry.InboxID,
		Name:            entry.Name,
		ProcessingState: entry.ProcessingState,
		ProcessingLog:   entry.ProcessingLog,
		ProcessingStart: formatTime(entry.ProcessingStart),
		ProcessingEnd:   formatTime(entry.ProcessingEnd),
		CreatedAt:       entry.CreatedAt.Format(time.RFC3339),
	})
}

// sendDeliveryError maps distribution errors onto HTTP statuses: unknown
// targets and scripts are 404, stale targets 410, anything else 500.
func (g *Gateway) sendDeliveryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, distribute.ErrAgentNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, distribute.ErrScriptNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, distribute.ErrAgentDisconnected):
		g.sendJSONError(w, http.StatusGone, err.Error())
	default:
		g.logger.Error("delivery failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func broadcastResponse(statuses []distribute.TargetStatus) BroadcastResponse {
	resp := BroadcastResponse{Status: "ok", Results: make([]TargetResult, 0, len(statuses))}
	for _, st := range statuses {
		res := TargetResult{ClientID: st.ClientID}
		if st.Err != nil {
			res.Error = st.Err.Error()
			resp.Status = "partial"
		}
		resp.Results = append(resp.Results, res)
	}
	return resp
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		g.logger.Error("encoding error response", "error", err)
	}
}

// writeSSEEvent writes one server-sent event frame.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("marshaling SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
