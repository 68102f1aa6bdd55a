// ABOUTME: Distribution service pushing text and scripts to live agents.
// ABOUTME: Single-target scripts go out chunked; broadcasts send one envelope per agent.

package distribute

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/acx-labs/fleetgate/internal/agent"
)

var (
	// ErrAgentNotFound indicates no registry entry exists for the client ID.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentDisconnected indicates the registry entry existed but its
	// connection was already closed. The stale entry is evicted.
	ErrAgentDisconnected = errors.New("agent no longer connected")
)

// TargetStatus reports the delivery outcome for one broadcast target.
type TargetStatus struct {
	ClientID string `json:"client_id"`
	Err      error  `json:"-"`
}

// textEnvelope carries operator free text to an agent.
type textEnvelope struct {
	Action  string `json:"action"`
	Content string `json:"content"`
}

// chunkEnvelope is one piece of a chunked single-target script delivery.
type chunkEnvelope struct {
	Action      string `json:"action"`
	ScriptName  string `json:"script_name"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	ScriptChunk string `json:"script_chunk"`
	ScriptType  string `json:"script_type"`
}

// executeEnvelope carries a full script in one message, used on the
// broadcast path.
type executeEnvelope struct {
	Action        string `json:"action"`
	ScriptName    string `json:"script_name"`
	ScriptContent string `json:"script_content"`
	ScriptType    string `json:"script_type"`
}

// Service delivers messages and scripts to agents through their registry
// connections. Delivery is best effort: a failed or stale target never
// aborts delivery to the others.
type Service struct {
	registry   *agent.Registry
	scriptsDir string
	logger     *slog.Logger
}

// NewService creates a distribution service reading scripts from scriptsDir.
func NewService(registry *agent.Registry, scriptsDir string, logger *slog.Logger) *Service {
	return &Service{
		registry:   registry,
		scriptsDir: scriptsDir,
		logger:     logger,
	}
}

// Scripts lists the distributable scripts under the configured directory.
func (s *Service) Scripts() ([]Script, error) {
	return ListScripts(s.scriptsDir)
}

// SendText delivers a free-text message to one agent.
func (s *Service) SendText(clientID, message string) error {
	conn, err := s.liveConn(clientID)
	if err != nil {
		return err
	}

	env := textEnvelope{Action: "message", Content: message}
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("sending message to %s: %w", clientID, err)
	}
	s.logger.Info("message sent", "client_id", clientID)
	return nil
}

// Broadcast delivers a free-text message to every live agent and reports a
// per-target status. Stale entries found along the way are evicted.
func (s *Service) Broadcast(message string) []TargetStatus {
	env := textEnvelope{Action: "message", Content: message}
	return s.broadcast("message", func(c *agent.Client) error {
		return c.Conn.WriteJSON(env)
	})
}

// SendScript delivers the named script to one agent, split into ordered
// chunks of the encoded content.
func (s *Service) SendScript(clientID, scriptName, scriptType string) error {
	conn, err := s.liveConn(clientID)
	if err != nil {
		return err
	}

	content, err := readScript(s.scriptsDir, scriptName)
	if err != nil {
		return err
	}

	encoded := EncodeScript(content)
	chunks := Chunks(encoded, ChunkSize)

	for i, chunk := range chunks {
		env := chunkEnvelope{
			Action:      "upload_script_chunk",
			ScriptName:  scriptName,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			ScriptChunk: chunk,
			ScriptType:  scriptType,
		}
		if err := conn.WriteJSON(env); err != nil {
			return fmt.Errorf("sending chunk %d/%d to %s: %w", i+1, len(chunks), clientID, err)
		}
	}

	s.logger.Info("script sent",
		"client_id", clientID, "script", scriptName, "chunks", len(chunks))
	return nil
}

// BroadcastScript delivers the named script to every live agent as a single
// full-content envelope per target.
func (s *Service) BroadcastScript(scriptName, scriptType string) ([]TargetStatus, error) {
	content, err := readScript(s.scriptsDir, scriptName)
	if err != nil {
		return nil, err
	}

	env := executeEnvelope{
		Action:        "execute_script",
		ScriptName:    scriptName,
		ScriptContent: EncodeScript(content),
		ScriptType:    scriptType,
	}
	return s.broadcast("script", func(c *agent.Client) error {
		return c.Conn.WriteJSON(env)
	}), nil
}

// liveConn resolves a client ID to its open connection, evicting the entry
// when the connection turned out stale.
func (s *Service) liveConn(clientID string) (agent.Conn, error) {
	client, ok := s.registry.Lookup(clientID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, clientID)
	}
	if client.Conn == nil || client.Conn.IsClosed() {
		s.registry.Remove(clientID)
		return nil, fmt.Errorf("%w: %s", ErrAgentDisconnected, clientID)
	}
	return client.Conn, nil
}

// broadcast applies send to every live registry entry. Closed connections
// are evicted rather than attempted; send failures are logged and recorded
// per target.
func (s *Service) broadcast(what string, send func(*agent.Client) error) []TargetStatus {
	clients := s.registry.All()
	statuses := make([]TargetStatus, 0, len(clients))

	for _, c := range clients {
		if c.Conn == nil || c.Conn.IsClosed() {
			s.logger.Warn("evicting stale agent", "client_id", c.ID)
			s.registry.Remove(c.ID)
			statuses = append(statuses, TargetStatus{
				ClientID: c.ID,
				Err:      fmt.Errorf("%w: %s", ErrAgentDisconnected, c.ID),
			})
			continue
		}
		if err := send(c); err != nil {
			s.logger.Warn("broadcast delivery failed",
				"what", what, "client_id", c.ID, "error", err)
			statuses = append(statuses, TargetStatus{ClientID: c.ID, Err: err})
			continue
		}
		statuses = append(statuses, TargetStatus{ClientID: c.ID})
	}
	return statuses
}
