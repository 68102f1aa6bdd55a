// ABOUTME: Connection handle abstraction and the Client record for a connected agent.
// ABOUTME: The registry owns Client entries; transports provide the Conn implementation.

package agent

// Conn is the registry's view of an agent's duplex connection. The websocket
// transport implements it; tests substitute mocks.
//
// WriteJSON must serialize concurrent writers internally: envelopes from the
// control handler and the distribution service may race on the same connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
	IsClosed() bool
}

// Client is one live agent connection. At most one Client exists per client
// ID, and a Conn is owned by at most one Client at a time.
type Client struct {
	ID       string
	Hostname string
	IP       string
	Conn     Conn
}

// Endpoint is the externally visible part of a Client, used for snapshots
// and the list-agents query.
type Endpoint struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}
