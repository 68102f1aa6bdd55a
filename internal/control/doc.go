// ABOUTME: Package doc for the agent control protocol transport.
// ABOUTME: Describes the per-connection state machine and reply contract.

// Package control implements the websocket-facing side of the agent
// protocol. Each accepted connection runs its own loop that reads JSON
// envelopes, dispatches by action, and answers every inbound message with
// exactly one status reply on the same connection.
//
// A connection moves through three states: open on accept, registered after
// a valid register envelope, and closed when the peer goes away. Protocol
// errors (bad JSON, unknown actions, incomplete registrations) are answered
// with an error reply and never terminate the connection; only the peer or
// the network ends a session. On termination the connection's registry
// entries are removed exactly once. Asset records persist across
// disconnects; only the live registry reflects reachability.
package control
