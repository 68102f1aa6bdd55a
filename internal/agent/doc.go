// Package agent tracks connected fleetgate agents.
//
// # Overview
//
// The agent package owns the lifetime of live agent connections: registration,
// lookup, snapshots, stale-entry eviction, and disconnect cleanup. It holds
// no transport or persistence logic; the control handler feeds it connections
// and the store keeps the durable asset mirror.
//
// # Registry
//
// The Registry tracks all connected agents:
//
//	reg := agent.NewRegistry(logger)
//
// Key operations:
//
//   - Register(clientID, hostname, ip, conn): Insert or replace an entry
//   - UnregisterConn(conn): Remove the entry for a terminated connection
//   - Remove(clientID): Evict a stale entry discovered during a send
//   - Lookup(clientID): Get a specific agent
//   - Snapshot(): Get the client_id -> {hostname, ip} view
//   - Subscribe(): Receive refresh notifications
//
// # Change Notification
//
// After every mutation the registry compares the current snapshot against the
// previously retained one by value. Only an actual change (membership or a
// hostname/ip difference for an existing client) wakes observers; redundant
// re-registrations are debounced. Observer channels are buffered with one
// slot and notifications coalesce, so a slow observer never blocks a
// registration.
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Its lock protects only the client
// map and observer set; it is never held across a network send or a database
// call.
package agent
