// Package gateway orchestrates the fleetgate server components.
//
// # Overview
//
// The gateway package is the central coordinator of the fleetgate server.
// It owns and wires all major components: the live agent registry, the
// SQLite store, the websocket control handler, the distribution service,
// the ingestion engine, and the admin HTTP API.
//
// # Listeners
//
// Two listeners run for the lifetime of the process. The websocket listener
// serves /ws and accepts agent connections; each connection is handled by
// the control package. The admin listener serves the operator API:
//
//   - GET  /api/clients            list connected agents
//   - POST /api/send               send text to one agent
//   - POST /api/send_all           send text to all agents
//   - GET  /api/scripts            list distributable scripts
//   - POST /api/scripts/send       send a script to one agent (chunked)
//   - POST /api/scripts/send_all   send a script to all agents
//   - POST /api/inbox              queue an ingestion payload
//   - GET  /api/inbox/{id}         query an entry's processing state
//   - GET  /api/events             SSE stream of registry changes
//   - GET  /health, /health/ready  liveness and readiness
//
// # Lifecycle
//
// New opens the store and builds the component graph; Run starts the
// ingestion loop and both listeners and blocks until the context is
// cancelled, then shuts everything down gracefully.
package gateway
