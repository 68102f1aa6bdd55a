// Package ingest implements the asynchronous inbox ingestion engine.
//
// # Overview
//
// Producers post opaque JSON envelopes into the inbox table. The engine
// sweeps pending entries on a fixed interval and turns each into
// parameterized inserts against the table the payload names, using a small
// declarative field-mapping language:
//
//	{
//	  "Content": {
//	    "TableName": "usr_client_users",
//	    "Data": [{"UserName": "alice", "UID": "1000"}],
//	    "FieldMappings": [
//	      {"TargetField": "id", "Expression": "NewGUID()"},
//	      {"TargetField": "username", "Expression": "{UserName}"},
//	      {"TargetField": "uid", "Expression": "{UID}"}
//	    ]
//	  }
//	}
//
// # State Machine
//
// Entries move pending -> running -> success|error. The running transition
// commits before processing starts, so a crash mid-entry leaves it visibly
// running instead of silently lost. Terminal states are final; nothing
// re-queues automatically (an optional startup reconciliation can requeue
// stale running entries, off by default).
//
// # Failure Isolation
//
// Every validation or insert failure is scoped to its entry: the entry's row
// batch rolls back, the entry is marked error with the failure detail in its
// processing log, and the sweep continues with the next entry. The loop
// itself only exits on context cancellation.
package ingest
