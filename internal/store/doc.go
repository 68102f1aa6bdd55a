// Package store provides persistent storage for fleetgate using SQLite.
//
// # Data Models
//
//   - Asset: durable mirror of an agent registration (soft presence tracking;
//     never deleted on disconnect)
//   - InboxEntry: one opaque ingestion payload with its processing state
//     machine (pending -> running -> success|error)
//
// The usr_* inventory tables are created with the schema so ingestion has
// standing targets, but InsertRows works against any existing table by name.
//
// # Schema Introspection
//
// ColumnLengths derives a column -> maximum-character-length map from the
// declared column types (VARCHAR(n) and friends) via pragma_table_info. The
// ingestion engine uses it to truncate oversized string values before
// insertion. TableColumns doubles as the identifier whitelist for dynamic
// inserts: only table and column names present in the live schema are ever
// interpolated into SQL, and always quoted; values are bound parameters.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrUnknownTable: Ingestion target table does not exist
//   - ErrUnknownColumn: Ingestion target column does not exist
//
// All methods accept context.Context for cancellation support.
package store
