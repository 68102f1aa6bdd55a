// ABOUTME: Store interface and data types for fleetgate persistence
// ABOUTME: Defines Asset, InboxEntry structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUnknownTable is returned when an ingestion target table does not exist
var ErrUnknownTable = errors.New("unknown table")

// ErrUnknownColumn is returned when an ingestion target column does not exist
var ErrUnknownColumn = errors.New("unknown column")

// Processing states for inbox entries. Success and error are terminal;
// entries are never automatically re-queued.
const (
	StatePending = "pending"
	StateRunning = "running"
	StateSuccess = "success"
	StateError   = "error"
)

// Asset is the durable mirror of an agent registration. Presence means
// "seen at least once", not "currently online"; liveness is tracked only by
// the in-memory registry.
type Asset struct {
	AssetID   string
	ClientID  string
	Hostname  string
	IPAddress string
	LastSeen  time.Time
}

// InboxEntry is one opaque ingestion payload and its processing state.
type InboxEntry struct {
	InboxID         string
	Name            string
	Description     string
	Creator         string
	Vendor          string
	ContentType     string
	Content         string
	ProcessingState string
	ProcessingStart *time.Time
	ProcessingEnd   *time.Time
	ProcessingLog   string
	CreatedAt       time.Time
}

// Store defines the persistence interface for assets, inbox entries, and
// dynamic-table ingestion.
type Store interface {
	// Assets
	UpsertAsset(ctx context.Context, clientID, hostname, ip string) error
	GetAsset(ctx context.Context, clientID string) (*Asset, error)
	ListAssets(ctx context.Context) ([]*Asset, error)

	// Inbox
	CreateInboxEntry(ctx context.Context, entry *InboxEntry) error
	GetInboxEntry(ctx context.Context, inboxID string) (*InboxEntry, error)
	ListInboxByState(ctx context.Context, state string) ([]*InboxEntry, error)
	MarkInboxRunning(ctx context.Context, inboxID string) error
	MarkInboxSuccess(ctx context.Context, inboxID, log string) error
	MarkInboxError(ctx context.Context, inboxID, log string) error
	ResetStaleRunning(ctx context.Context, olderThan time.Duration) (int, error)

	// Schema introspection and dynamic inserts
	TableColumns(ctx context.Context, table string) ([]string, error)
	ColumnLengths(ctx context.Context, table string) (map[string]int, error)
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error

	Close() error
}
