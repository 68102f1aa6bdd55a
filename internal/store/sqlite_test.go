// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers asset upserts, inbox state transitions, introspection, and dynamic inserts

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database file should be created in nested directory")
}

func TestUpsertAsset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAsset(ctx, "client-1", "host-1", "10.0.0.1"))

	first, err := s.GetAsset(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "host-1", first.Hostname)
	assert.Equal(t, "10.0.0.1", first.IPAddress)
	assert.NotEmpty(t, first.AssetID)

	// Re-registration refreshes hostname, ip, and last_seen but keeps one row.
	require.NoError(t, s.UpsertAsset(ctx, "client-1", "host-2", "10.0.0.2"))

	second, err := s.GetAsset(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "host-2", second.Hostname)
	assert.Equal(t, "10.0.0.2", second.IPAddress)
	assert.Equal(t, first.AssetID, second.AssetID, "asset_id should be stable across re-registrations")

	assets, err := s.ListAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestGetAsset_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAsset(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInboxLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &InboxEntry{
		Name:        "user import",
		Creator:     "tester",
		ContentType: "application/json",
		Content:     `{"Content":{}}`,
	}
	require.NoError(t, s.CreateInboxEntry(ctx, entry))
	require.NotEmpty(t, entry.InboxID)
	assert.Equal(t, StatePending, entry.ProcessingState)

	pending, err := s.ListInboxByState(ctx, StatePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.InboxID, pending[0].InboxID)

	require.NoError(t, s.MarkInboxRunning(ctx, entry.InboxID))
	running, err := s.GetInboxEntry(ctx, entry.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, running.ProcessingState)
	require.NotNil(t, running.ProcessingStart)

	require.NoError(t, s.MarkInboxSuccess(ctx, entry.InboxID, "ok"))
	done, err := s.GetInboxEntry(ctx, entry.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, done.ProcessingState)
	assert.Equal(t, "ok", done.ProcessingLog)
	require.NotNil(t, done.ProcessingEnd)

	// Terminal state entries no longer appear in the pending sweep.
	pending, err = s.ListInboxByState(ctx, StatePending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkInboxError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &InboxEntry{Content: "{}"}
	require.NoError(t, s.CreateInboxEntry(ctx, entry))
	require.NoError(t, s.MarkInboxRunning(ctx, entry.InboxID))
	require.NoError(t, s.MarkInboxError(ctx, entry.InboxID, "FieldMappings missing or empty"))

	got, err := s.GetInboxEntry(ctx, entry.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StateError, got.ProcessingState)
	assert.Equal(t, "FieldMappings missing or empty", got.ProcessingLog)
}

func TestMarkInbox_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.MarkInboxRunning(ctx, "missing"), ErrNotFound)
	assert.ErrorIs(t, s.MarkInboxSuccess(ctx, "missing", "ok"), ErrNotFound)
	assert.ErrorIs(t, s.MarkInboxError(ctx, "missing", "boom"), ErrNotFound)
}

func TestResetStaleRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := &InboxEntry{Content: "{}"}
	require.NoError(t, s.CreateInboxEntry(ctx, stale))
	require.NoError(t, s.MarkInboxRunning(ctx, stale.InboxID))

	// Backdate processing_start beyond the threshold.
	_, err := s.db.ExecContext(ctx,
		`UPDATE acx_inbox SET processing_start = ? WHERE inbox_id = ?`,
		time.Now().UTC().Add(-2*time.Hour).Format(time.RFC3339), stale.InboxID)
	require.NoError(t, err)

	fresh := &InboxEntry{Content: "{}"}
	require.NoError(t, s.CreateInboxEntry(ctx, fresh))
	require.NoError(t, s.MarkInboxRunning(ctx, fresh.InboxID))

	n, err := s.ResetStaleRunning(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetInboxEntry(ctx, stale.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, got.ProcessingState)

	got, err = s.GetInboxEntry(ctx, fresh.InboxID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.ProcessingState, "recent running entries stay running")
}

func TestTableColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cols, err := s.TableColumns(ctx, "usr_client_users")
	require.NoError(t, err)
	assert.Contains(t, cols, "id")
	assert.Contains(t, cols, "username")
	assert.Contains(t, cols, "uid")

	_, err = s.TableColumns(ctx, "no_such_table")
	assert.ErrorIs(t, err, ErrUnknownTable)

	_, err = s.TableColumns(ctx, `usr"; DROP TABLE acx_inbox; --`)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestColumnLengths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lengths, err := s.ColumnLengths(ctx, "usr_client_users")
	require.NoError(t, err)

	assert.Equal(t, 128, lengths["username"])
	assert.Equal(t, 10, lengths["usercount"])
	assert.Equal(t, 32, lengths["account_status"])
	_, hasUID := lengths["uid"]
	assert.False(t, hasUID, "integer columns carry no length bound")

	_, err = s.ColumnLengths(ctx, "no_such_table")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestInsertRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	columns := []string{"id", "username", "uid"}
	rows := [][]any{
		{"guid-1", "alice", "1000"},
		{"guid-2", "bob", "1001"},
	}
	require.NoError(t, s.InsertRows(ctx, "usr_client_users", columns, rows))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM usr_client_users`).Scan(&count))
	assert.Equal(t, 2, count)

	var username string
	require.NoError(t, s.db.QueryRow(`SELECT username FROM usr_client_users WHERE id = 'guid-1'`).Scan(&username))
	assert.Equal(t, "alice", username)
}

func TestInsertRows_RollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	columns := []string{"id", "username"}
	rows := [][]any{
		{"guid-1", "alice"},
		{"guid-1", "duplicate primary key"},
	}
	err := s.InsertRows(ctx, "usr_client_users", columns, rows)
	require.Error(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM usr_client_users`).Scan(&count))
	assert.Equal(t, 0, count, "partial inserts must be rolled back")
}

func TestInsertRows_UnknownIdentifiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InsertRows(ctx, "no_such_table", []string{"id"}, [][]any{{"x"}})
	assert.ErrorIs(t, err, ErrUnknownTable)

	err = s.InsertRows(ctx, "usr_client_users", []string{"no_such_column"}, [][]any{{"x"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	err = s.InsertRows(ctx, "usr_client_users", []string{`username" --`}, [][]any{{"x"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestInsertRows_EmptyInput(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.InsertRows(context.Background(), "usr_client_users", nil, nil))
}

func TestErrorsAreDistinguishable(t *testing.T) {
	assert.False(t, errors.Is(ErrUnknownTable, ErrUnknownColumn))
	assert.False(t, errors.Is(ErrNotFound, ErrUnknownTable))
}
