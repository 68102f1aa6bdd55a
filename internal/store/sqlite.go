// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides asset/inbox persistence, schema introspection, and dynamic-table inserts

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// The usr_* tables mirror the inventory tables the fleet reports into; the
// ingestion engine can also insert into any other existing table by name.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS acx_asset (
			asset_id   TEXT PRIMARY KEY,
			client_id  TEXT NOT NULL UNIQUE,
			hostname   NVARCHAR(128) NOT NULL,
			ip_address NVARCHAR(50) NOT NULL,
			last_seen  DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_asset_client_id ON acx_asset(client_id);

		CREATE TABLE IF NOT EXISTS acx_inbox (
			inbox_id         TEXT PRIMARY KEY,
			name             NVARCHAR(128),
			description      NVARCHAR(256),
			creator          NVARCHAR(128),
			vendor           NVARCHAR(128),
			content_type     NVARCHAR(32) NOT NULL DEFAULT 'unknown',
			content          TEXT,
			processing_state NVARCHAR(32) NOT NULL DEFAULT 'pending',
			processing_start DATETIME,
			processing_end   DATETIME,
			processing_log   TEXT,
			created_at       DATETIME NOT NULL,

			CHECK (processing_state IN ('pending', 'running', 'success', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_inbox_state ON acx_inbox(processing_state);

		CREATE TABLE IF NOT EXISTS usr_client_users (
			id             NVARCHAR(64) PRIMARY KEY,
			asset_id       NVARCHAR(64),
			username       NVARCHAR(128),
			client         NVARCHAR(128),
			usercount      VARCHAR(10),
			permissions    NVARCHAR(512),
			sid            NVARCHAR(128),
			full_name      NVARCHAR(256),
			account_status NVARCHAR(32),
			last_logon     DATETIME,
			description    NVARCHAR(1512),
			uid            INTEGER,
			gid            INTEGER,
			home_directory NVARCHAR(512),
			shell          NVARCHAR(256)
		);

		CREATE TABLE IF NOT EXISTS usr_system_info (
			id             NVARCHAR(64) PRIMARY KEY,
			asset_id       NVARCHAR(64),
			os_name        NVARCHAR(255),
			os_version     NVARCHAR(255),
			kernel_version NVARCHAR(255),
			cpu_model      NVARCHAR(255),
			cpu_cores      INTEGER,
			ram_total      NVARCHAR(500),
			disk_total     NVARCHAR(500),
			disk_free      NVARCHAR(500),
			ip_address     NVARCHAR(500),
			mac_address    NVARCHAR(500),
			created_at     DATETIME
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertAsset inserts a new asset for clientID or refreshes the existing one.
// Hostname and IP are overwritten on every registration, matching the agent's
// latest self-report; last_seen is always advanced.
func (s *SQLiteStore) UpsertAsset(ctx context.Context, clientID, hostname, ip string) error {
	query := `
		INSERT INTO acx_asset (asset_id, client_id, hostname, ip_address, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			hostname = excluded.hostname,
			ip_address = excluded.ip_address,
			last_seen = excluded.last_seen
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		clientID,
		hostname,
		ip,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting asset: %w", err)
	}

	s.logger.Debug("asset upserted", "client_id", clientID, "hostname", hostname)
	return nil
}

// GetAsset retrieves an asset by client ID.
// Returns ErrNotFound if the asset doesn't exist.
func (s *SQLiteStore) GetAsset(ctx context.Context, clientID string) (*Asset, error) {
	query := `
		SELECT asset_id, client_id, hostname, ip_address, last_seen
		FROM acx_asset
		WHERE client_id = ?
	`

	var asset Asset
	var lastSeenStr string

	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&asset.AssetID,
		&asset.ClientID,
		&asset.Hostname,
		&asset.IPAddress,
		&lastSeenStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset: %w", err)
	}

	asset.LastSeen, err = time.Parse(time.RFC3339, lastSeenStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}

	return &asset, nil
}

// ListAssets returns all assets, most recently seen first.
func (s *SQLiteStore) ListAssets(ctx context.Context) ([]*Asset, error) {
	query := `
		SELECT asset_id, client_id, hostname, ip_address, last_seen
		FROM acx_asset
		ORDER BY last_seen DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		var asset Asset
		var lastSeenStr string
		if err := rows.Scan(&asset.AssetID, &asset.ClientID, &asset.Hostname, &asset.IPAddress, &lastSeenStr); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		asset.LastSeen, err = time.Parse(time.RFC3339, lastSeenStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}

// CreateInboxEntry stores a new inbox entry. A missing InboxID is generated;
// the processing state starts as pending unless set otherwise.
func (s *SQLiteStore) CreateInboxEntry(ctx context.Context, entry *InboxEntry) error {
	if entry.InboxID == "" {
		entry.InboxID = uuid.New().String()
	}
	if entry.ProcessingState == "" {
		entry.ProcessingState = StatePending
	}
	if entry.ContentType == "" {
		entry.ContentType = "unknown"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO acx_inbox (inbox_id, name, description, creator, vendor, content_type, content, processing_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.InboxID,
		entry.Name,
		entry.Description,
		entry.Creator,
		entry.Vendor,
		entry.ContentType,
		entry.Content,
		entry.ProcessingState,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting inbox entry: %w", err)
	}

	s.logger.Debug("created inbox entry", "inbox_id", entry.InboxID, "name", entry.Name)
	return nil
}

// GetInboxEntry retrieves an inbox entry by ID.
// Returns ErrNotFound if the entry doesn't exist.
func (s *SQLiteStore) GetInboxEntry(ctx context.Context, inboxID string) (*InboxEntry, error) {
	query := selectInbox + ` WHERE inbox_id = ?`

	row := s.db.QueryRowContext(ctx, query, inboxID)
	entry, err := scanInboxEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying inbox entry: %w", err)
	}
	return entry, nil
}

// ListInboxByState returns all inbox entries in the given state, oldest first.
// The stable insertion order keeps sweeps deterministic.
func (s *SQLiteStore) ListInboxByState(ctx context.Context, state string) ([]*InboxEntry, error) {
	query := selectInbox + ` WHERE processing_state = ? ORDER BY created_at, inbox_id`

	rows, err := s.db.QueryContext(ctx, query, state)
	if err != nil {
		return nil, fmt.Errorf("querying inbox entries: %w", err)
	}
	defer rows.Close()

	var entries []*InboxEntry
	for rows.Next() {
		entry, err := scanInboxEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning inbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const selectInbox = `
	SELECT inbox_id, name, description, creator, vendor, content_type, content,
	       processing_state, processing_start, processing_end, processing_log, created_at
	FROM acx_inbox`

// scanInboxEntry scans one inbox row via the given Scan function, shared
// between QueryRow and Query paths.
func scanInboxEntry(scan func(dest ...any) error) (*InboxEntry, error) {
	var entry InboxEntry
	var startStr, endStr, logStr sql.NullString
	var name, description, creator, vendor, content sql.NullString
	var createdAtStr string

	err := scan(
		&entry.InboxID,
		&name,
		&description,
		&creator,
		&vendor,
		&entry.ContentType,
		&content,
		&entry.ProcessingState,
		&startStr,
		&endStr,
		&logStr,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	entry.Name = name.String
	entry.Description = description.String
	entry.Creator = creator.String
	entry.Vendor = vendor.String
	entry.Content = content.String
	entry.ProcessingLog = logStr.String

	entry.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if startStr.Valid {
		t, err := time.Parse(time.RFC3339, startStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing processing_start: %w", err)
		}
		entry.ProcessingStart = &t
	}
	if endStr.Valid {
		t, err := time.Parse(time.RFC3339, endStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing processing_end: %w", err)
		}
		entry.ProcessingEnd = &t
	}

	return &entry, nil
}

// MarkInboxRunning transitions an entry to running and stamps processing_start.
// The update commits immediately so a crash mid-entry leaves it visibly running.
func (s *SQLiteStore) MarkInboxRunning(ctx context.Context, inboxID string) error {
	query := `
		UPDATE acx_inbox
		SET processing_state = ?, processing_start = ?
		WHERE inbox_id = ?
	`

	res, err := s.db.ExecContext(ctx, query, StateRunning, time.Now().UTC().Format(time.RFC3339), inboxID)
	if err != nil {
		return fmt.Errorf("marking inbox entry running: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkInboxSuccess transitions an entry to its terminal success state.
func (s *SQLiteStore) MarkInboxSuccess(ctx context.Context, inboxID, log string) error {
	return s.markInboxDone(ctx, inboxID, StateSuccess, log)
}

// MarkInboxError transitions an entry to its terminal error state.
func (s *SQLiteStore) MarkInboxError(ctx context.Context, inboxID, log string) error {
	return s.markInboxDone(ctx, inboxID, StateError, log)
}

func (s *SQLiteStore) markInboxDone(ctx context.Context, inboxID, state, log string) error {
	query := `
		UPDATE acx_inbox
		SET processing_state = ?, processing_end = ?, processing_log = ?
		WHERE inbox_id = ?
	`

	res, err := s.db.ExecContext(ctx, query, state, time.Now().UTC().Format(time.RFC3339), log, inboxID)
	if err != nil {
		return fmt.Errorf("marking inbox entry %s: %w", state, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetStaleRunning moves entries stuck in running for longer than olderThan
// back to pending. Returns the number of entries reset.
func (s *SQLiteStore) ResetStaleRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	query := `
		UPDATE acx_inbox
		SET processing_state = ?, processing_log = 'reset after interrupted run'
		WHERE processing_state = ? AND processing_start < ?
	`

	res, err := s.db.ExecContext(ctx, query, StatePending, StateRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("resetting stale running entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting reset entries: %w", err)
	}
	if n > 0 {
		s.logger.Warn("reset stale running inbox entries", "count", n)
	}
	return int(n), nil
}

// identPattern limits dynamic table and column identifiers to names that can
// never escape a quoted identifier.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// charLenPattern extracts the declared length of bounded text column types,
// e.g. NVARCHAR(128) or CHAR(10).
var charLenPattern = regexp.MustCompile(`(?i)^n?(?:var)?char\s*\(\s*(\d+)\s*\)$`)

// TableColumns returns the column names of the given table.
// Returns ErrUnknownTable if the table does not exist.
func (s *SQLiteStore) TableColumns(ctx context.Context, table string) ([]string, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("querying table info: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return cols, nil
}

// ColumnLengths returns the maximum character length for each bounded text
// column of the table (declared as VARCHAR(n), NVARCHAR(n), CHAR(n), NCHAR(n)).
// Unbounded columns are absent from the map. The result is derived fresh on
// every call so schema changes between sweeps are picked up.
func (s *SQLiteStore) ColumnLengths(ctx context.Context, table string) (map[string]int, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("querying table info: %w", err)
	}
	defer rows.Close()

	lengths := make(map[string]int)
	found := false
	for rows.Next() {
		var name, declType string
		if err := rows.Scan(&name, &declType); err != nil {
			return nil, fmt.Errorf("scanning column type: %w", err)
		}
		found = true
		if m := charLenPattern.FindStringSubmatch(strings.TrimSpace(declType)); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				lengths[name] = n
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return lengths, nil
}

// QueryTable returns all rows of the given table as column-name keyed maps.
// The table name is validated the same way as in InsertRows.
func (s *SQLiteStore) QueryTable(ctx context.Context, table string) ([]map[string]any, error) {
	cols, err := s.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertRows inserts the given rows into table within a single transaction.
// Table and column names are validated against the live schema before use, so
// only identifiers that actually exist reach the statement; values are always
// bound parameters. Any failure rolls back the whole batch.
func (s *SQLiteStore) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(columns) == 0 || len(rows) == 0 {
		return nil
	}

	known, err := s.TableColumns(ctx, table)
	if err != nil {
		return err
	}
	knownSet := make(map[string]bool, len(known))
	for _, c := range known {
		knownSet[c] = true
	}
	for _, c := range columns {
		if !identPattern.MatchString(c) || !knownSet[c] {
			return fmt.Errorf("%w: %q in table %q", ErrUnknownColumn, c, table)
		}
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = `"` + c + `"`
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row has %d values, expected %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing inserts: %w", err)
	}

	s.logger.Debug("inserted rows", "table", table, "count", len(rows))
	return nil
}
