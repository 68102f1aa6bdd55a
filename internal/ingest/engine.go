// ABOUTME: Background ingestion engine that turns inbox payloads into table rows.
// ABOUTME: Periodic sweep over pending entries with per-entry failure isolation.

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/acx-labs/fleetgate/internal/store"
)

// payload is the wire shape of an inbox entry's content.
type payload struct {
	Content *content `json:"Content"`
}

type content struct {
	TableName     string           `json:"TableName"`
	Data          []map[string]any `json:"Data"`
	FieldMappings []fieldMapping   `json:"FieldMappings"`
}

type fieldMapping struct {
	TargetField string `json:"TargetField"`
	Expression  string `json:"Expression"`
}

// Config tunes the ingestion engine.
type Config struct {
	// Interval between sweeps over pending inbox entries.
	Interval time.Duration

	// ResetStaleRunning resets entries stuck in "running" longer than
	// StaleAfter back to "pending" once at startup. This recovers entries
	// orphaned by a crash mid-sweep; the entries re-run from scratch.
	ResetStaleRunning bool
	StaleAfter        time.Duration
}

// Engine runs the inbox ingestion loop. It exclusively owns inbox entry
// state transitions.
type Engine struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
}

// New creates an ingestion engine. A zero interval falls back to 10 seconds.
func New(st store.Store, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Engine{
		store:  st,
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes sweeps at the configured interval until ctx is cancelled.
// Entry-scoped failures never stop the loop.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("ingestion engine started", "interval", e.cfg.Interval)

	if e.cfg.ResetStaleRunning {
		n, err := e.store.ResetStaleRunning(ctx, e.cfg.StaleAfter)
		if err != nil {
			e.logger.Error("resetting stale running entries", "error", err)
		} else if n > 0 {
			e.logger.Info("requeued stale running entries", "count", n)
		}
	}

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Sweep(ctx)
		case <-ctx.Done():
			e.logger.Info("ingestion engine stopped")
			return
		}
	}
}

// Sweep processes all currently pending inbox entries once. Each entry is
// transitioned to running first (committed immediately), then processed and
// marked success or error. Failures are isolated per entry.
func (e *Engine) Sweep(ctx context.Context) {
	entries, err := e.store.ListInboxByState(ctx, store.StatePending)
	if err != nil {
		e.logger.Error("listing pending inbox entries", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	e.logger.Debug("sweeping inbox", "pending", len(entries))

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		if err := e.store.MarkInboxRunning(ctx, entry.InboxID); err != nil {
			e.logger.Error("marking inbox entry running", "inbox_id", entry.InboxID, "error", err)
			continue
		}

		if err := e.processEntry(ctx, entry); err != nil {
			e.logger.Warn("inbox entry failed", "inbox_id", entry.InboxID, "error", err)
			if markErr := e.store.MarkInboxError(ctx, entry.InboxID, err.Error()); markErr != nil {
				e.logger.Error("marking inbox entry error", "inbox_id", entry.InboxID, "error", markErr)
			}
			continue
		}

		if err := e.store.MarkInboxSuccess(ctx, entry.InboxID, "ok"); err != nil {
			e.logger.Error("marking inbox entry success", "inbox_id", entry.InboxID, "error", err)
			continue
		}
		e.logger.Info("inbox entry processed", "inbox_id", entry.InboxID, "name", entry.Name)
	}
}

// processEntry validates and executes one inbox entry: parse the payload,
// resolve each record's column values through the field mappings, truncate
// oversized strings to the target columns' declared lengths, and insert all
// rows in a single transaction.
func (e *Engine) processEntry(ctx context.Context, entry *store.InboxEntry) error {
	var p payload
	if err := json.Unmarshal([]byte(entry.Content), &p); err != nil {
		return fmt.Errorf("decoding content JSON: %w", err)
	}
	if p.Content == nil {
		return fmt.Errorf("Content section missing or invalid")
	}

	tableName := strings.TrimSpace(p.Content.TableName)
	if tableName == "" {
		return fmt.Errorf("TableName missing or empty")
	}
	if len(p.Content.Data) == 0 {
		return fmt.Errorf("Data missing or empty")
	}
	if len(p.Content.FieldMappings) == 0 {
		return fmt.Errorf("FieldMappings missing or empty")
	}

	mappings := make([]fieldMapping, 0, len(p.Content.FieldMappings))
	for _, m := range p.Content.FieldMappings {
		m.TargetField = strings.TrimSpace(m.TargetField)
		m.Expression = strings.TrimSpace(m.Expression)
		if m.TargetField == "" {
			return fmt.Errorf("TargetField missing in FieldMappings")
		}
		if m.Expression == "" {
			return fmt.Errorf("Expression missing for %s", m.TargetField)
		}
		mappings = append(mappings, m)
	}

	// Re-derived per entry so schema changes between sweeps are honored.
	lengths, err := e.store.ColumnLengths(ctx, tableName)
	if err != nil {
		return fmt.Errorf("introspecting table %s: %w", tableName, err)
	}

	columns := make([]string, len(mappings))
	for i, m := range mappings {
		columns[i] = m.TargetField
	}

	rows := make([][]any, 0, len(p.Content.Data))
	for _, record := range p.Content.Data {
		row := make([]any, len(mappings))
		for i, m := range mappings {
			value, err := Resolve(m.Expression, record)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", m.TargetField, err)
			}
			row[i] = e.truncate(m.TargetField, value, lengths)
		}
		rows = append(rows, row)
	}

	if err := e.store.InsertRows(ctx, tableName, columns, rows); err != nil {
		return fmt.Errorf("inserting into %s: %w", tableName, err)
	}
	return nil
}

// truncate shortens string values that exceed the column's declared character
// length. Truncation is logged but is not a processing error.
func (e *Engine) truncate(column string, value any, lengths map[string]int) any {
	str, ok := value.(string)
	if !ok {
		return value
	}
	limit, ok := lengths[column]
	if !ok {
		return value
	}
	runes := []rune(str)
	if len(runes) <= limit {
		return value
	}
	e.logger.Warn("truncating oversized value",
		"column", column,
		"length", len(runes),
		"limit", limit,
	)
	return string(runes[:limit])
}
