package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/automata-dev/automata/pkg/schema"
)

// LibSQLStore implements Store on libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path. The path should
// be a file URI, e.g. "file:/path/to/automata.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// --- Workflows ---

func (s *LibSQLStore) PutWorkflow(ctx context.Context, wf *schema.WorkflowDefinition) error {
	def, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, owner_id, name, version, definition, enabled)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id=excluded.owner_id, name=excluded.name, version=excluded.version,
		   definition=excluded.definition, enabled=excluded.enabled,
		   updated_at=CURRENT_TIMESTAMP`,
		wf.ID, wf.OwnerID, nullStr(wf.Name), wf.Version, string(def), boolInt(wf.Enabled),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error) {
	var defJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM workflows WHERE id = ?`, id,
	).Scan(&defJSON)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf := &schema.WorkflowDefinition{}
	if err := json.Unmarshal([]byte(defJSON), wf); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return wf, nil
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.WorkflowDefinition, error) {
	var where []string
	var args []any

	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.EnabledOnly {
		where = append(where, "enabled = 1")
	}

	query := `SELECT definition FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.WorkflowDefinition
	for rows.Next() {
		var defJSON string
		if err := rows.Scan(&defJSON); err != nil {
			return nil, err
		}
		wf := &schema.WorkflowDefinition{}
		if err := json.Unmarshal([]byte(defJSON), wf); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) SetWorkflowEnabled(ctx context.Context, id string, enabled bool) error {
	// The JSON definition carries its own enabled field; keep both in sync.
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET enabled = ?,
		   definition = json_set(definition, '$.enabled', json(?)),
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		boolInt(enabled), boolJSON(enabled), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Executions ---

func (s *LibSQLStore) RecordExecution(ctx context.Context, rec *ExecutionRecord) error {
	outcome, err := json.Marshal(rec.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (execution_id, workflow_id, owner_id, outcome, success, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.WorkflowID, rec.OwnerID, string(outcome),
		boolInt(rec.Outcome.Success), rec.Outcome.StartedAt, nullTime(rec.Outcome.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*ExecutionRecord, error) {
	query := `SELECT execution_id, workflow_id, owner_id, outcome FROM executions
	          WHERE workflow_id = ? ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		rec := &ExecutionRecord{}
		var outcomeJSON string
		if err := rows.Scan(&rec.ExecutionID, &rec.WorkflowID, &rec.OwnerID, &outcomeJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(outcomeJSON), &rec.Outcome); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Trigger flags ---

func (s *LibSQLStore) GetFlag(ctx context.Context, userID, key string) (bool, error) {
	var value int
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM trigger_flags WHERE user_id = ? AND key = ?`,
		userID, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if expiresAt.Valid && expiresAt.Time.Before(time.Now()) {
		return false, nil
	}
	return value != 0, nil
}

func (s *LibSQLStore) SetFlag(ctx context.Context, userID, key string, value bool, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trigger_flags (user_id, key, value, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET
		   value=excluded.value, expires_at=excluded.expires_at, updated_at=CURRENT_TIMESTAMP`,
		userID, key, boolInt(value), expiresAt,
	)
	return err
}

// --- Activity history ---

func (s *LibSQLStore) RecordEvent(ctx context.Context, userID string, event schema.ActivityEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_events (user_id, event_type, timestamp) VALUES (?, ?, ?)`,
		userID, event.Type, ts,
	)
	return err
}

func (s *LibSQLStore) GetRecentEvents(ctx context.Context, userID string, since time.Time) ([]schema.ActivityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, timestamp FROM activity_events
		 WHERE user_id = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		userID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []schema.ActivityEvent
	for rows.Next() {
		var ev schema.ActivityEvent
		if err := rows.Scan(&ev.Type, &ev.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
