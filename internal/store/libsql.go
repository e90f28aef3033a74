package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/parser"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db     *sql.DB
	parser *parser.Parser
}

// NewLibSQLStore opens a libSQL database at the given path. The path should
// be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
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

	return &LibSQLStore{db: db, parser: parser.New()}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) SaveWorkflow(ctx context.Context, rec *WorkflowRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, document, created_at, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, document=excluded.document, updated_at=CURRENT_TIMESTAMP`,
		rec.ID, rec.Name, rec.Document,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save workflow %s: %s", rec.ID, err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetWorkflowRecord(ctx context.Context, id string) (*WorkflowRecord, error) {
	rec := &WorkflowRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, document, created_at, updated_at FROM workflows WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.Document, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get workflow %s: %s", id, err.Error()).WithCause(err)
	}
	return rec, nil
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context) ([]WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, document, created_at, updated_at FROM workflows ORDER BY created_at`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list workflows: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []WorkflowRecord
	for rows.Next() {
		var rec WorkflowRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Document, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan workflow: %s", err.Error()).WithCause(err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete workflow %s: %s", id, err.Error()).WithCause(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	return nil
}

// GetWorkflow loads and parses the stored document. Satisfies
// engine.WorkflowSource.
func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	rec, err := s.GetWorkflowRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.parser.Parse([]byte(rec.Document))
}

// --- Executions ---

func (s *LibSQLStore) SaveExecution(ctx context.Context, snap engine.Snapshot) error {
	var finished any
	if snap.FinishedAt != nil {
		finished = snap.FinishedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, owner, status, error, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, error=excluded.error, finished_at=excluded.finished_at`,
		snap.ID, snap.WorkflowID, snap.Owner, string(snap.Status), snap.Error, snap.CreatedAt.UTC(), finished,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save execution %s: %s", snap.ID, err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*engine.Snapshot, error) {
	snap := &engine.Snapshot{}
	var status string
	var errMsg sql.NullString
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, owner, status, error, created_at, finished_at FROM executions WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.WorkflowID, &snap.Owner, &status, &errMsg, &snap.CreatedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get execution %s: %s", id, err.Error()).WithCause(err)
	}
	snap.Status = schema.ExecutionStatus(status)
	if errMsg.Valid {
		snap.Error = errMsg.String
	}
	if finished.Valid {
		t := finished.Time
		snap.FinishedAt = &t
	}
	return snap, nil
}

// AppendStep writes one step with the next per-execution sequence number.
func (s *LibSQLStore) AppendStep(ctx context.Context, executionID string, step schema.Step) error {
	var input any
	if step.Input != nil {
		data, err := json.Marshal(step.Input)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "marshal step input: %s", err.Error()).WithCause(err)
		}
		input = string(data)
	}
	var output any
	if step.Output != nil {
		data, err := json.Marshal(step.Output)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "marshal step output: %s", err.Error()).WithCause(err)
		}
		output = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "append step: %s", err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM execution_steps WHERE execution_id = ?`, executionID,
	).Scan(&seq); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "next step seq: %s", err.Error()).WithCause(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO execution_steps (execution_id, seq, node_id, node_type, input, output, error, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		executionID, seq, step.NodeID, string(step.NodeType), input, output, step.Error, string(step.Status), step.Timestamp.UTC(),
	); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "insert step: %s", err.Error()).WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit step: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) ListSteps(ctx context.Context, executionID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, node_id, node_type, input, output, error, status, created_at
		 FROM execution_steps WHERE execution_id = ? ORDER BY seq`, executionID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list steps: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		rec := StepRecord{ExecutionID: executionID}
		var input, output, errMsg sql.NullString
		var nodeType, status string
		if err := rows.Scan(&rec.Seq, &rec.Step.NodeID, &nodeType, &input, &output, &errMsg, &status, &rec.Step.Timestamp); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan step: %s", err.Error()).WithCause(err)
		}
		rec.Step.NodeType = schema.NodeType(nodeType)
		rec.Step.Status = schema.StepStatus(status)
		if errMsg.Valid {
			rec.Step.Error = errMsg.String
		}
		rec.Step.Input = decodeStepValue(input)
		rec.Step.Output = decodeStepValue(output)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// decodeStepValue turns a stored JSON column back into its value. A column
// that is not valid JSON is kept as the raw string.
func decodeStepValue(col sql.NullString) any {
	if !col.Valid {
		return nil
	}
	var val any
	if err := json.Unmarshal([]byte(col.String), &val); err != nil {
		return col.String
	}
	return val
}

// --- Schedules ---

func (s *LibSQLStore) SaveSchedule(ctx context.Context, sched *Schedule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, workflow_id, cron_expr, enabled, created_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET workflow_id=excluded.workflow_id, cron_expr=excluded.cron_expr, enabled=excluded.enabled`,
		sched.ID, sched.WorkflowID, sched.CronExpr, boolToInt(sched.Enabled),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save schedule %s: %s", sched.ID, err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	sched := &Schedule{}
	var enabled int
	var lastRun sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, cron_expr, enabled, created_at, last_run_at FROM schedules WHERE id = ?`, id,
	).Scan(&sched.ID, &sched.WorkflowID, &sched.CronExpr, &enabled, &sched.CreatedAt, &lastRun)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get schedule %s: %s", id, err.Error()).WithCause(err)
	}
	sched.Enabled = enabled != 0
	if lastRun.Valid {
		t := lastRun.Time
		sched.LastRunAt = &t
	}
	return sched, nil
}

func (s *LibSQLStore) ListSchedules(ctx context.Context, enabledOnly bool) ([]Schedule, error) {
	query := `SELECT id, workflow_id, cron_expr, enabled, created_at, last_run_at FROM schedules ORDER BY created_at`
	if enabledOnly {
		query = `SELECT id, workflow_id, cron_expr, enabled, created_at, last_run_at FROM schedules WHERE enabled = 1 ORDER BY created_at`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list schedules: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var sched Schedule
		var enabled int
		var lastRun sql.NullTime
		if err := rows.Scan(&sched.ID, &sched.WorkflowID, &sched.CronExpr, &enabled, &sched.CreatedAt, &lastRun); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan schedule: %s", err.Error()).WithCause(err)
		}
		sched.Enabled = enabled != 0
		if lastRun.Valid {
			t := lastRun.Time
			sched.LastRunAt = &t
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete schedule %s: %s", id, err.Error()).WithCause(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", id)
	}
	return nil
}

func (s *LibSQLStore) MarkScheduleRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE schedules SET last_run_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "mark schedule run %s: %s", id, err.Error()).WithCause(err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
