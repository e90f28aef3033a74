// Package store persists workflow documents, execution records, step
// history and scheduled runs in libSQL.
package store

import (
	"context"
	"time"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// WorkflowRecord is a stored workflow document with metadata.
type WorkflowRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepRecord is one persisted step with its per-execution sequence number.
type StepRecord struct {
	ExecutionID string      `json:"execution_id"`
	Seq         int64       `json:"seq"`
	Step        schema.Step `json:"step"`
}

// Schedule is a cron-triggered workflow run.
type Schedule struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflow_id"`
	CronExpr   string     `json:"cron_expr"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  time.Time  `json:"created_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

// Store is the persistence contract. LibSQLStore implements it; it also
// satisfies engine.WorkflowSource and engine.HistoryWriter.
type Store interface {
	// Workflows.
	SaveWorkflow(ctx context.Context, rec *WorkflowRecord) error
	GetWorkflowRecord(ctx context.Context, id string) (*WorkflowRecord, error)
	ListWorkflows(ctx context.Context) ([]WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)

	// Executions and step history.
	SaveExecution(ctx context.Context, snap engine.Snapshot) error
	GetExecution(ctx context.Context, id string) (*engine.Snapshot, error)
	AppendStep(ctx context.Context, executionID string, step schema.Step) error
	ListSteps(ctx context.Context, executionID string) ([]StepRecord, error)

	// Schedules.
	SaveSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context, enabledOnly bool) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	MarkScheduleRun(ctx context.Context, id string, at time.Time) error

	Close() error
}
