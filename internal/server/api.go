package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gemihub/gemiflow/internal/parser"
	"github.com/gemihub/gemiflow/internal/store"
)

const maxDocumentSize = 1 << 20 // 1MB

// --- Workflows ---

// handleCreateWorkflow registers a YAML workflow document. The document is
// fully parsed and validated before it is stored.
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	wf, err := parser.New().Parse(data)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	rec := &store.WorkflowRecord{ID: wf.ID, Name: wf.Name, Document: string(data)}
	if err := s.deps.Store.SaveWorkflow(r.Context(), rec); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": wf.ID, "name": wf.Name})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Store.ListWorkflows(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	type item struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	out := make([]item, 0, len(records))
	for _, rec := range records {
		out = append(out, item{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": out})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.GetWorkflowRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

// --- Executions ---

func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	executionID, err := s.deps.Launcher.LaunchWorkflow(r.Context(), workflowID, principal(r))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"executions": s.deps.Executions.List()})
}

// handleGetExecution returns the live snapshot, falling back to persisted
// history once the entry has been evicted.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if exec, ok := s.deps.Executions.Get(id); ok {
		writeJSON(w, http.StatusOK, exec.Snapshot())
		return
	}
	snap, err := s.deps.Store.GetExecution(r.Context(), id)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.deps.Store.ListSteps(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// handleResolvePrompt delivers the response for a waiting prompt. The body
// is {"value": ...}; a null value dismisses the prompt.
func (s *Server) handleResolvePrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.deps.Broker.Resolve(id, body.Value); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

// handleStopExecution requests cooperative cancellation. An unknown id and
// a foreign owner are indistinguishable to the caller.
func (s *Server) handleStopExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.deps.Executions.IsOwnedBy(id, principal(r)) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if !s.deps.Executions.Cancel(id) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// --- Schedules ---

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkflowID string `json:"workflow_id"`
		CronExpr   string `json:"cron_expr"`
		Enabled    *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.WorkflowID == "" || body.CronExpr == "" {
		writeError(w, http.StatusBadRequest, "workflow_id and cron_expr are required")
		return
	}
	if s.deps.Scheduler != nil {
		if err := s.deps.Scheduler.Validate(body.CronExpr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	// The workflow must exist before it can be scheduled.
	if _, err := s.deps.Store.GetWorkflowRecord(r.Context(), body.WorkflowID); err != nil {
		writeFlowError(w, err)
		return
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	sched := &store.Schedule{
		ID:         uuid.NewString(),
		WorkflowID: body.WorkflowID,
		CronExpr:   body.CronExpr,
		Enabled:    enabled,
	}
	if err := s.deps.Store.SaveSchedule(r.Context(), sched); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sched.ID})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.deps.Store.ListSchedules(r.Context(), false)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.deps.Store.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}
