package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gemihub/gemiflow/internal/logging"
	"github.com/gemihub/gemiflow/internal/streaming"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// Default interpreter limits, overridable through Config.
const (
	DefaultMaxLoopIterations = 10000
	DefaultMaxWorkflowDepth  = 8
)

// Config carries the interpreter limits.
type Config struct {
	// MaxLoopIterations caps condition visits per while node.
	MaxLoopIterations int
	// MaxWorkflowDepth caps nested workflow-node recursion.
	MaxWorkflowDepth int
}

func (c Config) withDefaults() Config {
	if c.MaxLoopIterations <= 0 {
		c.MaxLoopIterations = DefaultMaxLoopIterations
	}
	if c.MaxWorkflowDepth <= 0 {
		c.MaxWorkflowDepth = DefaultMaxWorkflowDepth
	}
	return c
}

// WorkflowSource resolves workflow documents by id for the workflow node.
type WorkflowSource interface {
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
}

// HistoryWriter persists execution state and step history. Persistence is
// best-effort: failures are logged, never fail the run.
type HistoryWriter interface {
	SaveExecution(ctx context.Context, snap Snapshot) error
	AppendStep(ctx context.Context, executionID string, step schema.Step) error
}

// Interpreter drives workflow executions. One goroutine per run, strictly
// sequential node dispatch.
type Interpreter struct {
	registry  *Registry
	hub       streaming.Hub
	broker    *PromptBroker
	services  *Services
	workflows WorkflowSource
	history   HistoryWriter
	logger    *slog.Logger
	cfg       Config
}

func NewInterpreter(registry *Registry, hub streaming.Hub, broker *PromptBroker, svcs *Services, workflows WorkflowSource, history HistoryWriter, logger *slog.Logger, cfg Config) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		registry:  registry,
		hub:       hub,
		broker:    broker,
		services:  svcs,
		workflows: workflows,
		history:   history,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// Run executes the workflow to a terminal state, emitting exactly one
// terminal event. Callers start it on its own goroutine.
func (i *Interpreter) Run(ctx context.Context, exec *Execution, wf *schema.Workflow, input map[string]any) {
	ctx = logging.WithExecutionID(ctx, exec.ID)
	log := i.logger.With("execution_id", exec.ID, "workflow_id", exec.WorkflowID)

	vars := make(map[string]any, len(input))
	for k, v := range input {
		vars[k] = v
	}

	i.setStatus(exec, schema.ExecutionStatusRunning)
	log.InfoContext(ctx, "execution started")

	err := i.runGraph(ctx, exec, wf, vars, 0)

	switch {
	case err == nil:
		exec.SetStatus(schema.ExecutionStatusCompleted)
		i.publish(exec.ID, schema.Event{Type: schema.EventComplete, Status: schema.ExecutionStatusCompleted})
		log.InfoContext(ctx, "execution completed")
	case isCancellation(err):
		exec.SetStatus(schema.ExecutionStatusCancelled)
		i.publish(exec.ID, schema.Event{Type: schema.EventCancelled, Status: schema.ExecutionStatusCancelled})
		log.InfoContext(ctx, "execution cancelled")
	default:
		exec.SetError(err.Error())
		i.publish(exec.ID, schema.Event{Type: schema.EventError, Status: schema.ExecutionStatusError, Message: err.Error()})
		log.ErrorContext(ctx, "execution failed", "error", err)
	}

	i.persistSnapshot(exec)
	i.hub.Close(exec.ID)
}

// runGraph walks one workflow graph to completion. Nested workflow nodes
// recurse through here with depth+1 and their own variable scope.
func (i *Interpreter) runGraph(ctx context.Context, exec *Execution, wf *schema.Workflow, vars map[string]any, depth int) error {
	node := wf.Start()
	if node == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no start node")
	}

	loopVisits := make(map[string]int)

	for node != nil {
		if err := ctx.Err(); err != nil {
			return schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithCause(err)
		}

		if node.Type == schema.NodeWhile {
			loopVisits[node.ID]++
			if loopVisits[node.ID] > i.loopLimit(node) {
				return schema.NewErrorf(schema.ErrCodeLoopLimit,
					"while node exceeded %d iterations", i.loopLimit(node)).WithNode(node.ID)
			}
		}

		handler, ok := i.registry.Get(node.Type)
		if !ok {
			return schema.NewErrorf(schema.ErrCodeUnknownNode, "no handler for node type %q", node.Type).WithNode(node.ID)
		}

		nodeCtx := logging.WithNodeID(ctx, node.ID)
		res, err := handler.Execute(nodeCtx, i.nodeContext(exec, node, vars, depth))
		if err != nil {
			if isCancellation(err) {
				return err
			}
			i.emitStep(exec.ID, &schema.Step{
				NodeID:    node.ID,
				NodeType:  node.Type,
				Error:     err.Error(),
				Status:    schema.StepStatusError,
				Timestamp: time.Now().UTC(),
			}, "")
			return attachNode(err, node.ID)
		}

		i.emitStep(exec.ID, &schema.Step{
			NodeID:    node.ID,
			NodeType:  node.Type,
			Input:     res.Input,
			Output:    res.Output,
			Status:    schema.StepStatusSuccess,
			Timestamp: time.Now().UTC(),
		}, res.Summary)

		if res.SaveTo != "" {
			vars[res.SaveTo] = res.Output
		}

		next, err := i.selectSuccessor(wf, node, res.Branch)
		if err != nil {
			return err
		}
		node = next
	}
	return nil
}

// selectSuccessor picks the next node. A missing labeled edge on an if node
// is a validation error; a while node with a false condition and no false
// edge simply ends the walk.
func (i *Interpreter) selectSuccessor(wf *schema.Workflow, node *schema.Node, branch string) (*schema.Node, error) {
	label := ""
	if node.Type.Branching() {
		label = branch
	}
	nextID, ok := wf.Successor(node.ID, label)
	if !ok {
		if node.Type == schema.NodeIf {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"if node has no %q edge", label).WithNode(node.ID)
		}
		if node.Type == schema.NodeWhile && label == schema.EdgeTrue {
			return nil, schema.NewError(schema.ErrCodeValidation,
				"while node has no loop body edge").WithNode(node.ID)
		}
		return nil, nil
	}
	next, ok := wf.Nodes[nextID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "edge targets unknown node %q", nextID).WithNode(node.ID)
	}
	return next, nil
}

func (i *Interpreter) nodeContext(exec *Execution, node *schema.Node, vars map[string]any, depth int) *NodeContext {
	return &NodeContext{
		ExecutionID: exec.ID,
		Node:        node,
		Variables:   vars,
		Services:    i.services,
		Logger:      i.logger.With("execution_id", exec.ID, "node_id", node.ID),
		Publish: func(event schema.Event) {
			i.publish(exec.ID, event)
		},
		SetStatus: func(status schema.ExecutionStatus) {
			i.setStatus(exec, status)
		},
		AwaitPrompt: func(ctx context.Context) (any, error) {
			return i.broker.Await(ctx, exec.ID)
		},
		RunWorkflow: func(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error) {
			return i.runNested(ctx, exec, workflowID, input, depth)
		},
	}
}

func (i *Interpreter) runNested(ctx context.Context, exec *Execution, workflowID string, input map[string]any, depth int) (map[string]any, error) {
	if depth+1 > i.cfg.MaxWorkflowDepth {
		return nil, schema.NewErrorf(schema.ErrCodeDepthLimit, "workflow nesting exceeds depth %d", i.cfg.MaxWorkflowDepth)
	}
	if i.workflows == nil {
		return nil, schema.NewError(schema.ErrCodeNotFound, "no workflow source configured")
	}
	child, err := i.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	childVars := make(map[string]any, len(input))
	for k, v := range input {
		childVars[k] = v
	}
	if err := i.runGraph(ctx, exec, child, childVars, depth+1); err != nil {
		return nil, err
	}
	return childVars, nil
}

func (i *Interpreter) loopLimit(node *schema.Node) int {
	if wp, ok := node.Props.(*schema.WhileProps); ok && wp.MaxIterations > 0 {
		return wp.MaxIterations
	}
	return i.cfg.MaxLoopIterations
}

func (i *Interpreter) setStatus(exec *Execution, status schema.ExecutionStatus) {
	exec.SetStatus(status)
	i.publish(exec.ID, schema.Event{Type: schema.EventStatus, Status: status})
}

func (i *Interpreter) publish(executionID string, event schema.Event) {
	event.ExecutionID = executionID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	i.hub.Publish(executionID, event)
}

func (i *Interpreter) emitStep(executionID string, step *schema.Step, message string) {
	i.publish(executionID, schema.Event{Type: schema.EventLog, Step: step, Message: message})
	if i.history != nil {
		if err := i.history.AppendStep(context.Background(), executionID, *step); err != nil {
			i.logger.Warn("step persistence failed", "execution_id", executionID, "error", err)
		}
	}
}

func (i *Interpreter) persistSnapshot(exec *Execution) {
	if i.history == nil {
		return
	}
	if err := i.history.SaveExecution(context.Background(), exec.Snapshot()); err != nil {
		i.logger.Warn("execution persistence failed", "execution_id", exec.ID, "error", err)
	}
}

// isCancellation reports whether the error stems from cooperative cancel.
func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *schema.FlowError
	return errors.As(err, &fe) && fe.Code == schema.ErrCodeCancelled
}

func attachNode(err error, nodeID string) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		if fe.NodeID == "" {
			fe.NodeID = nodeID
		}
		return err
	}
	return schema.NewError(schema.ErrCodeValidation, err.Error()).WithNode(nodeID).WithCause(err)
}
