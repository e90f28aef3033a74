package engine

import "context"

// Launcher starts workflow executions through the interpreter. It is the
// single entry point shared by the HTTP API and the scheduler.
type Launcher struct {
	interpreter *Interpreter
	executions  *ExecutionStore
	workflows   WorkflowSource
}

func NewLauncher(interpreter *Interpreter, executions *ExecutionStore, workflows WorkflowSource) *Launcher {
	return &Launcher{interpreter: interpreter, executions: executions, workflows: workflows}
}

// LaunchWorkflow resolves the workflow, registers an execution and starts
// the interpreter on its own goroutine. The run's context is detached from
// ctx: it outlives the request and ends only through cancellation or a
// terminal state.
func (l *Launcher) LaunchWorkflow(ctx context.Context, workflowID, owner string) (string, error) {
	wf, err := l.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	exec := l.executions.Create(workflowID, owner, cancel)
	go l.interpreter.Run(runCtx, exec, wf, nil)
	return exec.ID, nil
}
