package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/parser"
	"github.com/gemihub/gemiflow/internal/streaming"
	"github.com/gemihub/gemiflow/pkg/schema"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE",
		Short: "Run a workflow file locally, answering prompts on stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd.Context(), args[0])
		},
	}
}

// fileSource serves exactly one parsed workflow, enough for a local run
// where workflow nodes reference the file's own id.
type fileSource struct {
	wf *schema.Workflow
}

func (f *fileSource) GetWorkflow(_ context.Context, id string) (*schema.Workflow, error) {
	if id != f.wf.ID {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	return f.wf, nil
}

func runLocal(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	wf, err := parser.New().Parse(data)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	hub := streaming.NewMemoryHub()
	broker := engine.NewPromptBroker()
	executions := engine.NewExecutionStore(time.Minute, time.Hour)

	interp := engine.NewInterpreter(buildRegistry(), hub, broker, buildServices(cfg), &fileSource{wf: wf}, nil, logger, engine.Config{
		MaxLoopIterations: cfg.MaxLoopIterations,
		MaxWorkflowDepth:  cfg.MaxWorkflowDepth,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	exec := executions.Create(wf.ID, "cli", cancel)

	// Attach the consumer before the first event can fire.
	events, unsubscribe := hub.Subscribe(exec.ID)
	defer unsubscribe()

	go interp.Run(runCtx, exec, wf, nil)

	stdin := bufio.NewReader(os.Stdin)
	for event := range events {
		switch event.Type {
		case schema.EventLog:
			printStep(event.Step)
		case schema.EventPromptRequest:
			answer, err := askPrompt(stdin, event.Prompt)
			if err != nil {
				return err
			}
			if err := broker.Resolve(exec.ID, answer); err != nil {
				return err
			}
		case schema.EventComplete:
			fmt.Println("workflow completed")
			return nil
		case schema.EventCancelled:
			fmt.Println("workflow cancelled")
			return nil
		case schema.EventError:
			return fmt.Errorf("workflow failed: %s", event.Message)
		}
	}
	return nil
}

func printStep(step *schema.Step) {
	if step == nil {
		return
	}
	line := fmt.Sprintf("  [%s] %s", step.NodeType, step.NodeID)
	if step.Error != "" {
		line += " error: " + step.Error
	} else if step.Output != nil {
		if data, err := json.Marshal(step.Output); err == nil {
			line += " -> " + string(data)
		}
	}
	fmt.Println(line)
}

func askPrompt(stdin *bufio.Reader, prompt *schema.PromptRequest) (any, error) {
	if prompt == nil {
		return nil, nil
	}
	title := prompt.Title
	if title == "" {
		title = string(prompt.NodeType)
	}
	fmt.Println()
	fmt.Println(title)
	if prompt.Message != "" {
		fmt.Println(prompt.Message)
	}
	if len(prompt.Options) > 0 {
		fmt.Println("options:", strings.Join(prompt.Options, ", "))
	}
	if len(prompt.Buttons) > 0 {
		fmt.Println("buttons:", strings.Join(prompt.Buttons, ", "))
	}
	if prompt.Default != "" {
		fmt.Printf("> (default %q) ", prompt.Default)
	} else {
		fmt.Print("> ")
	}

	line, err := stdin.ReadString('\n')
	if err != nil {
		return nil, err
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		// Empty input dismisses the prompt.
		return nil, nil
	}
	return answer, nil
}
