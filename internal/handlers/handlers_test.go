package handlers

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/expressions"
	"github.com/gemihub/gemiflow/internal/services"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// testContext builds a NodeContext backed by the in-memory service stack.
func testContext(t *testing.T, node *schema.Node, vars map[string]any) *engine.NodeContext {
	t.Helper()
	cond, err := expressions.NewCELEngine()
	require.NoError(t, err)
	if vars == nil {
		vars = make(map[string]any)
	}
	return &engine.NodeContext{
		ExecutionID: "exec-test",
		Node:        node,
		Variables:   vars,
		Services: &engine.Services{
			Drive:      services.NewMemoryDrive(),
			Workspace:  services.EchoWorkspace{},
			Conditions: cond,
			Arithmetic: expressions.NewExprEngine(),
			JQ:         expressions.NewGoJQEngine(),
		},
		Logger:    slog.New(slog.DiscardHandler),
		Publish:   func(schema.Event) {},
		SetStatus: func(schema.ExecutionStatus) {},
	}
}

func testNode(t schema.NodeType, props schema.NodeProps) *schema.Node {
	return &schema.Node{ID: "node-under-test", Type: t, Props: props}
}

func TestAllCoversEveryNodeKind(t *testing.T) {
	reg := engine.NewRegistry()
	reg.MustRegister(All()...)

	for _, kind := range schema.AllNodeTypes {
		_, ok := reg.Get(kind)
		assert.True(t, ok, "no handler for %s", kind)
	}
	assert.Len(t, reg.Kinds(), len(schema.AllNodeTypes))
}

func TestHandlerKindsMatchProps(t *testing.T) {
	for _, h := range All() {
		assert.True(t, h.Kind().Known(), "handler reports unknown kind %s", h.Kind())
	}
}

func TestCommandHandler(t *testing.T) {
	h := &CommandHandler{}
	nc := testContext(t, testNode(schema.NodeCommand, &schema.CommandProps{
		Prompt: "Summarize {{topic}}",
		SaveTo: "summary",
	}), map[string]any{"topic": "workflows"})

	res, err := h.Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "[local] Summarize workflows", res.Output)
	assert.Equal(t, "summary", res.SaveTo)
}

func TestCommandHandlerUnknownVariable(t *testing.T) {
	h := &CommandHandler{}
	nc := testContext(t, testNode(schema.NodeCommand, &schema.CommandProps{Prompt: "{{missing}}"}), nil)

	_, err := h.Execute(context.Background(), nc)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeTemplate, fe.Code)
}
