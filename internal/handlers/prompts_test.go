package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// promptRecorder wires a NodeContext so the prompt round trip is observable:
// the emitted request, the status transitions and a canned response.
type promptRecorder struct {
	events   []schema.Event
	statuses []schema.ExecutionStatus
	response any
	err      error
}

func (r *promptRecorder) attach(nc *engine.NodeContext) {
	nc.Publish = func(ev schema.Event) { r.events = append(r.events, ev) }
	nc.SetStatus = func(s schema.ExecutionStatus) { r.statuses = append(r.statuses, s) }
	nc.AwaitPrompt = func(context.Context) (any, error) { return r.response, r.err }
}

func (r *promptRecorder) request(t *testing.T) *schema.PromptRequest {
	t.Helper()
	require.NotEmpty(t, r.events)
	require.Equal(t, schema.EventPromptRequest, r.events[0].Type)
	require.NotNil(t, r.events[0].Prompt)
	return r.events[0].Prompt
}

func TestPromptValueHandler(t *testing.T) {
	nc := testContext(t, testNode(schema.NodePromptValue, &schema.PromptValueProps{
		Title:  "Name for {{project}}",
		SaveTo: "name",
	}), map[string]any{"project": "gemiflow"})
	rec := &promptRecorder{response: "v2"}
	rec.attach(nc)

	res, err := (&PromptValueHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Output)
	assert.Equal(t, "name", res.SaveTo)

	req := rec.request(t)
	assert.Equal(t, "Name for gemiflow", req.Title)
	assert.Equal(t, "node-under-test", req.NodeID)
	assert.Equal(t, schema.NodePromptValue, req.NodeType)
	assert.Equal(t, req, res.Input)

	assert.Equal(t, []schema.ExecutionStatus{
		schema.ExecutionStatusWaitingPrompt,
		schema.ExecutionStatusRunning,
	}, rec.statuses)
}

func TestPromptValueHandlerDismissedUsesDefault(t *testing.T) {
	nc := testContext(t, testNode(schema.NodePromptValue, &schema.PromptValueProps{
		Default: "fallback",
		SaveTo:  "name",
	}), nil)
	rec := &promptRecorder{response: nil}
	rec.attach(nc)

	res, err := (&PromptValueHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Output)
}

func TestPromptFileHandlerDismissed(t *testing.T) {
	nc := testContext(t, testNode(schema.NodePromptFile, &schema.PromptFileProps{
		Accept: ".csv",
		SaveTo: "upload",
	}), nil)
	rec := &promptRecorder{response: nil}
	rec.attach(nc)

	res, err := (&PromptFileHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "", res.Output)
	assert.Equal(t, ".csv", rec.request(t).Accept)
}

func TestPromptSelectionHandlerResolvesOptions(t *testing.T) {
	nc := testContext(t, testNode(schema.NodePromptSelection, &schema.PromptSelectionProps{
		Options: []string{"keep {{name}}", "discard"},
		SaveTo:  "choice",
	}), map[string]any{"name": "draft"})
	rec := &promptRecorder{response: "discard"}
	rec.attach(nc)

	res, err := (&PromptSelectionHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "discard", res.Output)
	assert.Equal(t, []string{"keep draft", "discard"}, rec.request(t).Options)
}

func TestDialogHandlerDefaultButtons(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDialog, &schema.DialogProps{
		Message: "Proceed?",
	}), nil)
	rec := &promptRecorder{response: "OK"}
	rec.attach(nc)

	res, err := (&DialogHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "OK", res.Output)
	assert.Equal(t, []string{"OK"}, rec.request(t).Buttons)
}

func TestDriveFilePickerHandler(t *testing.T) {
	nc := testContext(t, testNode(schema.NodeDriveFilePicker, &schema.DriveFilePickerProps{
		SaveTo: "picked",
	}), nil)
	rec := &promptRecorder{response: "file-123"}
	rec.attach(nc)

	res, err := (&DriveFilePickerHandler{}).Execute(context.Background(), nc)
	require.NoError(t, err)
	assert.Equal(t, "file-123", res.Output)
	assert.Equal(t, "picked", res.SaveTo)
}

func TestPromptPropagatesCancellation(t *testing.T) {
	nc := testContext(t, testNode(schema.NodePromptValue, &schema.PromptValueProps{SaveTo: "x"}), nil)
	rec := &promptRecorder{err: schema.NewError(schema.ErrCodeCancelled, "execution cancelled while waiting for prompt")}
	rec.attach(nc)

	_, err := (&PromptValueHandler{}).Execute(context.Background(), nc)
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeCancelled, fe.Code)
	// The run never resumes, so no transition back to running.
	assert.Equal(t, []schema.ExecutionStatus{schema.ExecutionStatusWaitingPrompt}, rec.statuses)
}
