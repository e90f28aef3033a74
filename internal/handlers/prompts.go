package handlers

import (
	"context"
	"fmt"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/template"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// Prompts returns the handlers for the interactive node kinds.
func Prompts() []engine.Handler {
	return []engine.Handler{
		&PromptValueHandler{},
		&PromptFileHandler{},
		&PromptSelectionHandler{},
		&DialogHandler{},
		&DriveFilePickerHandler{},
	}
}

// awaitResponse emits the prompt request, parks the execution in
// waiting-prompt and blocks until the response arrives or the run is
// cancelled. A nil response means the prompt was dismissed.
func awaitResponse(ctx context.Context, nc *engine.NodeContext, req *schema.PromptRequest) (any, error) {
	req.NodeID = nc.Node.ID
	req.NodeType = nc.Node.Type

	nc.Publish(schema.Event{Type: schema.EventPromptRequest, Prompt: req})
	nc.SetStatus(schema.ExecutionStatusWaitingPrompt)

	value, err := nc.AwaitPrompt(ctx)
	if err != nil {
		return nil, err
	}
	nc.SetStatus(schema.ExecutionStatusRunning)
	return value, nil
}

// PromptValueHandler asks for a free-form value. A dismissed prompt falls
// back to the configured default.
type PromptValueHandler struct{}

func (h *PromptValueHandler) Kind() schema.NodeType { return schema.NodePromptValue }

func (h *PromptValueHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.PromptValueProps)
	title, err := template.Resolve(props.Title, nc.Variables)
	if err != nil {
		return nil, err
	}
	defaultVal, err := template.Resolve(props.Default, nc.Variables)
	if err != nil {
		return nil, err
	}

	req := &schema.PromptRequest{
		Title:     title,
		Default:   defaultVal,
		Multiline: props.Multiline,
	}
	value, err := awaitResponse(ctx, nc, req)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = defaultVal
	}
	return &engine.Result{Input: req, Output: value, SaveTo: props.SaveTo}, nil
}

// PromptFileHandler asks the user to upload a file. The response is the
// uploaded content.
type PromptFileHandler struct{}

func (h *PromptFileHandler) Kind() schema.NodeType { return schema.NodePromptFile }

func (h *PromptFileHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.PromptFileProps)
	title, err := template.Resolve(props.Title, nc.Variables)
	if err != nil {
		return nil, err
	}

	req := &schema.PromptRequest{Title: title, Accept: props.Accept}
	value, err := awaitResponse(ctx, nc, req)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = ""
	}
	return &engine.Result{Input: req, Output: value, SaveTo: props.SaveTo}, nil
}

// PromptSelectionHandler asks the user to pick one of the options.
type PromptSelectionHandler struct{}

func (h *PromptSelectionHandler) Kind() schema.NodeType { return schema.NodePromptSelection }

func (h *PromptSelectionHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.PromptSelectionProps)
	title, err := template.Resolve(props.Title, nc.Variables)
	if err != nil {
		return nil, err
	}
	options := make([]string, 0, len(props.Options))
	for _, o := range props.Options {
		resolved, err := template.Resolve(o, nc.Variables)
		if err != nil {
			return nil, err
		}
		options = append(options, resolved)
	}

	req := &schema.PromptRequest{Title: title, Options: options}
	value, err := awaitResponse(ctx, nc, req)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = ""
	}
	return &engine.Result{Input: req, Output: value, SaveTo: props.SaveTo}, nil
}

// DialogHandler shows a message with button choices and binds the pressed
// button label.
type DialogHandler struct{}

func (h *DialogHandler) Kind() schema.NodeType { return schema.NodeDialog }

func (h *DialogHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DialogProps)
	title, err := template.Resolve(props.Title, nc.Variables)
	if err != nil {
		return nil, err
	}
	message, err := template.Resolve(props.Message, nc.Variables)
	if err != nil {
		return nil, err
	}
	buttons := props.Buttons
	if len(buttons) == 0 {
		buttons = []string{"OK"}
	}

	req := &schema.PromptRequest{
		Title:   title,
		Message: message,
		Buttons: buttons,
	}
	value, err := awaitResponse(ctx, nc, req)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = ""
	}
	return &engine.Result{Input: req, Output: value, SaveTo: props.SaveTo}, nil
}

// DriveFilePickerHandler asks the user to pick a Drive file and binds the
// picked file id.
type DriveFilePickerHandler struct{}

func (h *DriveFilePickerHandler) Kind() schema.NodeType { return schema.NodeDriveFilePicker }

func (h *DriveFilePickerHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.DriveFilePickerProps)
	title, err := template.Resolve(props.Title, nc.Variables)
	if err != nil {
		return nil, err
	}

	req := &schema.PromptRequest{Title: title}
	value, err := awaitResponse(ctx, nc, req)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = ""
	}
	return &engine.Result{Input: req, Output: fmt.Sprintf("%v", value), SaveTo: props.SaveTo}, nil
}
