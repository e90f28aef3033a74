package handlers

import (
	"context"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/services"
	"github.com/gemihub/gemiflow/internal/template"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// CommandHandler sends a prompt to the generation service and binds the
// completion text.
type CommandHandler struct{}

func (h *CommandHandler) Kind() schema.NodeType { return schema.NodeCommand }

func (h *CommandHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.CommandProps)

	prompt, err := template.Resolve(props.Prompt, nc.Variables)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := template.Resolve(props.SystemPrompt, nc.Variables)
	if err != nil {
		return nil, err
	}
	attachments := make([]string, 0, len(props.Attachments))
	for _, a := range props.Attachments {
		resolved, err := template.Resolve(a, nc.Variables)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, resolved)
	}

	req := services.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Attachments:  attachments,
		Functions:    props.Functions,
	}
	text, err := nc.Services.Workspace.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return &engine.Result{Input: req, Output: text, SaveTo: props.SaveTo, Summary: "command completed"}, nil
}
