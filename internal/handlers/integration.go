package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/internal/template"
	"github.com/gemihub/gemiflow/pkg/schema"
)

const maxResponseBody = 10 * 1024 * 1024 // 10MB

// Integrations returns the handlers for the integration node kinds.
func Integrations() []engine.Handler {
	return []engine.Handler{
		&WorkflowHandler{},
		&JSONHandler{},
		&HTTPHandler{},
		&MCPHandler{},
		&RagSyncHandler{},
		&GemihubCommandHandler{},
	}
}

// WorkflowHandler runs another workflow as a nested execution. Variable
// scope does not cross the boundary: the input mapping seeds the child
// scope, the output mapping copies child results back.
type WorkflowHandler struct{}

func (h *WorkflowHandler) Kind() schema.NodeType { return schema.NodeWorkflow }

func (h *WorkflowHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.WorkflowProps)
	workflowID, err := template.Resolve(props.WorkflowID, nc.Variables)
	if err != nil {
		return nil, err
	}

	input := make(map[string]any, len(props.Input))
	for childVar, expr := range props.Input {
		value, err := template.ResolveValue(expr, nc.Variables)
		if err != nil {
			return nil, err
		}
		input[childVar] = value
	}

	childVars, err := nc.RunWorkflow(ctx, workflowID, input)
	if err != nil {
		return nil, err
	}

	for parentVar, childVar := range props.Output {
		value, ok := childVars[childVar]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"nested workflow did not produce variable %q", childVar)
		}
		nc.Variables[parentVar] = value
	}
	return &engine.Result{
		Input:   map[string]any{"workflowId": workflowID, "input": input},
		Output:  workflowID,
		Summary: "ran workflow " + workflowID,
	}, nil
}

// JSONHandler applies a jq query to the input value.
type JSONHandler struct{}

func (h *JSONHandler) Kind() schema.NodeType { return schema.NodeJSON }

func (h *JSONHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.JSONProps)
	input, err := template.ResolveValue(props.Input, nc.Variables)
	if err != nil {
		return nil, err
	}

	// A string input may itself be JSON text.
	if s, ok := input.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			input = decoded
		}
	}

	result, err := nc.Services.JQ.Run(ctx, props.Query, input)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:  map[string]any{"query": props.Query, "data": input},
		Output: result,
		SaveTo: props.SaveTo,
	}, nil
}

// HTTPHandler performs an HTTP request. With throwOnError=false a non-2xx
// response is captured into saveTo/saveStatus instead of failing the step.
type HTTPHandler struct{}

func (h *HTTPHandler) Kind() schema.NodeType { return schema.NodeHTTP }

func (h *HTTPHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.HTTPProps)

	rawURL, err := template.Resolve(props.URL, nc.Variables)
	if err != nil {
		return nil, err
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid url %q", rawURL)
	}

	body, err := template.Resolve(props.Body, nc.Variables)
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(strings.TrimSpace(props.Method))
	if method == "" {
		method = http.MethodGet
		if body != "" {
			method = http.MethodPost
		}
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExternalCall, "build request: %s", err.Error()).WithCause(err)
	}
	if body != "" && json.Valid([]byte(body)) {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range props.Headers {
		resolved, err := template.Resolve(v, nc.Variables)
		if err != nil {
			return nil, err
		}
		req.Header.Set(k, resolved)
	}

	client := nc.Services.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExternalCall, "request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExternalCall, "read response: %s", err.Error()).WithCause(err)
	}

	var parsed any = string(data)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(data, &decoded); err == nil {
			parsed = decoded
		}
	}

	if props.SaveStatus != "" {
		nc.Variables[props.SaveStatus] = resp.StatusCode
	}

	if props.ThrowOnError && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return nil, schema.NewErrorf(schema.ErrCodeExternalCall, "server returned %d", resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": parsed})
	}
	return &engine.Result{
		Input:   map[string]any{"method": method, "url": rawURL},
		Output:  parsed,
		SaveTo:  props.SaveTo,
		Summary: resp.Status,
	}, nil
}

// MCPHandler calls a tool on a configured MCP server.
type MCPHandler struct{}

func (h *MCPHandler) Kind() schema.NodeType { return schema.NodeMCP }

func (h *MCPHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.MCPProps)
	server, err := template.Resolve(props.Server, nc.Variables)
	if err != nil {
		return nil, err
	}
	tool, err := template.Resolve(props.Tool, nc.Variables)
	if err != nil {
		return nil, err
	}
	arguments, err := template.Resolve(props.Arguments, nc.Variables)
	if err != nil {
		return nil, err
	}

	result, err := nc.Services.MCP.CallTool(ctx, server, tool, arguments)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:   map[string]any{"server": server, "tool": tool, "arguments": arguments},
		Output:  result,
		SaveTo:  props.SaveTo,
		Summary: "called " + tool,
	}, nil
}

// RagSyncHandler triggers RAG store reconciliation.
type RagSyncHandler struct{}

func (h *RagSyncHandler) Kind() schema.NodeType { return schema.NodeRagSync }

func (h *RagSyncHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.RagSyncProps)
	folderID, err := template.Resolve(props.FolderID, nc.Variables)
	if err != nil {
		return nil, err
	}
	result, err := nc.Services.Workspace.SyncRag(ctx, folderID)
	if err != nil {
		return nil, err
	}
	output := map[string]any{"indexed": result.Indexed, "removed": result.Removed}
	return &engine.Result{
		Input:   map[string]any{"folderId": folderID},
		Output:  output,
		SaveTo:  props.SaveTo,
		Summary: "rag sync done",
	}, nil
}

// GemihubCommandHandler dispatches a named workspace command.
type GemihubCommandHandler struct{}

func (h *GemihubCommandHandler) Kind() schema.NodeType { return schema.NodeGemihubCommand }

func (h *GemihubCommandHandler) Execute(ctx context.Context, nc *engine.NodeContext) (*engine.Result, error) {
	props := nc.Node.Props.(*schema.GemihubCommandProps)
	command, err := template.Resolve(props.Command, nc.Variables)
	if err != nil {
		return nil, err
	}
	args, err := template.Resolve(props.Args, nc.Variables)
	if err != nil {
		return nil, err
	}

	result, err := nc.Services.Workspace.DispatchCommand(ctx, command, args)
	if err != nil {
		return nil, err
	}
	return &engine.Result{
		Input:   map[string]any{"command": command, "args": args},
		Output:  result,
		SaveTo:  props.SaveTo,
		Summary: "dispatched " + command,
	}, nil
}
