package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// GenerateRequest is one call to the generation service.
type GenerateRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Attachments  []string `json:"attachments,omitempty"`
	Functions    bool     `json:"functions,omitempty"`
}

// Generator produces AI completions for the command node.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Workspace extends Generator with the workspace-level operations the
// gemihub-command and rag-sync nodes need.
type Workspace interface {
	Generator
	DispatchCommand(ctx context.Context, command, args string) (string, error)
	SyncRag(ctx context.Context, folderID string) (RagSyncResult, error)
}

// RagSyncResult summarizes one RAG store reconciliation pass.
type RagSyncResult struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
}

// GeminiClient talks to the Gemini workspace gateway over HTTP.
type GeminiClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewGeminiClient(baseURL, token string) *GeminiClient {
	return &GeminiClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, "/v1/generate", req, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *GeminiClient) DispatchCommand(ctx context.Context, command, args string) (string, error) {
	body := map[string]string{"command": command, "args": args}
	var out struct {
		Result string `json:"result"`
	}
	if err := c.post(ctx, "/v1/commands", body, &out); err != nil {
		return "", err
	}
	return out.Result, nil
}

func (c *GeminiClient) SyncRag(ctx context.Context, folderID string) (RagSyncResult, error) {
	body := map[string]string{"folderId": folderID}
	var out RagSyncResult
	if err := c.post(ctx, "/v1/rag/sync", body, &out); err != nil {
		return RagSyncResult{}, err
	}
	return out, nil
}

func (c *GeminiClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "gemini: encode request: %s", err.Error()).WithCause(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "gemini: build request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "gemini: %s: %s", path, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "gemini: read response: %s", err.Error()).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "gemini: %s returned %d: %s", path, resp.StatusCode, truncate(string(data), 256))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeExternalCall, "gemini: decode response: %s", err.Error()).WithCause(err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// EchoWorkspace is a local-mode Workspace that reflects requests back. It
// keeps workflows runnable without a configured gateway.
type EchoWorkspace struct{}

func (EchoWorkspace) Generate(_ context.Context, req GenerateRequest) (string, error) {
	return fmt.Sprintf("[local] %s", req.Prompt), nil
}

func (EchoWorkspace) DispatchCommand(_ context.Context, command, args string) (string, error) {
	if args == "" {
		return fmt.Sprintf("[local] %s", command), nil
	}
	return fmt.Sprintf("[local] %s %s", command, args), nil
}

func (EchoWorkspace) SyncRag(context.Context, string) (RagSyncResult, error) {
	return RagSyncResult{}, nil
}
