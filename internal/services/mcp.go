package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// MCPCaller invokes tools on named MCP servers.
type MCPCaller interface {
	CallTool(ctx context.Context, server, tool, arguments string) (string, error)
}

// MCPServerConfig identifies one configured MCP server endpoint.
type MCPServerConfig struct {
	URL string `json:"url"`
}

// MCPManager holds lazily established client sessions, one per configured
// server. Sessions are reused across calls.
type MCPManager struct {
	mu      sync.Mutex
	servers map[string]MCPServerConfig
	clients map[string]*mcpclient.Client
}

func NewMCPManager(servers map[string]MCPServerConfig) *MCPManager {
	return &MCPManager{
		servers: servers,
		clients: make(map[string]*mcpclient.Client),
	}
}

// CallTool connects to the named server if needed and invokes the tool.
// Arguments is a JSON object string; empty means no arguments.
func (m *MCPManager) CallTool(ctx context.Context, server, tool, arguments string) (string, error) {
	c, err := m.session(ctx, server)
	if err != nil {
		return "", err
	}

	var args map[string]any
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeValidation, "mcp: arguments must be a JSON object: %s", err.Error()).WithCause(err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExternalCall, "mcp: call %s on %s: %s", tool, server, err.Error()).WithCause(err)
	}

	text := flattenContent(res.Content)
	if res.IsError {
		return "", schema.NewErrorf(schema.ErrCodeExternalCall, "mcp: tool %s failed: %s", tool, text)
	}
	return text, nil
}

func (m *MCPManager) session(ctx context.Context, server string) (*mcpclient.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[server]; ok {
		return c, nil
	}
	cfg, ok := m.servers[server]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "mcp: server %q is not configured", server)
	}

	c, err := mcpclient.NewStreamableHttpClient(cfg.URL)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExternalCall, "mcp: connect %s: %s", server, err.Error()).WithCause(err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExternalCall, "mcp: start %s: %s", server, err.Error()).WithCause(err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "gemiflow", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, schema.NewErrorf(schema.ErrCodeExternalCall, "mcp: initialize %s: %s", server, err.Error()).WithCause(err)
	}

	m.clients[server] = c
	return c, nil
}

// Close tears down all established sessions.
func (m *MCPManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.clients {
		c.Close()
		delete(m.clients, name)
	}
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		if tc, ok := item.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
