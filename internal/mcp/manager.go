// Package mcp connects to remote MCP tool servers, discovers their
// tools, and bridges them into the tool catalog.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemo-agent/mnemo/internal/buildinfo"
	"github.com/mnemo-agent/mnemo/internal/config"
)

const protocolVersion = "2025-06-18"

// ServerConn is one connected tool server and its discovered tools.
type ServerConn struct {
	Name   string
	Tools  []mcptypes.Tool
	client *client.Client
}

// Manager owns connections to all configured tool servers. Discovery
// failures degrade rather than abort: the agent starts with whatever
// servers answered, and the rest are reported as degraded.
type Manager struct {
	logger   *slog.Logger
	conns    []*ServerConn
	degraded []string
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Connect dials each configured server, bounded by its discovery
// timeout. Unreachable servers are logged and skipped; the error return
// is reserved for invalid configuration, not connectivity.
func (m *Manager) Connect(ctx context.Context, servers []config.ToolServer) error {
	for _, srv := range servers {
		connCtx, cancel := context.WithTimeout(ctx, srv.DiscoveryTimeout())
		conn, err := m.connectOne(connCtx, srv)
		cancel()
		if err != nil {
			m.logger.Warn("tool server unavailable, starting degraded",
				"server", srv.Name,
				"transport", srv.Transport,
				"error", err,
			)
			m.degraded = append(m.degraded, srv.Name)
			continue
		}

		names := make([]string, len(conn.Tools))
		for i, t := range conn.Tools {
			names[i] = t.Name
		}
		m.logger.Info("tool server connected",
			"server", srv.Name,
			"tools", strings.Join(names, ","),
		)
		m.conns = append(m.conns, conn)
	}
	return nil
}

func (m *Manager) connectOne(ctx context.Context, srv config.ToolServer) (*ServerConn, error) {
	mcpClient, err := newClient(srv)
	if err != nil {
		return nil, err
	}

	// SSE and streamable HTTP transports must be started before
	// Initialize; stdio starts its process itself.
	switch srv.Transport {
	case "", "sse", "http":
		if err := mcpClient.GetTransport().Start(ctx); err != nil {
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "mnemo",
				Version: buildinfo.Version,
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	return &ServerConn{
		Name:   srv.Name,
		Tools:  toolsResult.Tools,
		client: mcpClient,
	}, nil
}

func newClient(srv config.ToolServer) (*client.Client, error) {
	switch srv.Transport {
	case "", "sse":
		var opts []transport.ClientOption
		if len(srv.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(srv.Headers))
		}
		return client.NewSSEMCPClient(srv.URL, opts...)
	case "http":
		var opts []transport.StreamableHTTPCOption
		if len(srv.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(srv.Headers))
		}
		return client.NewStreamableHttpClient(srv.URL, opts...)
	case "stdio":
		return client.NewStdioMCPClientWithOptions(srv.Command, nil, srv.Args)
	default:
		return nil, fmt.Errorf("unknown transport %q", srv.Transport)
	}
}

// Servers returns connected servers in discovery order.
func (m *Manager) Servers() []*ServerConn {
	return m.conns
}

// Degraded returns the names of servers that failed discovery.
func (m *Manager) Degraded() []string {
	return m.degraded
}

// Call invokes a tool on a connected server and flattens the result's
// text content. A result flagged as an error becomes a Go error so the
// agent loop folds it into the transcript uniformly.
func (m *Manager) Call(ctx context.Context, conn *ServerConn, tool string, args map[string]any) (string, error) {
	result, err := conn.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("call %s on %s: %w", tool, conn.Name, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", fmt.Errorf("%s: %s", tool, text)
	}
	return text, nil
}

func flattenContent(content []mcptypes.Content) string {
	var b strings.Builder
	for _, c := range content {
		if tc, ok := c.(mcptypes.TextContent); ok {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// Close shuts down all server connections.
func (m *Manager) Close() {
	for _, conn := range m.conns {
		if err := conn.client.Close(); err != nil {
			m.logger.Debug("close tool server", "server", conn.Name, "error", err)
		}
	}
	m.conns = nil
}
