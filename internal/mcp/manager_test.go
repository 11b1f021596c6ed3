package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemo-agent/mnemo/internal/config"
	"github.com/mnemo-agent/mnemo/internal/tools"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFruitServer builds an in-process SSE MCP server exposing
// get_fruit_price, mirroring the demo server in cmd/fruitsrv.
func newFruitServer(t *testing.T) string {
	t.Helper()

	s := server.NewMCPServer("fruit", "0.0.1",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTool(
		mcptypes.NewTool("get_fruit_price",
			mcptypes.WithDescription("Get the price of a fruit"),
			mcptypes.WithString("fruit_name",
				mcptypes.Required(),
				mcptypes.Description("Name of the fruit"),
			),
		),
		func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
			fruit := req.GetString("fruit_name", "")
			if fruit == "" {
				return mcptypes.NewToolResultError("'fruit_name' is required"), nil
			}
			return mcptypes.NewToolResultText(fmt.Sprintf("Price for %s is $2.99 per kg", fruit)), nil
		},
	)

	ts := server.NewTestServer(s)
	t.Cleanup(ts.Close)
	return ts.URL + "/sse"
}

func TestConnectAndDiscoverTools(t *testing.T) {
	url := newFruitServer(t)

	m := NewManager(discardLogger())
	t.Cleanup(m.Close)

	err := m.Connect(context.Background(), []config.ToolServer{
		{Name: "fruit", Transport: "sse", URL: url, DiscoveryTimeoutSec: 5},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if len(m.Degraded()) != 0 {
		t.Errorf("degraded = %v", m.Degraded())
	}
	servers := m.Servers()
	if len(servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(servers))
	}
	if len(servers[0].Tools) != 1 || servers[0].Tools[0].Name != "get_fruit_price" {
		t.Errorf("tools = %v", servers[0].Tools)
	}
}

func TestBridgeAndCall(t *testing.T) {
	url := newFruitServer(t)

	m := NewManager(discardLogger())
	t.Cleanup(m.Close)

	err := m.Connect(context.Background(), []config.ToolServer{
		{Name: "fruit", URL: url, DiscoveryTimeoutSec: 5},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	reg := tools.NewRegistry()
	if err := BridgeTools(m, reg); err != nil {
		t.Fatalf("BridgeTools failed: %v", err)
	}

	tool, err := reg.Resolve("get_fruit_price")
	if err != nil {
		t.Fatalf("bridged tool not in catalog: %v", err)
	}
	if tool.Parameters["type"] != "object" {
		t.Errorf("parameters = %v", tool.Parameters)
	}

	out, err := tool.Handler(context.Background(), map[string]any{"fruit_name": "mango"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if out != "Price for mango is $2.99 per kg" {
		t.Errorf("output = %q", out)
	}

	// A result flagged IsError surfaces as a Go error.
	if _, err := tool.Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing argument")
	}
}

func TestConnectDegradesOnUnreachableServer(t *testing.T) {
	m := NewManager(discardLogger())
	t.Cleanup(m.Close)

	start := time.Now()
	err := m.Connect(context.Background(), []config.ToolServer{
		{Name: "ghost", URL: "http://127.0.0.1:1/sse", DiscoveryTimeoutSec: 2},
	})
	if err != nil {
		t.Fatalf("Connect returned error, want degraded start: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("discovery took %v, should be bounded by timeout", elapsed)
	}

	if len(m.Servers()) != 0 {
		t.Errorf("servers = %v", m.Servers())
	}
	if len(m.Degraded()) != 1 || m.Degraded()[0] != "ghost" {
		t.Errorf("degraded = %v", m.Degraded())
	}
}

func TestBridgeDuplicateNameFails(t *testing.T) {
	url := newFruitServer(t)

	m := NewManager(discardLogger())
	t.Cleanup(m.Close)

	err := m.Connect(context.Background(), []config.ToolServer{
		{Name: "fruit", URL: url, DiscoveryTimeoutSec: 5},
	})
	if err != nil {
		t.Fatal(err)
	}

	reg := tools.NewRegistry()
	// A built-in already claimed the name.
	if err := reg.Register(tools.Tool{
		Name:    "get_fruit_price",
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	}); err != nil {
		t.Fatal(err)
	}

	if err := BridgeTools(m, reg); err == nil {
		t.Fatal("expected collision error from BridgeTools")
	}
}

func TestFlattenContent(t *testing.T) {
	got := flattenContent([]mcptypes.Content{
		mcptypes.TextContent{Type: "text", Text: "line one"},
		mcptypes.TextContent{Type: "text", Text: "line two"},
	})
	if got != "line one\nline two" {
		t.Errorf("flattenContent = %q", got)
	}

	if got := flattenContent(nil); got != "" {
		t.Errorf("flattenContent(nil) = %q", got)
	}
}

func TestUnknownTransportRejected(t *testing.T) {
	_, err := newClient(config.ToolServer{Name: "x", Transport: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
