// Fruitsrv is a small MCP tool server used to exercise Mnemo's remote
// tool discovery end to end. It exposes a single get_fruit_price tool
// over SSE; point a tool_servers entry at it:
//
//	tool_servers:
//	  - name: fruit
//	    transport: sse
//	    url: http://localhost:8000/sse
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemo-agent/mnemo/internal/buildinfo"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	addr := ":8000"
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-addr" && i+1 < len(args):
			addr = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-addr="):
			addr = strings.TrimPrefix(args[i], "-addr=")
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	s := server.NewMCPServer("fruit", buildinfo.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(
		mcptypes.NewTool("get_fruit_price",
			mcptypes.WithDescription("Get the current price of a specific fruit"),
			mcptypes.WithString("fruit_name",
				mcptypes.Required(),
				mcptypes.Description("Name of the fruit to price"),
			),
		),
		handleFruitPrice,
	)

	sseServer := server.NewSSEServer(s,
		server.WithKeepAlive(true),
	)

	fmt.Printf("fruit tool server listening on %s (SSE endpoint: /sse)\n", addr)
	return http.ListenAndServe(addr, sseServer)
}

func handleFruitPrice(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
	fruit := req.GetString("fruit_name", "")
	if fruit == "" {
		return mcptypes.NewToolResultError("fruit_name is required"), nil
	}
	return mcptypes.NewToolResultText(fmt.Sprintf("Price for %s is $2.99 per kg", fruit)), nil
}
