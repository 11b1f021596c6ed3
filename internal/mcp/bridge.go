package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mnemo-agent/mnemo/internal/tools"
)

// BridgeTools registers every discovered remote tool into the catalog
// under its raw name. Names are global across built-ins and all
// servers; a collision is a startup error since the model could not
// address the tool unambiguously.
func BridgeTools(m *Manager, reg *tools.Registry) error {
	for _, conn := range m.Servers() {
		for _, remote := range conn.Tools {
			params, err := schemaToMap(remote.InputSchema)
			if err != nil {
				return fmt.Errorf("tool %s from %s: %w", remote.Name, conn.Name, err)
			}

			conn, name := conn, remote.Name
			err = reg.Register(tools.Tool{
				Name:        name,
				Description: remote.Description,
				Parameters:  params,
				Handler: func(ctx context.Context, args map[string]any) (string, error) {
					return m.Call(ctx, conn, name, args)
				},
			})
			if err != nil {
				return fmt.Errorf("register %s from %s: %w", name, conn.Name, err)
			}
		}
	}
	return nil
}

// schemaToMap converts a typed MCP input schema to the generic JSON
// Schema object the catalog carries.
func schemaToMap(schema any) (map[string]any, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	if out == nil {
		out = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return out, nil
}
