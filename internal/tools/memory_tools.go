package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemo-agent/mnemo/internal/memory"
)

// RegisterMemoryTools adds the built-in long-term memory tools to the
// catalog. searchLimit caps recall results.
func RegisterMemoryTools(reg *Registry, store memory.Store, searchLimit int) error {
	if searchLimit <= 0 {
		searchLimit = 10
	}

	memTools := []Tool{
		{
			Name:        "save_memory",
			Description: "Save valuable information or facts to long-term memory for future retrieval.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The fact or information to remember, verbatim.",
					},
				},
				"required": []string{"content"},
			},
			Handler: saveMemoryHandler(store),
		},
		{
			Name:        "recall_memory",
			Description: "Search long-term memory for relevant information based on a query.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to look for in memory.",
					},
				},
				"required": []string{"query"},
			},
			Handler: recallMemoryHandler(store, searchLimit),
		},
		{
			Name:        "get_all_memories",
			Description: "Get all stored memories for the current user.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: getAllMemoriesHandler(store),
		},
	}

	for _, t := range memTools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func saveMemoryHandler(store memory.Store) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		content, _ := args["content"].(string)
		if strings.TrimSpace(content) == "" {
			return "", fmt.Errorf("save_memory requires non-empty content")
		}

		userID := UserIDFromContext(ctx)
		rec, err := store.Save(ctx, userID, content)
		if err != nil {
			return "", fmt.Errorf("save memory: %w", err)
		}
		return fmt.Sprintf("Saved to memory: %s", rec.Text), nil
	}
}

func recallMemoryHandler(store memory.Store, limit int) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return "", fmt.Errorf("recall_memory requires a query")
		}

		userID := UserIDFromContext(ctx)
		results, err := store.Search(ctx, userID, query, limit)
		if err != nil {
			return "", fmt.Errorf("search memory: %w", err)
		}

		if len(results) == 0 {
			return "No relevant memories found.", nil
		}

		lines := make([]string, len(results))
		for i, r := range results {
			lines[i] = fmt.Sprintf("- %s (score: %.2f)", r.Text, r.Score)
		}
		return strings.Join(lines, "\n"), nil
	}
}

func getAllMemoriesHandler(store memory.Store) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		userID := UserIDFromContext(ctx)
		all, err := store.ListAll(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("list memories: %w", err)
		}

		if len(all) == 0 {
			return "No memories stored.", nil
		}

		lines := make([]string, len(all))
		for i, r := range all {
			lines[i] = r.Text
		}
		return strings.Join(lines, "\n---\n"), nil
	}
}
