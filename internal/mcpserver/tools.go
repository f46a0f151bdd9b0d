package mcpserver

import (
	"context"

	"github.com/intelligencedev/ragserver/internal/registry"
)

// tool describes one MCP-callable operation: its required argument names (for
// -32602 validation) and the handler that performs it. kb is nil for global
// tools that take no implicit KB binding.
type tool struct {
	name        string
	description string
	required    []string
	handler     func(ctx context.Context, s *Server, kb *registry.KB, args map[string]any) (any, error)
}

func (t tool) missingArgs(args map[string]any) []string {
	var missing []string
	for _, name := range t.required {
		if v, ok := args[name]; !ok || v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

type toolSchema struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
}

func schemasFor(tools map[string]tool) []toolSchema {
	out := make([]toolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolSchema{Name: t.name, Description: t.description, Required: t.required})
	}
	return out
}

var globalTools = map[string]tool{
	"list_knowledge_bases": {
		name:        "list_knowledge_bases",
		description: "List every registered knowledge base.",
		handler: func(ctx context.Context, s *Server, _ *registry.KB, _ map[string]any) (any, error) {
			return s.registry.List(ctx, "")
		},
	},
	"list_knowledge_bases_by_type": {
		name:        "list_knowledge_bases_by_type",
		description: "List knowledge bases of a given kb_type.",
		required:    []string{"kb_type"},
		handler: func(ctx context.Context, s *Server, _ *registry.KB, args map[string]any) (any, error) {
			kbType, _ := args["kb_type"].(string)
			return s.registry.List(ctx, kbType)
		},
	},
	"create_knowledge_base": {
		name:        "create_knowledge_base",
		description: "Create a new knowledge base.",
		required:    []string{"name"},
		handler: func(ctx context.Context, s *Server, _ *registry.KB, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			kbType, _ := args["kb_type"].(string)
			if kbType == "" {
				kbType = "generic"
			}
			description, _ := args["description"].(string)
			return s.registry.Create(ctx, name, kbType, description, nil, s.embedDim())
		},
	},
	"get_kb_stats": {
		name:        "get_kb_stats",
		description: "Return document/chunk counts for a knowledge base.",
		required:    []string{"kb_name"},
		handler: func(ctx context.Context, s *Server, _ *registry.KB, args map[string]any) (any, error) {
			kbName, _ := args["kb_name"].(string)
			kb, err := s.registry.GetByName(ctx, kbName)
			if err != nil {
				return nil, err
			}
			entry, err := s.resolveEntry(ctx, kb)
			if err != nil {
				return nil, err
			}
			return entry.Manager.Vector.Stats(ctx)
		},
	},
	"list_documents": {
		name:        "list_documents",
		description: "List the documents ingested into a knowledge base.",
		required:    []string{"kb_name"},
		handler: func(ctx context.Context, s *Server, _ *registry.KB, args map[string]any) (any, error) {
			kbName, _ := args["kb_name"].(string)
			kb, err := s.registry.GetByName(ctx, kbName)
			if err != nil {
				return nil, err
			}
			entry, err := s.resolveEntry(ctx, kb)
			if err != nil {
				return nil, err
			}
			return entry.Manager.Vector.ListDocuments(ctx)
		},
	},
	"search_knowledge_base": {
		name:        "search_knowledge_base",
		description: "Run a grounded query against a knowledge base.",
		required:    []string{"kb_name", "query"},
		handler: func(ctx context.Context, s *Server, _ *registry.KB, args map[string]any) (any, error) {
			kbName, _ := args["kb_name"].(string)
			kb, err := s.registry.GetByName(ctx, kbName)
			if err != nil {
				return nil, err
			}
			return s.runSearch(ctx, kb, args)
		},
	},
}

var perKBTools = map[string]tool{
	"search": {
		name:        "search",
		description: "Run a grounded query against the bound knowledge base.",
		required:    []string{"query"},
		handler: func(ctx context.Context, s *Server, kb *registry.KB, args map[string]any) (any, error) {
			return s.runSearch(ctx, *kb, args)
		},
	},
	"get_stats": {
		name:        "get_stats",
		description: "Return document/chunk counts for the bound knowledge base.",
		handler: func(ctx context.Context, s *Server, kb *registry.KB, _ map[string]any) (any, error) {
			entry, err := s.resolveEntry(ctx, *kb)
			if err != nil {
				return nil, err
			}
			return entry.Manager.Vector.Stats(ctx)
		},
	},
	"list_documents": {
		name:        "list_documents",
		description: "List the documents ingested into the bound knowledge base.",
		handler: func(ctx context.Context, s *Server, kb *registry.KB, _ map[string]any) (any, error) {
			entry, err := s.resolveEntry(ctx, *kb)
			if err != nil {
				return nil, err
			}
			return entry.Manager.Vector.ListDocuments(ctx)
		},
	},
}
