// Package mcpserver implements the JSON-RPC 2.0 MCP surface: a global
// endpoint exposing the full tool set and a per-KB endpoint exposing a
// restricted tool set bound to one knowledge base. The teacher's MCP server
// talks this protocol over stdio via github.com/metoro-io/mcp-golang; this
// service is reached over HTTP instead, so the dispatcher below is a small
// hand-rolled JSON-RPC 2.0 handler following the same parse/validate/dispatch
// shape rather than that stdio-only library.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/intelligencedev/ragserver/internal/enginecache"
	"github.com/intelligencedev/ragserver/internal/planner"
	"github.com/intelligencedev/ragserver/internal/rag/retrieve"
	"github.com/intelligencedev/ragserver/internal/ragerrors"
	"github.com/intelligencedev/ragserver/internal/registry"
	"github.com/intelligencedev/ragserver/internal/synth"
)

const protocolVersion = "2024-11-05"

// RetrievalDefaults mirrors config.RetrievalDefaults, kept local for the
// same reason as httpapi.RetrievalDefaults.
type RetrievalDefaults struct {
	UseHybrid  bool
	UseRerank  bool
	UseAgentic bool
	TopK       int
	MinScore   float64
	RerankTopN int
}

// Server dispatches JSON-RPC 2.0 requests for the global and per-KB MCP
// endpoints.
type Server struct {
	registry      registry.Registry
	cache         *enginecache.Cache
	defaults      map[string]RetrievalDefaults
	embedDimValue int
	mux           *http.ServeMux
}

// NewServer wires the MCP dispatcher to a KB registry and the engine cache.
// embedDim is the configured embedding dimension frozen into KBs created via
// the create_knowledge_base tool.
func NewServer(reg registry.Registry, cache *enginecache.Cache, defaults map[string]RetrievalDefaults, embedDim int) *Server {
	s := &Server{registry: reg, cache: cache, defaults: defaults, embedDimValue: embedDim, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /mcp", s.handleGlobal)
	s.mux.HandleFunc("POST /mcp/kb/{slug}", s.handlePerKB)
	return s
}

func (s *Server) embedDim() int { return s.embedDimValue }

// ServeHTTP satisfies http.Handler. A panic in a handler is answered with a
// JSON-RPC internal error (-32603).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: ragerrors.JSONRPCCode(ragerrors.ErrInternal), Message: ragerrors.ErrInternal.Error()}})
		}
	}()
	s.mux.ServeHTTP(w, r)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, nil, globalTools)
}

func (s *Server) handlePerKB(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	kb, err := s.registry.GetBySlug(r.Context(), slug)
	if err != nil {
		writeRPC(w, http.StatusNotFound, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: ragerrors.JSONRPCCode(err), Message: fmt.Sprintf("unknown kb slug %q", slug)},
		})
		return
	}
	s.dispatch(w, r, &kb, perKBTools)
}

// dispatch implements the state machine: parse -> validate method -> validate
// params -> dispatch -> return result, per SPEC_FULL.md §4.10.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, kb *registry.KB, tools map[string]tool) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}

	switch req.Method {
	case "initialize":
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]string{"name": "ragserver", "version": "1.0.0"},
		}})
		return
	case "tools/list":
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": schemasFor(tools)}})
		return
	case "tools/call":
		s.handleToolsCall(w, r.Context(), req, kb, tools)
		return
	default:
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: fmt.Sprintf("unknown method %q", req.Method)}})
		return
	}
}

func (s *Server) handleToolsCall(w http.ResponseWriter, ctx context.Context, req rpcRequest, kb *registry.KB, tools map[string]tool) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}})
		return
	}
	t, ok := tools[params.Name]
	if !ok {
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: fmt.Sprintf("unknown tool %q", params.Name)}})
		return
	}
	if missing := t.missingArgs(params.Arguments); len(missing) > 0 {
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: fmt.Sprintf("missing required argument(s): %v", missing)}})
		return
	}
	result, err := t.handler(ctx, s, kb, params.Arguments)
	if err != nil {
		writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: ragerrors.JSONRPCCode(err), Message: err.Error()}})
		return
	}
	writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeRPC(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// --- retrieval option helpers, shared by search_knowledge_base and search ---

func (s *Server) resolveEntry(ctx context.Context, kb registry.KB) (*enginecache.Entry, error) {
	return s.cache.Get(ctx, kb)
}

func (s *Server) defaultsFor(kbType string) RetrievalDefaults {
	if d, ok := s.defaults[kbType]; ok {
		return d
	}
	return s.defaults["generic"]
}

func (s *Server) runSearch(ctx context.Context, kb registry.KB, args map[string]any) (queryResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return queryResult{}, fmt.Errorf("query is required: %w", ragerrors.ErrInvalidInput)
	}
	entry, err := s.resolveEntry(ctx, kb)
	if err != nil {
		return queryResult{}, err
	}
	defaults := s.defaultsFor(kb.KBType)
	topK := defaults.TopK
	if v, ok := argInt(args, "top_k"); ok {
		topK = v
	}
	opt := retrieve.RetrieveOptions{
		K:           topK,
		FtK:         topK,
		VecK:        topK,
		UseRRF:      argBoolOr(args, "use_hybrid", defaults.UseHybrid),
		Rerank:      argBoolOr(args, "use_rerank", defaults.UseRerank),
		MinScore:    defaults.MinScore,
		IncludeText: true,
		Tenant:      kb.Name,
	}
	if argBoolOr(args, "use_agentic", defaults.UseAgentic) {
		res, err := entry.Planner.Plan(ctx, query, opt)
		if err != nil {
			return queryResult{}, err
		}
		return queryResult{Answer: res.Answer, Sources: res.Sources, SubQuestions: res.SubQuestions}, nil
	}
	resp, err := entry.Service.Retrieve(ctx, query, opt)
	if err != nil {
		return queryResult{}, err
	}
	res, err := entry.Synth.Synthesize(ctx, query, resp.Items)
	if err != nil {
		return queryResult{}, err
	}
	return queryResult{Answer: res.Answer, Sources: res.Sources}, nil
}

type queryResult struct {
	Answer       string              `json:"answer"`
	Sources      []synth.Source      `json:"sources"`
	SubQuestions []planner.SubAnswer `json:"sub_questions,omitempty"`
}

func argInt(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func argBoolOr(args map[string]any, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}
