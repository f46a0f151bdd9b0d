package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/ragserver/internal/config"
	"github.com/intelligencedev/ragserver/internal/enginecache"
	"github.com/intelligencedev/ragserver/internal/llm"
	"github.com/intelligencedev/ragserver/internal/persistence/databases"
	"github.com/intelligencedev/ragserver/internal/planner"
	"github.com/intelligencedev/ragserver/internal/rag/service"
	"github.com/intelligencedev/ragserver/internal/registry"
	"github.com/intelligencedev/ragserver/internal/synth"
)

type fakeProvider struct{}

func (fakeProvider) Chat(_ context.Context, req llm.Request) (string, error) {
	return "Grounded answer (source: doc.md).", nil
}

func newTestServer(t *testing.T) (*Server, registry.Registry) {
	t.Helper()
	reg := registry.NewMemory()
	llmCfg := config.LLMConfig{Model: "test-model"}
	cache := enginecache.New(time.Minute, 10, func(_ context.Context, kb registry.KB) (enginecache.Entry, error) {
		mgr := databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}
		svc := service.New(mgr)
		s := synth.New(fakeProvider{}, llmCfg)
		p := planner.New(fakeProvider{}, llmCfg.Model, svc, s)
		return enginecache.Entry{KB: kb, Manager: mgr, Service: svc, Synth: s, Planner: p}, nil
	})
	defaults := map[string]RetrievalDefaults{"generic": {TopK: 5}}
	return NewServer(reg, cache, defaults, 8), reg
}

func doRPC(t *testing.T, srv *Server, path string, body any) (int, rpcResponse) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var resp rpcResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestInitialize(t *testing.T) {
	srv, _ := newTestServer(t)
	_, resp := doRPC(t, srv, "/mcp", rpcRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)
}

func TestToolsList_Global(t *testing.T) {
	srv, _ := newTestServer(t)
	_, resp := doRPC(t, srv, "/mcp", rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	require.Nil(t, resp.Error)
	payload, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.Contains(t, string(payload), "search_knowledge_base")
}

func TestUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)
	_, resp := doRPC(t, srv, "/mcp", rpcRequest{JSONRPC: "2.0", ID: 1, Method: "bogus"})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestToolsCall_UnknownTool(t *testing.T) {
	srv, _ := newTestServer(t)
	params, _ := json.Marshal(toolCallParams{Name: "does_not_exist"})
	_, resp := doRPC(t, srv, "/mcp", rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32601, resp.Error.Code)
}

func TestToolsCall_MissingRequiredArg(t *testing.T) {
	srv, _ := newTestServer(t)
	params, _ := json.Marshal(toolCallParams{Name: "create_knowledge_base", Arguments: map[string]any{}})
	_, resp := doRPC(t, srv, "/mcp", rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	require.Equal(t, -32602, resp.Error.Code)
}

func TestCreateAndListKnowledgeBases(t *testing.T) {
	srv, _ := newTestServer(t)
	params, _ := json.Marshal(toolCallParams{Name: "create_knowledge_base", Arguments: map[string]any{"name": "docs"}})
	_, resp := doRPC(t, srv, "/mcp", rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)

	params2, _ := json.Marshal(toolCallParams{Name: "list_knowledge_bases"})
	_, resp2 := doRPC(t, srv, "/mcp", rpcRequest{JSONRPC: "2.0", ID: 2, Method: "tools/call", Params: params2})
	require.Nil(t, resp2.Error)
	payload, _ := json.Marshal(resp2.Result)
	require.Contains(t, string(payload), `"docs"`)
}

func TestPerKBEndpoint_UnknownSlugReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	b, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	req := httptest.NewRequest(http.MethodPost, "/mcp/kb/missing", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp rpcResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
}

func TestPerKBEndpoint_SearchTool(t *testing.T) {
	srv, reg := newTestServer(t)
	kb, err := reg.Create(context.Background(), "docs", "generic", "", nil, 8)
	require.NoError(t, err)

	params, _ := json.Marshal(toolCallParams{Name: "search", Arguments: map[string]any{"query": "hello"}})
	b, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	req := httptest.NewRequest(http.MethodPost, "/mcp/kb/"+kb.Slug, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Nil(t, resp.Error)
}
