package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
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
	"github.com/intelligencedev/ragserver/internal/ratelimit"
	"github.com/intelligencedev/ragserver/internal/registry"
	"github.com/intelligencedev/ragserver/internal/synth"
)

type fakeProvider struct{}

func (fakeProvider) Chat(_ context.Context, req llm.Request) (string, error) {
	return "Answer grounded in context (source: doc.md).", nil
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
	limiter, err := ratelimit.New("", 20)
	require.NoError(t, err)
	defaults := map[string]RetrievalDefaults{
		"generic": {TopK: 5, MinScore: 0.5},
	}
	return NewServer(reg, cache, limiter, 8, defaults), reg
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateListDeleteKB(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(createKBRequest{Name: "AcmeDocs", KBType: "generic"})
	req := httptest.NewRequest(http.MethodPost, "/api/kb", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var kb registry.KB
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&kb))
	require.Equal(t, "acmedocs", kb.Slug)
	require.Equal(t, 8, kb.EmbedDim)

	listReq := httptest.NewRequest(http.MethodGet, "/api/kb", nil)
	listRec := httptest.NewRecorder()
	srv.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/kb/AcmeDocs", nil)
	delRec := httptest.NewRecorder()
	srv.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusNoContent, delRec.Code)
}

func TestCreateKB_DuplicateNameConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(createKBRequest{Name: "Dup", KBType: "generic"})

	req1 := httptest.NewRequest(http.MethodPost, "/api/kb", bytes.NewReader(body))
	rec1 := httptest.NewRecorder()
	srv.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusCreated, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/kb", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusConflict, rec2.Code)
}

func TestUploadThenChatAndDeleteDocument(t *testing.T) {
	srv, _ := newTestServer(t)

	createBody, _ := json.Marshal(createKBRequest{Name: "kb1", KBType: "generic"})
	createReq := httptest.NewRequest(http.MethodPost, "/api/kb", bytes.NewReader(createBody))
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "doc.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte("# Title\n\nSome relevant content about configuration keys."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	uploadReq := httptest.NewRequest(http.MethodPost, "/api/kb/kb1/upload", &buf)
	uploadReq.Header.Set("Content-Type", mw.FormDataContentType())
	uploadRec := httptest.NewRecorder()
	srv.ServeHTTP(uploadRec, uploadReq)
	require.Equal(t, http.StatusOK, uploadRec.Code)

	var uploadResp map[string]any
	require.NoError(t, json.NewDecoder(uploadRec.Body).Decode(&uploadResp))
	require.NotZero(t, uploadResp["chunks_ingested"])

	docsReq := httptest.NewRequest(http.MethodGet, "/api/kb/kb1/documents", nil)
	docsRec := httptest.NewRecorder()
	srv.ServeHTTP(docsRec, docsReq)
	require.Equal(t, http.StatusOK, docsRec.Code)
	var docs []databases.DocSummary
	require.NoError(t, json.NewDecoder(docsRec.Body).Decode(&docs))
	require.Len(t, docs, 1)
	require.Equal(t, "doc.md", docs[0].Filename)

	chatBody, _ := json.Marshal(chatRequest{Query: "what configuration keys exist?"})
	chatReq := httptest.NewRequest(http.MethodPost, "/api/kb/kb1/chat", bytes.NewReader(chatBody))
	chatRec := httptest.NewRecorder()
	srv.ServeHTTP(chatRec, chatReq)
	require.Equal(t, http.StatusOK, chatRec.Code)
	var result queryResult
	require.NoError(t, json.NewDecoder(chatRec.Body).Decode(&result))
	require.NotEmpty(t, result.Answer)

	statsReq := httptest.NewRequest(http.MethodGet, "/api/kb/kb1/stats", nil)
	statsRec := httptest.NewRecorder()
	srv.ServeHTTP(statsRec, statsReq)
	require.Equal(t, http.StatusOK, statsRec.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/kb/kb1/documents/doc.md", nil)
	delRec := httptest.NewRecorder()
	srv.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusNoContent, delRec.Code)

	docsReq2 := httptest.NewRequest(http.MethodGet, "/api/kb/kb1/documents", nil)
	docsRec2 := httptest.NewRecorder()
	srv.ServeHTTP(docsRec2, docsReq2)
	var docs2 []databases.DocSummary
	require.NoError(t, json.NewDecoder(docsRec2.Body).Decode(&docs2))
	require.Empty(t, docs2)
}

func TestChat_UnknownKBReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(chatRequest{Query: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/kb/missing/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
