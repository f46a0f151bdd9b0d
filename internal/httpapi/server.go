// Package httpapi exposes the REST surface consumed by the UI collaborator:
// KB lifecycle, document upload/listing/deletion, chat, and a health check.
package httpapi

import (
	"net/http"

	"github.com/intelligencedev/ragserver/internal/enginecache"
	"github.com/intelligencedev/ragserver/internal/ragerrors"
	"github.com/intelligencedev/ragserver/internal/ratelimit"
	"github.com/intelligencedev/ragserver/internal/registry"
)

// Server exposes the REST API described in SPEC_FULL.md §6.2.
type Server struct {
	registry  registry.Registry
	cache     *enginecache.Cache
	limiter   ratelimit.Limiter
	embedDim  int
	defaults  map[string]RetrievalDefaults
	mux       *http.ServeMux
}

// RetrievalDefaults mirrors config.RetrievalDefaults; kept local so httpapi
// doesn't need to import the config package just for this one shape.
type RetrievalDefaults struct {
	UseHybrid  bool
	UseRerank  bool
	UseAgentic bool
	TopK       int
	MinScore   float64
	RerankTopN int
}

// NewServer wires the REST handlers to a KB registry, the engine cache, a
// query rate limiter, and the configured embedding dimension/per-kb_type
// retrieval defaults.
func NewServer(reg registry.Registry, cache *enginecache.Cache, limiter ratelimit.Limiter, embedDim int, defaults map[string]RetrievalDefaults) *Server {
	s := &Server{registry: reg, cache: cache, limiter: limiter, embedDim: embedDim, defaults: defaults, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler. A panic in a handler is answered as
// ragerrors.ErrInternal.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			respondError(w, ragerrors.ErrInternal)
		}
	}()
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/kb", s.handleListKBs)
	s.mux.HandleFunc("POST /api/kb", s.handleCreateKB)
	s.mux.HandleFunc("DELETE /api/kb/{name}", s.handleDeleteKB)
	s.mux.HandleFunc("GET /api/kb/{name}/stats", s.handleKBStats)
	s.mux.HandleFunc("GET /api/kb/{name}/documents", s.handleListDocuments)
	s.mux.HandleFunc("POST /api/kb/{name}/upload", s.handleUpload)
	s.mux.HandleFunc("DELETE /api/kb/{name}/documents/{filename}", s.handleDeleteDocument)
	s.mux.HandleFunc("POST /api/kb/{name}/chat", s.handleChat)
}
