package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/intelligencedev/ragserver/internal/enginecache"
	"github.com/intelligencedev/ragserver/internal/planner"
	"github.com/intelligencedev/ragserver/internal/rag/ingest"
	"github.com/intelligencedev/ragserver/internal/rag/retrieve"
	"github.com/intelligencedev/ragserver/internal/ragerrors"
	"github.com/intelligencedev/ragserver/internal/registry"
	"github.com/intelligencedev/ragserver/internal/synth"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListKBs(w http.ResponseWriter, r *http.Request) {
	kbs, err := s.registry.List(r.Context(), r.URL.Query().Get("kb_type"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, kbs)
}

type createKBRequest struct {
	Name        string         `json:"name"`
	KBType      string         `json:"kb_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) handleCreateKB(w http.ResponseWriter, r *http.Request) {
	var req createKBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("decode request: %w", ragerrors.ErrInvalidInput))
		return
	}
	if req.Name == "" {
		respondError(w, fmt.Errorf("name is required: %w", ragerrors.ErrInvalidInput))
		return
	}
	kbType := req.KBType
	if kbType == "" {
		kbType = "generic"
	}
	kb, err := s.registry.Create(r.Context(), req.Name, kbType, req.Description, req.Metadata, s.embedDim)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, kb)
}

func (s *Server) handleDeleteKB(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.registry.Delete(r.Context(), name); err != nil {
		respondError(w, err)
		return
	}
	s.cache.Invalidate(name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKBStats(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.resolveEntry(w, r, r.PathValue("name"))
	if !ok {
		return
	}
	stats, err := entry.Manager.Vector.Stats(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.resolveEntry(w, r, r.PathValue("name"))
	if !ok {
		return
	}
	docs, err := entry.Manager.Vector.ListDocuments(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.resolveEntry(w, r, r.PathValue("name"))
	if !ok {
		return
	}
	filename := r.PathValue("filename")
	if err := entry.Manager.Vector.DeleteByFilename(r.Context(), filename); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxUploadBytes = 32 << 20 // 32MiB

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.resolveKB(w, r, r.PathValue("name"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, fmt.Errorf("parse multipart form: %w", ragerrors.ErrInvalidInput))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, fmt.Errorf("missing file field: %w", ragerrors.ErrInvalidInput))
		return
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		respondError(w, fmt.Errorf("read upload: %w", ragerrors.ErrInvalidInput))
		return
	}

	entry, ok := s.entryForKB(w, r, kb)
	if !ok {
		return
	}
	extracted, err := ingest.ExtractText(header.Filename, raw)
	if err != nil {
		respondError(w, fmt.Errorf("%s: %w", err.Error(), ragerrors.ErrUnsupportedOrCorrupt))
		return
	}
	metadata := map[string]any{"filename": header.Filename}
	for k, v := range extracted.Metadata {
		metadata[k] = v
	}
	if len(extracted.Tags) > 0 {
		metadata["tags"] = extracted.Tags
	}
	req := ingest.IngestRequest{
		ID:       fmt.Sprintf("doc:%s:%s", kb.Slug, header.Filename),
		Title:    extracted.Title,
		Source:   "upload",
		Text:     extracted.Text,
		Tenant:   kb.Name,
		Metadata: metadata,
		Options: ingest.IngestOptions{
			Chunking: ingest.ChunkingOptions{Strategy: "tokens", MaxTokens: 1024, Overlap: 200},
			Embedding: ingest.EmbeddingOptions{
				Enabled:    true,
				Dimensions: kb.EmbedDim,
			},
		},
	}
	resp, err := entry.Service.Ingest(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chunks_ingested": resp.Stats.NumChunks})
}

type chatRequest struct {
	Query      string `json:"query"`
	UseHybrid  *bool  `json:"use_hybrid"`
	UseRerank  *bool  `json:"use_rerank"`
	UseAgentic *bool  `json:"use_agentic"`
}

type queryResult struct {
	Answer       string              `json:"answer"`
	Sources      []synth.Source      `json:"sources"`
	SubQuestions []planner.SubAnswer `json:"sub_questions,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.checkRateLimit(w, r) {
		return
	}
	kb, ok := s.resolveKB(w, r, r.PathValue("name"))
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("decode request: %w", ragerrors.ErrInvalidInput))
		return
	}
	if req.Query == "" {
		respondError(w, fmt.Errorf("query is required: %w", ragerrors.ErrInvalidInput))
		return
	}

	entry, ok := s.entryForKB(w, r, kb)
	if !ok {
		return
	}
	defaults := s.defaultsFor(kb.KBType)
	opt := retrieve.RetrieveOptions{
		K:           defaults.TopK,
		FtK:         defaults.TopK,
		VecK:        defaults.TopK,
		UseRRF:      overrideOr(req.UseHybrid, defaults.UseHybrid),
		Rerank:      overrideOr(req.UseRerank, defaults.UseRerank),
		MinScore:    defaults.MinScore,
		IncludeText: true,
		Tenant:      kb.Name,
	}
	useAgentic := overrideOr(req.UseAgentic, defaults.UseAgentic)

	if useAgentic {
		res, err := entry.Planner.Plan(r.Context(), req.Query, opt)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, queryResult{Answer: res.Answer, Sources: res.Sources, SubQuestions: res.SubQuestions})
		return
	}

	resp, err := entry.Service.Retrieve(r.Context(), req.Query, opt)
	if err != nil {
		respondError(w, err)
		return
	}
	res, err := entry.Synth.Synthesize(r.Context(), req.Query, resp.Items)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, queryResult{Answer: res.Answer, Sources: res.Sources})
}

func overrideOr(override *bool, def bool) bool {
	if override != nil {
		return *override
	}
	return def
}

func (s *Server) defaultsFor(kbType string) RetrievalDefaults {
	if d, ok := s.defaults[kbType]; ok {
		return d
	}
	return s.defaults["generic"]
}

// resolveKB looks up a KB by name, writing the error response itself on
// failure (status from ragerrors.HTTPStatus).
func (s *Server) resolveKB(w http.ResponseWriter, r *http.Request, name string) (registry.KB, bool) {
	kb, err := s.registry.GetByName(r.Context(), name)
	if err != nil {
		respondError(w, err)
		return registry.KB{}, false
	}
	return kb, true
}

func (s *Server) entryForKB(w http.ResponseWriter, r *http.Request, kb registry.KB) (*enginecache.Entry, bool) {
	entry, err := s.cache.Get(r.Context(), kb)
	if err != nil {
		respondError(w, fmt.Errorf("build engine for %q: %w", kb.Name, err))
		return nil, false
	}
	return entry, true
}

// resolveEntry combines resolveKB and entryForKB for handlers that don't
// need the KB value itself.
func (s *Server) resolveEntry(w http.ResponseWriter, r *http.Request, name string) (*enginecache.Entry, bool) {
	kb, ok := s.resolveKB(w, r, name)
	if !ok {
		return nil, false
	}
	return s.entryForKB(w, r, kb)
}

func (s *Server) checkRateLimit(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), clientAddr(r))
	if err != nil {
		respondError(w, fmt.Errorf("rate limit check: %w", ragerrors.ErrInternal))
		return false
	}
	if !ok {
		respondError(w, ragerrors.ErrRateLimited)
		return false
	}
	return true
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	status := ragerrors.HTTPStatus(err)
	respondJSON(w, status, map[string]string{"detail": err.Error()})
}
