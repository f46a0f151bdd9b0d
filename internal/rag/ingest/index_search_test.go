package ingest_test

import (
	"context"
	"testing"

	"github.com/intelligencedev/ragserver/internal/persistence/databases"
	"github.com/intelligencedev/ragserver/internal/rag/chunker"
	ingest "github.com/intelligencedev/ragserver/internal/rag/ingest"
)

func TestUpsertDocumentAndChunks_Memory(t *testing.T) {
	ctx := context.Background()
	search := databases.NewMemorySearch()

	in := ingest.IngestRequest{
		ID:       "doc:test:1",
		Title:    "Hello",
		URL:      "https://example.com",
		Source:   "test",
		Text:     "# Title\n\nPara one.\n\nPara two with more words.",
		Metadata: map[string]any{"a": 1},
		Tenant:   "t1",
		Options:  ingest.IngestOptions{Version: 1},
	}
	pre, err := ingest.Preprocess(ctx, ingest.DefaultLanguageDetector{}, in)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}

	if err := ingest.UpsertDocumentToSearch(ctx, search, in.ID, in, pre, 1); err != nil {
		t.Fatalf("doc upsert: %v", err)
	}
	chunks, err := chunker.SimpleChunker{}.Chunk(pre.Text, ingest.ChunkingOptions{Strategy: "md", MaxTokens: 32})
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	recs := make([]ingest.ChunkRecord, 0, len(chunks))
	for _, c := range chunks {
		recs = append(recs, ingest.ChunkRecord{Index: c.Index, Text: c.Text})
	}
	ids, err := ingest.UpsertChunksToSearch(ctx, search, in.ID, pre.Language, recs, in, 1)
	if err != nil {
		t.Fatalf("chunks upsert: %v", err)
	}
	if len(ids) != len(chunks) {
		t.Fatalf("expected %d chunk ids, got %d", len(chunks), len(ids))
	}

	results, err := search.Search(ctx, "Title", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := false
	for _, r := range results {
		if r.ID == in.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected doc %s in search results", in.ID)
	}

	chunkResults, err := search.Search(ctx, "words", 10)
	if err != nil {
		t.Fatalf("search chunks: %v", err)
	}
	foundChunk := false
	for _, r := range chunkResults {
		if r.ID == ids[len(ids)-1] {
			foundChunk = true
		}
	}
	if !foundChunk {
		t.Fatalf("expected chunk %s in search results", ids[len(ids)-1])
	}
}
