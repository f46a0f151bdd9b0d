package retrieve

import (
    "context"

    "github.com/intelligencedev/ragserver/internal/persistence/databases"
)

// docLookup is an optional capability of a FullTextSearch backend that can
// fetch a single record by ID.
type docLookup interface {
    GetByID(ctx context.Context, id string) (databases.SearchResult, bool, error)
}

// AttachDocMetadata fills per-item DocID and DocumentMeta from the documents store
// when present in metadata. When the backend supports direct lookup by ID, it
// fetches the doc row and copies title/url fields from metadata if available.
func AttachDocMetadata(ctx context.Context, search databases.FullTextSearch, items []RetrievedItem) []RetrievedItem {
    lookup, _ := search.(docLookup)
    for i := range items {
        // DocID may be derivable from the chunk ID and metadata
        items[i].DocID = deriveDocID(items[i].ID, items[i].Metadata)
        // Populate doc meta from available metadata aready on the chunk
        if items[i].Metadata != nil {
            if t, ok := items[i].Metadata["title"]; ok { items[i].Doc.Title = t }
            if u, ok := items[i].Metadata["url"]; ok { items[i].Doc.URL = u }
        }
        // If still empty, try to load the doc record
        if lookup != nil && (items[i].Doc.Title == "" && items[i].Doc.URL == "") {
            // If we have a separate doc_id different from chunk id, prefer that
            docID := items[i].DocID
            if docID != "" {
                if doc, ok, _ := lookup.GetByID(ctx, docID); ok {
                    if doc.Metadata != nil {
                        if t, ok := doc.Metadata["title"]; ok { items[i].Doc.Title = t }
                        if u, ok := doc.Metadata["url"]; ok { items[i].Doc.URL = u }
                    }
                }
            }
        }
    }
    return items
}

