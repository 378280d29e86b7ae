package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
)

// IndexUseCase maintains the per-tenant, per-document-type retrieval index.
// Documents are immutable once indexed; re-indexing creates new versions.
type IndexUseCase struct {
	chunker  ports.Chunker
	analyzer ports.Analyzer
	index    ports.VectorIndex
	store    ports.TenantStore
}

func NewIndexUseCase(
	chunker ports.Chunker,
	analyzer ports.Analyzer,
	index ports.VectorIndex,
	store ports.TenantStore,
) *IndexUseCase {
	return &IndexUseCase{
		chunker:  chunker,
		analyzer: analyzer,
		index:    index,
		store:    store,
	}
}

// IndexDocument chunks, embeds, and indexes text, mirroring document
// metadata into the tenant store for provenance. Returns the created
// document ids.
func (uc *IndexUseCase) IndexDocument(
	ctx context.Context,
	tenantID string,
	docType domain.DocumentType,
	text string,
	metadata map[string]string,
) ([]string, error) {
	if tenantID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "index document",
			fmt.Errorf("tenant_id is required"))
	}
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "index document",
			fmt.Errorf("text produced zero chunks"))
	}

	vectors, err := uc.analyzer.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed document chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed document chunks: vectors/chunks mismatch: %d/%d", len(vectors), len(chunks))
	}

	ids := make([]string, 0, len(chunks))
	now := time.Now().UTC()
	for i, chunk := range chunks {
		doc := domain.RetrievalDocument{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Type:      docType,
			Text:      chunk,
			Metadata:  copyMetadata(metadata),
			IndexedAt: now,
		}
		if err := uc.index.Insert(ctx, doc, vectors[i]); err != nil {
			return nil, fmt.Errorf("insert document vector: %w", err)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode retrieval document: %w", err)
		}
		if err := uc.store.Put(ctx, tenantID, domain.IndexEntityType(docType), doc.ID, raw, 0); err != nil {
			return nil, fmt.Errorf("persist retrieval document: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// QueryDocuments embeds the query text and returns nearest documents in
// descending similarity. An empty index yields an empty slice.
func (uc *IndexUseCase) QueryDocuments(
	ctx context.Context,
	tenantID string,
	docType domain.DocumentType,
	queryText string,
	topK int,
) ([]domain.RetrievedDocument, error) {
	if topK <= 0 {
		topK = 5
	}
	vector, err := uc.analyzer.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := uc.index.Search(ctx, tenantID, docType, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
