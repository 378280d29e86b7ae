// Package memindex is an in-process vector index. One logical index exists
// per (tenant, document type), created lazily on first insert.
package memindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

type record struct {
	doc    domain.RetrievalDocument
	vector []float64
}

type Index struct {
	mu      sync.RWMutex
	buckets map[string][]record
}

func New() *Index {
	return &Index{buckets: make(map[string][]record)}
}

func bucketKey(tenantID string, docType domain.DocumentType) string {
	return tenantID + "|" + string(docType)
}

func (ix *Index) Insert(_ context.Context, doc domain.RetrievalDocument, vector []float32) error {
	normalized := normalize(vector)

	ix.mu.Lock()
	key := bucketKey(doc.TenantID, doc.Type)
	ix.buckets[key] = append(ix.buckets[key], record{doc: doc, vector: normalized})
	ix.mu.Unlock()
	return nil
}

// Search returns up to topK documents by descending cosine similarity, ties
// broken by most recent indexed_at. An empty bucket yields an empty slice.
func (ix *Index) Search(_ context.Context, tenantID string, docType domain.DocumentType, queryVector []float32, topK int) ([]domain.RetrievedDocument, error) {
	query := normalize(queryVector)

	ix.mu.RLock()
	bucket := ix.buckets[bucketKey(tenantID, docType)]
	hits := make([]domain.RetrievedDocument, 0, len(bucket))
	for _, rec := range bucket {
		hits = append(hits, domain.RetrievedDocument{
			Document:   rec.doc,
			Similarity: dot(query, rec.vector),
		})
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Document.IndexedAt.After(hits[j].Document.IndexedAt)
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
