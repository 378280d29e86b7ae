package memindex

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

func doc(id, tenant string, docType domain.DocumentType, indexedAt time.Time) domain.RetrievalDocument {
	return domain.RetrievalDocument{ID: id, TenantID: tenant, Type: docType, Text: "text " + id, IndexedAt: indexedAt}
}

func TestSearchSelfQueryReturnsTopSimilarity(t *testing.T) {
	ix := New()
	ctx := context.Background()
	now := time.Now()

	_ = ix.Insert(ctx, doc("d1", "t1", domain.DocTypeRubric, now), []float32{1, 0, 0})
	_ = ix.Insert(ctx, doc("d2", "t1", domain.DocTypeRubric, now), []float32{0, 1, 0})

	hits, err := ix.Search(ctx, "t1", domain.DocTypeRubric, []float32{2, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Document.ID != "d1" {
		t.Fatalf("expected d1 first, got %s", hits[0].Document.ID)
	}
	if math.Abs(hits[0].Similarity-1.0) > 1e-9 {
		t.Fatalf("self-query similarity = %v, want ~1.0", hits[0].Similarity)
	}
	if math.Abs(hits[1].Similarity) > 1e-9 {
		t.Fatalf("orthogonal similarity = %v, want ~0", hits[1].Similarity)
	}
}

func TestSearchTieBreaksByMostRecentIndexedAt(t *testing.T) {
	ix := New()
	ctx := context.Background()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	_ = ix.Insert(ctx, doc("old", "t1", domain.DocTypeTranscript, older), []float32{1, 0})
	_ = ix.Insert(ctx, doc("new", "t1", domain.DocTypeTranscript, newer), []float32{1, 0})

	hits, err := ix.Search(ctx, "t1", domain.DocTypeTranscript, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if hits[0].Document.ID != "new" {
		t.Fatalf("expected most recent first on tie, got %s", hits[0].Document.ID)
	}
}

func TestSearchIsolatesTenantsAndDocTypes(t *testing.T) {
	ix := New()
	ctx := context.Background()
	now := time.Now()

	_ = ix.Insert(ctx, doc("mine", "t1", domain.DocTypeRubric, now), []float32{1, 0})
	_ = ix.Insert(ctx, doc("theirs", "t2", domain.DocTypeRubric, now), []float32{1, 0})
	_ = ix.Insert(ctx, doc("transcript", "t1", domain.DocTypeTranscript, now), []float32{1, 0})

	hits, err := ix.Search(ctx, "t1", domain.DocTypeRubric, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Document.ID != "mine" {
		t.Fatalf("scope leak: %+v", hits)
	}
}

func TestSearchEmptyIndexReturnsEmptySlice(t *testing.T) {
	ix := New()
	hits, err := ix.Search(context.Background(), "t1", domain.DocTypeRubric, []float32{1}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestSearchHonorsTopK(t *testing.T) {
	ix := New()
	ctx := context.Background()
	now := time.Now()
	for i, v := range [][]float32{{1, 0}, {0.9, 0.1}, {0.5, 0.5}, {0, 1}} {
		_ = ix.Insert(ctx, doc(string(rune('a'+i)), "t1", domain.DocTypeRubric, now), v)
	}

	hits, err := ix.Search(ctx, "t1", domain.DocTypeRubric, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected topK=2 hits, got %d", len(hits))
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Fatalf("hits not in descending similarity: %v, %v", hits[0].Similarity, hits[1].Similarity)
	}
}
