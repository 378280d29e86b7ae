package usecase

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

type splitterFake struct {
	chunks []string
}

func (f *splitterFake) Split(string) []string { return f.chunks }

type vectorIndexFake struct {
	inserted []domain.RetrievalDocument
	vectors  [][]float32
	results  []domain.RetrievedDocument
}

func (f *vectorIndexFake) Insert(_ context.Context, doc domain.RetrievalDocument, vector []float32) error {
	f.inserted = append(f.inserted, doc)
	f.vectors = append(f.vectors, vector)
	return nil
}

func (f *vectorIndexFake) Search(context.Context, string, domain.DocumentType, []float32, int) ([]domain.RetrievedDocument, error) {
	return f.results, nil
}

func TestIndexDocumentChunksEmbedsAndStores(t *testing.T) {
	store := newStoreFake()
	index := &vectorIndexFake{}
	uc := NewIndexUseCase(&splitterFake{chunks: []string{"chunk one", "chunk two"}}, &analyzerFake{}, index, store)

	ids, err := uc.IndexDocument(context.Background(), "t1", domain.DocTypeRubric, "chunk one chunk two", map[string]string{"source": "organizer"})
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 document ids, got %d", len(ids))
	}
	if len(index.inserted) != 2 {
		t.Fatalf("expected 2 inserts, got %d", len(index.inserted))
	}
	for i, doc := range index.inserted {
		if doc.TenantID != "t1" || doc.Type != domain.DocTypeRubric {
			t.Fatalf("insert %d carries wrong scope: %+v", i, doc)
		}
		if doc.Metadata["source"] != "organizer" {
			t.Fatalf("insert %d lost metadata: %+v", i, doc.Metadata)
		}
		if doc.IndexedAt.IsZero() {
			t.Fatalf("insert %d missing indexed_at", i)
		}
	}

	// Provenance entries mirror into the tenant store under the doc-type
	// scoped entity namespace.
	entities, err := store.ScanPrefix(context.Background(), "t1", domain.IndexEntityType(domain.DocTypeRubric))
	if err != nil || len(entities) != 2 {
		t.Fatalf("expected 2 provenance entries, got %d (err=%v)", len(entities), err)
	}
}

func TestIndexDocumentRejectsEmptyInput(t *testing.T) {
	uc := NewIndexUseCase(&splitterFake{}, &analyzerFake{}, &vectorIndexFake{}, newStoreFake())

	if _, err := uc.IndexDocument(context.Background(), "", domain.DocTypeRubric, "text", nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing tenant, got %v", err)
	}
	if _, err := uc.IndexDocument(context.Background(), "t1", domain.DocTypeRubric, "", nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty text, got %v", err)
	}
}

func TestQueryDocumentsEmbedsQueryOnce(t *testing.T) {
	index := &vectorIndexFake{results: []domain.RetrievedDocument{
		{Document: domain.RetrievalDocument{ID: "d1"}, Similarity: 0.92},
	}}
	uc := NewIndexUseCase(&splitterFake{}, &analyzerFake{}, index, newStoreFake())

	hits, err := uc.QueryDocuments(context.Background(), "t1", domain.DocTypeRubric, "scoring criteria", 4)
	if err != nil {
		t.Fatalf("QueryDocuments() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Document.ID != "d1" {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestPromptsEmbedTranscriptAndRubric(t *testing.T) {
	session := completedSession("t1", "s1", "Team Nova", "we solve parking with lasers")
	session.Title = "Laser Parking"

	direct := buildDirectPrompt(session)
	for _, want := range []string{"Team Nova", "Laser Parking", "we solve parking with lasers", "idea", "tool_use"} {
		if !strings.Contains(direct, want) {
			t.Fatalf("direct prompt missing %q", want)
		}
	}

	rag := buildRAGPrompt(session, []domain.RetrievedDocument{
		{Document: domain.RetrievalDocument{ID: "r1", Text: "judge on originality"}, Similarity: 0.91},
	}, nil)
	if !strings.Contains(rag, "judge on originality") {
		t.Fatalf("rag prompt missing rubric text")
	}
	if !strings.Contains(rag, "we solve parking with lasers") {
		t.Fatalf("rag prompt missing transcript")
	}
}

func TestTruncateTextBoundsLength(t *testing.T) {
	long := strings.Repeat("a", maxQueryChars+500)
	if got := truncateText(long, maxQueryChars); len(got) != maxQueryChars {
		t.Fatalf("truncated length = %d, want %d", len(got), maxQueryChars)
	}
	if got := truncateText("  short  ", maxQueryChars); got != "short" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestTruncateTextKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("п", maxQueryChars+10)
	got := truncateText(long, maxQueryChars)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != maxQueryChars {
		t.Fatalf("rune count = %d, want %d", n, maxQueryChars)
	}
}

func TestExtractJSONObjectStripsSurroundingProse(t *testing.T) {
	raw := "Here are the scores:\n```json\n{\"a\":1}\n```"
	if got := extractJSONObject(raw); got != `{"a":1}` {
		t.Fatalf("extractJSONObject() = %q", got)
	}
	if got := extractJSONObject("no braces"); got != "no braces" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
