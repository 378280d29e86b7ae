package domain

import "time"

type DocumentType string

const (
	DocTypeRubric      DocumentType = "rubric"
	DocTypeTranscript  DocumentType = "transcript"
	DocTypeTeamProfile DocumentType = "team_profile"
)

// RetrievalDocument is one indexed grounding document. Immutable once
// indexed; re-indexing produces a new document version with a fresh ID so
// audit history survives re-scores.
type RetrievalDocument struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Type      DocumentType      `json:"document_type"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IndexedAt time.Time         `json:"indexed_at"`
}

// RetrievedDocument pairs a document with its cosine similarity to a query.
// Similarity is [-1,1] in principle, effectively [0,1] with normalized
// embeddings; no clipping is applied.
type RetrievedDocument struct {
	Document   RetrievalDocument `json:"document"`
	Similarity float64           `json:"similarity"`
}
